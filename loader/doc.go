// Package loader provides schema origins: the sources a schema.Cache loads
// StructureDefinitions from.
//
//   - R4Converter turns r4.StructureDefinition documents into schemas.
//   - InMemorySource serves definitions read from JSON files, directories
//     and bundles (for example an extracted FHIR package).
//   - HTTPSource searches a FHIR server's StructureDefinition endpoint.
//   - Chain asks several origins in order.
//
// Example usage:
//
//	src := loader.NewInMemorySource()
//	if _, err := src.LoadDirectory("definitions"); err != nil {
//		return err
//	}
//	schemas := schema.NewCache(src)
//
//	// or local definitions first, then a server
//	schemas = schema.NewCache(loader.NewChain(src, loader.NewHTTPSource("https://hapi.fhir.org/baseR4")))
package loader
