package loader

import (
	"github.com/gofhir/fhir/r4"

	"github.com/gofhir/fhirobject/schema"
)

// R4Converter converts R4 StructureDefinitions to schemas.
type R4Converter struct{}

// NewR4Converter creates a new R4 converter.
func NewR4Converter() *R4Converter {
	return &R4Converter{}
}

// Convert converts sd to a schema. Elements come from the snapshot; a
// definition without one falls back to its differential.
func (c *R4Converter) Convert(sd *r4.StructureDefinition) *schema.Schema {
	if sd == nil {
		return nil
	}

	result := &schema.Schema{
		URL:            derefString(sd.Url),
		Name:           derefString(sd.Name),
		Type:           derefString(sd.Type),
		Kind:           c.convertKind(sd.Kind),
		Abstract:       derefBool(sd.Abstract),
		BaseDefinition: derefString(sd.BaseDefinition),
	}

	switch {
	case sd.Snapshot != nil && len(sd.Snapshot.Element) > 0:
		result.Elements = c.convertElements(sd.Snapshot.Element)
	case sd.Differential != nil:
		result.Elements = c.convertElements(sd.Differential.Element)
	}

	return result
}

func (c *R4Converter) convertElements(elements []r4.ElementDefinition) []schema.ElementDefinition {
	if len(elements) == 0 {
		return nil
	}

	result := make([]schema.ElementDefinition, 0, len(elements))
	for i := range elements {
		result = append(result, c.convertElement(&elements[i]))
	}
	return result
}

func (c *R4Converter) convertElement(ed *r4.ElementDefinition) schema.ElementDefinition {
	return schema.ElementDefinition{
		ID:               derefString(ed.Id),
		Path:             derefString(ed.Path),
		Min:              convertMin(ed.Min),
		Max:              derefString(ed.Max),
		Short:            derefString(ed.Short),
		Types:            c.convertTypes(ed.Type),
		ContentReference: derefString(ed.ContentReference),
	}
}

func (c *R4Converter) convertTypes(types []r4.ElementDefinitionType) []schema.Type {
	if len(types) == 0 {
		return nil
	}

	result := make([]schema.Type, 0, len(types))
	for i := range types {
		t := &types[i]
		result = append(result, schema.Type{
			Code:          derefString(t.Code),
			Profile:       t.Profile,
			TargetProfile: t.TargetProfile,
		})
	}
	return result
}

func (c *R4Converter) convertKind(kind *r4.StructureDefinitionKind) schema.Kind {
	if kind == nil {
		return ""
	}
	return schema.Kind(*kind)
}

func convertMin(minVal *uint32) int {
	if minVal == nil {
		return 0
	}
	return int(*minVal)
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func derefBool(b *bool) bool {
	if b == nil {
		return false
	}
	return *b
}
