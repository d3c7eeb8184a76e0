package walker

import "github.com/gofhir/fhirobject/schema"

func el(path string, codes ...string) schema.ElementDefinition {
	e := schema.ElementDefinition{ID: path, Path: path, Max: "1"}
	for _, c := range codes {
		e.Types = append(e.Types, schema.Type{Code: c})
	}
	return e
}

func ref(path, target string) schema.ElementDefinition {
	return schema.ElementDefinition{ID: path, Path: path, Max: "*", ContentReference: target}
}

func consentSchema() *schema.Schema {
	return &schema.Schema{
		Name: "Consent",
		Type: "Consent",
		Kind: schema.KindResource,
		Elements: []schema.ElementDefinition{
			{ID: "Consent", Path: "Consent"},
			el("Consent.id", "http://hl7.org/fhirpath/System.String"),
			el("Consent.status", "code"),
			el("Consent.provision", "BackboneElement"),
			el("Consent.provision.type", "code"),
			el("Consent.provision.actor", "BackboneElement"),
			el("Consent.provision.actor.role", "CodeableConcept"),
			ref("Consent.provision.provision", "#Consent.provision"),
			el("Consent.provisional", "boolean"),
		},
	}
}

func paths(elements []schema.ElementDefinition) []string {
	out := make([]string, len(elements))
	for i := range elements {
		out[i] = elements[i].Path
	}
	return out
}
