package decoder

import (
	"bytes"
	"context"
	"sync"
	"testing"

	fo "github.com/gofhir/fhirobject"
	"github.com/gofhir/fhirobject/pkg/logger"
	"github.com/gofhir/fhirobject/schema"
)

const systemString = "http://hl7.org/fhirpath/System.String"

// testOrigin serves the fixture schemas and counts fetches per type.
type testOrigin struct {
	schemas map[string]*schema.Schema

	mu     sync.Mutex
	fail   map[string]error
	counts map[string]int
}

func newTestOrigin() *testOrigin {
	o := &testOrigin{
		schemas: make(map[string]*schema.Schema),
		fail:    make(map[string]error),
		counts:  make(map[string]int),
	}
	for _, s := range fixtureSchemas() {
		o.schemas[s.TypeName()] = s
	}
	return o
}

func (o *testOrigin) FetchSchema(_ context.Context, typeName string) (*schema.Schema, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.counts[typeName]++
	if err, ok := o.fail[typeName]; ok {
		return nil, err
	}
	s, ok := o.schemas[typeName]
	if !ok {
		return nil, &fo.SchemaNotFoundError{TypeName: typeName}
	}
	return s, nil
}

func (o *testOrigin) failWith(typeName string, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.fail[typeName] = err
}

func (o *testOrigin) count(typeName string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.counts[typeName]
}

func newTestDecoder(t *testing.T, origin schema.Fetcher, opts ...fo.Option) *Decoder {
	t.Helper()
	opts = append([]fo.Option{fo.WithLogger(logger.New(&bytes.Buffer{}, logger.LevelNone))}, opts...)
	return New(origin, opts...)
}

func (o *testOrigin) schema(t *testing.T, typeName string) *schema.Schema {
	t.Helper()
	s, ok := o.schemas[typeName]
	if !ok {
		t.Fatalf("no fixture schema %s", typeName)
	}
	return s
}

func el(path string, max string, codes ...string) schema.ElementDefinition {
	e := schema.ElementDefinition{ID: path, Path: path, Max: max}
	for _, c := range codes {
		e.Types = append(e.Types, schema.Type{Code: c})
	}
	return e
}

func build(name string, kind schema.Kind, elements ...schema.ElementDefinition) *schema.Schema {
	return &schema.Schema{
		URL:      "http://hl7.org/fhir/StructureDefinition/" + name,
		Name:     name,
		Type:     name,
		Kind:     kind,
		Elements: append([]schema.ElementDefinition{{ID: name, Path: name, Max: "*"}}, elements...),
	}
}

func fixtureSchemas() []*schema.Schema {
	gender := el("Patient.gender", "1", "code")
	gender.Short = "male | female | other | unknown"

	return []*schema.Schema{
		build("Patient", schema.KindResource,
			el("Patient.id", "1", systemString),
			el("Patient.meta", "1", "Meta"),
			el("Patient.identifier", "*", "Identifier"),
			el("Patient.name", "*", "HumanName"),
			gender,
			el("Patient.birthDate", "1", "date"),
			el("Patient.deceased[x]", "1", "boolean", "dateTime"),
			el("Patient.contact", "*", "BackboneElement"),
			el("Patient.contact.relationship", "*", "CodeableConcept"),
			el("Patient.contact.name", "1", "HumanName"),
			el("Patient.contained", "*", "Resource"),
		),
		build("Observation", schema.KindResource,
			el("Observation.id", "1", systemString),
			el("Observation.status", "1", "code"),
			el("Observation.code", "1", "CodeableConcept"),
			el("Observation.value[x]", "1", "CodeableConcept", "Reference"),
			el("Observation.subject", "1", "Reference"),
		),
		build("Consent", schema.KindResource,
			el("Consent.status", "1", "code"),
			el("Consent.provision", "1", "BackboneElement"),
			el("Consent.provision.type", "1", "code"),
			el("Consent.provision.actor", "*", "BackboneElement"),
			el("Consent.provision.actor.role", "1", "CodeableConcept"),
			schema.ElementDefinition{
				ID:               "Consent.provision.provision",
				Path:             "Consent.provision.provision",
				Max:              "*",
				ContentReference: "#Consent.provision",
			},
		),
		build("Questionnaire", schema.KindResource,
			el("Questionnaire.item", "*", "BackboneElement"),
			el("Questionnaire.item.linkId", "1", "string"),
			schema.ElementDefinition{
				ID:               "Questionnaire.item.item",
				Path:             "Questionnaire.item.item",
				Max:              "*",
				ContentReference: "#Questionnaire.missing",
			},
		),
		build("Meta", schema.KindComplexType,
			el("Meta.versionId", "1", "id"),
		),
		build("Identifier", schema.KindComplexType,
			el("Identifier.system", "1", "uri"),
			el("Identifier.value", "1", "string"),
		),
		build("HumanName", schema.KindComplexType,
			el("HumanName.family", "1", "string"),
			el("HumanName.given", "*", "string"),
		),
		build("Coding", schema.KindComplexType,
			el("Coding.system", "1", "uri"),
			el("Coding.code", "1", "code"),
		),
		build("CodeableConcept", schema.KindComplexType,
			el("CodeableConcept.coding", "*", "Coding"),
			el("CodeableConcept.text", "1", "string"),
		),
		build("Reference", schema.KindComplexType,
			el("Reference.reference", "1", "string"),
			el("Reference.display", "1", "string"),
		),
		build("Extension", schema.KindComplexType,
			el("Extension.extension", "*", "Extension"),
			el("Extension.url", "1", systemString),
			el("Extension.value[x]", "1", "string", "Coding", "CodeableConcept"),
		),
	}
}
