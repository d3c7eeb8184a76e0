package schema

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Type codes with special meaning to the decoder.
const (
	CodeString          = "string"
	CodeElement         = "Element"
	CodeBackboneElement = "BackboneElement"
	CodeResource        = "Resource"
	CodeExtension       = "Extension"
)

// ChoiceSuffix marks a polymorphic element name.
const ChoiceSuffix = "[x]"

// SystemTypeMapping maps FHIRPath system types to FHIR primitive types.
// Snapshots use them for the value of primitive types, e.g. Patient.id.
var SystemTypeMapping = map[string]string{
	"http://hl7.org/fhirpath/System.String":   CodeString,
	"http://hl7.org/fhirpath/System.Boolean":  "boolean",
	"http://hl7.org/fhirpath/System.Integer":  "integer",
	"http://hl7.org/fhirpath/System.Decimal":  "decimal",
	"http://hl7.org/fhirpath/System.DateTime": "dateTime",
	"http://hl7.org/fhirpath/System.Time":     "time",
	"http://hl7.org/fhirpath/System.Date":     "date",
}

// NormalizeCode converts a FHIRPath system type URL to a FHIR primitive type.
// Other codes are returned unchanged.
func NormalizeCode(code string) string {
	if normalized, ok := SystemTypeMapping[code]; ok {
		return normalized
	}
	return code
}

// IsPrimitiveCode reports whether code names a primitive type. Primitive
// codes start with a lower-case letter; complex, resource and abstract codes
// with an upper-case one.
func IsPrimitiveCode(code string) bool {
	code = NormalizeCode(code)
	r, _ := utf8.DecodeRuneInString(code)
	return r != utf8.RuneError && unicode.IsLower(r)
}

// IsAbstractCode reports whether code is one of the abstract element types
// whose children are defined inline by the enclosing schema.
func IsAbstractCode(code string) bool {
	return code == CodeElement || code == CodeBackboneElement
}

// IsResourceCode reports whether code is the abstract Resource slot type.
func IsResourceCode(code string) bool {
	return code == CodeResource
}

// TitleCase upper-cases the first letter of s: "dateTime" -> "DateTime".
func TitleCase(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

// PathDepth returns the number of segments in a dot-separated path.
func PathDepth(path string) int {
	if path == "" {
		return 0
	}
	return strings.Count(path, ".") + 1
}

// PropertyName returns the second segment of path, the property an element
// declares on its owner: "Patient.name.given" -> "name".
func PropertyName(path string) string {
	_, rest, ok := strings.Cut(path, ".")
	if !ok {
		return ""
	}
	name, _, _ := strings.Cut(rest, ".")
	return name
}

// DropSegments removes the first n segments of path.
func DropSegments(path string, n int) string {
	for ; n > 0; n-- {
		_, rest, ok := strings.Cut(path, ".")
		if !ok {
			return ""
		}
		path = rest
	}
	return path
}

// DescribeValue returns the JSON kind of a decoded JSON value, for messages.
func DescribeValue(value any) string {
	switch value.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case string:
		return "string"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	case float64, float32, int, int64, int32, uint64, interface{ Float64() (float64, error) }:
		return "number"
	default:
		return "unknown"
	}
}
