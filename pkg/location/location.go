// Package location maps instance paths reported by decode errors
// ("Patient.contact[0].name") back to line and column positions in the JSON
// source.
package location

import (
	"errors"
	"fmt"
	"strings"

	"github.com/buger/jsonparser"

	fo "github.com/gofhir/fhirobject"
)

// Location represents a position in the source JSON.
type Location struct {
	Line   int
	Column int
}

func (l *Location) String() string {
	return fmt.Sprintf("line %d, column %d", l.Line, l.Column)
}

// Find locates the value an instance path points at. The leading type name
// of the path is optional. Returns nil if the path cannot be found.
func Find(data []byte, path string) *Location {
	keys := segments(path)
	if len(data) == 0 || len(keys) == 0 {
		return nil
	}

	value, typ, end, err := jsonparser.Get(data, keys...)
	if err != nil {
		return nil
	}

	start := end - len(value)
	if typ == jsonparser.String {
		start -= 2
	}
	line, col := lineCol(data, start)
	return &Location{Line: line, Column: col}
}

// FromError locates the instance path carried by err. Paths of nested
// decodes (a bundle entry and the resource inside it) are joined.
func FromError(data []byte, err error) *Location {
	path := InstancePath(err)
	if path == "" {
		return nil
	}
	return Find(data, path)
}

// InstancePath returns the full instance path carried by the DecodeErrors
// in err's chain, or "" when there is none.
func InstancePath(err error) string {
	var path string
	for {
		var de *fo.DecodeError
		if !errors.As(err, &de) {
			return path
		}
		if path == "" {
			path = de.Path
		} else if _, rest, ok := strings.Cut(de.Path, "."); ok {
			path += "." + rest
		}
		err = de.Err
	}
}

// segments splits a path into jsonparser keys:
// "Patient.contact[0].name" -> ["contact", "[0]", "name"].
func segments(path string) []string {
	if first, rest, ok := strings.Cut(path, "."); ok && isTypeName(first) {
		path = rest
	} else if !ok && isTypeName(path) {
		return nil
	}

	var keys []string
	for _, part := range strings.Split(path, ".") {
		name, idx, _ := strings.Cut(part, "[")
		if name != "" {
			keys = append(keys, name)
		}
		for idx != "" {
			var n string
			n, idx, _ = strings.Cut(idx, "]")
			keys = append(keys, "["+n+"]")
			idx = strings.TrimPrefix(idx, "[")
		}
	}
	return keys
}

func isTypeName(s string) bool {
	return s != "" && s[0] >= 'A' && s[0] <= 'Z'
}

// lineCol converts a byte offset to 1-based line and column numbers.
func lineCol(data []byte, offset int) (line, col int) {
	line, col = 1, 1
	for i := 0; i < offset && i < len(data); i++ {
		if data[i] == '\n' {
			line++
			col = 1
		} else {
			col++
		}
	}
	return line, col
}
