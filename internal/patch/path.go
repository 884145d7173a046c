package patch

import (
	"fmt"
	"strings"
)

// Step is one hop of a value path: either a mapping key or a sequence
// index.
type Step struct {
	Key   string
	Index int
	IsKey bool
}

// Path locates a scalar inside a structured file.
type Path []Step

// Key returns a mapping-key step.
func Key(key string) Step { return Step{Key: key, IsKey: true} }

// Index returns a sequence-index step.
func Index(i int) Step { return Step{Index: i} }

// PathFromAny converts a decoded yamlPath (strings and integers) into a
// Path. Any other element type is rejected.
func PathFromAny(raw []any) (Path, error) {
	path := make(Path, 0, len(raw))
	for _, element := range raw {
		switch v := element.(type) {
		case string:
			path = append(path, Key(v))
		case int:
			path = append(path, Index(v))
		default:
			return nil, fmt.Errorf("unsupported path element %v (%T)", element, element)
		}
	}
	return path, nil
}

// String renders the path in dotted form, e.g.
// "spec.template.spec.containers[0].image".
func (p Path) String() string {
	var b strings.Builder
	for _, step := range p {
		if step.IsKey {
			if b.Len() > 0 {
				b.WriteByte('.')
			}
			b.WriteString(step.Key)
		} else {
			fmt.Fprintf(&b, "[%d]", step.Index)
		}
	}
	return b.String()
}
