package categories

import (
	"fmt"
	"strconv"
	"strings"
)

// Ref identifies a category on the wire. Built-in categories are referenced
// by their numeric tree id, custom categories carry a "custom_" tag so the
// backend can tell the two id spaces apart.
type Ref struct {
	Custom bool
	ID     int64
}

const customTag = "custom_"

// BuiltInRef references a node of the built-in tree.
func BuiltInRef(id int64) Ref {
	return Ref{ID: id}
}

// CustomRef references a user-defined category.
func CustomRef(id int64) Ref {
	return Ref{Custom: true, ID: id}
}

// Encode renders the wire form: "custom_<id>" for custom categories,
// the bare decimal id otherwise.
func (r Ref) Encode() string {
	if r.Custom {
		return customTag + strconv.FormatInt(r.ID, 10)
	}
	return strconv.FormatInt(r.ID, 10)
}

// ParseRef parses the wire form produced by Encode.
func ParseRef(s string) (Ref, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Ref{}, fmt.Errorf("empty category reference")
	}
	if rest, ok := strings.CutPrefix(s, customTag); ok {
		id, err := strconv.ParseInt(rest, 10, 64)
		if err != nil {
			return Ref{}, fmt.Errorf("invalid custom category reference %q", s)
		}
		return Ref{Custom: true, ID: id}, nil
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return Ref{}, fmt.Errorf("invalid category reference %q", s)
	}
	return Ref{ID: id}, nil
}
