package categories

import "strings"

// Custom is a user-defined category returned by the backend.
type Custom struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	ParentID *int64 `json:"parent_id"`
}

const (
	incomeLabel     = "Доход"
	noCategoryLabel = "Без категории"
)

// FindCustom returns the custom category with the given id, or nil.
// Custom lookup is a linear scan over the per-flow list and never touches
// the built-in tree.
func FindCustom(list []Custom, id int64) *Custom {
	for i := range list {
		if list[i].ID == id {
			return &list[i]
		}
	}
	return nil
}

// HasCustomNamed reports whether a custom category with the given name
// already exists (case-insensitive).
func HasCustomNamed(list []Custom, name string) bool {
	name = strings.ToLower(strings.TrimSpace(name))
	for i := range list {
		if strings.ToLower(list[i].Name) == name {
			return true
		}
	}
	return false
}

// Label resolves the display label for a transaction. Income is labelled as
// such without any lookup; expenses resolve custom categories first, then the
// built-in tree, and fall back to a "no category" label.
func Label(tree *Tree, customs []Custom, amount float64, ref *Ref) string {
	if amount > 0 {
		return incomeLabel
	}
	if ref == nil {
		return noCategoryLabel
	}
	if ref.Custom {
		if c := FindCustom(customs, ref.ID); c != nil {
			return c.Name
		}
		return noCategoryLabel
	}
	if n := tree.Find(ref.ID); n != nil {
		return n.Name
	}
	return noCategoryLabel
}

// PathLabel renders a built-in category as its full path joined by " > ".
// Custom categories render as their raw name.
func PathLabel(tree *Tree, customs []Custom, ref Ref) string {
	if ref.Custom {
		if c := FindCustom(customs, ref.ID); c != nil {
			return c.Name
		}
		return noCategoryLabel
	}
	path := tree.Path(ref.ID)
	if len(path) == 0 {
		return noCategoryLabel
	}
	return strings.Join(path, " > ")
}
