// Package categories models the fixed expense category hierarchy and the
// per-user custom categories fetched from the backend.
package categories

// Node is a single category in the built-in tree. Nodes are stored in a flat
// arena keyed by id; Parent is 0 for root nodes.
type Node struct {
	ID       int64
	Name     string
	Parent   int64
	Children []int64
}

// Tree is an immutable arena of built-in category nodes.
type Tree struct {
	nodes map[int64]*Node
	roots []int64
}

// NewTree builds a Tree from a flat node list, wiring parent/child links.
// Input order is preserved for roots and sibling groups.
func NewTree(nodes []Node) *Tree {
	t := &Tree{nodes: make(map[int64]*Node, len(nodes))}
	for i := range nodes {
		n := nodes[i]
		t.nodes[n.ID] = &n
	}
	for i := range nodes {
		n := t.nodes[nodes[i].ID]
		if n.Parent == 0 {
			t.roots = append(t.roots, n.ID)
			continue
		}
		if p, ok := t.nodes[n.Parent]; ok {
			p.Children = append(p.Children, n.ID)
		}
	}
	return t
}

// Find returns the node with the given id, or nil if unknown.
func (t *Tree) Find(id int64) *Node {
	return t.nodes[id]
}

// Roots returns the top-level nodes in definition order.
func (t *Tree) Roots() []*Node {
	out := make([]*Node, 0, len(t.roots))
	for _, id := range t.roots {
		out = append(out, t.nodes[id])
	}
	return out
}

// ChildrenOf returns the direct children of a node in definition order.
// A zero id yields the roots.
func (t *Tree) ChildrenOf(id int64) []*Node {
	if id == 0 {
		return t.Roots()
	}
	n := t.nodes[id]
	if n == nil {
		return nil
	}
	out := make([]*Node, 0, len(n.Children))
	for _, cid := range n.Children {
		out = append(out, t.nodes[cid])
	}
	return out
}

// IsLeaf reports whether the node has no children. Unknown ids are leaves.
func (t *Tree) IsLeaf(id int64) bool {
	n := t.nodes[id]
	return n == nil || len(n.Children) == 0
}

// Path returns node names from the root down to the given id.
// Unknown ids yield nil.
func (t *Tree) Path(id int64) []string {
	n := t.nodes[id]
	if n == nil {
		return nil
	}
	var rev []string
	for n != nil {
		rev = append(rev, n.Name)
		if n.Parent == 0 {
			break
		}
		n = t.nodes[n.Parent]
	}
	out := make([]string, 0, len(rev))
	for i := len(rev) - 1; i >= 0; i-- {
		out = append(out, rev[i])
	}
	return out
}

// BuiltIn returns the expense category tree shipped with the bot.
func BuiltIn() *Tree {
	return NewTree([]Node{
		{ID: 1, Name: "🛒 Продукты"},
		{ID: 2, Name: "Супермаркет", Parent: 1},
		{ID: 3, Name: "Рынок", Parent: 1},
		{ID: 4, Name: "Доставка еды", Parent: 1},

		{ID: 5, Name: "🚗 Транспорт"},
		{ID: 6, Name: "Общественный транспорт", Parent: 5},
		{ID: 7, Name: "Такси", Parent: 5},
		{ID: 8, Name: "Топливо", Parent: 5},

		{ID: 9, Name: "🏠 Жильё"},
		{ID: 10, Name: "Аренда", Parent: 9},
		{ID: 11, Name: "Коммунальные услуги", Parent: 9},
		{ID: 12, Name: "Ремонт", Parent: 9},

		{ID: 13, Name: "🎉 Развлечения"},
		{ID: 14, Name: "Кино", Parent: 13},
		{ID: 15, Name: "Рестораны и кафе", Parent: 13},
		{ID: 16, Name: "Подписки", Parent: 13},

		{ID: 17, Name: "💊 Здоровье"},
		{ID: 18, Name: "Аптека", Parent: 17},
		{ID: 19, Name: "Врачи", Parent: 17},

		{ID: 20, Name: "👕 Одежда"},
		{ID: 21, Name: "📚 Образование"},
		{ID: 22, Name: "🎁 Подарки"},
		{ID: 23, Name: "Прочее"},
	})
}
