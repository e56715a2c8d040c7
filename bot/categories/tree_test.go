package categories

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindReturnsNodeAtAnyDepth(t *testing.T) {
	tree := BuiltIn()

	root := tree.Find(5)
	require.NotNil(t, root)
	assert.Equal(t, "🚗 Транспорт", root.Name)

	leaf := tree.Find(7)
	require.NotNil(t, leaf)
	assert.Equal(t, "Такси", leaf.Name)
	assert.Equal(t, int64(5), leaf.Parent)

	assert.Nil(t, tree.Find(9999))
}

func TestPathJoinsRootToLeaf(t *testing.T) {
	tree := BuiltIn()

	assert.Equal(t, []string{"🚗 Транспорт", "Такси"}, tree.Path(7))
	assert.Equal(t, []string{"Прочее"}, tree.Path(23))
	assert.Nil(t, tree.Path(9999))
}

func TestChildrenAndLeaves(t *testing.T) {
	tree := BuiltIn()

	roots := tree.Roots()
	require.NotEmpty(t, roots)
	assert.Equal(t, "🛒 Продукты", roots[0].Name)

	children := tree.ChildrenOf(1)
	require.Len(t, children, 3)
	assert.Equal(t, "Супермаркет", children[0].Name)

	assert.False(t, tree.IsLeaf(1))
	assert.True(t, tree.IsLeaf(2))
	assert.True(t, tree.IsLeaf(20))
}

func TestRefEncodeParseRoundTrip(t *testing.T) {
	cases := []struct {
		ref  Ref
		wire string
	}{
		{BuiltInRef(12), "12"},
		{CustomRef(3), "custom_3"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.wire, tc.ref.Encode())
		parsed, err := ParseRef(tc.wire)
		require.NoError(t, err)
		assert.Equal(t, tc.ref, parsed)
	}

	_, err := ParseRef("")
	assert.Error(t, err)
	_, err = ParseRef("custom_abc")
	assert.Error(t, err)
	_, err = ParseRef("abc")
	assert.Error(t, err)
}

func TestLabelResolution(t *testing.T) {
	tree := BuiltIn()
	customs := []Custom{{ID: 3, Name: "Хобби"}}

	assert.Equal(t, "Доход", Label(tree, customs, 500, nil))

	builtIn := BuiltInRef(7)
	assert.Equal(t, "Такси", Label(tree, customs, -100, &builtIn))

	custom := CustomRef(3)
	assert.Equal(t, "Хобби", Label(tree, customs, -50, &custom))

	// Custom lookup must not fall back to the built-in tree.
	missingCustom := CustomRef(7)
	assert.Equal(t, "Без категории", Label(tree, customs, -50, &missingCustom))

	assert.Equal(t, "Без категории", Label(tree, customs, -50, nil))
}

func TestPathLabel(t *testing.T) {
	tree := BuiltIn()
	customs := []Custom{{ID: 3, Name: "Хобби"}}

	assert.Equal(t, "🚗 Транспорт > Такси", PathLabel(tree, customs, BuiltInRef(7)))
	assert.Equal(t, "Хобби", PathLabel(tree, customs, CustomRef(3)))
	assert.Equal(t, "Без категории", PathLabel(tree, customs, BuiltInRef(9999)))
}

func TestHasCustomNamedIsCaseInsensitive(t *testing.T) {
	customs := []Custom{{ID: 1, Name: "Хобби"}}

	assert.True(t, HasCustomNamed(customs, "хобби"))
	assert.True(t, HasCustomNamed(customs, "  ХОББИ "))
	assert.False(t, HasCustomNamed(customs, "Спорт"))
}
