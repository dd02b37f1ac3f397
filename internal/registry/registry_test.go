package registry

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/ttr/internal/definition"
)

func TestRegistry_AddKeepsInsertionOrder(t *testing.T) {
	r := New()
	require.NoError(t, r.Add(&Case{Name: "zeta"}))
	require.NoError(t, r.Add(&Case{Name: "alpha"}))
	require.NoError(t, r.Add(&Case{Name: "mid"}))

	require.Equal(t, []string{"zeta", "alpha", "mid"}, r.Names())
	require.Equal(t, 3, r.Len())
	require.Equal(t, 1, r.Ordinal("zeta"))
	require.Equal(t, 3, r.Ordinal("mid"))
	require.Equal(t, 0, r.Ordinal("missing"))
}

func TestRegistry_AddRejectsDuplicates(t *testing.T) {
	r := New()
	require.NoError(t, r.Add(&Case{Name: "a"}))

	err := r.Add(&Case{Name: "a"})
	require.ErrorIs(t, err, ErrDuplicateCase)
	require.ErrorIs(t, r.Add(nil), ErrNilCase)
}

func TestRegistry_PutReplacesInPlace(t *testing.T) {
	r := New()
	require.NoError(t, r.Add(&Case{Name: "a"}))
	require.NoError(t, r.Add(&Case{Name: "b"}))

	old := r.Put(&Case{Name: "a", Base: "replaced"})
	require.NotNil(t, old)
	require.Equal(t, "a", old.Name)
	require.Empty(t, old.Base)
	require.Nil(t, r.Put(&Case{Name: "c"}))

	require.Equal(t, []string{"a", "b", "c"}, r.Names())
	c, ok := r.Get("a")
	require.True(t, ok)
	require.Equal(t, "replaced", c.Base)
}

func TestRegistry_LookupListsKnownNames(t *testing.T) {
	r := New()
	require.NoError(t, r.Add(&Case{Name: "a"}))
	require.NoError(t, r.Add(&Case{Name: "b"}))

	_, err := r.Lookup("nope")
	require.ErrorIs(t, err, ErrLookup)

	var lookupErr *LookupError
	require.True(t, errors.As(err, &lookupErr))
	require.Equal(t, "nope", lookupErr.Name)
	require.Equal(t, []string{"a", "b"}, lookupErr.Known)
	require.Contains(t, err.Error(), "known cases: a, b")
}

func TestRegistry_CasesReturnsCopyOfOrder(t *testing.T) {
	r := New()
	require.NoError(t, r.Add(&Case{Name: "a"}))
	cases := r.Cases()
	cases[0] = &Case{Name: "other"}

	require.Equal(t, []string{"a"}, r.Names())
}

func TestCase_CloneIsDeep(t *testing.T) {
	orig := &Case{
		Name:   "X",
		Host:   "H",
		Extra:  []string{"a"},
		Tasks:  []string{"Forecast"},
		Modifs: map[string]any{"general": map[string]any{"k": "v"}},
	}

	cp := orig.Clone()
	cp.Extra = append(cp.Extra, "b")
	cp.Extra[0] = "changed"
	cp.Tasks[0] = "changed"
	cp.Modifs["general"].(map[string]any)["k"] = "changed"

	require.Equal(t, []string{"a"}, orig.Extra)
	require.Equal(t, []string{"Forecast"}, orig.Tasks)
	require.Equal(t, "v", orig.Modifs["general"].(map[string]any)["k"])
	require.Equal(t, "H", cp.Host)
	require.Equal(t, "X", cp.Name)
}

func TestCase_BaseName(t *testing.T) {
	require.Equal(t, "X", (&Case{Name: "X"}).BaseName())
	require.Equal(t, "B", (&Case{Name: "X", Base: "B"}).BaseName())
}

func TestFromDefinition(t *testing.T) {
	def := &definition.Definition{Cases: []definition.CaseDef{
		{Name: "A", Host: "hostA", Modifs: map[string]any{"x": 1}},
		{Name: "hostA"},
	}}

	r, err := FromDefinition(def)
	require.NoError(t, err)
	require.Equal(t, []string{"A", "hostA"}, r.Names())

	a, _ := r.Get("A")
	a.Modifs["x"] = 2
	require.Equal(t, 1, def.Cases[0].Modifs["x"])
}

func TestFromDefinition_DanglingHost(t *testing.T) {
	def := &definition.Definition{Cases: []definition.CaseDef{
		{Name: "A", Host: "ghost"},
		{Name: "B"},
	}}

	_, err := FromDefinition(def)
	require.ErrorIs(t, err, ErrLookup)
	require.Contains(t, err.Error(), `"ghost" referenced by A`)
	require.Contains(t, err.Error(), "A, B")
}

func TestConfigurationError_Message(t *testing.T) {
	err := &ConfigurationError{Case: "A", Key: "general.case", Reason: "unresolved macro @foo@"}
	require.Equal(t, `configuration error in case "A" at general.case: unresolved macro @foo@`, err.Error())
	require.ErrorIs(t, err, ErrConfiguration)
}
