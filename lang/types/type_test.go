package types

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGetSizePrimitivesAndAggregates(t *testing.T) {
	env := MapEnv{}

	sz, err := GetSize(Int, env)
	require.NoError(t, err)
	require.EqualValues(t, 1, sz)

	tuple := &Tuple{Elems: []Type{Int, Float, &Pointer{Elem: Int}}}
	sz, err = GetSize(tuple, env)
	require.NoError(t, err)
	require.EqualValues(t, 3, sz)

	arr := &Array{Elem: tuple, Len: 4}
	sz, err = GetSize(arr, env)
	require.NoError(t, err)
	require.EqualValues(t, 12, sz)
}

func TestGetSizeEnumUnion(t *testing.T) {
	u := &EnumUnion{Variants: []EnumUnionVariant{
		{Name: "None", Payload: Primitive(None)},
		{Name: "Some", Payload: &Tuple{Elems: []Type{Int, Int}}},
	}}
	sz, err := GetSize(u, MapEnv{})
	require.NoError(t, err)
	require.EqualValues(t, 1+2, sz)
}

func TestGetSizeUnitDefersToElem(t *testing.T) {
	unit := &Unit{Name: "Meters", Elem: &Tuple{Elems: []Type{Int, Int, Int}}}
	sz, err := GetSize(unit, MapEnv{})
	require.NoError(t, err)
	require.EqualValues(t, 3, sz)
}

func TestGetSizeSymbolResolvesThroughEnv(t *testing.T) {
	env := MapEnv{"Point": &Tuple{Elems: []Type{Int, Int}}}
	sz, err := GetSize(Symbol{Name: "Point"}, env)
	require.NoError(t, err)
	require.EqualValues(t, 2, sz)
}

func TestGetSizeSymbolNotDefined(t *testing.T) {
	_, err := GetSize(Symbol{Name: "Nope"}, MapEnv{})
	require.Error(t, err)
	var notDefined *SymbolNotDefined
	require.ErrorAs(t, err, &notDefined)
}

func TestSimplifyApplyMonomorphizesPoly(t *testing.T) {
	poly := &Poly{
		Params: []string{"T"},
		Body:   &Pointer{Mut: Immutable, Elem: Symbol{Name: "T"}},
	}
	applied := &Apply{Callee: poly, Args: []Type{Int}}

	got, err := Simplify(applied, MapEnv{})
	require.NoError(t, err)
	ptr, ok := got.(*Pointer)
	require.True(t, ok)
	require.Equal(t, Int, ptr.Elem)
}

func TestMonomorphizeArityMismatch(t *testing.T) {
	poly := &Poly{Params: []string{"T", "U"}, Body: Symbol{Name: "T"}}
	_, err := Monomorphize(poly, []Type{Int})
	require.Error(t, err)
	var arity *ArityMismatch
	require.ErrorAs(t, err, &arity)
}

func TestSimplifyLetBindsOneLevel(t *testing.T) {
	let := &Let{Name: "T", Bind: Int, Body: &Pointer{Elem: Symbol{Name: "T"}}}
	got, err := Simplify(let, MapEnv{})
	require.NoError(t, err)
	ptr, ok := got.(*Pointer)
	require.True(t, ok)
	require.Equal(t, Int, ptr.Elem)
}

func TestEqualsStructuralAndSymbolTransparent(t *testing.T) {
	env := MapEnv{"Pair": &Tuple{Elems: []Type{Int, Int}}}

	eq, err := Equals(Symbol{Name: "Pair"}, &Tuple{Elems: []Type{Int, Int}}, env)
	require.NoError(t, err)
	require.True(t, eq)

	eq, err = Equals(&Tuple{Elems: []Type{Int, Int}}, &Tuple{Elems: []Type{Int, Float}}, env)
	require.NoError(t, err)
	require.False(t, eq)
}

// TestEqualsRecursiveTypeTerminates exercises the coinductive cycle
// protection: List is defined, through Env, in terms of a pointer back to
// itself, so comparing List to itself would recurse forever without the
// visited-pairs guard.
func TestEqualsRecursiveTypeTerminates(t *testing.T) {
	env := MapEnv{}
	list := &Struct{Fields: []StructField{
		{Name: "value", Type: Int},
		{Name: "next", Type: &Pointer{Mut: Mutable, Elem: Symbol{Name: "List"}}},
	}}
	env["List"] = list

	eq, err := Equals(Symbol{Name: "List"}, Symbol{Name: "List"}, env)
	require.NoError(t, err)
	require.True(t, eq)
}

func TestEqualsPolyAlphaEquivalence(t *testing.T) {
	a := &Poly{Params: []string{"T"}, Body: &Pointer{Elem: Symbol{Name: "T"}}}
	b := &Poly{Params: []string{"U"}, Body: &Pointer{Elem: Symbol{Name: "U"}}}

	eq, err := Equals(a, b, MapEnv{})
	require.NoError(t, err)
	require.True(t, eq)
}

func TestGetMemberOffsetStructTupleArrayEnumUnion(t *testing.T) {
	env := MapEnv{}

	s := &Struct{Fields: []StructField{
		{Name: "x", Type: Int},
		{Name: "y", Type: Int},
		{Name: "label", Type: &Tuple{Elems: []Type{Int, Int, Int}}},
	}}
	off, typ, err := GetMemberOffset("label", s, env)
	require.NoError(t, err)
	require.EqualValues(t, 2, off)
	require.Equal(t, &Tuple{Elems: []Type{Int, Int, Int}}, typ)

	tup := &Tuple{Elems: []Type{Float, Int, Int}}
	off, _, err = GetMemberOffset("1", tup, env)
	require.NoError(t, err)
	require.EqualValues(t, 1, off)

	arr := &Array{Elem: &Tuple{Elems: []Type{Int, Int}}, Len: 5}
	off, _, err = GetMemberOffset("3", arr, env)
	require.NoError(t, err)
	require.EqualValues(t, 6, off)

	union := &EnumUnion{Variants: []EnumUnionVariant{
		{Name: "Ok", Payload: Int},
		{Name: "Err", Payload: Int},
	}}
	off, payload, err := GetMemberOffset("Err", union, env)
	require.NoError(t, err)
	require.EqualValues(t, 1, off)
	require.Equal(t, Int, payload)
}

func TestGetMemberOffsetNoSuchMember(t *testing.T) {
	s := &Struct{Fields: []StructField{{Name: "x", Type: Int}}}
	_, _, err := GetMemberOffset("y", s, MapEnv{})
	require.Error(t, err)
	var noSuch *NoSuchMember
	require.ErrorAs(t, err, &noSuch)
}

func TestEnumAndEnumUnionTagOrderIsLexicographic(t *testing.T) {
	e := &Enum{Variants: []string{"Red", "Blue", "Green"}}
	require.EqualValues(t, 0, e.TagOf("Blue"))
	require.EqualValues(t, 1, e.TagOf("Green"))
	require.EqualValues(t, 2, e.TagOf("Red"))

	u := &EnumUnion{Variants: []EnumUnionVariant{
		{Name: "Some", Payload: Int},
		{Name: "None", Payload: Primitive(None)},
	}}
	require.EqualValues(t, 0, u.TagOf("None"))
	require.EqualValues(t, 1, u.TagOf("Some"))
}
