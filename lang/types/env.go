package types

// Env is the narrow slice of environment capability Simplify needs to
// resolve a Symbol to the named type it stands for. It deliberately does
// not cover the rest of spec.md §4.7's Environment (consts, procs, vars,
// scoping) — that full Env lives in lang/lir, which also depends on Type.
// Declaring only GetType here, and letting lang/lir.Env satisfy it
// structurally, keeps the dependency one-directional: lang/lir imports
// lang/types, never the other way around.
type Env interface {
	GetType(name string) (Type, bool)
}

// MapEnv is a trivial Env backed by a plain map, useful for tests and for
// any caller that only needs a flat table of named types without the rest
// of lang/lir's scoping machinery.
type MapEnv map[string]Type

func (m MapEnv) GetType(name string) (Type, bool) {
	t, ok := m[name]
	return t, ok
}
