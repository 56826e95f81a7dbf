package types

import "golang.org/x/exp/slices"

// Equals implements recursive structural equality with cycle protection
// (spec.md §4.4): a set of (T1,T2) pairs already being compared is kept so
// that a pair re-encountered while unfolding a recursive type (one defined
// through a Symbol that, transitively, refers back to itself via Env)
// short-circuits to true instead of recursing forever — coinductive
// equality, the standard treatment for equirecursive types.
func Equals(a, b Type, env Env) (bool, error) {
	return equalsRec(a, b, env, map[pairKey]bool{})
}

type pairKey struct{ a, b string }

func equalsRec(a, b Type, env Env, visited map[pairKey]bool) (bool, error) {
	key := pairKey{a.String(), b.String()}
	if visited[key] {
		return true, nil
	}
	visited[key] = true

	a, err := normalize(a, env)
	if err != nil {
		return false, err
	}
	b, err = normalize(b, env)
	if err != nil {
		return false, err
	}

	switch av := a.(type) {
	case Primitive:
		bv, ok := b.(Primitive)
		return ok && av == bv, nil

	case *Pointer:
		bv, ok := b.(*Pointer)
		if !ok || av.Mut != bv.Mut {
			return false, nil
		}
		return equalsRec(av.Elem, bv.Elem, env, visited)

	case *Array:
		bv, ok := b.(*Array)
		if !ok || av.Len != bv.Len {
			return false, nil
		}
		return equalsRec(av.Elem, bv.Elem, env, visited)

	case *Tuple:
		bv, ok := b.(*Tuple)
		if !ok || len(av.Elems) != len(bv.Elems) {
			return false, nil
		}
		for i := range av.Elems {
			eq, err := equalsRec(av.Elems[i], bv.Elems[i], env, visited)
			if err != nil || !eq {
				return eq, err
			}
		}
		return true, nil

	case *Struct:
		bv, ok := b.(*Struct)
		if !ok || len(av.Fields) != len(bv.Fields) {
			return false, nil
		}
		for i := range av.Fields {
			if av.Fields[i].Name != bv.Fields[i].Name {
				return false, nil
			}
			eq, err := equalsRec(av.Fields[i].Type, bv.Fields[i].Type, env, visited)
			if err != nil || !eq {
				return eq, err
			}
		}
		return true, nil

	case *Enum:
		bv, ok := b.(*Enum)
		if !ok {
			return false, nil
		}
		return slices.Equal(av.Variants, bv.Variants), nil

	case *EnumUnion:
		bv, ok := b.(*EnumUnion)
		if !ok || len(av.Variants) != len(bv.Variants) {
			return false, nil
		}
		for i := range av.Variants {
			if av.Variants[i].Name != bv.Variants[i].Name {
				return false, nil
			}
			eq, err := equalsRec(av.Variants[i].Payload, bv.Variants[i].Payload, env, visited)
			if err != nil || !eq {
				return eq, err
			}
		}
		return true, nil

	case *Proc:
		bv, ok := b.(*Proc)
		if !ok || len(av.Args) != len(bv.Args) {
			return false, nil
		}
		for i := range av.Args {
			eq, err := equalsRec(av.Args[i], bv.Args[i], env, visited)
			if err != nil || !eq {
				return eq, err
			}
		}
		return equalsRec(av.Ret, bv.Ret, env, visited)

	case boundVar:
		bv, ok := b.(boundVar)
		return ok && av.name == bv.name, nil

	case *Unit:
		bv, ok := b.(*Unit)
		if !ok || av.Name != bv.Name {
			return false, nil
		}
		return equalsRec(av.Elem, bv.Elem, env, visited)

	case *Poly:
		bv, ok := b.(*Poly)
		if !ok || len(av.Params) != len(bv.Params) {
			return false, nil
		}
		// Compare bodies under a substitution that unifies bv's parameter
		// names with av's, so alpha-equivalent Poly values compare equal.
		// The bound env resolves both sides' parameter names to an opaque
		// boundVar instead of a Symbol, so normalize treats them as leaves
		// (compared nominally) rather than chasing them through Env as if
		// they were free references to a named type.
		subs := make(map[string]Type, len(av.Params))
		for i, p := range bv.Params {
			subs[p] = Symbol{Name: av.Params[i]}
		}
		bound := boundEnv{Env: env, names: av.Params}
		return equalsRec(av.Body, substitute(bv.Body, subs), bound, visited)

	default:
		return false, nil
	}
}

// boundVar is an opaque stand-in for a Poly parameter during Equals, never
// constructed outside this file: it lets a Poly body's Symbol(paramName)
// nodes compare by name without being mistaken for free references that
// must resolve through Env.
type boundVar struct{ name string }

func (boundVar) sageType()      {}
func (b boundVar) String() string { return "#" + b.name }

// boundEnv shadows the listed names with boundVar, delegating every other
// lookup to the wrapped Env.
type boundEnv struct {
	Env
	names []string
}

func (e boundEnv) GetType(name string) (Type, bool) {
	for _, n := range e.names {
		if n == name {
			return boundVar{name: name}, true
		}
	}
	return e.Env.GetType(name)
}

// normalize reduces Symbol/Let/Apply forms one step at a time until none
// remain at the root, bounding the chain the same way reduceToPoly does.
func normalize(t Type, env Env) (Type, error) {
	for i := 0; ; i++ {
		switch t.(type) {
		case Symbol, *Let, *Apply:
			if i > maxSimplifyChain {
				return nil, &InvalidMonomorphize{Callee: t}
			}
			next, err := Simplify(t, env)
			if err != nil {
				return nil, err
			}
			t = next
		default:
			return t, nil
		}
	}
}
