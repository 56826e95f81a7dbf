package types

// Simplify eliminates Symbol, Apply(Poly,...) and Let one level at a time
// (spec.md §4.4): it is not a deep normalizer, only a single reduction step
// at the root, which is why Equals and GetSize call it in a loop
// themselves rather than relying on a single call here.
func Simplify(t Type, env Env) (Type, error) {
	switch v := t.(type) {
	case Symbol:
		named, ok := env.GetType(v.Name)
		if !ok {
			return nil, &SymbolNotDefined{Name: v.Name}
		}
		return named, nil

	case *Let:
		inner, err := bindSymbol(v.Name, v.Bind, v.Body)
		if err != nil {
			return nil, err
		}
		return inner, nil

	case *Apply:
		poly, err := reduceToPoly(v.Callee, env)
		if err != nil {
			return nil, err
		}
		return Monomorphize(poly, v.Args)

	default:
		return t, nil
	}
}

// reduceToPoly simplifies callee until it is a *Poly or it is clear no
// amount of reduction will produce one.
func reduceToPoly(callee Type, env Env) (*Poly, error) {
	seen := 0
	cur := callee
	for {
		if p, ok := cur.(*Poly); ok {
			return p, nil
		}
		switch cur.(type) {
		case Symbol, *Let, *Apply:
			next, err := Simplify(cur, env)
			if err != nil {
				return nil, err
			}
			cur = next
			seen++
			if seen > maxSimplifyChain {
				return nil, &InvalidMonomorphize{Callee: callee}
			}
			continue
		}
		return nil, &InvalidMonomorphize{Callee: callee}
	}
}

// maxSimplifyChain bounds Symbol/Let/Apply reduction chains so a cyclic
// Env (Symbol "a" bound to Symbol "a") fails with a clear error instead of
// looping forever; spec.md's coinductive-equality cycle protection doesn't
// apply here since there is no second operand to pair against.
const maxSimplifyChain = 10000

// bindSymbol substitutes every occurrence of name inside body with bind,
// implementing Let's local, single-level binding (spec.md §4.4: "eliminate
// ... Let one level at a time"). It does not descend into nested Let/Poly
// scopes that shadow name, matching ordinary lexical shadowing.
func bindSymbol(name string, bind, body Type) (Type, error) {
	return substitute(body, map[string]Type{name: bind}), nil
}

// substitute replaces every Symbol whose name is a key of subs with the
// mapped type, used by both Let-binding (bindSymbol) and Poly
// instantiation (Monomorphize). It stops descending into a nested Poly
// that redeclares one of the substituted names, since that inner Poly's
// own parameter shadows the outer binding.
func substitute(t Type, subs map[string]Type) Type {
	switch v := t.(type) {
	case Symbol:
		if r, ok := subs[v.Name]; ok {
			return r
		}
		return v

	case Primitive:
		return v

	case *Pointer:
		return &Pointer{Mut: v.Mut, Elem: substitute(v.Elem, subs)}

	case *Array:
		return &Array{Elem: substitute(v.Elem, subs), Len: v.Len}

	case *Tuple:
		elems := make([]Type, len(v.Elems))
		for i, e := range v.Elems {
			elems[i] = substitute(e, subs)
		}
		return &Tuple{Elems: elems}

	case *Struct:
		fields := make([]StructField, len(v.Fields))
		for i, f := range v.Fields {
			fields[i] = StructField{Name: f.Name, Type: substitute(f.Type, subs)}
		}
		return &Struct{Fields: fields}

	case *Enum:
		return v

	case *EnumUnion:
		variants := make([]EnumUnionVariant, len(v.Variants))
		for i, e := range v.Variants {
			variants[i] = EnumUnionVariant{Name: e.Name, Payload: substitute(e.Payload, subs)}
		}
		return &EnumUnion{Variants: variants}

	case *Proc:
		args := make([]Type, len(v.Args))
		for i, a := range v.Args {
			args[i] = substitute(a, subs)
		}
		return &Proc{Args: args, Ret: substitute(v.Ret, subs)}

	case *Unit:
		return &Unit{Name: v.Name, Elem: substitute(v.Elem, subs)}

	case *Poly:
		shadowed := subs
		for _, p := range v.Params {
			if _, ok := subs[p]; ok {
				shadowed = withoutKeys(subs, v.Params)
				break
			}
		}
		return &Poly{Params: v.Params, Body: substitute(v.Body, shadowed)}

	case *Apply:
		args := make([]Type, len(v.Args))
		for i, a := range v.Args {
			args[i] = substitute(a, subs)
		}
		return &Apply{Callee: substitute(v.Callee, subs), Args: args}

	case *Let:
		body := v.Body
		if _, shadow := subs[v.Name]; !shadow {
			body = substitute(v.Body, subs)
		}
		return &Let{Name: v.Name, Bind: substitute(v.Bind, subs), Body: body}

	default:
		return t
	}
}

func withoutKeys(subs map[string]Type, keys []string) map[string]Type {
	out := make(map[string]Type, len(subs))
	for k, v := range subs {
		out[k] = v
	}
	for _, k := range keys {
		delete(out, k)
	}
	return out
}
