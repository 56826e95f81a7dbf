package types

// Monomorphize instantiates poly by substituting each of its params with
// the corresponding entry of args throughout its body (spec.md §4.4:
// "Monomorphization instantiates Poly(params, body) by substituting each
// param with the supplied type arg throughout body, rejecting arity
// mismatches").
func Monomorphize(poly *Poly, args []Type) (Type, error) {
	if len(args) != len(poly.Params) {
		return nil, &ArityMismatch{Expected: len(poly.Params), Got: len(args)}
	}
	subs := make(map[string]Type, len(poly.Params))
	for i, p := range poly.Params {
		subs[p] = args[i]
	}
	return substitute(poly.Body, subs), nil
}
