package types

import "fmt"

// GetSize computes t's size in cells (spec.md §4.4): primitives and
// Pointer are 1 cell; Tuple/Struct sum their members; Array is length times
// element size; Enum is 1 (just the tag); EnumUnion is 1 tag cell plus the
// largest payload; Unit defers to its underlying type; Proc is 1 (a
// label). Symbol/Apply/Let reduce via normalize before sizing; normalize
// leaves a Poly as it is, and GetSize has no case for one.
func GetSize(t Type, env Env) (int64, error) {
	t, err := normalize(t, env)
	if err != nil {
		return 0, err
	}

	switch v := t.(type) {
	case Primitive:
		return 1, nil

	case *Pointer:
		return 1, nil

	case *Array:
		elemSize, err := GetSize(v.Elem, env)
		if err != nil {
			return 0, err
		}
		return v.Len * elemSize, nil

	case *Tuple:
		var total int64
		for _, e := range v.Elems {
			sz, err := GetSize(e, env)
			if err != nil {
				return 0, err
			}
			total += sz
		}
		return total, nil

	case *Struct:
		var total int64
		for _, f := range v.Fields {
			sz, err := GetSize(f.Type, env)
			if err != nil {
				return 0, err
			}
			total += sz
		}
		return total, nil

	case *Enum:
		return 1, nil

	case *EnumUnion:
		var max int64
		for _, variant := range v.Variants {
			sz, err := GetSize(variant.Payload, env)
			if err != nil {
				return 0, err
			}
			if sz > max {
				max = sz
			}
		}
		return 1 + max, nil

	case *Unit:
		return GetSize(v.Elem, env)

	case *Proc:
		return 1, nil

	default:
		// normalize already reduced every Symbol/Let/Apply form at the root;
		// reaching here means the closed Type sum gained a variant this
		// switch doesn't know about, which the resolver should never produce.
		panic(fmt.Sprintf("types: GetSize: unhandled type %T", t))
	}
}
