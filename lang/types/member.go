package types

import "strconv"

// GetMemberOffset resolves member against whole (spec.md §4.4: "for
// structs, tuples, arrays, and enum-unions"). member is a field name for
// Struct, a decimal index for Tuple and Array, and a variant name for
// EnumUnion (whose payload sits one cell past the tag, at offset 1). It
// returns the byte... cell offset and the member's type.
func GetMemberOffset(member string, whole Type, env Env) (int64, Type, error) {
	whole, err := normalize(whole, env)
	if err != nil {
		return 0, nil, err
	}

	switch v := whole.(type) {
	case *Struct:
		idx := v.FieldIndex(member)
		if idx < 0 {
			return 0, nil, &NoSuchMember{Member: member, Whole: whole}
		}
		var offset int64
		for i := 0; i < idx; i++ {
			sz, err := GetSize(v.Fields[i].Type, env)
			if err != nil {
				return 0, nil, err
			}
			offset += sz
		}
		return offset, v.Fields[idx].Type, nil

	case *Tuple:
		idx, err := strconv.Atoi(member)
		if err != nil || idx < 0 || idx >= len(v.Elems) {
			return 0, nil, &NoSuchMember{Member: member, Whole: whole}
		}
		var offset int64
		for i := 0; i < idx; i++ {
			sz, err := GetSize(v.Elems[i], env)
			if err != nil {
				return 0, nil, err
			}
			offset += sz
		}
		return offset, v.Elems[idx], nil

	case *Array:
		idx, err := strconv.ParseInt(member, 10, 64)
		if err != nil || idx < 0 || idx >= v.Len {
			return 0, nil, &NoSuchMember{Member: member, Whole: whole}
		}
		elemSize, err := GetSize(v.Elem, env)
		if err != nil {
			return 0, nil, err
		}
		return idx * elemSize, v.Elem, nil

	case *EnumUnion:
		variant := v.VariantNamed(member)
		if variant == nil {
			return 0, nil, &NoSuchMember{Member: member, Whole: whole}
		}
		return 1, variant.Payload, nil

	default:
		return 0, nil, &NoSuchMember{Member: member, Whole: whole}
	}
}
