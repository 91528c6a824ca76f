package loader

// TypeTag is a tagged variant discriminator for the runtime Type union.
type TypeTag uint8

const (
	TyBool TypeTag = iota
	TyU8
	TyU64
	TyU128
	TyAddress
	TySigner
	TyVector
	TyReference
	TyMutableReference
	TyParam
	TyStruct
	TyStructInstantiation
)

// Type is the interpreter's runtime representation of a Move-like type.
// It is a tagged union; only the fields relevant to Tag are meaningful.
//
// Invariants: Reference/MutableReference are never nested (Elem is never
// itself a reference); TyParam must not appear anywhere inside a Type
// that has gone through external-tag instantiation (see verifyTyArgs /
// LoadType).
type Type struct {
	Tag TypeTag

	// TyVector, TyReference, TyMutableReference
	Elem *Type

	// TyParam: depth-indexed type parameter number.
	ParamIdx int

	// TyStruct, TyStructInstantiation
	StructIdx CachedStructIndex
	TypeArgs  []Type
}

func boolType() Type               { return Type{Tag: TyBool} }
func u8Type() Type                 { return Type{Tag: TyU8} }
func u64Type() Type                { return Type{Tag: TyU64} }
func u128Type() Type               { return Type{Tag: TyU128} }
func addressType() Type            { return Type{Tag: TyAddress} }
func signerType() Type             { return Type{Tag: TySigner} }
func vectorType(elem Type) Type    { return Type{Tag: TyVector, Elem: &elem} }
func referenceType(elem Type) Type { return Type{Tag: TyReference, Elem: &elem} }
func mutableReferenceType(elem Type) Type {
	return Type{Tag: TyMutableReference, Elem: &elem}
}
func tyParam(idx int) Type { return Type{Tag: TyParam, ParamIdx: idx} }
func structType(idx CachedStructIndex) Type {
	return Type{Tag: TyStruct, StructIdx: idx}
}
func structInstantiationType(idx CachedStructIndex, args []Type) Type {
	return Type{Tag: TyStructInstantiation, StructIdx: idx, TypeArgs: args}
}

// IsReference reports whether t is a Reference or MutableReference.
func (t Type) IsReference() bool {
	return t.Tag == TyReference || t.Tag == TyMutableReference
}

// Subst substitutes every TyParam(i) occurring in t with tyArgs[i],
// recursing structurally and deep-copying other variants. An out-of-range
// TyParam index is an invariant violation: by the time subst runs, every
// type parameter must have been resolved to a concrete instantiation.
func (t Type) Subst(tyArgs []Type) (Type, *VMError) {
	switch t.Tag {
	case TyParam:
		if t.ParamIdx < 0 || t.ParamIdx >= len(tyArgs) {
			return Type{}, invariantViolation("subst: type parameter index out of range")
		}
		return tyArgs[t.ParamIdx], nil
	case TyVector:
		elem, err := t.Elem.Subst(tyArgs)
		if err != nil {
			return Type{}, err
		}
		return vectorType(elem), nil
	case TyReference:
		elem, err := t.Elem.Subst(tyArgs)
		if err != nil {
			return Type{}, err
		}
		return referenceType(elem), nil
	case TyMutableReference:
		elem, err := t.Elem.Subst(tyArgs)
		if err != nil {
			return Type{}, err
		}
		return mutableReferenceType(elem), nil
	case TyStructInstantiation:
		newArgs := make([]Type, len(t.TypeArgs))
		for i, a := range t.TypeArgs {
			substituted, err := a.Subst(tyArgs)
			if err != nil {
				return Type{}, err
			}
			newArgs[i] = substituted
		}
		return structInstantiationType(t.StructIdx, newArgs), nil
	default:
		return t, nil
	}
}

// abilities computes the ability set of a fully-resolved runtime type. mc
// supplies struct ability lookups for Struct and StructInstantiation.
func abilities(mc *ModuleCache, t Type) (AbilitySet, *VMError) {
	switch t.Tag {
	case TyBool, TyU8, TyU64, TyU128, TyAddress:
		return AbilitySetPrimitives, nil
	case TyReference, TyMutableReference:
		return AbilitySetReferences, nil
	case TySigner:
		return AbilitySetSigner, nil
	case TyParam:
		return 0, invariantViolation("abilities: unresolved type parameter reached ability computation")
	case TyVector:
		elemAbilities, err := abilities(mc, *t.Elem)
		if err != nil {
			return 0, err
		}
		params := []ParamSpec{{Constraints: 0, IsPhantom: false}}
		return polymorphicAbilities(AbilitySetVector, params, []AbilitySet{elemAbilities}), nil
	case TyStruct:
		st, err := mc.structAt(t.StructIdx)
		if err != nil {
			return 0, err
		}
		return st.Abilities, nil
	case TyStructInstantiation:
		st, err := mc.structAt(t.StructIdx)
		if err != nil {
			return 0, err
		}
		argAbilities := make([]AbilitySet, len(t.TypeArgs))
		for i, a := range t.TypeArgs {
			ab, err := abilities(mc, a)
			if err != nil {
				return 0, err
			}
			argAbilities[i] = ab
		}
		return polymorphicAbilities(st.Abilities, st.TypeParameters, argAbilities), nil
	default:
		return 0, invariantViolation("abilities: unknown type tag")
	}
}
