package loader

import "testing"

func TestTypeSubstPrimitivePassthrough(t *testing.T) {
	got, err := u64Type().Subst([]Type{boolType()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Tag != TyU64 {
		t.Fatalf("primitive Subst should be a no-op, got tag %v", got.Tag)
	}
}

func TestTypeSubstParam(t *testing.T) {
	tyArgs := []Type{u8Type(), boolType()}
	got, err := tyParam(1).Subst(tyArgs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Tag != TyBool {
		t.Fatalf("Subst(TyParam(1)) = %v, want bool", got.Tag)
	}
}

func TestTypeSubstParamOutOfRangeIsInvariantViolation(t *testing.T) {
	_, err := tyParam(5).Subst([]Type{u8Type()})
	if err == nil {
		t.Fatalf("expected an error for an out-of-range type parameter")
	}
	if err.Code != StatusInvariantViolation {
		t.Fatalf("Code = %v, want StatusInvariantViolation", err.Code)
	}
}

func TestTypeSubstRecursesThroughStructInstantiation(t *testing.T) {
	// Box<T> instantiated with a vector<T> wrapper, substituted with u64.
	boxed := structInstantiationType(7, []Type{vectorType(tyParam(0))})
	got, err := boxed.Subst([]Type{u64Type()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Tag != TyStructInstantiation || got.StructIdx != 7 {
		t.Fatalf("expected StructInstantiation(7, ...), got %+v", got)
	}
	if len(got.TypeArgs) != 1 || got.TypeArgs[0].Tag != TyVector || got.TypeArgs[0].Elem.Tag != TyU64 {
		t.Fatalf("expected vector<u64> as the sole type argument, got %+v", got.TypeArgs)
	}
}

func TestTypeSubstReferenceRecurses(t *testing.T) {
	r := referenceType(tyParam(0))
	got, err := r.Subst([]Type{u128Type()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Tag != TyReference || got.Elem.Tag != TyU128 {
		t.Fatalf("expected &u128, got %+v", got)
	}
}

func TestAbilitiesPrimitivesAndReferences(t *testing.T) {
	mc := newModuleCache(discardLogger(), noopMetrics{})

	if ab, err := abilities(mc, u64Type()); err != nil || ab != AbilitySetPrimitives {
		t.Fatalf("abilities(u64) = %v, %v; want %v, nil", ab, err, AbilitySetPrimitives)
	}
	if ab, err := abilities(mc, signerType()); err != nil || ab != AbilitySetSigner {
		t.Fatalf("abilities(signer) = %v, %v; want %v, nil", ab, err, AbilitySetSigner)
	}
	if ab, err := abilities(mc, referenceType(u8Type())); err != nil || ab != AbilitySetReferences {
		t.Fatalf("abilities(&u8) = %v, %v; want %v, nil", ab, err, AbilitySetReferences)
	}
}

func TestAbilitiesUnresolvedParamIsInvariantViolation(t *testing.T) {
	mc := newModuleCache(discardLogger(), noopMetrics{})
	_, err := abilities(mc, tyParam(0))
	if err == nil || err.Code != StatusInvariantViolation {
		t.Fatalf("expected StatusInvariantViolation for an unresolved type parameter, got %v", err)
	}
}

func TestAbilitiesVectorDerivesFromElement(t *testing.T) {
	mc := newModuleCache(discardLogger(), noopMetrics{})
	// vector<&u8>: references only carry copy+drop, so the vector as a
	// whole must lose store even though AbilitySetVector declares it.
	ab, err := abilities(mc, vectorType(referenceType(u8Type())))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ab.Has(AbilitySet(AbilityStore)) {
		t.Fatalf("vector<&u8> should not have store, got %s", ab)
	}
	if !ab.Has(AbilitySet(AbilityCopy | AbilityDrop)) {
		t.Fatalf("vector<&u8> should keep copy+drop, got %s", ab)
	}
}

func TestAbilitiesStructLooksUpDeclaredSet(t *testing.T) {
	mc := newModuleCache(discardLogger(), noopMetrics{})
	owner := mid(0x01, "m")
	mc.structs = append(mc.structs, &StructType{
		Module:    owner,
		Name:      "Asset",
		Abilities: AbilitySet(AbilityKey | AbilityStore),
		Fields:    []Type{u64Type()},
	})
	ab, err := abilities(mc, structType(0))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ab != AbilitySet(AbilityKey|AbilityStore) {
		t.Fatalf("abilities(Asset) = %s, want ks", ab)
	}
}
