package loader

import "testing"

// TestModuleCacheInsertIdempotent checks that inserting the same module
// id twice returns the same handle and does not append a second copy of
// its structs.
func TestModuleCacheInsertIdempotent(t *testing.T) {
	id := mid(0x10, "m")
	compiled := mkModule(id, nil, nil)
	natives := newFakeNativeRegistry()
	mc := newModuleCache(discardLogger(), noopMetrics{})

	mod1, err := mc.insert(natives, id, compiled)
	if err != nil {
		t.Fatalf("first insert failed: %v", err)
	}
	structsAfterFirst := len(mc.structs)

	mod2, err := mc.insert(natives, id, compiled)
	if err != nil {
		t.Fatalf("second insert failed: %v", err)
	}
	if mod1 != mod2 {
		t.Fatalf("second insert returned a different *Module")
	}
	if len(mc.structs) != structsAfterFirst {
		t.Fatalf("second insert changed the struct table length: %d != %d", len(mc.structs), structsAfterFirst)
	}
}

// TestModuleCacheInsertRollsBackOnNativeFunctionFailure checks that a
// module whose struct half publishes cleanly but whose function half
// fails (an unresolved native) leaves no trace -- the struct and
// function vectors are truncated back to their pre-call lengths and the
// module itself is never inserted.
func TestModuleCacheInsertRollsBackOnNativeFunctionFailure(t *testing.T) {
	id := mid(0x11, "m")
	compiled := &CompiledModule{
		SelfModule:      id,
		StructHandles:   []StructHandle{{Owner: id, Name: "S"}},
		Structs:         []StructDefinition{{Handle: 0, Abilities: AbilitySetPrimitives}},
		FunctionHandles: []FunctionHandle{{Owner: id, Name: "native_fn"}},
		Functions: []FunctionDefinition{
			{Handle: FunctionHandle{Owner: id, Name: "native_fn"}, IsNative: true},
		},
	}
	natives := newFakeNativeRegistry() // nothing permitted: native_fn won't resolve
	mc := newModuleCache(discardLogger(), noopMetrics{})

	_, err := mc.insert(natives, id, compiled)
	if err == nil {
		t.Fatalf("expected insert to fail on an unresolved native function")
	}
	if err.Code != StatusVerificationError {
		t.Fatalf("Code = %v, want StatusVerificationError", err.Code)
	}
	if len(mc.structs) != 0 {
		t.Fatalf("struct vector not rolled back: len = %d, want 0", len(mc.structs))
	}
	if len(mc.functions) != 0 {
		t.Fatalf("function vector not rolled back: len = %d, want 0", len(mc.functions))
	}
	if mc.HasModule(id) {
		t.Fatalf("module must not be published after a rolled-back insert")
	}
}

// TestModuleCacheSelfReferentialFieldResolution checks the backwards-scan
// resolution rule: struct B, declared after struct A in the same module,
// has a field referencing A (directly, and through a vector wrapper).
// Both must resolve to A's global index.
func TestModuleCacheSelfReferentialFieldResolution(t *testing.T) {
	id := mid(0x12, "m")
	compiled := &CompiledModule{
		SelfModule:    id,
		StructHandles: []StructHandle{{Owner: id, Name: "A"}, {Owner: id, Name: "B"}},
		Structs: []StructDefinition{
			{Handle: 0, Abilities: AbilitySetPrimitives},
			{
				Handle:    1,
				Abilities: AbilitySetPrimitives,
				Fields: []StructFieldDefinition{
					{Name: "direct", Type: SignatureToken{Tag: TyStruct, StructHandle: 0}},
					{Name: "many", Type: SignatureToken{Tag: TyVector, Elem: &SignatureToken{Tag: TyStruct, StructHandle: 0}}},
				},
			},
		},
	}
	natives := newFakeNativeRegistry()
	mc := newModuleCache(discardLogger(), noopMetrics{})

	mod, err := mc.insert(natives, id, compiled)
	if err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	globalA := mod.structDefs[0].GlobalIdx
	globalB := mod.structDefs[1].GlobalIdx

	fieldsB, verr := mc.structAt(globalB)
	if verr != nil {
		t.Fatalf("structAt(B) failed: %v", verr)
	}
	if fieldsB.Fields[0].Tag != TyStruct || fieldsB.Fields[0].StructIdx != globalA {
		t.Fatalf("direct field did not resolve to A's global index: got %+v, want struct %d", fieldsB.Fields[0], globalA)
	}
	if fieldsB.Fields[1].Tag != TyVector || fieldsB.Fields[1].Elem.Tag != TyStruct || fieldsB.Fields[1].Elem.StructIdx != globalA {
		t.Fatalf("vector field's element did not resolve to A's global index: got %+v", fieldsB.Fields[1])
	}
}
