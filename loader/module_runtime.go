package loader

// StructRefInstantiation is the per-module side-table entry for a
// struct-instantiation handle: the local struct-definition index it
// instantiates, how many fields it has, and the concrete type arguments.
type StructRefInstantiation struct {
	FieldCount int
	DefIdx     int
	Inst       []Type
}

// FunctionInstantiation is the per-module side-table entry for a
// function-instantiation handle.
type FunctionInstantiation struct {
	Handle FunctionCacheIndex
	Inst   []Type
}

// FieldHandleInfo is the per-module side-table entry for a field handle
// or field instantiation: both collapse to an offset into the owning
// struct plus which struct-definition owns it.
type FieldHandleInfo struct {
	Offset        int
	OwningStructIdx int
}

// StructDefInfo is the per-module side-table entry for a struct
// definition index: its field count and global CachedStructIndex.
type StructDefInfo struct {
	FieldCount int
	GlobalIdx  CachedStructIndex
}

// Module is the per-module runtime side table: parallel arrays indexing
// into the ModuleCache's global struct/function vectors so the
// interpreter can resolve any bytecode index in O(1).
type Module struct {
	id ModuleId

	structRefs            []CachedStructIndex       // struct-handle index -> global struct
	structDefs            []StructDefInfo           // struct-definition index -> {field_count, global_idx}
	structInstantiations  []StructRefInstantiation  // struct-instantiation index -> {...}
	functionRefs          []FunctionCacheIndex       // function-handle index -> global function
	functionInstantiations []FunctionInstantiation  // function-instantiation index -> {...}
	fieldHandles          []FieldHandleInfo          // field-handle index -> {offset, owner}
	fieldInstantiations   []FieldHandleInfo          // field-instantiation index -> {offset, owner}

	functionMap map[Identifier]FunctionCacheIndex
	structMap   map[Identifier]CachedStructIndex

	// singleSignatureTokenMap pre-translates the single SignatureToken
	// referenced by each vector-family bytecode's SignatureIndex operand,
	// keyed by that SignatureIndex -- one entry per unique index actually
	// used.
	singleSignatureTokenMap map[SignatureIndex]Type

	compiled *CompiledModule
}

func (m *Module) Id() ModuleId { return m.id }

// newModule builds the runtime side table for compiled, whose structs and
// functions were just appended into mc at [structsStart, structsEnd) and
// [functionsStart, functionsEnd) respectively.
func newModule(compiled *CompiledModule, mc *ModuleCache, structsStart, functionsStart int) (*Module, *VMError) {
	m := &Module{
		id:                      compiled.SelfModule,
		functionMap:             make(map[Identifier]FunctionCacheIndex),
		structMap:               make(map[Identifier]CachedStructIndex),
		singleSignatureTokenMap: make(map[SignatureIndex]Type),
		compiled:                compiled,
	}

	for i, h := range compiled.StructHandles {
		var globalIdx CachedStructIndex
		var err *VMError
		if h.Owner == compiled.SelfModule {
			globalIdx, _, err = mc.makeTypeWhileLoadingStructRef(compiled, h.Name, structsStart)
		} else {
			globalIdx, _, err = mc.resolveStructByName(h.Name, h.Owner)
		}
		if err != nil {
			return nil, err
		}
		m.structRefs = append(m.structRefs, globalIdx)
		_ = i
	}

	for i, def := range compiled.Structs {
		globalIdx := CachedStructIndex(structsStart + i)
		m.structDefs = append(m.structDefs, StructDefInfo{
			FieldCount: len(def.Fields),
			GlobalIdx:  globalIdx,
		})
		name := compiled.StructHandles[def.Handle].Name
		m.structMap[name] = globalIdx
	}

	for i, fh := range compiled.FunctionHandles {
		var globalIdx FunctionCacheIndex
		var err *VMError
		if fh.Owner == compiled.SelfModule {
			globalIdx, err = localFunctionIndex(compiled, mc, fh.Name, functionsStart)
		} else {
			globalIdx, err = mc.resolveFunctionByName(fh.Name, fh.Owner)
		}
		if err != nil {
			return nil, err
		}
		m.functionRefs = append(m.functionRefs, globalIdx)
		_ = i
	}

	for i, def := range compiled.Functions {
		globalIdx := FunctionCacheIndex(functionsStart + i)
		m.functionMap[def.Handle.Name] = globalIdx
		if err := m.scanForSingleSignatureTokens(mc, compiled, def.Code, structsStart); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// localFunctionIndex resolves a function handle declared in this same
// module (not yet published) by name against the functions just appended
// at [functionsStart, functionsStart+len(compiled.Functions)).
func localFunctionIndex(compiled *CompiledModule, mc *ModuleCache, name Identifier, functionsStart int) (FunctionCacheIndex, *VMError) {
	for i, def := range compiled.Functions {
		if def.Handle.Name == name {
			return FunctionCacheIndex(functionsStart + i), nil
		}
	}
	return 0, invariantViolation("self-referential function %q not found among just-appended functions", name)
}

// makeTypeWhileLoadingStructRef resolves a bare struct-handle reference
// (not a full field signature) to the same module currently publishing,
// reusing the backwards-scan rule of makeTypeWhileLoading.
func (mc *ModuleCache) makeTypeWhileLoadingStructRef(compiled *CompiledModule, name Identifier, tailStart int) (CachedStructIndex, *StructType, *VMError) {
	for i := len(mc.structs) - 1; i >= tailStart; i-- {
		if mc.structs[i].Name == name {
			return CachedStructIndex(i), mc.structs[i], nil
		}
	}
	return 0, nil, invariantViolation("self-referential struct handle %q not found in just-appended tail", name)
}

// scanForSingleSignatureTokens walks code for vector-family bytecodes
// carrying a SignatureIndex operand and pre-translates the referenced
// single token into singleSignatureTokenMap, one entry per unique index.
func (m *Module) scanForSingleSignatureTokens(mc *ModuleCache, compiled *CompiledModule, code []Bytecode, structsStart int) *VMError {
	for _, instr := range code {
		if !instr.Op.carriesSignatureIndex() {
			continue
		}
		if _, seen := m.singleSignatureTokenMap[instr.SigIdx]; seen {
			continue
		}
		tok, ok := lookupSingleSignature(compiled, instr.SigIdx)
		if !ok {
			return invariantViolation("signature index %d out of range for vector opcode", instr.SigIdx)
		}
		ty, err := mc.makeTypeWhileLoading(compiled.SelfModule, compiled, tok, structsStart)
		if err != nil {
			return err
		}
		m.singleSignatureTokenMap[instr.SigIdx] = ty
	}
	return nil
}

// lookupSingleSignature models the file format's single-token signature
// pool: each vector opcode's SignatureIndex refers to a Signature whose
// sole element is the element type operated on. The real deserializer
// owns this pool; here it is carried directly on CompiledModule in its
// singleTokenSignatures field -- see fileformat.go.
func lookupSingleSignature(compiled *CompiledModule, idx SignatureIndex) (SignatureToken, bool) {
	if int(idx) < 0 || int(idx) >= len(compiled.singleTokenSignatures) {
		return SignatureToken{}, false
	}
	return compiled.singleTokenSignatures[idx], true
}
