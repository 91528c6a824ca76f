package loader

// Resolver is a stack-allocated view over a Loader plus the current
// Module-or-Script, used by the interpreter to turn bytecode indices into
// concrete runtime entities in O(1). It never outlives the call that
// created it.
type Resolver struct {
	l *Loader

	module *Module // nil if this resolver is over a script
	script *Script // nil if this resolver is over a module

	compiledModule *CompiledModule // for constant_at, when module != nil
	compiledScript *CompiledScript // for constant_at, when script != nil
}

func newModuleResolver(l *Loader, m *Module, compiled *CompiledModule) *Resolver {
	return &Resolver{l: l, module: m, compiledModule: compiled}
}

func newScriptResolver(l *Loader, s *Script, compiled *CompiledScript) *Resolver {
	return &Resolver{l: l, script: s, compiledScript: compiled}
}

// FunctionFromHandle returns the shared Function a function-handle index
// refers to.
func (r *Resolver) FunctionFromHandle(idx int) (*Function, *VMError) {
	var global FunctionCacheIndex
	if r.module != nil {
		if idx < 0 || idx >= len(r.module.functionRefs) {
			return nil, invariantViolation("function handle index %d out of range", idx)
		}
		global = r.module.functionRefs[idx]
	} else {
		if idx < 0 || idx >= len(r.script.functionRefs) {
			return nil, invariantViolation("function handle index %d out of range", idx)
		}
		global = r.script.functionRefs[idx]
	}
	return r.l.moduleCache.functionAt(global)
}

// FunctionFromInstantiation returns the shared Function a
// function-instantiation handle refers to.
func (r *Resolver) FunctionFromInstantiation(idx int) (*Function, *VMError) {
	table := r.functionInstantiations()
	if idx < 0 || idx >= len(table) {
		return nil, invariantViolation("function instantiation index %d out of range", idx)
	}
	return r.l.moduleCache.functionAt(table[idx].Handle)
}

// functionInstantiations returns the function-instantiation table of the
// module or script this resolver is over.
func (r *Resolver) functionInstantiations() []FunctionInstantiation {
	if r.module != nil {
		return r.module.functionInstantiations
	}
	return r.script.functionInstantiations
}

// InstantiateGenericFunction substitutes tyArgs into the stored template
// types of a function-instantiation handle.
func (r *Resolver) InstantiateGenericFunction(idx int, tyArgs []Type) ([]Type, *VMError) {
	table := r.functionInstantiations()
	if idx < 0 || idx >= len(table) {
		return nil, invariantViolation("function instantiation index %d out of range", idx)
	}
	inst := table[idx].Inst
	out := make([]Type, len(inst))
	for i, t := range inst {
		s, err := t.Subst(tyArgs)
		if err != nil {
			return nil, err
		}
		out[i] = s
	}
	return out, nil
}

// GetStructType returns the runtime Type for a struct-definition index.
// Scripts never call this -- doing so is an invariant violation, since
// scripts declare no structs.
func (r *Resolver) GetStructType(defIdx int) (Type, *VMError) {
	if r.module == nil {
		return Type{}, invariantViolation("scripts do not declare structs")
	}
	if defIdx < 0 || defIdx >= len(r.module.structDefs) {
		return Type{}, invariantViolation("struct definition index %d out of range", defIdx)
	}
	return structType(r.module.structDefs[defIdx].GlobalIdx), nil
}

// InstantiateGenericType substitutes tyArgs into a struct-instantiation
// handle's stored template.
func (r *Resolver) InstantiateGenericType(idx int, tyArgs []Type) (Type, *VMError) {
	if r.module == nil {
		return Type{}, invariantViolation("scripts do not declare structs")
	}
	if idx < 0 || idx >= len(r.module.structInstantiations) {
		return Type{}, invariantViolation("struct instantiation index %d out of range", idx)
	}
	inst := r.module.structInstantiations[idx]
	args := make([]Type, len(inst.Inst))
	for i, t := range inst.Inst {
		s, err := t.Subst(tyArgs)
		if err != nil {
			return Type{}, err
		}
		args[i] = s
	}
	if inst.DefIdx < 0 || inst.DefIdx >= len(r.module.structDefs) {
		return Type{}, invariantViolation("struct instantiation %d references out-of-range def %d", idx, inst.DefIdx)
	}
	globalIdx := r.module.structDefs[inst.DefIdx].GlobalIdx
	return structInstantiationType(globalIdx, args), nil
}

// FieldOffset returns the offset of a field handle.
func (r *Resolver) FieldOffset(idx int) (int, *VMError) {
	if r.module == nil {
		return 0, invariantViolation("scripts do not declare fields")
	}
	if idx < 0 || idx >= len(r.module.fieldHandles) {
		return 0, invariantViolation("field handle index %d out of range", idx)
	}
	return r.module.fieldHandles[idx].Offset, nil
}

// FieldInstantiationOffset returns the offset of a field-instantiation
// handle.
func (r *Resolver) FieldInstantiationOffset(idx int) (int, *VMError) {
	if r.module == nil {
		return 0, invariantViolation("scripts do not declare fields")
	}
	if idx < 0 || idx >= len(r.module.fieldInstantiations) {
		return 0, invariantViolation("field instantiation index %d out of range", idx)
	}
	return r.module.fieldInstantiations[idx].Offset, nil
}

// FieldCount returns the number of fields of the struct definition a
// field handle's owner refers to.
func (r *Resolver) FieldCount(idx int) (int, *VMError) {
	owner, err := r.fieldOwner(idx, false)
	if err != nil {
		return 0, err
	}
	return r.module.structDefs[owner].FieldCount, nil
}

// FieldInstantiationCount is the instantiation analogue of FieldCount.
func (r *Resolver) FieldInstantiationCount(idx int) (int, *VMError) {
	owner, err := r.fieldOwner(idx, true)
	if err != nil {
		return 0, err
	}
	return r.module.structDefs[owner].FieldCount, nil
}

func (r *Resolver) fieldOwner(idx int, instantiation bool) (int, *VMError) {
	if r.module == nil {
		return 0, invariantViolation("scripts do not declare fields")
	}
	table := r.module.fieldHandles
	if instantiation {
		table = r.module.fieldInstantiations
	}
	if idx < 0 || idx >= len(table) {
		return 0, invariantViolation("field handle index %d out of range", idx)
	}
	return table[idx].OwningStructIdx, nil
}

// SingleTypeAt returns the pre-translated type for a vector bytecode's
// SignatureIndex operand.
func (r *Resolver) SingleTypeAt(sigIdx SignatureIndex) (Type, *VMError) {
	var m map[SignatureIndex]Type
	if r.module != nil {
		m = r.module.singleSignatureTokenMap
	} else {
		m = r.script.singleSignatureTokenMap
	}
	t, ok := m[sigIdx]
	if !ok {
		return Type{}, invariantViolation("signature index %d not pre-translated", sigIdx)
	}
	return t, nil
}

// InstantiateSingleType substitutes tyArgs into the pre-translated type
// for a vector bytecode operating inside a generic function.
func (r *Resolver) InstantiateSingleType(sigIdx SignatureIndex, tyArgs []Type) (Type, *VMError) {
	t, err := r.SingleTypeAt(sigIdx)
	if err != nil {
		return Type{}, err
	}
	return t.Subst(tyArgs)
}

// TypeToTypeLayout delegates to the Loader's type cache.
func (r *Resolver) TypeToTypeLayout(t Type) (TypeLayout, *VMError) {
	return typeToTypeLayout(r.l.moduleCache, r.l.typeCache, t)
}

// ConstantAt returns the constant pool entry at idx from the underlying
// compiled binary. Constants are opaque file-format bytes the interpreter
// decodes itself; the Loader only indexes into the pool.
func (r *Resolver) ConstantAt(idx int) (*Constant, *VMError) {
	var pool []Constant
	if r.compiledModule != nil {
		pool = r.compiledModule.Constants
	} else {
		pool = r.compiledScript.Constants
	}
	if idx < 0 || idx >= len(pool) {
		return nil, invariantViolation("constant pool index %d out of range", idx)
	}
	return &pool[idx], nil
}
