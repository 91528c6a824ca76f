package loader

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// NativeRegistry resolves a native function declared by a module to its
// host callback. The Loader treats it as the single source of truth: a
// native function that does not resolve is a hard error, and there is no
// fallback path.
type NativeRegistry interface {
	Resolve(addr Address, moduleName, functionName Identifier) (NativeFunction, bool)
}

// ModuleCache holds the global, append-only tables of modules, struct
// types, and functions, and resolves cross-module names. The struct and
// function vectors are mutated only under mu: every cache here is global
// and mutable, shared across every concurrent load.
type ModuleCache struct {
	mu sync.RWMutex

	modules   *binaryCache[ModuleId, *Module]
	structs   []*StructType
	functions []*Function

	log     *logrus.Entry
	metrics cacheMetrics
}

func newModuleCache(log *logrus.Entry, metrics cacheMetrics) *ModuleCache {
	return &ModuleCache{
		modules: newBinaryCache[ModuleId, *Module](),
		log:     log,
		metrics: metrics,
	}
}

// HasModule reports whether id has already been published.
func (mc *ModuleCache) HasModule(id ModuleId) bool {
	_, ok := mc.modules.get(id)
	return ok
}

// moduleAt returns the published Module for id, if any.
func (mc *ModuleCache) moduleAt(id ModuleId) (*Module, bool) {
	return mc.modules.get(id)
}

// Stats reports the current size of the module, struct, and function
// tables. Exposed for the CLI's `inspect cache` command; the Loader
// itself never needs its own cache's aggregate size.
func (mc *ModuleCache) Stats() (modules, structs, functions int) {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	return mc.modules.len(), len(mc.structs), len(mc.functions)
}

func (mc *ModuleCache) structAt(idx CachedStructIndex) (*StructType, *VMError) {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	if int(idx) < 0 || int(idx) >= len(mc.structs) {
		return nil, invariantViolation("struct index %d out of range", idx)
	}
	return mc.structs[idx], nil
}

func (mc *ModuleCache) functionAt(idx FunctionCacheIndex) (*Function, *VMError) {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	if int(idx) < 0 || int(idx) >= len(mc.functions) {
		return nil, invariantViolation("function index %d out of range", idx)
	}
	return mc.functions[idx], nil
}

// resolveStructByName consults the owning module's struct_map.
func (mc *ModuleCache) resolveStructByName(name Identifier, owner ModuleId) (CachedStructIndex, *StructType, *VMError) {
	m, ok := mc.moduleAt(owner)
	if !ok {
		return 0, nil, newErrorAt(StatusTypeResolutionFailure, owner, "module not cached while resolving struct %q", name)
	}
	idx, ok := m.structMap[name]
	if !ok {
		return 0, nil, newErrorAt(StatusTypeResolutionFailure, owner, "struct %q not found", name)
	}
	st, err := mc.structAt(idx)
	if err != nil {
		return 0, nil, err
	}
	return idx, st, nil
}

// resolveFunctionByName consults the owning module's function_map.
func (mc *ModuleCache) resolveFunctionByName(name Identifier, owner ModuleId) (FunctionCacheIndex, *VMError) {
	m, ok := mc.moduleAt(owner)
	if !ok {
		return 0, newErrorAt(StatusFunctionResolutionFailure, owner, "module not cached while resolving function %q", name)
	}
	idx, ok := m.functionMap[name]
	if !ok {
		return 0, newErrorAt(StatusFunctionResolutionFailure, owner, "function %q not found", name)
	}
	return idx, nil
}

// insert publishes compiled into the module cache under natives. It is
// idempotent: if moduleId is already present, the existing handle is
// returned with no further work -- the loser of a publication race lands
// here and simply gets the winner's handle.
//
// Failure semantics are transactional: if anything fails after
// structs/functions have started being appended, both vectors are
// truncated back to their pre-call lengths and the module is not
// inserted, as if the call had never happened.
func (mc *ModuleCache) insert(natives NativeRegistry, moduleId ModuleId, compiled *CompiledModule) (*Module, *VMError) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	if existing, ok := mc.modules.get(moduleId); ok {
		return existing, nil
	}

	startingStructs := len(mc.structs)
	startingFunctions := len(mc.functions)

	rollback := func() {
		for i := startingStructs; i < len(mc.structs); i++ {
			mc.structs[i] = nil
		}
		mc.structs = mc.structs[:startingStructs]
		for i := startingFunctions; i < len(mc.functions); i++ {
			mc.functions[i] = nil
		}
		mc.functions = mc.functions[:startingFunctions]
	}

	if err := mc.appendStructs(moduleId, compiled); err != nil {
		rollback()
		return nil, err
	}
	if err := mc.loadFieldTypes(moduleId, compiled, startingStructs); err != nil {
		rollback()
		return nil, err
	}
	if err := mc.appendFunctions(natives, moduleId, compiled); err != nil {
		rollback()
		return nil, err
	}

	mod, err := newModule(compiled, mc, startingStructs, startingFunctions)
	if err != nil {
		rollback()
		return nil, err
	}

	mc.modules.insert(moduleId, mod)
	mc.metrics.incPublish("module")
	mc.log.WithField("module_id", moduleId.String()).Debug("module published")
	return mod, nil
}

// appendStructs appends one StructType per struct definition with empty
// fields; loadFieldTypes fills them in below once the whole tail for
// this module has been appended.
func (mc *ModuleCache) appendStructs(moduleId ModuleId, compiled *CompiledModule) *VMError {
	for i, def := range compiled.Structs {
		if int(def.Handle) < 0 || int(def.Handle) >= len(compiled.StructHandles) {
			return invariantViolation("struct definition %d has out-of-range handle %d", i, def.Handle)
		}
		name := compiled.StructHandles[def.Handle].Name
		if def.IsNative {
			return newErrorAt(StatusVerificationError, moduleId, "native struct declarations are not permitted (struct %q)", name)
		}
		mc.structs = append(mc.structs, &StructType{
			Module:         moduleId,
			Name:           name,
			Abilities:      def.Abilities,
			TypeParameters: def.TypeParams,
			Fields:         nil, // installed below by loadFieldTypes
			StructDefIdx:   i,
		})
	}
	return nil
}

// loadFieldTypes translates each struct definition's field signatures into
// runtime Types and installs them into the (still module-private)
// StructType appended above. make_type_while_loading must be able to
// resolve self-module struct references by scanning the just-appended
// tail backwards.
func (mc *ModuleCache) loadFieldTypes(moduleId ModuleId, compiled *CompiledModule, tailStart int) *VMError {
	for i, def := range compiled.Structs {
		if mc.structs[tailStart+i].fieldsInstalled() {
			mc.log.WithFields(logrus.Fields{"module_id": moduleId.String(), "op": "load_field_types"}).Error("struct fields already installed at publish time")
			return invariantViolation("struct %q already has its fields installed", compiled.StructHandles[def.Handle].Name)
		}
		fields := make([]Type, len(def.Fields))
		for j, f := range def.Fields {
			ty, err := mc.makeTypeWhileLoading(moduleId, compiled, f.Type, tailStart)
			if err != nil {
				return err
			}
			fields[j] = ty
		}
		// A freshly-appended struct at tailStart+i cannot have any
		// outstanding shared handle yet -- nothing has observed it outside
		// this call, which still holds mc.mu exclusively. A copy-on-write
		// fallback for a concurrent observer is therefore unreachable here.
		mc.structs[tailStart+i].Fields = fields
	}
	return nil
}

// appendFunctions appends one Function per function definition, resolving
// native functions against the registry.
func (mc *ModuleCache) appendFunctions(natives NativeRegistry, moduleId ModuleId, compiled *CompiledModule) *VMError {
	for _, def := range compiled.Functions {
		var native NativeFunction
		if def.IsNative {
			fn, ok := natives.Resolve(moduleId.Address, moduleId.Name, def.Handle.Name)
			if !ok {
				return newErrorAt(StatusVerificationError, moduleId, "native function %q does not resolve in the registry", def.Handle.Name)
			}
			native = fn
		}
		locals := make(Signature, 0, len(def.Parameters)+len(def.Locals))
		locals = append(locals, def.Parameters...)
		locals = append(locals, def.Locals...)
		mc.functions = append(mc.functions, &Function{
			Index:             FunctionCacheIndex(len(mc.functions)),
			Name:              def.Handle.Name,
			Scope:             FunctionScope{Module: moduleId},
			Parameters:        def.Parameters,
			Return:            def.Return,
			Locals:            locals,
			TypeParameters:    def.TypeParameters,
			Code:              def.Code,
			Native:            native,
			FileFormatVersion: compiled.Version,
		})
	}
	return nil
}

// makeType translates a signature token using ordinary cross-module name
// lookup via the module cache. It must not be used for the module
// currently being published -- see makeTypeWhileLoading for that case.
func (mc *ModuleCache) makeType(owner ModuleId, tok SignatureToken, resolveHandle func(SignatureIndex) (ModuleId, Identifier)) (Type, *VMError) {
	return mc.translateToken(tok, func(idx SignatureIndex) (CachedStructIndex, *VMError) {
		declModule, name := resolveHandle(idx)
		structIdx, _, err := mc.resolveStructByName(name, declModule)
		return structIdx, err
	})
}

// makeTypeWhileLoading differs from makeType only in how it resolves a
// Struct/StructInstantiation handle whose declaring module equals the
// module currently being published: rather than a normal cache lookup
// (which would fail -- the module is not in the cache yet), it scans the
// just-appended tail of the struct vector backwards by name down to
// tailStart, the index at which this module's own structs began.
func (mc *ModuleCache) makeTypeWhileLoading(moduleId ModuleId, compiled *CompiledModule, tok SignatureToken, tailStart int) (Type, *VMError) {
	return mc.translateToken(tok, func(idx SignatureIndex) (CachedStructIndex, *VMError) {
		declModule, name, ok := resolveStructHandle(compiled, idx)
		if !ok {
			return 0, invariantViolation("struct handle %d not found while loading %s", idx, moduleId)
		}
		if declModule != moduleId {
			structIdx, _, err := mc.resolveStructByName(name, declModule)
			return structIdx, err
		}
		for i := len(mc.structs) - 1; i >= tailStart; i-- {
			if mc.structs[i].Name == name {
				return CachedStructIndex(i), nil
			}
		}
		return 0, invariantViolation("self-referential struct %q not found in just-appended tail of %s", name, moduleId)
	})
}

// translateToken is the syntactic translation shared by makeType and
// makeTypeWhileLoading; resolveStruct is the only point where the two
// diverge. Type translation performs no ability checking -- that is the
// caller's responsibility once it has a concrete Type in hand.
func (mc *ModuleCache) translateToken(tok SignatureToken, resolveStruct func(SignatureIndex) (CachedStructIndex, *VMError)) (Type, *VMError) {
	switch tok.Tag {
	case TyBool:
		return boolType(), nil
	case TyU8:
		return u8Type(), nil
	case TyU64:
		return u64Type(), nil
	case TyU128:
		return u128Type(), nil
	case TyAddress:
		return addressType(), nil
	case TySigner:
		return signerType(), nil
	case TyVector:
		elem, err := mc.translateToken(*tok.Elem, resolveStruct)
		if err != nil {
			return Type{}, err
		}
		return vectorType(elem), nil
	case TyReference:
		elem, err := mc.translateToken(*tok.Elem, resolveStruct)
		if err != nil {
			return Type{}, err
		}
		return referenceType(elem), nil
	case TyMutableReference:
		elem, err := mc.translateToken(*tok.Elem, resolveStruct)
		if err != nil {
			return Type{}, err
		}
		return mutableReferenceType(elem), nil
	case TyParam:
		return tyParam(tok.TypeParamIdx), nil
	case TyStruct:
		idx, err := resolveStruct(tok.StructHandle)
		if err != nil {
			return Type{}, err
		}
		return structType(idx), nil
	case TyStructInstantiation:
		idx, err := resolveStruct(tok.StructHandle)
		if err != nil {
			return Type{}, err
		}
		args := make([]Type, len(tok.TypeArgs))
		for i, a := range tok.TypeArgs {
			at, err := mc.translateToken(a, resolveStruct)
			if err != nil {
				return Type{}, err
			}
			args[i] = at
		}
		return structInstantiationType(idx, args), nil
	default:
		return Type{}, invariantViolation("unknown signature token tag %d", tok.Tag)
	}
}

// resolveStructHandle looks idx up in a CompiledModule's own struct-handle
// table (module + name for every struct referenced, self or dependency),
// as filled in by the deserializer. It reports false for an out-of-range
// index.
func resolveStructHandle(compiled *CompiledModule, idx SignatureIndex) (ModuleId, Identifier, bool) {
	if int(idx) < 0 || int(idx) >= len(compiled.StructHandles) {
		return ModuleId{}, "", false
	}
	h := compiled.StructHandles[idx]
	return h.Owner, h.Name, true
}
