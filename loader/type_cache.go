package loader

import "sync"

// maxTypeDepth bounds type-layout recursion; type-tag computation is not
// depth-checked. Entry points call
// with initial depth 1; exceeding 128 is a
// VMMaxValueDepthReached error, not an invariant violation -- a
// sufficiently adversarial but otherwise well-formed type can legitimately
// nest this deep.
const maxTypeDepth = 128

// StructTypeTag is the externally-visible, name-based encoding of a concrete
// struct type, used at system boundaries (serialization, RPC responses).
type StructTypeTag struct {
	Address   Address
	Module    Identifier
	Name      Identifier
	TypeArgs  []any // recursively either a primitive tag or *StructTypeTag
}

// MoveStructLayout is the recursive structural description of a struct
// value used by serialization.
type MoveStructLayout struct {
	Fields []TypeLayout
}

// TypeLayout mirrors Type's shape but carries only what serialization
// needs: no references, no unresolved type parameters (both are an
// invariant violation if they reach layout computation).
type TypeLayout struct {
	Tag    TypeTag
	Elem   *TypeLayout      // Vector
	Struct *MoveStructLayout // Struct, StructInstantiation
}

type derivedEntry struct {
	tag    *StructTypeTag
	layout *MoveStructLayout
}

// TypeCache memoizes, per (struct, type-arg vector), the derived type tag
// and type layout. Entries are populated lazily and are write-once in
// practice: once a tag or layout is computed for a given key it never
// needs recomputing and is never invalidated (structs/fields never
// change after publish).
type TypeCache struct {
	mu      sync.RWMutex
	structs map[CachedStructIndex]map[string]*derivedEntry

	metrics  cacheMetrics
	maxDepth int
}

// newTypeCache builds a TypeCache bounding recursion at maxDepth (0 means
// "use the default of 128", matching Config.MaxTypeDepth's zero-value
// convention).
func newTypeCache(metrics cacheMetrics, maxDepth int) *TypeCache {
	if maxDepth <= 0 {
		maxDepth = maxTypeDepth
	}
	return &TypeCache{
		structs:  make(map[CachedStructIndex]map[string]*derivedEntry),
		metrics:  metrics,
		maxDepth: maxDepth,
	}
}

// typeArgsKey produces a stable map key for a type-argument vector. Types
// are compared structurally, not by pointer identity.
func typeArgsKey(args []Type) string {
	b := make([]byte, 0, 16*len(args))
	var encode func(t Type)
	encode = func(t Type) {
		b = append(b, byte(t.Tag))
		switch t.Tag {
		case TyVector, TyReference, TyMutableReference:
			encode(*t.Elem)
		case TyParam:
			b = append(b, byte(t.ParamIdx))
		case TyStruct:
			b = appendInt(b, int(t.StructIdx))
		case TyStructInstantiation:
			b = appendInt(b, int(t.StructIdx))
			for _, a := range t.TypeArgs {
				encode(a)
			}
		}
	}
	for _, a := range args {
		encode(a)
	}
	return string(b)
}

func appendInt(b []byte, v int) []byte {
	return append(b, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
}

func (tc *TypeCache) lookup(idx CachedStructIndex, key string) *derivedEntry {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	m, ok := tc.structs[idx]
	if !ok {
		return nil
	}
	return m[key]
}

func (tc *TypeCache) install(idx CachedStructIndex, key string, e *derivedEntry) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	m, ok := tc.structs[idx]
	if !ok {
		m = make(map[string]*derivedEntry)
		tc.structs[idx] = m
	}
	// Another goroutine may have installed first; entries are
	// idempotent/equal for the same key so either copy is fine, but we
	// keep the first one to honor "write-once in practice".
	if existing, ok := m[key]; ok {
		if e.tag != nil && existing.tag == nil {
			existing.tag = e.tag
		}
		if e.layout != nil && existing.layout == nil {
			existing.layout = e.layout
		}
		return
	}
	m[key] = e
}

// getTypeTag returns the (possibly cached) type tag for Struct(idx) or
// StructInstantiation(idx, args).
func (tc *TypeCache) getTypeTag(mc *ModuleCache, idx CachedStructIndex, args []Type) (*StructTypeTag, *VMError) {
	key := typeArgsKey(args)
	if e := tc.lookup(idx, key); e != nil && e.tag != nil {
		tc.metrics.incHit("type")
		return e.tag, nil
	}
	tc.metrics.incMiss("type")

	st, err := mc.structAt(idx)
	if err != nil {
		return nil, err
	}
	argTags := make([]any, len(args))
	for i, a := range args {
		t, err := typeToTypeTag(mc, tc, a)
		if err != nil {
			return nil, err
		}
		argTags[i] = t
	}
	tag := &StructTypeTag{
		Address:  st.Module.Address,
		Module:   st.Module.Name,
		Name:     st.Name,
		TypeArgs: argTags,
	}
	tc.install(idx, key, &derivedEntry{tag: tag})
	return tag, nil
}

// getTypeLayout returns the (possibly cached) type layout for Struct(idx)
// or StructInstantiation(idx, args). A cache hit is returned as-is
// regardless of the caller's current depth: once a layout has been
// computed safely within the bound, it stays valid forever (the bound
// exists to stop runaway recursion while computing, not to limit how
// deep a layout may be read back out).
func (tc *TypeCache) getTypeLayout(mc *ModuleCache, idx CachedStructIndex, args []Type, depth int) (*MoveStructLayout, *VMError) {
	key := typeArgsKey(args)
	if e := tc.lookup(idx, key); e != nil && e.layout != nil {
		tc.metrics.incHit("type")
		return e.layout, nil
	}
	tc.metrics.incMiss("type")

	st, err := mc.structAt(idx)
	if err != nil {
		return nil, err
	}
	fields := make([]TypeLayout, len(st.Fields))
	for i, fieldTy := range st.Fields {
		substituted, serr := fieldTy.Subst(args)
		if serr != nil {
			return nil, serr
		}
		layout, err := typeToTypeLayoutImpl(mc, tc, substituted, depth+1)
		if err != nil {
			return nil, err
		}
		fields[i] = layout
	}
	result := &MoveStructLayout{Fields: fields}
	tc.install(idx, key, &derivedEntry{layout: result})
	return result, nil
}

// typeToTypeTag computes the type tag for an arbitrary runtime Type.
// Primitive and vector types map directly; Struct/StructInstantiation
// delegate to the type cache.
func typeToTypeTag(mc *ModuleCache, tc *TypeCache, t Type) (any, *VMError) {
	switch t.Tag {
	case TyBool:
		return "bool", nil
	case TyU8:
		return "u8", nil
	case TyU64:
		return "u64", nil
	case TyU128:
		return "u128", nil
	case TyAddress:
		return "address", nil
	case TySigner:
		return "signer", nil
	case TyVector:
		elemTag, err := typeToTypeTag(mc, tc, *t.Elem)
		if err != nil {
			return nil, err
		}
		return []any{elemTag}, nil
	case TyStruct:
		return tc.getTypeTag(mc, t.StructIdx, nil)
	case TyStructInstantiation:
		return tc.getTypeTag(mc, t.StructIdx, t.TypeArgs)
	default:
		return nil, invariantViolation("type %v has no type tag (reference or unresolved type parameter)", t.Tag)
	}
}

// typeToTypeLayout is the public entry point; depth starts at 1.
func typeToTypeLayout(mc *ModuleCache, tc *TypeCache, t Type) (TypeLayout, *VMError) {
	return typeToTypeLayoutImpl(mc, tc, t, 1)
}

func typeToTypeLayoutImpl(mc *ModuleCache, tc *TypeCache, t Type, depth int) (TypeLayout, *VMError) {
	if depth > tc.maxDepth {
		return TypeLayout{}, newError(StatusMaxValueDepthReached, "type layout nesting exceeds depth %d", tc.maxDepth)
	}
	switch t.Tag {
	case TyBool, TyU8, TyU64, TyU128, TyAddress, TySigner:
		return TypeLayout{Tag: t.Tag}, nil
	case TyVector:
		elem, err := typeToTypeLayoutImpl(mc, tc, *t.Elem, depth+1)
		if err != nil {
			return TypeLayout{}, err
		}
		return TypeLayout{Tag: TyVector, Elem: &elem}, nil
	case TyStruct:
		layout, err := tc.getTypeLayout(mc, t.StructIdx, nil, depth)
		if err != nil {
			return TypeLayout{}, err
		}
		return TypeLayout{Tag: TyStruct, Struct: layout}, nil
	case TyStructInstantiation:
		layout, err := tc.getTypeLayout(mc, t.StructIdx, t.TypeArgs, depth)
		if err != nil {
			return TypeLayout{}, err
		}
		return TypeLayout{Tag: TyStructInstantiation, Struct: layout}, nil
	case TyReference, TyMutableReference, TyParam:
		return TypeLayout{}, invariantViolation("type %v has neither tag nor layout", t.Tag)
	default:
		return TypeLayout{}, invariantViolation("unknown type tag %d", t.Tag)
	}
}
