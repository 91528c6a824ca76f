package loader

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// Loader orchestrates deserialization, verification, dependency/friend
// traversal, cycle checking, and publication; it owns the module, script,
// and type caches under their own locks.
type Loader struct {
	cfg Config

	moduleCache *ModuleCache
	scriptCache *ScriptCache
	typeCache   *TypeCache

	verifier     Verifier
	deserializer Deserializer
	natives      NativeRegistry

	log *logrus.Entry

	// fetchGroup collapses concurrent data-store fetches for the same
	// module onto a single call, so N goroutines racing to load the same
	// cold module issue exactly one DataStore.LoadModule.
	fetchGroup singleflight.Group
}

// New builds a Loader. logger may be nil (a level-appropriate default is
// created from cfg.LogLevel); metricsReg may be nil even when
// cfg.MetricsEnabled is true, in which case counters are created but not
// registered against any registry.
func New(cfg Config, verifier Verifier, deserializer Deserializer, natives NativeRegistry, metricsReg prometheus.Registerer, logger *logrus.Logger) *Loader {
	if logger == nil {
		logger = newDefaultLogger(cfg)
	}
	entry := logger.WithField("component", "loader")

	var metrics cacheMetrics = noopMetrics{}
	if cfg.MetricsEnabled {
		metrics = newPromMetrics(metricsReg)
	}

	return &Loader{
		cfg:          cfg,
		moduleCache:  newModuleCache(entry.WithField("cache", "module"), metrics),
		scriptCache:  newScriptCache(entry.WithField("cache", "script"), metrics),
		typeCache:    newTypeCache(metrics, cfg.MaxTypeDepth),
		verifier:     verifier,
		deserializer: deserializer,
		natives:      natives,
		log:          entry,
	}
}

// HasModule reports whether id is already published.
func (l *Loader) HasModule(id ModuleId) bool { return l.moduleCache.HasModule(id) }

// CacheStats snapshots the current size of every cache the Loader owns.
// Exposed for `prismvmctl inspect cache` -- the Loader has no other
// consumer of its own aggregate size.
type CacheStats struct {
	Modules   int
	Structs   int
	Functions int
	Scripts   int
}

func (l *Loader) CacheStats() CacheStats {
	modules, structs, functions := l.moduleCache.Stats()
	return CacheStats{Modules: modules, Structs: structs, Functions: functions, Scripts: l.scriptCache.Len()}
}

// TypeTagKind discriminates an externally-supplied TypeTagInput.
type TypeTagKind uint8

const (
	TagBool TypeTagKind = iota
	TagU8
	TagU64
	TagU128
	TagAddress
	TagSigner
	TagVector
	TagStruct
)

// TypeTagInput is the externally-supplied type-tag shape that LoadType,
// LoadFunction, and LoadScript translate into a runtime Type. It is the
// Loader's boundary representation for a type argument supplied by a
// transaction or the CLI, distinct from the file-format SignatureToken
// (which only ever appears inside already-deserialized bytes).
type TypeTagInput struct {
	Kind TypeTagKind

	Elem *TypeTagInput // Vector

	Address    Address        // Struct
	Module     Identifier     // Struct
	Name       Identifier     // Struct
	TypeParams []TypeTagInput // Struct
}

// ScriptInstantiationResult is what load_script hands back to the
// interpreter: the synthetic main function plus its fully-instantiated
// type arguments, parameters, and return types.
type ScriptInstantiationResult struct {
	Main          *Function
	TypeArguments []Type
	Parameters    []Type
	Return        []Type
}

// FunctionInstantiationResult is what load_function hands back: the
// owning module, the shared Function, and its instantiation.
type FunctionInstantiationResult struct {
	Module        *Module
	Function      *Function
	TypeArguments []Type
	Parameters    []Type
	Return        []Type
}

// compiledLookup threads the bundle-publication context through the
// recursive closure: verified is the compiled form of modules already
// accepted earlier in this bundle/call-tree; unverified is the set still
// awaiting their own turn. Both are nil for an ordinary (non-bundle)
// load, which is safe: a nil map always misses on lookup.
type compiledLookup struct {
	verified   map[ModuleId]*CompiledModule
	unverified map[ModuleId]bool
}

// loadState is the per-call-tree mutable state threaded through one
// load_module invocation's recursion: visited breaks cycles within this
// load, friends is the discovered upward frontier. It is shared across
// the goroutines the friend closure fans out with errgroup, so access is
// mutex-guarded.
type loadState struct {
	mu      sync.Mutex
	visited map[ModuleId]bool
	friends map[ModuleId]bool
}

func newLoadState() *loadState {
	return &loadState{visited: make(map[ModuleId]bool), friends: make(map[ModuleId]bool)}
}

// enter marks id visited and reports whether it was already visited
// (i.e. this call is a cycle, not a legitimate diamond -- diamonds never
// reach here because a sibling branch that already fully loaded id would
// have published it to the module cache before this branch's dependency
// loop ever calls enter for it).
func (s *loadState) enter(id ModuleId) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.visited[id] {
		return true
	}
	s.visited[id] = true
	return false
}

func (s *loadState) addFriends(ids []ModuleId) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		s.friends[id] = true
	}
}

func (s *loadState) snapshotFriends() []ModuleId {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ModuleId, 0, len(s.friends))
	for id := range s.friends {
		out = append(out, id)
	}
	return out
}

// LoadModule loads id and its transitive dependency and friend closure,
// publishing every module reached into the module cache.
func (l *Loader) LoadModule(id ModuleId, dataStore DataStore) (*Module, *VMError) {
	if m, ok := l.moduleCache.moduleAt(id); ok {
		return m, nil
	}

	state := newLoadState()
	mod, err := l.loadAndVerifyModuleAndDependenciesAndFriends(id, compiledLookup{}, dataStore, state, true)
	if err != nil {
		return nil, err
	}

	if cerr := l.verifier.VerifyCyclicModule(id, l.depFn(compiledLookup{}), l.friendFn(compiledLookup{})); cerr != nil {
		l.log.WithFields(logrus.Fields{"module_id": id.String(), "op": "post_publish_cyclic_check"}).Error("cyclic relation detected on already-published module")
		return nil, expectNoVerificationErrors(wrapError(StatusCyclicModuleDependency, cerr, "post-publish cyclic check failed for %s", id))
	}
	return mod, nil
}

// loadAndVerifyModuleAndDependenciesAndFriends is the combined entry
// point: load id and its downward dependency closure, then load its
// upward friend closure.
func (l *Loader) loadAndVerifyModuleAndDependenciesAndFriends(id ModuleId, bundle compiledLookup, dataStore DataStore, state *loadState, allowFailure bool) (*Module, *VMError) {
	mod, err := l.loadAndVerifyModuleAndDependencies(id, bundle, dataStore, state, allowFailure)
	if err != nil {
		return nil, err
	}
	if err := l.loadAndVerifyFriends(state.snapshotFriends(), bundle, dataStore, state, false); err != nil {
		return nil, err
	}
	return mod, nil
}

// loadAndVerifyModuleAndDependencies is the core recursion: fetch,
// deserialize, verify, check_natives, recurse into dependencies, verify
// linking, and publish.
func (l *Loader) loadAndVerifyModuleAndDependencies(id ModuleId, bundle compiledLookup, dataStore DataStore, state *loadState, allowFailure bool) (*Module, *VMError) {
	if state.enter(id) {
		return nil, newErrorAt(StatusCyclicModuleDependency, id, "cyclic module dependency detected while loading")
	}

	bytes, err := l.fetchBytes(id, dataStore, allowFailure)
	if err != nil {
		return nil, err
	}
	compiled, err := l.deserializeModule(id, bytes, allowFailure)
	if err != nil {
		return nil, err
	}
	if err := l.verifySingleModule(compiled, allowFailure); err != nil {
		return nil, err
	}
	if cerr := checkNatives(l.natives, compiled); cerr != nil {
		if !allowFailure {
			return nil, expectNoVerificationErrors(cerr)
		}
		return nil, cerr
	}

	state.addFriends(compiled.Friends)

	depCompiled := make([]*CompiledModule, 0, len(compiled.Dependencies))
	for _, depId := range compiled.Dependencies {
		if c, ok := bundle.verified[depId]; ok {
			depCompiled = append(depCompiled, c)
			continue
		}
		if m, ok := l.moduleCache.moduleAt(depId); ok {
			depCompiled = append(depCompiled, m.compiled)
			continue
		}
		if _, derr := l.loadAndVerifyModuleAndDependencies(depId, bundle, dataStore, state, false); derr != nil {
			return nil, derr
		}
		m, ok := l.moduleCache.moduleAt(depId)
		if !ok {
			return nil, invariantViolation("dependency %s loaded but not found in module cache", depId)
		}
		depCompiled = append(depCompiled, m.compiled)
	}

	if err := l.verifyModuleDependencies(compiled, depCompiled, allowFailure); err != nil {
		return nil, err
	}

	return l.moduleCache.insert(l.natives, id, compiled)
}

// loadAndVerifyFriends loads each friend not already cached or pending in
// this bundle, concurrently: each friend still serializes on its own
// module-cache insert, so the only thing fanning out here is the
// independent verify/deserialize work.
func (l *Loader) loadAndVerifyFriends(friends []ModuleId, bundle compiledLookup, dataStore DataStore, state *loadState, allowFailure bool) *VMError {
	var eg errgroup.Group
	for _, friend := range friends {
		if l.moduleCache.HasModule(friend) {
			continue
		}
		if _, ok := bundle.verified[friend]; ok {
			continue
		}
		if bundle.unverified[friend] {
			continue
		}
		friend := friend
		eg.Go(func() error {
			if _, ferr := l.loadAndVerifyModuleAndDependenciesAndFriends(friend, bundle, dataStore, state, allowFailure); ferr != nil {
				return ferr
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		if verr, ok := err.(*VMError); ok {
			return verr
		}
		return wrapError(StatusInvariantViolation, err, "friend closure failed")
	}
	return nil
}

// VerifyModuleBundleForPublication runs the publication-time check over a
// freshly-authored bundle without installing any module into the code
// cache.
func (l *Loader) VerifyModuleBundleForPublication(modules []*CompiledModule, dataStore DataStore) *VMError {
	unverified := make(map[ModuleId]bool, len(modules))
	for _, m := range modules {
		unverified[m.SelfModule] = true
	}
	verified := make(map[ModuleId]*CompiledModule, len(modules))
	for _, m := range modules {
		delete(unverified, m.SelfModule)
		bundle := compiledLookup{verified: verified, unverified: unverified}
		if err := l.verifyModuleForPublication(m, bundle, dataStore); err != nil {
			return err
		}
		verified[m.SelfModule] = m
	}
	return nil
}

// verifyModuleForPublication is the per-module publication check:
// single-module verifier, check_natives, downward dependency load+verify
// (failures allowed -- a newly authored module may reference a
// dependency that does not yet exist), upward friend load (failures
// allowed for the same reason), then the cyclic relation check.
func (l *Loader) verifyModuleForPublication(compiled *CompiledModule, bundle compiledLookup, dataStore DataStore) *VMError {
	if err := l.verifySingleModule(compiled, true); err != nil {
		return err
	}
	if err := checkNatives(l.natives, compiled); err != nil {
		return err
	}

	state := newLoadState()
	depCompiled := make([]*CompiledModule, 0, len(compiled.Dependencies))
	for _, depId := range compiled.Dependencies {
		if c, ok := bundle.verified[depId]; ok {
			depCompiled = append(depCompiled, c)
			continue
		}
		if m, ok := l.moduleCache.moduleAt(depId); ok {
			depCompiled = append(depCompiled, m.compiled)
			continue
		}
		if _, err := l.loadAndVerifyModuleAndDependencies(depId, bundle, dataStore, state, true); err != nil {
			return err
		}
		m, ok := l.moduleCache.moduleAt(depId)
		if !ok {
			return invariantViolation("dependency %s loaded but not found in module cache", depId)
		}
		depCompiled = append(depCompiled, m.compiled)
	}
	if err := l.verifyModuleDependencies(compiled, depCompiled, true); err != nil {
		return err
	}

	state.addFriends(compiled.Friends)
	if err := l.loadAndVerifyFriends(state.snapshotFriends(), bundle, dataStore, state, true); err != nil {
		return err
	}

	// compiled itself is, at this point, neither in bundle.verified (added
	// by the caller only after this call returns) nor in bundle.unverified
	// (removed by the caller before this call) nor in the module cache (a
	// bundle check never publishes) -- so depFn/friendFn must special
	// -case compiled.SelfModule rather than relying on the bundle lookup
	// that works for every other module in the graph.
	depFn, friendFn := l.depFn(bundle), l.friendFn(bundle)
	selfAwareDepFn := func(id ModuleId) ([]ModuleId, error) {
		if id == compiled.SelfModule {
			return compiled.Dependencies, nil
		}
		return depFn(id)
	}
	selfAwareFriendFn := func(id ModuleId) ([]ModuleId, error) {
		if id == compiled.SelfModule {
			return compiled.Friends, nil
		}
		return friendFn(id)
	}
	if cerr := l.verifier.VerifyCyclicModule(compiled.SelfModule, selfAwareDepFn, selfAwareFriendFn); cerr != nil {
		return wrapError(StatusCyclicModuleDependency, cerr, "cyclic relation check failed for %s", compiled.SelfModule)
	}
	return nil
}

// depFn/friendFn adapt the module cache plus bundle context into the
// callbacks VerifyCyclicModule needs.
func (l *Loader) depFn(bundle compiledLookup) func(ModuleId) ([]ModuleId, error) {
	return func(id ModuleId) ([]ModuleId, error) {
		if c, ok := bundle.verified[id]; ok {
			return c.Dependencies, nil
		}
		if m, ok := l.moduleCache.moduleAt(id); ok {
			return m.compiled.Dependencies, nil
		}
		// A bundle sibling still awaiting its own publication turn has no
		// dependencies to report yet -- mirrors friendFn's treatment of
		// bundle.unverified below. Its own cyclic/dependency check runs
		// when its turn comes.
		if bundle.unverified[id] {
			return nil, nil
		}
		return nil, newErrorAt(StatusMissingDependency, id, "dependency graph references unknown module %s", id)
	}
}

func (l *Loader) friendFn(bundle compiledLookup) func(ModuleId) ([]ModuleId, error) {
	return func(id ModuleId) ([]ModuleId, error) {
		if bundle.unverified[id] {
			return nil, nil
		}
		if c, ok := bundle.verified[id]; ok {
			return c.Friends, nil
		}
		if m, ok := l.moduleCache.moduleAt(id); ok {
			return m.compiled.Friends, nil
		}
		return nil, newErrorAt(StatusMissingDependency, id, "friend graph references unknown module %s", id)
	}
}

// fetchBytes dedups concurrent fetches of the same module id via
// singleflight before asking the data store.
func (l *Loader) fetchBytes(id ModuleId, dataStore DataStore, allowFailure bool) ([]byte, *VMError) {
	v, err, _ := l.fetchGroup.Do(id.String(), func() (any, error) {
		return dataStore.LoadModule(id)
	})
	if err != nil {
		verr := wrapError(StatusMissingDependency, err, "loading module %s from data store", id)
		if !allowFailure {
			return nil, expectNoVerificationErrors(verr)
		}
		return nil, verr
	}
	return v.([]byte), nil
}

func (l *Loader) deserializeModule(id ModuleId, bytes []byte, allowFailure bool) (*CompiledModule, *VMError) {
	compiled, err := l.deserializer.DeserializeModule(bytes)
	if err != nil {
		verr := wrapError(StatusDeserializationError, err, "deserializing module %s", id)
		if !allowFailure {
			return nil, expectNoVerificationErrors(verr)
		}
		return nil, verr
	}
	return compiled, nil
}

func (l *Loader) verifySingleModule(compiled *CompiledModule, allowFailure bool) *VMError {
	if err := l.verifier.VerifyModule(compiled); err != nil {
		verr := wrapError(StatusVerificationError, err, "verifying module %s", compiled.SelfModule)
		if !allowFailure {
			return expectNoVerificationErrors(verr)
		}
		return verr
	}
	return nil
}

func (l *Loader) verifyModuleDependencies(compiled *CompiledModule, deps []*CompiledModule, allowFailure bool) *VMError {
	if err := l.verifier.VerifyModuleDependencies(compiled, deps); err != nil {
		verr := wrapError(StatusVerificationError, err, "verifying dependencies of %s", compiled.SelfModule)
		if !allowFailure {
			return expectNoVerificationErrors(verr)
		}
		return verr
	}
	return nil
}

// checkNatives rejects any native struct declaration outright and
// requires every native function declared here to resolve in the
// registry.
// appendStructs repeats the native-struct half of this check at actual
// insert time -- that duplication is deliberate defense-in-depth, not an
// oversight: check_natives is an early gate run before the (potentially
// expensive) dependency closure even starts.
func checkNatives(natives NativeRegistry, compiled *CompiledModule) *VMError {
	for _, def := range compiled.Structs {
		if def.IsNative {
			name := compiled.StructHandles[def.Handle].Name
			return newErrorAt(StatusVerificationError, compiled.SelfModule, "native struct declarations are not permitted (struct %q)", name)
		}
	}
	for _, def := range compiled.Functions {
		if !def.IsNative {
			continue
		}
		if _, ok := natives.Resolve(compiled.SelfModule.Address, compiled.SelfModule.Name, def.Handle.Name); !ok {
			return newErrorAt(StatusVerificationError, compiled.SelfModule, "native function %q does not resolve in the registry", def.Handle.Name)
		}
	}
	return nil
}

// LoadScript loads and verifies a one-shot script's bytes, caching it by
// SHA3-256 hash, then instantiates its type arguments, parameters, and
// return types for this call.
func (l *Loader) LoadScript(bytes []byte, tags []TypeTagInput, dataStore DataStore) (*ScriptInstantiationResult, *VMError) {
	hash := HashScript(bytes)
	script, err := l.loadScriptEntry(hash, bytes, dataStore)
	if err != nil {
		return nil, err
	}

	tyArgs := make([]Type, len(tags))
	for i, tag := range tags {
		t, terr := l.LoadType(tag, dataStore)
		if terr != nil {
			return nil, terr
		}
		tyArgs[i] = t
	}
	if verr := l.verifyTyArgs(script.main.TypeParameters, tyArgs); verr != nil {
		return nil, verr
	}

	params, verr := substAll(script.parameterTys, tyArgs)
	if verr != nil {
		return nil, verr
	}
	rets, verr := substAll(script.returnTys, tyArgs)
	if verr != nil {
		return nil, verr
	}

	return &ScriptInstantiationResult{
		Main:          script.Main(),
		TypeArguments: tyArgs,
		Parameters:    params,
		Return:        rets,
	}, nil
}

// loadScriptEntry checks the cache under the hash LoadScript computed, and on a miss
// deserializes, verifies, verifies its dependencies, and constructs it.
func (l *Loader) loadScriptEntry(hash ScriptHash, bytes []byte, dataStore DataStore) (*Script, *VMError) {
	if s, ok := l.scriptCache.get(hash); ok {
		return s, nil
	}

	compiled, derr := l.deserializer.DeserializeScript(bytes)
	if derr != nil {
		return nil, wrapError(StatusDeserializationError, derr, "deserializing script %s", hash)
	}
	if verr := l.verifier.VerifyScript(compiled); verr != nil {
		return nil, wrapError(StatusVerificationError, verr, "verifying script %s", hash)
	}

	depCompiled := make([]*CompiledModule, 0, len(compiled.Dependencies))
	for _, depId := range compiled.Dependencies {
		mod, err := l.LoadModule(depId, dataStore)
		if err != nil {
			return nil, err
		}
		depCompiled = append(depCompiled, mod.compiled)
	}
	if verr := l.verifier.VerifyScriptDependencies(compiled, depCompiled); verr != nil {
		return nil, wrapError(StatusVerificationError, verr, "verifying script %s dependencies", hash)
	}

	script, serr := newScript(hash, compiled, l.moduleCache)
	if serr != nil {
		return nil, serr
	}
	return l.scriptCache.insert(hash, script), nil
}

// LoadFunction resolves name within moduleId (loading its closure first
// if necessary) and instantiates it against tags.
func (l *Loader) LoadFunction(moduleId ModuleId, name Identifier, tags []TypeTagInput, dataStore DataStore) (*FunctionInstantiationResult, *VMError) {
	mod, err := l.LoadModule(moduleId, dataStore)
	if err != nil {
		return nil, err
	}

	fnIdx, err := l.moduleCache.resolveFunctionByName(name, moduleId)
	if err != nil {
		return nil, err
	}
	fn, err := l.moduleCache.functionAt(fnIdx)
	if err != nil {
		return nil, err
	}

	tyArgs := make([]Type, len(tags))
	for i, tag := range tags {
		t, terr := l.LoadType(tag, dataStore)
		if terr != nil {
			return nil, terr
		}
		tyArgs[i] = t
	}
	if verr := l.verifyTyArgs(fn.TypeParameters, tyArgs); verr != nil {
		return nil, verr
	}

	resolveHandle := func(idx SignatureIndex) (ModuleId, Identifier) {
		h := mod.compiled.StructHandles[idx]
		return h.Owner, h.Name
	}
	translate := func(sig Signature) ([]Type, *VMError) {
		out := make([]Type, len(sig))
		for i, tok := range sig {
			t, terr := l.moduleCache.makeType(moduleId, tok, resolveHandle)
			if terr != nil {
				return nil, terr
			}
			out[i] = t
		}
		return out, nil
	}

	paramTemplates, verr := translate(fn.Parameters)
	if verr != nil {
		return nil, verr
	}
	returnTemplates, verr := translate(fn.Return)
	if verr != nil {
		return nil, verr
	}

	params, verr := substAll(paramTemplates, tyArgs)
	if verr != nil {
		return nil, verr
	}
	rets, verr := substAll(returnTemplates, tyArgs)
	if verr != nil {
		return nil, verr
	}

	return &FunctionInstantiationResult{
		Module:        mod,
		Function:      fn,
		TypeArguments: tyArgs,
		Parameters:    params,
		Return:        rets,
	}, nil
}

func substAll(templates []Type, tyArgs []Type) ([]Type, *VMError) {
	out := make([]Type, len(templates))
	for i, t := range templates {
		s, err := t.Subst(tyArgs)
		if err != nil {
			return nil, err
		}
		out[i] = s
	}
	return out, nil
}

// LoadType translates an externally-supplied type tag into a runtime
// Type, loading the declaring module of a struct tag if needed.
func (l *Loader) LoadType(tag TypeTagInput, dataStore DataStore) (Type, *VMError) {
	switch tag.Kind {
	case TagBool:
		return boolType(), nil
	case TagU8:
		return u8Type(), nil
	case TagU64:
		return u64Type(), nil
	case TagU128:
		return u128Type(), nil
	case TagAddress:
		return addressType(), nil
	case TagSigner:
		return signerType(), nil
	case TagVector:
		if tag.Elem == nil {
			return Type{}, invariantViolation("vector type tag missing element")
		}
		elem, err := l.LoadType(*tag.Elem, dataStore)
		if err != nil {
			return Type{}, err
		}
		return vectorType(elem), nil
	case TagStruct:
		moduleId := ModuleId{Address: tag.Address, Name: tag.Module}
		if _, err := l.LoadModule(moduleId, dataStore); err != nil {
			return Type{}, err
		}
		idx, st, err := l.moduleCache.resolveStructByName(tag.Name, moduleId)
		if err != nil {
			return Type{}, err
		}
		if len(st.TypeParameters) == 0 && len(tag.TypeParams) == 0 {
			return structType(idx), nil
		}
		loaded := make([]Type, len(tag.TypeParams))
		for i, p := range tag.TypeParams {
			t, err := l.LoadType(p, dataStore)
			if err != nil {
				return Type{}, err
			}
			loaded[i] = t
		}
		constraints := make([]AbilitySet, len(st.TypeParameters))
		for i, p := range st.TypeParameters {
			constraints[i] = p.Constraints
		}
		if err := l.verifyTyArgs(constraints, loaded); err != nil {
			return Type{}, err
		}
		return structInstantiationType(idx, loaded), nil
	default:
		return Type{}, invariantViolation("unknown external type tag kind %d", tag.Kind)
	}
}

// verifyTyArgs checks arity, then that every type argument satisfies its
// corresponding ability constraint.
func (l *Loader) verifyTyArgs(constraints []AbilitySet, tyArgs []Type) *VMError {
	if len(constraints) != len(tyArgs) {
		return newError(StatusNumberOfTypeArgumentsMismatch, "expected %d type arguments, got %d", len(constraints), len(tyArgs))
	}
	for i, expected := range constraints {
		got, err := abilities(l.moduleCache, tyArgs[i])
		if err != nil {
			return err
		}
		if !got.Has(expected) {
			return newError(StatusConstraintNotSatisfied, "type argument %d lacks required abilities %s (has %s)", i, expected, got)
		}
	}
	return nil
}

// GetTypeLayout delegates to the type cache.
func (l *Loader) GetTypeLayout(t Type) (TypeLayout, *VMError) {
	return typeToTypeLayout(l.moduleCache, l.typeCache, t)
}

// ResolverForFunction returns the Resolver the interpreter should use
// while executing fn.
func (l *Loader) ResolverForFunction(fn *Function) (*Resolver, *VMError) {
	if fn.Scope.IsScript {
		s, ok := l.scriptCache.get(fn.Scope.Script)
		if !ok {
			return nil, invariantViolation("resolver requested for script function whose script %s is not cached", fn.Scope.Script)
		}
		return newScriptResolver(l, s, s.compiled), nil
	}
	m, ok := l.moduleCache.moduleAt(fn.Scope.Module)
	if !ok {
		return nil, invariantViolation("resolver requested for function owned by uncached module %s", fn.Scope.Module)
	}
	return newModuleResolver(l, m, m.compiled), nil
}
