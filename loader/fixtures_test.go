package loader

import (
	"fmt"
	"io"
	"sync"

	"github.com/sirupsen/logrus"
)

// Shared white-box test fixtures: fake oracles for the Verifier, DataStore,
// Deserializer, and NativeRegistry interfaces the Loader treats as
// external collaborators. Kept in one file and reused across every
// *_test.go in this package, one mock block per test file reused by
// several Test functions.

func testAddr(b byte) Address {
	var a Address
	a[0] = b
	return a
}

func mid(b byte, name Identifier) ModuleId {
	return ModuleId{Address: testAddr(b), Name: name}
}

// testDeserializer turns the synthetic bytes a fakeDataStore hands out
// (id.String(), or a script fixture's raw payload) back into the
// *CompiledModule/*CompiledScript registered for them. A real deserializer
// parses an actual binary format, not re-specified here; this one only
// needs to round-trip what a test put in.
type testDeserializer struct {
	mu      sync.Mutex
	modules map[string]*CompiledModule
	scripts map[string]*CompiledScript
}

func newTestDeserializer() *testDeserializer {
	return &testDeserializer{modules: make(map[string]*CompiledModule), scripts: make(map[string]*CompiledScript)}
}

func (d *testDeserializer) DeserializeModule(bytes []byte) (*CompiledModule, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	m, ok := d.modules[string(bytes)]
	if !ok {
		return nil, fmt.Errorf("no fixture module for bytes %q", bytes)
	}
	return m, nil
}

func (d *testDeserializer) DeserializeScript(bytes []byte) (*CompiledScript, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.scripts[string(bytes)]
	if !ok {
		return nil, fmt.Errorf("no fixture script for bytes %q", bytes)
	}
	return s, nil
}

func (d *testDeserializer) putModule(bytes []byte, compiled *CompiledModule) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.modules[string(bytes)] = compiled
}

func (d *testDeserializer) putScript(bytes []byte, compiled *CompiledScript) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.scripts[string(bytes)] = compiled
}

// fakeDataStore serves raw bytes for modules registered with put, and
// counts fetches per id so tests can assert idempotence (Testable
// Property 1: "the second call performs no data-store fetch").
type fakeDataStore struct {
	mu     sync.Mutex
	bytes  map[ModuleId][]byte
	fetchN map[ModuleId]int
	deser  *testDeserializer

	// block, when non-nil, is waited on inside LoadModule before returning
	// -- used to widen the window concurrent callers race in, so a
	// singleflight-dedup test can assert every racer shares one fetch.
	block chan struct{}
}

func newFakeDataStore(deser *testDeserializer) *fakeDataStore {
	return &fakeDataStore{bytes: make(map[ModuleId][]byte), fetchN: make(map[ModuleId]int), deser: deser}
}

// armBlock makes every subsequent LoadModule call wait until release is
// called.
func (d *fakeDataStore) armBlock() {
	d.block = make(chan struct{})
}

func (d *fakeDataStore) release() {
	close(d.block)
}

// put registers compiled so a LoadModule(id, ...) call against this store
// will fetch, then deserialize, back to the same value.
func (d *fakeDataStore) put(id ModuleId, compiled *CompiledModule) {
	d.mu.Lock()
	b := []byte(id.String())
	d.bytes[id] = b
	d.mu.Unlock()
	d.deser.putModule(b, compiled)
}

func (d *fakeDataStore) LoadModule(id ModuleId) ([]byte, error) {
	d.mu.Lock()
	d.fetchN[id]++
	b, ok := d.bytes[id]
	block := d.block
	d.mu.Unlock()
	if block != nil {
		<-block
	}
	if !ok {
		return nil, fmt.Errorf("module %s not found in data store", id)
	}
	return b, nil
}

func (d *fakeDataStore) fetchCount(id ModuleId) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.fetchN[id]
}

// countingDeserializer wraps a testDeserializer to count how many times
// each Deserialize* method actually ran, so a test can assert a cache hit
// skipped re-deserialization.
type countingDeserializer struct {
	*testDeserializer
	mu          sync.Mutex
	moduleCalls int
	scriptCalls int
}

func newCountingDeserializer(d *testDeserializer) *countingDeserializer {
	return &countingDeserializer{testDeserializer: d}
}

func (d *countingDeserializer) DeserializeModule(b []byte) (*CompiledModule, error) {
	d.mu.Lock()
	d.moduleCalls++
	d.mu.Unlock()
	return d.testDeserializer.DeserializeModule(b)
}

func (d *countingDeserializer) DeserializeScript(b []byte) (*CompiledScript, error) {
	d.mu.Lock()
	d.scriptCalls++
	d.mu.Unlock()
	return d.testDeserializer.DeserializeScript(b)
}

// testVerifier is a real (not stubbed-out) implementation of the cyclic
// -relation oracle -- a plain DFS over whatever depFn/friendFn expose --
// plus always-accept single-module/linking checks, since the bytecode
// verifier's internals are out of scope but cycle detection is precise
// enough to deserve a real implementation in tests.
type testVerifier struct {
	rejectModules map[ModuleId]bool
	rejectDeps    map[ModuleId]bool
}

func (v *testVerifier) VerifyModule(compiled *CompiledModule) error {
	if v.rejectModules[compiled.SelfModule] {
		return fmt.Errorf("rejected module %s", compiled.SelfModule)
	}
	return nil
}

func (v *testVerifier) VerifyScript(*CompiledScript) error { return nil }

func (v *testVerifier) VerifyModuleDependencies(compiled *CompiledModule, _ []*CompiledModule) error {
	if v.rejectDeps[compiled.SelfModule] {
		return fmt.Errorf("rejected dependency linkage for %s", compiled.SelfModule)
	}
	return nil
}

func (v *testVerifier) VerifyScriptDependencies(*CompiledScript, []*CompiledModule) error { return nil }

func (v *testVerifier) VerifyCyclicModule(id ModuleId, depFn func(ModuleId) ([]ModuleId, error), friendFn func(ModuleId) ([]ModuleId, error)) error {
	visiting := make(map[ModuleId]bool)
	done := make(map[ModuleId]bool)
	var visit func(ModuleId) error
	visit = func(cur ModuleId) error {
		if done[cur] {
			return nil
		}
		if visiting[cur] {
			return fmt.Errorf("cyclic relation detected at %s", cur)
		}
		visiting[cur] = true
		deps, err := depFn(cur)
		if err != nil {
			return err
		}
		for _, d := range deps {
			if err := visit(d); err != nil {
				return err
			}
		}
		friends, err := friendFn(cur)
		if err != nil {
			return err
		}
		for _, f := range friends {
			if err := visit(f); err != nil {
				return err
			}
		}
		visiting[cur] = false
		done[cur] = true
		return nil
	}
	return visit(id)
}

// fakeNativeRegistry resolves exactly the (address, module, function)
// triples registered with permit.
type fakeNativeRegistry struct {
	allow map[string]bool
}

func newFakeNativeRegistry() *fakeNativeRegistry {
	return &fakeNativeRegistry{allow: make(map[string]bool)}
}

func (r *fakeNativeRegistry) permit(owner ModuleId, fn Identifier) {
	r.allow[owner.Address.String()+"::"+string(owner.Name)+"::"+string(fn)] = true
}

func (r *fakeNativeRegistry) Resolve(addr Address, moduleName, functionName Identifier) (NativeFunction, bool) {
	key := addr.String() + "::" + string(moduleName) + "::" + string(functionName)
	if !r.allow[key] {
		return nil, false
	}
	return func(args []any) ([]any, error) { return args, nil }, true
}

// silentLogger is a real *logrus.Logger that writes nowhere, matching the
// teacher's habit of exercising the real logging path in tests instead of
// a mock logger.
func silentLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// newTestLoader wires a Loader over the fakes above with metrics disabled
// and a discard logger.
func newTestLoader(v Verifier, deser Deserializer, natives NativeRegistry) *Loader {
	return New(DefaultConfig(), v, deser, natives, nil, silentLogger())
}

// mkModule builds a minimal, struct/function-free CompiledModule -- enough
// to exercise dependency/friend closure and cycle detection without
// needing struct or function fixtures.
func mkModule(id ModuleId, deps, friends []ModuleId) *CompiledModule {
	return &CompiledModule{SelfModule: id, Dependencies: deps, Friends: friends}
}
