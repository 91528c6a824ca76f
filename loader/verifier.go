package loader

// This file declares external collaborators the Loader treats as
// oracles: the bytecode verifier, the persistent data store, and the
// deserializer. (The native function registry interface, NativeRegistry,
// is declared in module_cache.go.) None are implemented here -- they are
// owned by other subsystems and injected into the Loader.

// DataStore serves raw module bytes by module identifier.
type DataStore interface {
	LoadModule(id ModuleId) ([]byte, error)
}

// Verifier is the bytecode verifier oracle: structural soundness of a
// single module/script, cross-module linking, and cyclic-dependency
// checks. A nil error means "accepted".
type Verifier interface {
	VerifyModule(compiled *CompiledModule) error
	VerifyScript(compiled *CompiledScript) error
	VerifyModuleDependencies(compiled *CompiledModule, deps []*CompiledModule) error
	VerifyScriptDependencies(compiled *CompiledScript, deps []*CompiledModule) error
	// VerifyCyclicModule checks the dependency and friend graphs rooted
	// at id for cycles, using depFn/friendFn to discover immediate edges.
	VerifyCyclicModule(id ModuleId, depFn func(ModuleId) ([]ModuleId, error), friendFn func(ModuleId) ([]ModuleId, error)) error
}

// Deserializer turns raw bytes into the Loader's minimal compiled view.
// The real project's file-format library performs this; it is an
// external collaborator here, not re-specified.
type Deserializer interface {
	DeserializeModule(bytes []byte) (*CompiledModule, error)
	DeserializeScript(bytes []byte) (*CompiledScript, error)
}
