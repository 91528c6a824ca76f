package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"prismvm/loader"
)

// jsonCodec is the CLI's stand-in Deserializer. The real file-format
// library is an external collaborator the Loader never implements
// (loader/verifier.go); for a CLI that actually needs to read something
// off disk, modules and scripts are authored as JSON encodings of
// loader.CompiledModule/CompiledScript rather than a real bytecode
// format.
type jsonCodec struct{}

func (jsonCodec) DeserializeModule(b []byte) (*loader.CompiledModule, error) {
	var m loader.CompiledModule
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("decode module json: %w", err)
	}
	return &m, nil
}

func (jsonCodec) DeserializeScript(b []byte) (*loader.CompiledScript, error) {
	var s loader.CompiledScript
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("decode script json: %w", err)
	}
	return &s, nil
}

// fileDataStore serves module bytes from <dir>/<address>__<name>.json.
type fileDataStore struct {
	dir string
}

func newFileDataStore(dir string) *fileDataStore { return &fileDataStore{dir: dir} }

func (ds *fileDataStore) modulePath(id loader.ModuleId) string {
	return filepath.Join(ds.dir, fmt.Sprintf("%s__%s.json", id.Address.String(), id.Name))
}

func (ds *fileDataStore) LoadModule(id loader.ModuleId) ([]byte, error) {
	b, err := os.ReadFile(ds.modulePath(id))
	if err != nil {
		return nil, fmt.Errorf("reading module %s from %s: %w", id, ds.dir, err)
	}
	return b, nil
}

// acceptAllVerifier stands in for the real bytecode verifier, which is an
// out-of-scope external oracle (see loader.Verifier). Single-module and
// linking checks always accept; the cyclic-relation check is real, since
// a CLI that silently accepted cycles would misrepresent the subsystem
// it demonstrates.
type acceptAllVerifier struct{}

func (acceptAllVerifier) VerifyModule(*loader.CompiledModule) error  { return nil }
func (acceptAllVerifier) VerifyScript(*loader.CompiledScript) error  { return nil }
func (acceptAllVerifier) VerifyModuleDependencies(*loader.CompiledModule, []*loader.CompiledModule) error {
	return nil
}
func (acceptAllVerifier) VerifyScriptDependencies(*loader.CompiledScript, []*loader.CompiledModule) error {
	return nil
}

func (acceptAllVerifier) VerifyCyclicModule(id loader.ModuleId, depFn, friendFn func(loader.ModuleId) ([]loader.ModuleId, error)) error {
	visiting := make(map[loader.ModuleId]bool)
	done := make(map[loader.ModuleId]bool)
	var visit func(loader.ModuleId) error
	visit = func(cur loader.ModuleId) error {
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

// noNativesRegistry resolves nothing: the native registry's host-callback
// implementations are out of scope for this demonstration CLI. A module
// declaring a native function always fails check_natives under this CLI.
type noNativesRegistry struct{}

func (noNativesRegistry) Resolve(loader.Address, loader.Identifier, loader.Identifier) (loader.NativeFunction, bool) {
	return nil, false
}
