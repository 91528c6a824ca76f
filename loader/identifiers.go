package loader

import (
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/sha3"
)

// Address is a 20-byte account/module-owner identifier.
type Address [20]byte

// String renders the address as a 0x-prefixed hex string.
func (a Address) String() string {
	return fmt.Sprintf("0x%x", [20]byte(a))
}

// ParseAddress parses a 0x-prefixed (or bare) hex string into an Address.
// It is the inverse of String, used at the `cmd/prismvmctl` CLI boundary
// where addresses arrive as user-typed text rather than already-decoded
// bytes.
func ParseAddress(s string) (Address, error) {
	s = strings.TrimPrefix(s, "0x")
	b, err := hex.DecodeString(s)
	if err != nil {
		return Address{}, fmt.Errorf("invalid address %q: %w", s, err)
	}
	if len(b) > 20 {
		return Address{}, fmt.Errorf("address %q is longer than 20 bytes", s)
	}
	var a Address
	copy(a[20-len(b):], b)
	return a, nil
}

// Identifier is a validated module, struct, or function name. The file
// format guarantees identifiers are non-empty and contain no module
// separators; the Loader trusts that guarantee and does no further
// validation.
type Identifier string

// ModuleId is the globally unique name of a published module.
type ModuleId struct {
	Address Address
	Name    Identifier
}

func (id ModuleId) String() string {
	return fmt.Sprintf("%s::%s", id.Address, id.Name)
}

// ScriptHash is the SHA3-256 digest of a script's raw bytes and is the
// identity of a script in the script cache.
type ScriptHash [32]byte

// HashScript computes the identity of a one-shot script from its raw bytes.
func HashScript(bytes []byte) ScriptHash {
	return sha3.Sum256(bytes)
}

func (h ScriptHash) String() string {
	return fmt.Sprintf("%x", [32]byte(h))
}

// CachedStructIndex is a stable, append-only offset into the module cache's
// global struct vector. Once a struct is published this index never
// changes and never moves.
type CachedStructIndex int

// FunctionCacheIndex is a stable, append-only offset into the module
// cache's global function vector.
type FunctionCacheIndex int
