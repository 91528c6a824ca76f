package loader

// This file declares the minimal view the Loader needs over a deserialized
// module or script. The actual binary decoding is performed by the
// project's file-format library, not re-specified here, and treated as
// an external oracle alongside the verifier; these types are the shape
// that oracle hands back.

// SignatureToken is a single file-format type expression: either a
// primitive tag, a reference/vector wrapper around another token, a
// TypeParameter index, or a handle/instantiation referencing a struct
// declared somewhere in the dependency graph.
type SignatureToken struct {
	Tag TypeTag

	Elem *SignatureToken // Vector, Reference, MutableReference

	TypeParamIdx int // TyParam

	StructHandle SignatureIndex   // TyStruct
	TypeArgs     []SignatureToken // TyStructInstantiation
}

// SignatureIndex indexes into a module's signature pool.
type SignatureIndex int

// Constant is a file-format constant-pool entry: its declared type and
// its BCS-style serialized bytes. The Loader treats both as opaque
// payload; only the interpreter decodes them.
type Constant struct {
	Type SignatureToken
	Data []byte
}

// Signature is a list of SignatureTokens, e.g. a function's parameter or
// return-type list, or a struct's field-type list.
type Signature []SignatureToken

// StructHandle references a struct by owning module and name, regardless
// of whether that struct is declared locally or in a dependency. A
// module's StructHandles pool is what SignatureToken.StructHandle indexes
// into; StructDefinitions (below) are the subset of handles that are
// defined, with bodies, in this module.
type StructHandle struct {
	Owner ModuleId
	Name  Identifier
}

// StructFieldDefinition names one field of a struct definition and its
// file-format type.
type StructFieldDefinition struct {
	Name Identifier
	Type SignatureToken
}

// StructDefinition is a struct declared by the module being loaded. Handle
// indexes into the owning CompiledModule's StructHandles pool.
type StructDefinition struct {
	Handle     SignatureIndex
	Abilities  AbilitySet
	TypeParams []ParamSpec
	Fields     []StructFieldDefinition
	IsNative   bool
}

// FunctionHandle references a function declared in this module or an
// immediate dependency.
type FunctionHandle struct {
	Owner ModuleId
	Name  Identifier
}

// Visibility controls whether non-friend, non-module callers may invoke a
// function.
type Visibility int

const (
	VisibilityPrivate Visibility = iota
	VisibilityPublic
	VisibilityFriend
)

// FunctionDefinition is a function declared by the module being loaded.
type FunctionDefinition struct {
	Handle         FunctionHandle
	Visibility     Visibility
	Parameters     Signature
	Return         Signature
	TypeParameters []AbilitySet
	Locals         Signature // declared locals only, parameters excluded
	Code           []Bytecode
	IsNative       bool
}

// CompiledModule is the deserialized, verifier-accepted form of an
// on-chain module.
type CompiledModule struct {
	SelfModule ModuleId

	// StructHandles is the pool every SignatureToken.StructHandle indexes
	// into: one entry per struct referenced anywhere in this module,
	// whether declared here or in a dependency.
	StructHandles []StructHandle
	// FunctionHandles is the analogous pool for function references.
	FunctionHandles []FunctionHandle

	Structs   []StructDefinition
	Functions []FunctionDefinition
	Friends   []ModuleId
	// Dependencies lists every module handle referenced by this module
	// other than itself, in file-format handle order.
	Dependencies []ModuleId
	Version      uint32
	Constants    []Constant

	// singleTokenSignatures is the file format's pool of single-element
	// signatures referenced by vector-family bytecode operands (each
	// holds exactly the element type the instruction operates on).
	singleTokenSignatures []SignatureToken
}

// CompiledScript is the deserialized, verifier-accepted form of a one-shot
// script.
type CompiledScript struct {
	Parameters     Signature
	Return         Signature
	TypeParameters []AbilitySet
	Locals         Signature
	Code           []Bytecode
	Dependencies   []ModuleId
	Constants      []Constant

	StructHandles         []StructHandle
	FunctionHandles       []FunctionHandle
	singleTokenSignatures []SignatureToken
}

// WithSingleTokenSignatures attaches the single-element signature pool a
// script's vector-family bytecode operands reference. Exposed for
// construction by whatever builds a CompiledScript from raw bytes (the
// deserializer, or a test).
func (c *CompiledScript) WithSingleTokenSignatures(sigs []SignatureToken) *CompiledScript {
	c.singleTokenSignatures = sigs
	return c
}

// WithSingleTokenSignatures attaches the single-element signature pool a
// module's vector-family bytecode operands reference.
func (c *CompiledModule) WithSingleTokenSignatures(sigs []SignatureToken) *CompiledModule {
	c.singleTokenSignatures = sigs
	return c
}
