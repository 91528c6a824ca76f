package loader

// StructType is the global, append-only runtime record for a
// module-declared struct. There is exactly one StructType per struct
// declaration for the lifetime of the Loader; its CachedStructIndex never
// moves once assigned.
type StructType struct {
	Module         ModuleId
	Name           Identifier
	Abilities      AbilitySet
	TypeParameters []ParamSpec

	// Fields starts out nil when the StructType is appended and is
	// installed exactly once by loadFieldTypes before any other module
	// can observe it.
	Fields []Type

	// StructDefIdx is the local struct-definition index within the
	// declaring module's compiled bytes. It is recorded at append time;
	// field translation locates the definition by position instead.
	StructDefIdx int
}

// fieldsInstalled reports whether loadFieldTypes has already run for this
// struct. A nil Fields slice (as opposed to an empty-but-non-nil one)
// marks "not yet installed" -- a zero-field struct still gets a non-nil,
// zero-length slice once installed, so the two states stay
// distinguishable while the field-fill pass is in flight.
func (s *StructType) fieldsInstalled() bool { return s.Fields != nil }
