package vm

// ---------------------------------------------------------------------------
// Reference: a named slot holding one value
// ---------------------------------------------------------------------------

// Reference is a binding slot. Every name, member and index lookup resolves
// to a Reference so reads and assignment targets share one representation.
type Reference struct {
	Value     Value
	IsMutable bool
}

// NewReference returns a mutable slot holding v.
func NewReference(v Value) *Reference {
	if v == nil {
		v = Nil
	}
	return &Reference{Value: v, IsMutable: true}
}

// NewImmutableReference returns a read-only slot holding v.
func NewImmutableReference(v Value) *Reference {
	if v == nil {
		v = Nil
	}
	return &Reference{Value: v}
}

// Set stores v if the slot is mutable.
func (r *Reference) Set(v Value) error {
	if !r.IsMutable {
		return faultf(ErrImmutable, "cannot store %s", v.Kind())
	}
	r.Value = v
	return nil
}

// Undefined is returned by name resolution when nothing matches.
var Undefined = NewImmutableReference(Nil)
