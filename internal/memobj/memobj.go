// Package memobj implements the memory object model: per-object
// classification flags, field limits, and the field-sensitivity
// transition the solver drives during field collapse.
package memobj

import (
	"github.com/bits-and-blooms/bitset"

	"github.com/go-pta/pta/internal/fieldlayout"
	"github.com/go-pta/pta/internal/irtype"
)

// Flag is the union of object classification bits.
type Flag uint32

const (
	FUNCTION Flag = 1 << iota
	GLOBAL
	STATIC
	STACK
	HEAP
	VAR_STRUCT
	VAR_ARRAY
	CONST_STRUCT
	CONST_ARRAY
	CONST_GLOBAL
	CONST_DATA
	HAS_PTR
)

func (f Flag) Has(bit Flag) bool { return f&bit != 0 }

// Object is one abstract memory object.
type Object struct {
	ID    uint32 // the object's symtab id, also its index into Model's bitset
	Type  irtype.Type
	Flags Flag

	// configuredMaxFieldOffset is the field limit this object was
	// created with; restored by SetFieldSensitive.
	configuredMaxFieldOffset uint32
	// maxFieldOffsetLimit is the *current* limit. Zero means
	// field-insensitive (invariant: is_field_insensitive ⇔ limit==0).
	maxFieldOffsetLimit uint32

	NumElements uint32

	// TypeWarnings counts bitcasts observed after the first on a heap
	// object: the most recent cast wins, but every cast after the
	// first is a warning.
	TypeWarnings int
}

// MaxFieldOffsetLimit returns the object's current field limit (0 means
// field-insensitive).
func (o *Object) MaxFieldOffsetLimit() uint32 { return o.maxFieldOffsetLimit }

// IsFieldInsensitive reports whether the object's fields are merged
// into a single representative.
func (o *Object) IsFieldInsensitive() bool { return o.maxFieldOffsetLimit == 0 }

func (o *Object) IsFunction() bool    { return o.Flags.Has(FUNCTION) }
func (o *Object) IsGlobal() bool      { return o.Flags.Has(GLOBAL) }
func (o *Object) IsStatic() bool      { return o.Flags.Has(STATIC) }
func (o *Object) IsStack() bool       { return o.Flags.Has(STACK) }
func (o *Object) IsHeap() bool        { return o.Flags.Has(HEAP) }
func (o *Object) IsVarStruct() bool   { return o.Flags.Has(VAR_STRUCT) }
func (o *Object) IsVarArray() bool    { return o.Flags.Has(VAR_ARRAY) }
func (o *Object) IsConstStruct() bool { return o.Flags.Has(CONST_STRUCT) }
func (o *Object) IsConstArray() bool  { return o.Flags.Has(CONST_ARRAY) }
func (o *Object) IsConstGlobal() bool { return o.Flags.Has(CONST_GLOBAL) }
func (o *Object) IsConstData() bool   { return o.Flags.Has(CONST_DATA) }

// HasPtrObj reports whether this object may hold a pointer: true if any
// flattened field is pointer-typed, and conservatively true for
// heap/static objects regardless of declared type.
func (o *Object) HasPtrObj(fm *fieldlayout.Model) bool {
	if o.Flags.Has(HAS_PTR) || o.IsHeap() || o.IsStatic() {
		return true
	}
	st := fm.Flatten(o.Type)
	for _, ft := range st.FlattenedFieldTypes {
		if irtype.IsPointerLike(ft) {
			return true
		}
	}
	return false
}

// RecordCast applies the most-recent-bitcast-wins heuristic to a heap
// object whose true type is only known after allocation: it overwrites
// Type and bumps TypeWarnings for every cast beyond the first.
func (o *Object) RecordCast(t irtype.Type) {
	if o.Type != nil {
		o.TypeWarnings++
	}
	o.Type = t
}

// Model owns every object created during IR load plus the
// field-insensitivity marker table, indexed by each object's symtab id:
// those ids are small and bounded by the symbol table's size, which is
// exactly the shape a word-addressed bitset is for.
type Model struct {
	objects  []*Object       // creation order, for bulk iteration (Objects())
	byID     map[uint32]*Object // keyed by the object's real symtab id (Object())
	insensitive *bitset.BitSet
	fm          *fieldlayout.Model
}

func NewModel(fm *fieldlayout.Model) *Model {
	return &Model{fm: fm, insensitive: bitset.New(64), byID: make(map[uint32]*Object)}
}

// NewObject registers a new object at the given symtab id. The id
// space is shared with values and dummy nodes, so object ids are not
// necessarily contiguous from zero or in creation order.
func (m *Model) NewObject(id uint32, t irtype.Type, flags Flag, maxFieldOffset, numElements uint32) *Object {
	o := &Object{
		ID:                       id,
		Type:                     t,
		Flags:                    flags,
		configuredMaxFieldOffset: maxFieldOffset,
		maxFieldOffsetLimit:      maxFieldOffset,
		NumElements:              numElements,
	}
	m.objects = append(m.objects, o)
	m.byID[id] = o
	return o
}

func (m *Model) Objects() []*Object { return m.objects }

// Object looks up the object registered at symtab id, or nil if none
// was (by its real id, not by creation-order ordinal).
func (m *Model) Object(id uint32) *Object { return m.byID[id] }

// SetFieldInsensitive is idempotent: it sets the current limit to 0 and
// marks the object in the dense table.
func (m *Model) SetFieldInsensitive(o *Object) {
	o.maxFieldOffsetLimit = 0
	m.insensitive.Set(uint(o.ID))
}

// SetFieldSensitive restores the object's configured field limit. The
// sensitive-to-insensitive transition is monotonic only by caller
// discipline; this method itself performs no monotonicity check.
func (m *Model) SetFieldSensitive(o *Object) {
	o.maxFieldOffsetLimit = o.configuredMaxFieldOffset
	m.insensitive.Clear(uint(o.ID))
}

// IsFieldInsensitive queries the dense marker table directly, useful
// for bulk iteration without dereferencing every *Object.
func (m *Model) IsFieldInsensitive(id uint32) bool {
	return m.insensitive.Test(uint(id))
}
