// Package fieldlayout implements the field model: it flattens
// aggregate types into a flat field sequence once per type and answers
// access-path/modulus-offset queries against that flattening.
package fieldlayout

import (
	"fmt"

	"github.com/go-pta/pta/internal/apperr"
	"github.com/go-pta/pta/internal/irtype"
)

// StInfo is the flattened layout of one aggregate type, computed once
// and cached.
type StInfo struct {
	Type irtype.Type

	// FlattenedFieldTypes holds, for every flattened field (recursively
	// including nested structs/arrays), its scalar leaf type.
	FlattenedFieldTypes []irtype.Type
	// FlattenedElementTypes is analogous for array element expansion;
	// for a non-array type it is empty.
	FlattenedElementTypes []irtype.Type
	// FieldIndexVector[i] is the flattened-index of declared struct
	// field i (its first flattened slot).
	FieldIndexVector []int
	// ElementIndexVector[i] is the flattened-index of array element i's
	// first flattened slot (only meaningful for Array types).
	ElementIndexVector []int
	// Stride is sizeof(element type) in bytes, for arrays only.
	Stride uint32

	NumFlattenFields   int
	NumFlattenElements int
}

// Model flattens and caches StInfo per type. Not safe for concurrent
// mutation from multiple goroutines; all solver state is
// single-threaded.
type Model struct {
	cache map[irtype.Type]*StInfo
}

func NewModel() *Model {
	return &Model{cache: make(map[irtype.Type]*StInfo)}
}

// Flatten returns the (cached) StInfo for t, computing it on first use.
func (m *Model) Flatten(t irtype.Type) *StInfo {
	if st, ok := m.cache[t]; ok {
		return st
	}
	st := m.compute(t)
	m.cache[t] = st
	return st
}

func (m *Model) compute(t irtype.Type) *StInfo {
	st := &StInfo{Type: t}
	switch t := t.(type) {
	case nil:
		// Uninteresting/invalid type: a single opaque flattened field.
		st.FlattenedFieldTypes = []irtype.Type{nil}
		st.NumFlattenFields = 1

	case *irtype.StructType:
		for _, f := range t.Fields {
			st.FieldIndexVector = append(st.FieldIndexVector, len(st.FlattenedFieldTypes))
			switch f.Type.(type) {
			case *irtype.StructType, *irtype.ArrayType:
				inner := m.Flatten(f.Type)
				st.FlattenedFieldTypes = append(st.FlattenedFieldTypes, inner.FlattenedFieldTypes...)
			default:
				st.FlattenedFieldTypes = append(st.FlattenedFieldTypes, f.Type)
			}
		}
		st.NumFlattenFields = len(st.FlattenedFieldTypes)
		if st.NumFlattenFields == 0 {
			// Empty struct: still occupies one slot so it is addressable.
			st.FlattenedFieldTypes = []irtype.Type{nil}
			st.NumFlattenFields = 1
		}

	case *irtype.ArrayType:
		// The array contributes a single field entry for its element
		// type, then inherits the inner flattening.
		var innerFlat, innerElems []irtype.Type
		switch t.Elem.(type) {
		case *irtype.StructType:
			inner := m.Flatten(t.Elem)
			innerFlat = inner.FlattenedFieldTypes
			innerElems = inner.FlattenedFieldTypes
		case *irtype.ArrayType:
			inner := m.Flatten(t.Elem)
			innerFlat = inner.FlattenedFieldTypes
			innerElems = inner.FlattenedElementTypes
		default:
			innerFlat = []irtype.Type{t.Elem}
			innerElems = innerFlat
		}
		innerNumElems := len(innerElems)
		st.FlattenedFieldTypes = innerFlat
		st.NumFlattenFields = len(innerFlat)
		st.Stride = t.ByteStride

		n := t.Len
		if n < 0 {
			n = 0
		}
		st.NumFlattenElements = int(n) * innerNumElems
		for i := int64(0); i < n; i++ {
			st.ElementIndexVector = append(st.ElementIndexVector, int(i)*innerNumElems)
			st.FlattenedElementTypes = append(st.FlattenedElementTypes, innerElems...)
		}

	default:
		// Scalar, Pointer, or any front-end type we don't special-case:
		// one flattened entry.
		st.FlattenedFieldTypes = []irtype.Type{t}
		st.NumFlattenFields = 1
	}
	return st
}

func max1(n int) int {
	if n <= 0 {
		return 1
	}
	return n
}

// FlattenedFieldType returns the scalar type of flattened field k of t,
// failing with FieldOutOfRange if k is out of bounds.
func (m *Model) FlattenedFieldType(t irtype.Type, k int) (irtype.Type, error) {
	st := m.Flatten(t)
	if k < 0 || k >= len(st.FlattenedFieldTypes) {
		return nil, apperr.New(apperr.FieldOutOfRange, "fieldlayout.FlattenedFieldType",
			fmt.Sprintf("field %d out of range [0,%d)", k, len(st.FlattenedFieldTypes)))
	}
	return st.FlattenedFieldTypes[k], nil
}

// FlattenedElementType returns the scalar type of flattened element k
// of array type t, failing with FieldOutOfRange if k is out of bounds.
func (m *Model) FlattenedElementType(t irtype.Type, k int) (irtype.Type, error) {
	st := m.Flatten(t)
	if k < 0 || k >= st.NumFlattenElements {
		return nil, apperr.New(apperr.FieldOutOfRange, "fieldlayout.FlattenedElementType",
			fmt.Sprintf("element %d out of range [0,%d)", k, st.NumFlattenElements))
	}
	return st.FlattenedElementTypes[k], nil
}

// NumFlattenFields returns the flattened field count of t (1 for
// scalar/pointer types, the full recursive count for aggregates).
func (m *Model) NumFlattenFields(t irtype.Type) int {
	return m.Flatten(t).NumFlattenFields
}

// ModulusOffset projects an access path's accumulated constant field
// index into [0, limit): negative offsets are reflected to positive
// before the modulus, and a zero limit (fully field-insensitive
// object) always yields 0.
func ModulusOffset(limit uint32, fieldIdx int) uint32 {
	if limit == 0 {
		return 0
	}
	if fieldIdx < 0 {
		fieldIdx = -fieldIdx
	}
	return uint32(fieldIdx) % limit
}
