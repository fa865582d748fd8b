package fieldlayout_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-pta/pta/internal/apperr"
	"github.com/go-pta/pta/internal/fieldlayout"
	"github.com/go-pta/pta/internal/irtype"
)

func scalar(name string) *irtype.ScalarType { return &irtype.ScalarType{Name: name} }

func TestFlattenScalarIsOneField(t *testing.T) {
	m := fieldlayout.NewModel()
	st := m.Flatten(scalar("int"))
	assert.Equal(t, 1, st.NumFlattenFields)
}

func TestFlattenNestedStruct(t *testing.T) {
	m := fieldlayout.NewModel()
	inner := &irtype.StructType{
		Name:   "Inner",
		Fields: []irtype.Field{{Name: "x", Type: scalar("int")}, {Name: "y", Type: scalar("int")}},
	}
	outer := &irtype.StructType{
		Name: "Outer",
		Fields: []irtype.Field{
			{Name: "a", Type: scalar("int")},
			{Name: "b", Type: inner},
			{Name: "c", Type: scalar("int")},
		},
	}
	st := m.Flatten(outer)
	// a(1) + inner(2) + c(1) = 4 flattened fields.
	assert.Equal(t, 4, st.NumFlattenFields)
	require.Len(t, st.FieldIndexVector, 3)
	assert.Equal(t, 0, st.FieldIndexVector[0]) // a at flattened index 0
	assert.Equal(t, 1, st.FieldIndexVector[1]) // b (inner) starts at flattened index 1
	assert.Equal(t, 3, st.FieldIndexVector[2]) // c at flattened index 3
}

func TestFlattenEmptyStructOccupiesOneSlot(t *testing.T) {
	m := fieldlayout.NewModel()
	st := m.Flatten(&irtype.StructType{Name: "Empty"})
	assert.Equal(t, 1, st.NumFlattenFields)
}

func TestFlattenArrayOfScalars(t *testing.T) {
	m := fieldlayout.NewModel()
	arr := &irtype.ArrayType{Len: 3, Elem: scalar("int"), ByteStride: 8}
	st := m.Flatten(arr)
	assert.Equal(t, 3, st.NumFlattenElements)
	assert.Equal(t, uint32(8), st.Stride)
	require.Len(t, st.ElementIndexVector, 3)
	assert.Equal(t, []int{0, 1, 2}, st.ElementIndexVector)
}

func TestFlattenIsCachedPerType(t *testing.T) {
	m := fieldlayout.NewModel()
	typ := scalar("int")
	st1 := m.Flatten(typ)
	st2 := m.Flatten(typ)
	assert.Same(t, st1, st2)
}

func TestFlattenedFieldTypeOutOfRangeFails(t *testing.T) {
	m := fieldlayout.NewModel()
	_, err := m.FlattenedFieldType(scalar("int"), 5)
	require.Error(t, err)
	var ae *apperr.Error
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, apperr.FieldOutOfRange, ae.Kind)
}

func TestFlattenedElementTypeOutOfRangeFails(t *testing.T) {
	m := fieldlayout.NewModel()
	arr := &irtype.ArrayType{Len: 2, Elem: scalar("int")}
	_, err := m.FlattenedElementType(arr, 10)
	require.Error(t, err)
	var ae *apperr.Error
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, apperr.FieldOutOfRange, ae.Kind)
}

func TestModulusOffsetReflectsNegativeAndWraps(t *testing.T) {
	assert.Equal(t, uint32(0), fieldlayout.ModulusOffset(0, 7))
	assert.Equal(t, uint32(3), fieldlayout.ModulusOffset(8, 3))
	assert.Equal(t, uint32(3), fieldlayout.ModulusOffset(8, -3))
	assert.Equal(t, uint32(1), fieldlayout.ModulusOffset(4, 9))
}
