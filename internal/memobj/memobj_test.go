package memobj_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/go-pta/pta/internal/fieldlayout"
	"github.com/go-pta/pta/internal/irtype"
	"github.com/go-pta/pta/internal/memobj"
)

func TestHasPtrObjTrueForHeapAndStaticRegardlessOfType(t *testing.T) {
	fm := fieldlayout.NewModel()
	m := memobj.NewModel(fm)

	heap := m.NewObject(0, &irtype.ScalarType{Name: "int"}, memobj.HEAP, 1, 1)
	assert.True(t, heap.HasPtrObj(fm))

	static := m.NewObject(1, &irtype.ScalarType{Name: "int"}, memobj.STATIC, 1, 1)
	assert.True(t, static.HasPtrObj(fm))
}

func TestHasPtrObjFalseForPlainScalar(t *testing.T) {
	fm := fieldlayout.NewModel()
	m := memobj.NewModel(fm)
	o := m.NewObject(0, &irtype.ScalarType{Name: "int"}, memobj.STACK, 1, 1)
	assert.False(t, o.HasPtrObj(fm))
}

func TestHasPtrObjTrueWhenAnyFlattenedFieldIsPointer(t *testing.T) {
	fm := fieldlayout.NewModel()
	m := memobj.NewModel(fm)
	st := &irtype.StructType{Fields: []irtype.Field{
		{Name: "n", Type: &irtype.ScalarType{Name: "int"}},
		{Name: "p", Type: &irtype.PointerType{Elem: &irtype.ScalarType{Name: "int"}}},
	}}
	o := m.NewObject(0, st, memobj.STACK|memobj.VAR_STRUCT, 2, 1)
	assert.True(t, o.HasPtrObj(fm))
}

func TestFieldSensitivityTransitionIsMonotonicUnderCallerControl(t *testing.T) {
	fm := fieldlayout.NewModel()
	m := memobj.NewModel(fm)
	o := m.NewObject(0, nil, memobj.HAS_PTR, 8, 1)

	assert.False(t, o.IsFieldInsensitive())
	assert.False(t, m.IsFieldInsensitive(0))

	m.SetFieldInsensitive(o)
	assert.True(t, o.IsFieldInsensitive())
	assert.True(t, m.IsFieldInsensitive(0))
	assert.Equal(t, uint32(0), o.MaxFieldOffsetLimit())

	m.SetFieldSensitive(o)
	assert.False(t, o.IsFieldInsensitive())
	assert.False(t, m.IsFieldInsensitive(0))
	assert.Equal(t, uint32(8), o.MaxFieldOffsetLimit())
}

func TestRecordCastWarnsOnlyAfterFirstAssignment(t *testing.T) {
	fm := fieldlayout.NewModel()
	m := memobj.NewModel(fm)
	o := m.NewObject(0, nil, memobj.HEAP, 1, 1)

	o.RecordCast(&irtype.ScalarType{Name: "int"})
	assert.Equal(t, 0, o.TypeWarnings)

	o.RecordCast(&irtype.ScalarType{Name: "float"})
	assert.Equal(t, 1, o.TypeWarnings)
	assert.Equal(t, "float", o.Type.String())

	o.RecordCast(&irtype.ScalarType{Name: "char"})
	assert.Equal(t, 2, o.TypeWarnings)
}

func TestModelObjectLookupByID(t *testing.T) {
	fm := fieldlayout.NewModel()
	m := memobj.NewModel(fm)
	o := m.NewObject(0, nil, memobj.HAS_PTR, 1, 1)

	assert.Same(t, o, m.Object(0))
	assert.Nil(t, m.Object(99))
}
