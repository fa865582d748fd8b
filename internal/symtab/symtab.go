// Package symtab implements the symbol table: it interns front-end IR
// values/objects into stable process-wide Ids, allocates the four
// reserved low ids, and answers value->id and id->object queries.
package symtab

import (
	"fmt"

	"github.com/go-pta/pta/internal/apperr"
	"github.com/go-pta/pta/internal/fieldlayout"
	"github.com/go-pta/pta/internal/irtype"
	"github.com/go-pta/pta/internal/memobj"
)

// Id is an unsigned integer, unique process-wide, allocated by this
// package.
type Id uint32

// Reserved low ids, allocated before any IR-backed symbol. NullPtr and
// BlkPtr are values; BlackHole and ConstantObj are objects.
const (
	NullPtr Id = iota
	BlkPtr
	BlackHole
	ConstantObj
	firstRealId
)

// kind classifies what an Id denotes, so SymOf/ObjOf can reject a
// mismatched id in O(1). A dense per-id array stands in for literal
// numeric id windows: lookups stay constant-time, and no range sizes
// need guessing before IR load completes.
type kind uint8

const (
	kindNone  kind = iota // unallocated / out of range
	kindValue             // intern_value / GepVal-style value block
	kindObject
	kindDummyValue
	kindDummyObject
)

// symRec is the per-id bookkeeping entry.
type symRec struct {
	kind   kind
	value  any // original front-end IR value, for value-kind ids
	obj    *memobj.Object
	blockLen uint32 // contiguous ids reserved starting at this id
	owner  Id       // for padding slots (kind == kindNone): the block's start id
}

// Table is an owned, explicit symbol table context: no process-wide
// singleton, every operation takes the *Table it works on.
type Table struct {
	MaxFieldLimit uint32 // per-object upper bound on field-object creation; 0 = fully field-insensitive

	// FirstFieldEqBase selects whether field 0 of an object shares the
	// base object's own id (true) or gets a distinct field id one past
	// it (false). Must be set before the first InternObject call; the
	// block layout it selects is baked into every allocated id.
	FirstFieldEqBase bool

	// ModelConstants selects whether constant data gets a distinct
	// object per interned value (true) or is folded into the single
	// reserved ConstantObj (false). Must be set before the first
	// InternObject call.
	ModelConstants bool

	fm   *fieldlayout.Model
	mm   *memobj.Model
	recs []symRec

	valSym    map[any]Id
	objSym    map[any]Id
	returnSym map[any]Id
	varargSym map[any]Id
}

// NewTable constructs a Table and allocates the four reserved ids.
func NewTable(fm *fieldlayout.Model, mm *memobj.Model, maxFieldLimit uint32) *Table {
	t := &Table{
		MaxFieldLimit: maxFieldLimit,
		fm:            fm,
		mm:            mm,
		valSym:        make(map[any]Id),
		objSym:        make(map[any]Id),
		returnSym:     make(map[any]Id),
		varargSym:     make(map[any]Id),
	}
	// NullPtr, BlkPtr: value-kind reserved ids, no backing object.
	t.recs = append(t.recs, symRec{kind: kindValue}, symRec{kind: kindValue})
	// BlackHole, ConstantObj: object-kind, conservatively pointer-bearing
	// so any reference absorbed into them poisons queries soundly. Both
	// occupy a single reserved id with no field block, so they are
	// field-insensitive: a gep over one must not mint ids past it.
	blk := mm.NewObject(uint32(BlackHole), nil, memobj.HAS_PTR, 0, 1)
	cst := mm.NewObject(uint32(ConstantObj), nil, memobj.HAS_PTR|memobj.CONST_DATA, 0, 1)
	t.recs = append(t.recs, symRec{kind: kindObject, obj: blk, blockLen: 1})
	t.recs = append(t.recs, symRec{kind: kindObject, obj: cst, blockLen: 1})
	return t
}

func (t *Table) nextId() Id { return Id(len(t.recs)) }

func (t *Table) allocBlock(k kind, width uint32) Id {
	if width == 0 {
		width = 1
	}
	id := t.nextId()
	t.recs = append(t.recs, symRec{kind: k, blockLen: width})
	for i := uint32(1); i < width; i++ {
		t.recs = append(t.recs, symRec{kind: kindNone, owner: id})
	}
	return id
}

// BaseOf returns the object id that owns field id: id itself if id is
// already a block-start (a base object, or any value/dummy node), or
// the block-start id if id is one of a multi-field object's field
// slots. Field ids are a deterministic offset from their base; this is
// the reverse lookup field collapse needs to find that base.
func (t *Table) BaseOf(id Id) Id {
	if int(id) >= len(t.recs) {
		return id
	}
	if t.recs[id].kind == kindNone {
		return t.recs[id].owner
	}
	return id
}

// InternValue returns the unique value-id for v, creating it on first
// use (idempotent). width is the flattened field count of v's type (1
// for scalars/pointers); isNil marks v as a compile-time-null constant,
// which must instead be referred to via NullPtr — attempting to intern
// one as a regular value fails with InvalidSymbol.
func (t *Table) InternValue(v any, width uint32, isNil bool) (Id, error) {
	if isNil {
		return 0, apperr.New(apperr.InvalidSymbol, "symtab.InternValue",
			"compile-time-null constant must use NullPtr, not intern_value")
	}
	if id, ok := t.valSym[v]; ok {
		return id, nil
	}
	id := t.allocBlock(kindValue, width)
	t.recs[id].value = v
	t.valSym[v] = id
	return id, nil
}

// InternObject returns the unique base-object id for v, creating both
// the id and its backing memory object on first use (idempotent). typ
// is the object's declared type, flags its memobj.Flag classification,
// and numElements its element count. Constant data folds into the
// reserved ConstantObj unless ModelConstants is set.
func (t *Table) InternObject(v any, typ irtype.Type, flags memobj.Flag, numElements uint32) Id {
	if !t.ModelConstants && flags.Has(memobj.CONST_DATA|memobj.CONST_GLOBAL|memobj.CONST_STRUCT|memobj.CONST_ARRAY) {
		return ConstantObj
	}
	if id, ok := t.objSym[v]; ok {
		return id
	}
	width := uint32(t.fm.NumFlattenFields(typ))
	limit := width
	if t.MaxFieldLimit > 0 && limit > t.MaxFieldLimit {
		limit = t.MaxFieldLimit
	}
	if t.MaxFieldLimit == 0 {
		limit = 0 // fully field-insensitive per Config contract
	}
	slots := width
	if !t.FirstFieldEqBase {
		// Field ids live one past the base, so the base id itself stays
		// distinct from every field.
		slots = width + 1
	}
	id := t.allocBlock(kindObject, slots)
	obj := t.mm.NewObject(uint32(id), typ, flags, limit, numElements)
	t.recs[id].obj = obj
	t.objSym[v] = id
	return id
}

// InternReturn returns the unique return-value id of function f,
// creating it on first use.
func (t *Table) InternReturn(f any) Id {
	if id, ok := t.returnSym[f]; ok {
		return id
	}
	id := t.allocBlock(kindValue, 1)
	t.returnSym[f] = id
	return id
}

// InternVararg returns the unique vararg-sink id of function f, creating
// it on first use.
func (t *Table) InternVararg(f any) Id {
	if id, ok := t.varargSym[f]; ok {
		return id
	}
	id := t.allocBlock(kindValue, 1)
	t.varargSym[f] = id
	return id
}

// CreateDummyObj allocates a synthetic object-id with no backing IR
// value, e.g. for external-function abstractions. Dummy objects occupy
// a single id and carry no field block, so they are created
// field-insensitive: a gep over one can never mint field ids outside
// the block.
func (t *Table) CreateDummyObj(typ irtype.Type) Id {
	id := t.allocBlock(kindDummyObject, 1)
	obj := t.mm.NewObject(uint32(id), typ, memobj.HAS_PTR, 0, 1)
	t.recs[id].obj = obj
	return id
}

// AllocateGepObjectId returns the stable id of field fieldIndex of
// base, dependent only on (base, fieldIndex) within the configured
// field limit. It performs no allocation: field ids are a
// deterministic function of the base object's block.
func (t *Table) AllocateGepObjectId(base Id, fieldIndex int, maxFieldLimit uint32) Id {
	off := fieldlayout.ModulusOffset(maxFieldLimit, fieldIndex)
	if t.FirstFieldEqBase {
		return base + Id(off)
	}
	return base + 1 + Id(off)
}

// ObjectBlockLen returns the number of contiguous ids reserved for
// object base: its flattened field count, plus one slot for the base
// itself unless FirstFieldEqBase is set. The count is not capped at
// MaxFieldLimit.
func (t *Table) ObjectBlockLen(base Id) uint32 {
	if int(base) >= len(t.recs) {
		return 0
	}
	return t.recs[base].blockLen
}

// SymOf returns the front-end value that created id, failing with
// InvalidSymbol if id is not a value-kind id or has no associated
// value (a dummy node).
func (t *Table) SymOf(id Id) (any, error) {
	if int(id) >= len(t.recs) {
		return nil, apperr.New(apperr.InvalidSymbol, "symtab.SymOf", fmt.Sprintf("id %d out of range", id))
	}
	r := t.recs[id]
	if r.kind != kindValue || r.value == nil {
		return nil, apperr.New(apperr.InvalidSymbol, "symtab.SymOf", fmt.Sprintf("id %d has no associated value", id))
	}
	return r.value, nil
}

// ObjOf returns the memory object backing id, failing with
// InvalidSymbol if id is not an object-kind id.
func (t *Table) ObjOf(id Id) (*memobj.Object, error) {
	if int(id) >= len(t.recs) {
		return nil, apperr.New(apperr.InvalidSymbol, "symtab.ObjOf", fmt.Sprintf("id %d out of range", id))
	}
	r := t.recs[id]
	if r.kind != kindObject && r.kind != kindDummyObject {
		return nil, apperr.New(apperr.InvalidSymbol, "symtab.ObjOf", fmt.Sprintf("id %d is not an object", id))
	}
	return r.obj, nil
}

func (t *Table) IsNull(id Id) bool         { return id == NullPtr }
func (t *Table) IsBlkPtr(id Id) bool       { return id == BlkPtr }
func (t *Table) IsBlackhole(id Id) bool    { return id == BlackHole }
func (t *Table) IsConstantObj(id Id) bool  { return id == ConstantObj }
func (t *Table) IsBlkOrConstObj(id Id) bool {
	return id == BlackHole || id == ConstantObj
}

// NumIds returns the total number of ids allocated so far (including
// padding slots of multi-id blocks), i.e. the exclusive upper bound of
// valid ids.
func (t *Table) NumIds() int { return len(t.recs) }
