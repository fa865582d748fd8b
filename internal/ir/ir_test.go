package ir_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-pta/pta/internal/apperr"
	"github.com/go-pta/pta/internal/fieldlayout"
	"github.com/go-pta/pta/internal/ir"
	"github.com/go-pta/pta/internal/memobj"
	"github.com/go-pta/pta/internal/symtab"
)

func newTable(maxFieldLimit uint32) *symtab.Table {
	fm := fieldlayout.NewModel()
	mm := memobj.NewModel(fm)
	return symtab.NewTable(fm, mm, maxFieldLimit)
}

func TestAddEdgeIdempotent(t *testing.T) {
	st := newTable(8)
	g := ir.NewGraph(st)

	v1, _ := st.InternValue("v1", 1, false)
	v2, _ := st.InternValue("v2", 1, false)

	_, err := g.AddCopy(v1, v2)
	require.NoError(t, err)
	_, err = g.AddCopy(v1, v2)
	require.NoError(t, err)

	assert.Equal(t, 1, g.NumEdges())
	assert.Len(t, g.GetOutgoing(v1, ir.Copy), 1)
	assert.Len(t, g.GetIncoming(v2, ir.Copy), 1)
}

func TestAddEdgeDistinctLabelsNotCoalesced(t *testing.T) {
	st := newTable(8)
	g := ir.NewGraph(st)

	actual, _ := st.InternValue("a", 1, false)
	formal, _ := st.InternValue("f", 1, false)

	_, err := g.AddCall(actual, formal, "cs1")
	require.NoError(t, err)
	_, err = g.AddCall(actual, formal, "cs2")
	require.NoError(t, err)

	assert.Equal(t, 2, g.NumEdges())
	assert.Len(t, g.GetOutgoing(actual, ir.Call), 2)
}

func TestBlackHoleEdgeRejectedByDefault(t *testing.T) {
	st := newTable(8)
	g := ir.NewGraph(st)

	v1, _ := st.InternValue("v1", 1, false)
	_, err := g.AddCopy(v1, symtab.BlackHole)
	require.Error(t, err)

	var ae *apperr.Error
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, apperr.InvalidEdge, ae.Kind)
}

func TestBlackHoleEdgeAllowedWhenOptedIn(t *testing.T) {
	st := newTable(8)
	g := ir.NewGraph(st)
	g.AllowBlackHoleEdges = true

	v1, _ := st.InternValue("v1", 1, false)
	_, err := g.AddCopy(v1, symtab.BlackHole)
	require.NoError(t, err)
}

func TestRegisterRetAndVarargNodes(t *testing.T) {
	st := newTable(8)
	g := ir.NewGraph(st)

	ret := st.InternReturn("f")
	va := st.InternVararg("f")
	g.RegisterRetNode(ret, "f")
	g.RegisterVarargNode(va, "f")

	assert.Equal(t, ir.KindRet, g.Node(ret).Kind)
	assert.Equal(t, ir.KindVararg, g.Node(va).Kind)
	assert.Equal(t, "f", g.Node(ret).Value)
}

func TestGepObjNodeDeterministic(t *testing.T) {
	st := newTable(8)
	g := ir.NewGraph(st)

	base := st.InternObject("s", nil, memobj.VAR_STRUCT|memobj.HAS_PTR, 1)

	id1 := g.GetGepObjNode(base, ir.AccessPath{FieldIndex: 2}, 8)
	id2 := g.GetGepObjNode(base, ir.AccessPath{FieldIndex: 2}, 8)
	assert.Equal(t, id1, id2)

	id3 := g.GetGepObjNode(base, ir.AccessPath{FieldIndex: 3}, 8)
	assert.NotEqual(t, id1, id3)
}

func TestFIObjNodeCached(t *testing.T) {
	st := newTable(8)
	g := ir.NewGraph(st)

	base := st.InternObject("s", nil, memobj.VAR_STRUCT|memobj.HAS_PTR, 1)

	fi1 := g.GetFIObjNode(base, nil)
	fi2 := g.GetFIObjNode(base, nil)
	assert.Equal(t, fi1, fi2)
	assert.NotEqual(t, base, fi1)
}
