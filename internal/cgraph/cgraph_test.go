package cgraph_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-pta/pta/internal/cgraph"
	"github.com/go-pta/pta/internal/fieldlayout"
	"github.com/go-pta/pta/internal/ir"
	"github.com/go-pta/pta/internal/memobj"
	"github.com/go-pta/pta/internal/symtab"
)

func newTable(limit uint32) *symtab.Table {
	fm := fieldlayout.NewModel()
	mm := memobj.NewModel(fm)
	return symtab.NewTable(fm, mm, limit)
}

func TestAddEdgeIdempotentAndRegistry(t *testing.T) {
	g := cgraph.NewGraph()
	e1 := g.AddCopyEdge(1, 2)
	e2 := g.AddCopyEdge(1, 2)
	assert.Same(t, e1, e2)
	assert.Len(t, g.Registry(cgraph.RegDirect), 1)

	g.AddAddrEdge(10, 2)
	assert.Len(t, g.Registry(cgraph.RegAddr), 1)
	assert.Len(t, g.Registry(cgraph.RegDirect), 1)
}

func TestRetargetDst(t *testing.T) {
	g := cgraph.NewGraph()
	e := g.AddCopyEdge(1, 2)
	g.RetargetDst(e, 3)

	assert.Empty(t, g.EdgesIn(2, cgraph.Copy))
	assert.Len(t, g.EdgesIn(3, cgraph.Copy), 1)
	assert.Len(t, g.EdgesOut(1, cgraph.Copy), 1)
}

func TestMoveInEdgesToRepDropsIntraSCCAndFlagsCriticalGep(t *testing.T) {
	g := cgraph.NewGraph()
	// external -> sub (survives, retargeted to rep)
	g.AddCopyEdge(100, 2)
	// rep -> sub with a non-zero-offset gep: intra-SCC, should be
	// dropped and flagged critical.
	g.AddNormalGepEdge(1, 2, ir.AccessPath{FieldIndex: 1}, nil)

	critical := g.MoveInEdgesToRep(2, 1)
	require.True(t, critical)
	assert.True(t, g.IsPWC(1))

	assert.Len(t, g.EdgesIn(1, cgraph.Copy), 1)
	assert.Equal(t, Id(100), g.EdgesIn(1, cgraph.Copy)[0].Src)
	assert.Empty(t, g.EdgesIn(2, cgraph.NormalGep))

	subset := g.SCCSubSet(1)
	assert.ElementsMatch(t, []Id{1, 2}, subset)
	assert.Equal(t, Id(1), g.SCCRep(2))
}

type Id = cgraph.Id

func TestMoveOutEdgesToRepNoCriticalOnZeroOffset(t *testing.T) {
	g := cgraph.NewGraph()
	g.AddNormalGepEdge(2, 1, ir.AccessPath{FieldIndex: 0}, nil)
	g.AddCopyEdge(2, 200)

	critical := g.MoveOutEdgesToRep(2, 1)
	assert.False(t, critical)
	assert.False(t, g.IsPWC(1))
	assert.Len(t, g.EdgesOut(1, cgraph.Copy), 1)
}

func TestFromIRProjection(t *testing.T) {
	st := newTable(8)
	ig := ir.NewGraph(st)

	o1 := st.InternObject("o1", nil, memobj.HAS_PTR, 1)
	v1, _ := st.InternValue("v1", 1, false)
	v2, _ := st.InternValue("v2", 1, false)

	_, err := ig.AddAddr(o1, v1)
	require.NoError(t, err)
	_, err = ig.AddCopy(v1, v2)
	require.NoError(t, err)
	_, err = ig.AddPhi(v1, v2) // projects to Copy, coalesces with the AddCopy above
	require.NoError(t, err)

	cg := cgraph.FromIR(ig)
	assert.Len(t, cg.EdgesOut(o1, cgraph.Addr), 1)
	assert.Len(t, cg.EdgesOut(v1, cgraph.Copy), 1)
}
