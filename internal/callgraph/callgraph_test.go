package callgraph_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-pta/pta/internal/callgraph"
	"github.com/go-pta/pta/internal/cgraph"
	"github.com/go-pta/pta/internal/fieldlayout"
	"github.com/go-pta/pta/internal/memobj"
	"github.com/go-pta/pta/internal/ptset"
	"github.com/go-pta/pta/internal/symtab"
)

func setup(t *testing.T) (*symtab.Table, *cgraph.Graph) {
	t.Helper()
	fm := fieldlayout.NewModel()
	mm := memobj.NewModel(fm)
	st := symtab.NewTable(fm, mm, 8)
	return st, cgraph.NewGraph()
}

func TestUpdateConnectsNewlyDiscoveredCallee(t *testing.T) {
	st, cg := setup(t)
	b := callgraph.NewBridge(st, cg)

	f := st.InternObject("f", nil, memobj.FUNCTION, 1)
	formal, _ := st.InternValue("formal", 1, false)
	formalRet, _ := st.InternValue("formalRet", 1, false)
	b.RegisterFunction(callgraph.FuncInfo{
		Obj: f, Formals: []callgraph.Id{formal}, PointerFormal: []bool{true},
		FormalRet: formalRet, HasRet: true,
	})

	fp, _ := st.InternValue("fp", 1, false)
	actual, _ := st.InternValue("actual", 1, false)
	actualRet, _ := st.InternValue("actualRet", 1, false)
	cs := b.AddCallSite("cs1", fp, []callgraph.Id{actual}, []bool{true}, actualRet, true)
	_ = cs

	ptsMap := map[callgraph.Id]ptset.Set{
		fp: ptset.New(ptset.Mutable),
	}
	ptsMap[fp].Add(uint32(f))
	lookup := func(id callgraph.Id) ptset.Set { return ptsMap[id] }

	edges := b.Update(lookup)
	require.Len(t, edges, 2)
	assert.Len(t, cg.EdgesOut(actual, cgraph.Copy), 1)
	assert.Len(t, cg.EdgesOut(formalRet, cgraph.Copy), 1)

	// A second Update call with the same points-to set discovers
	// nothing new.
	edges = b.Update(lookup)
	assert.Empty(t, edges)
}

func TestConnectCallerToCalleeVarargSink(t *testing.T) {
	st, cg := setup(t)
	b := callgraph.NewBridge(st, cg)

	vararg := st.InternVararg("g")
	cs := &callgraph.CallSite{
		Actuals:       []callgraph.Id{1, 2},
		PointerActual: []bool{true, true},
	}
	callee := callgraph.FuncInfo{
		Vararg: vararg, IsVararg: true,
	}

	edges := b.ConnectCallerToCallee(cs, callee)
	require.Len(t, edges, 2)
	assert.Len(t, cg.EdgesOut(1, cgraph.Copy), 1)
	assert.Len(t, cg.EdgesOut(2, cgraph.Copy), 1)
}

func TestConnectCallerToCalleeWarnsOnExtraActualsToNonVararg(t *testing.T) {
	st, cg := setup(t)
	b := callgraph.NewBridge(st, cg)
	var log bytes.Buffer
	b.Log = &log

	formal, _ := st.InternValue("formal", 1, false)
	cs := &callgraph.CallSite{
		ID:            "cs1",
		Actuals:       []callgraph.Id{1, 2},
		PointerActual: []bool{true, true},
	}
	callee := callgraph.FuncInfo{
		Formals:       []callgraph.Id{formal},
		PointerFormal: []bool{true},
	}

	edges := b.ConnectCallerToCallee(cs, callee)
	require.Len(t, edges, 1)
	assert.Contains(t, log.String(), "not variadic")
	assert.Empty(t, cg.EdgesOut(2, cgraph.Copy))
}

func TestConnectCallerToCalleeBlackholeOnMismatch(t *testing.T) {
	st, cg := setup(t)
	b := callgraph.NewBridge(st, cg)
	b.HandleBlackhole = true

	formal, _ := st.InternValue("formal", 1, false)
	cs := &callgraph.CallSite{
		Actuals:       []callgraph.Id{99},
		PointerActual: []bool{false}, // actual is not pointer-typed
	}
	callee := callgraph.FuncInfo{
		Formals:       []callgraph.Id{formal},
		PointerFormal: []bool{true},
	}

	edges := b.ConnectCallerToCallee(cs, callee)
	require.Len(t, edges, 1)
	assert.Len(t, cg.EdgesIn(formal, cgraph.Addr), 1)
	assert.Equal(t, symtab.BlackHole, cg.EdgesIn(formal, cgraph.Addr)[0].Src)
}
