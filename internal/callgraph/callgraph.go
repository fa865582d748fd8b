// Package callgraph implements the call-graph bridge: given the
// current points-to set of an indirect call-site's function-pointer
// node, it materializes caller-to-callee copy edges for newly
// discovered callees.
package callgraph

import (
	"fmt"
	"io"

	"github.com/go-pta/pta/internal/cgraph"
	"github.com/go-pta/pta/internal/ir"
	"github.com/go-pta/pta/internal/ptset"
	"github.com/go-pta/pta/internal/symtab"
)

// Id aliases the shared identifier type.
type Id = ir.Id

// FuncInfo describes a call target's formal interface: formal
// parameter ids, its formal-return id (if any), and its vararg sink
// (if it is variadic) — the shape ConnectCallerToCallee needs to zip
// actuals against formals.
type FuncInfo struct {
	Obj        Id
	Formals    []Id
	FormalRet  Id
	HasRet     bool
	Vararg     Id
	IsVararg   bool
	// PointerFormal[i] marks whether Formals[i] is pointer-typed; used
	// to decide whether a mismatched actual gets the configured
	// blackhole treatment rather than a direct copy.
	PointerFormal []bool
}

// CallSite is one (possibly indirect) call site.
type CallSite struct {
	ID        any
	FuncPtr   Id // node whose points-to set names candidate function objects; zero value for direct calls
	Actuals   []Id
	PointerActual []bool
	ActualRet Id
	HasActualRet bool

	known map[Id]bool // callee object ids already connected
	order []Id         // callee object ids in discovery order
}

// Bridge owns the registered function interfaces and call sites, and
// wires callers to discovered callees in a constraint graph.
type Bridge struct {
	st    *symtab.Table
	cg    *cgraph.Graph
	funcs map[Id]FuncInfo
	sites []*CallSite

	// HandleBlackhole mirrors Config.HandleBlackhole: when true, a
	// mismatched int/pointer argument pair gets an Addr edge from the
	// black-hole object into the formal instead of being silently
	// skipped.
	HandleBlackhole bool

	// Log, when non-nil, receives a warning line for argument-count
	// mismatches against non-variadic callees.
	Log io.Writer
}

// NewBridge constructs a Bridge writing new edges into cg.
func NewBridge(st *symtab.Table, cg *cgraph.Graph) *Bridge {
	return &Bridge{st: st, cg: cg, funcs: make(map[Id]FuncInfo)}
}

// RegisterFunction records the formal interface of a function object,
// so it can later be connected as a call target.
func (b *Bridge) RegisterFunction(info FuncInfo) { b.funcs[info.Obj] = info }

// AddCallSite registers a (possibly indirect) call site. For direct
// calls, funcPtr may be the zero Id and the caller should instead call
// ConnectCallerToCallee directly with the known target.
func (b *Bridge) AddCallSite(id any, funcPtr Id, actuals []Id, pointerActual []bool, actualRet Id, hasActualRet bool) *CallSite {
	cs := &CallSite{
		ID: id, FuncPtr: funcPtr, Actuals: actuals, PointerActual: pointerActual,
		ActualRet: actualRet, HasActualRet: hasActualRet, known: make(map[Id]bool),
	}
	b.sites = append(b.sites, cs)
	return cs
}

// Edge is a newly materialized caller/callee copy edge, reported so
// the solver can re-enqueue its source.
type Edge struct {
	Src, Dst Id
}

// Update scans every registered indirect call-site's points-to set
// (supplied by pts, a lookup into the solver's current state, so a
// function pointer merged into an SCC still answers through its rep)
// for newly discovered function-object callees, connects each one, and
// returns every new copy edge inserted.
func (b *Bridge) Update(pts func(Id) ptset.Set) []Edge {
	var newEdges []Edge
	for _, cs := range b.sites {
		set := pts(cs.FuncPtr)
		if set == nil {
			continue
		}
		var callees []Id
		set.ForEach(func(id uint32) {
			oid := Id(id)
			if cs.known[oid] {
				return
			}
			obj, err := b.st.ObjOf(oid)
			if err != nil || obj == nil || !obj.IsFunction() {
				return
			}
			callees = append(callees, oid)
		})
		for _, callee := range callees {
			cs.known[callee] = true
			cs.order = append(cs.order, callee)
			info, ok := b.funcs[callee]
			if !ok {
				continue
			}
			newEdges = append(newEdges, b.ConnectCallerToCallee(cs, info)...)
		}
	}
	return newEdges
}

// Callees returns the function objects currently known to call-site
// id, in discovery order. ok is false if no registered call-site has
// this id.
func (b *Bridge) Callees(id any) ([]Id, bool) {
	for _, cs := range b.sites {
		if cs.ID == id {
			out := append([]Id(nil), cs.order...)
			return out, true
		}
	}
	return nil, false
}

// ConnectCallerToCallee wires cs's actuals/return into callee's
// formals/formal-return.
func (b *Bridge) ConnectCallerToCallee(cs *CallSite, callee FuncInfo) []Edge {
	var out []Edge

	if callee.HasRet && cs.HasActualRet {
		e := b.cg.AddCopyEdge(callee.FormalRet, cs.ActualRet)
		out = append(out, Edge{Src: e.Src, Dst: e.Dst})
	}

	n := len(cs.Actuals)
	if len(callee.Formals) < n {
		n = len(callee.Formals)
	}
	for i := 0; i < n; i++ {
		actual, formal := cs.Actuals[i], callee.Formals[i]
		actualIsPtr := i < len(cs.PointerActual) && cs.PointerActual[i]
		formalIsPtr := i < len(callee.PointerFormal) && callee.PointerFormal[i]
		switch {
		case actualIsPtr && formalIsPtr:
			e := b.cg.AddCopyEdge(actual, formal)
			out = append(out, Edge{Src: e.Src, Dst: e.Dst})
		case b.HandleBlackhole && formalIsPtr:
			e := b.cg.AddAddrEdge(symtab.BlackHole, formal)
			out = append(out, Edge{Src: e.Src, Dst: e.Dst})
		}
	}

	// Trailing actuals beyond the formal list: route to the vararg
	// sink if the callee accepts one; otherwise warn and stop, never
	// crash.
	if len(cs.Actuals) > len(callee.Formals) {
		if callee.IsVararg {
			for i := len(callee.Formals); i < len(cs.Actuals); i++ {
				if i < len(cs.PointerActual) && cs.PointerActual[i] {
					e := b.cg.AddCopyEdge(cs.Actuals[i], callee.Vararg)
					out = append(out, Edge{Src: e.Src, Dst: e.Dst})
				}
			}
		} else if b.Log != nil {
			fmt.Fprintf(b.Log, "call site %v: dropping %d trailing actuals; callee %d is not variadic\n",
				cs.ID, len(cs.Actuals)-len(callee.Formals), callee.Obj)
		}
	}

	return out
}
