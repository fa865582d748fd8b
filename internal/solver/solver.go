// Package solver implements the Andersen-style inclusion solver: a
// worklist fixed point over the constraint graph using the points-to
// representation, with differential propagation, on-the-fly SCC
// detection and node merging, positive-weight-cycle field collapse,
// and on-the-fly call-graph update.
package solver

import (
	"fmt"
	"io"
	"sort"

	"github.com/go-pta/pta/internal/apperr"
	"github.com/go-pta/pta/internal/callgraph"
	"github.com/go-pta/pta/internal/cgraph"
	"github.com/go-pta/pta/internal/fieldlayout"
	"github.com/go-pta/pta/internal/ir"
	"github.com/go-pta/pta/internal/irtype"
	"github.com/go-pta/pta/internal/memobj"
	"github.com/go-pta/pta/internal/ptset"
	"github.com/go-pta/pta/internal/symtab"
)

// Id aliases the shared identifier type.
type Id = ir.Id

// Config enumerates every recognized solver option.
type Config struct {
	MaxFieldLimit      uint32
	PTSBacking         ptset.Backing
	DiffPropagation    bool
	MergePWC           bool
	FirstFieldEqBase   bool
	HandleBlackhole    bool
	ModelConstants     bool
	AndersenInputFile  string
	AndersenOutputFile string

	// StrictTypeCheck makes a NormalGep whose access path disagrees with
	// its base object's flattened field type a TypeMismatch error that
	// aborts the current Solve; when false (the default), such a gep is
	// silently dropped rather than adding a field object for it.
	StrictTypeCheck bool

	// Log, when non-nil, receives a trace line per processed node and
	// per closure pass.
	Log io.Writer
}

// DefaultConfig returns the stock configuration: differential
// propagation and PWC merging both on.
func DefaultConfig() Config {
	return Config{DiffPropagation: true, MergePWC: true}
}

// Stats is the per-run solver statistics block.
type Stats struct {
	NumProcessedAddr  int
	NumProcessedCopy  int
	NumProcessedGep   int
	NumProcessedLoad  int
	NumProcessedStore int
	NumSCCDetections  int
	NumFieldCollapses int

	MaxPointsToSetSize int

	totalPtsSize    int
	totalPtsSamples int
}

// AveragePointsToSetSize is purely observational, never fed back into
// solving.
func (s *Stats) AveragePointsToSetSize() float64 {
	if s.totalPtsSamples == 0 {
		return 0
	}
	return float64(s.totalPtsSize) / float64(s.totalPtsSamples)
}

func (s *Stats) sample(n int) {
	s.totalPtsSize += n
	s.totalPtsSamples++
	if n > s.MaxPointsToSetSize {
		s.MaxPointsToSetSize = n
	}
}

// Solver runs the fixed point over one constraint graph.
type Solver struct {
	cg     *cgraph.Graph
	irg    *ir.Graph
	st     *symtab.Table
	mm     *memobj.Model
	fm     *fieldlayout.Model
	bridge *callgraph.Bridge
	cfg    Config

	pts        map[Id]ptset.Set
	propagated map[Id]ptset.Set

	// cache interns converged points-to sets under the Persistent
	// backing, shared across nodes that end up with structurally
	// identical contents; nil under Mutable, where each set is cheap,
	// single-owner state not worth canonicalizing.
	cache *ptset.Cache

	queue  []Id
	queued map[Id]bool

	stats Stats
}

// New constructs a Solver over an already-projected constraint graph.
// irg is needed for GetFIObjNode (field-insensitive child allocation);
// bridge may be nil if the IR has no indirect call sites.
func New(cg *cgraph.Graph, irg *ir.Graph, st *symtab.Table, mm *memobj.Model, fm *fieldlayout.Model, bridge *callgraph.Bridge, cfg Config) *Solver {
	s := &Solver{
		cg: cg, irg: irg, st: st, mm: mm, fm: fm, bridge: bridge, cfg: cfg,
		pts:        make(map[Id]ptset.Set),
		propagated: make(map[Id]ptset.Set),
		queued:     make(map[Id]bool),
	}
	if cfg.PTSBacking == ptset.Persistent {
		s.cache = ptset.NewCache(4096)
	}
	return s
}

// internPts replaces n's stored points-to set with its canonical
// interned handle, so nodes that converge to identical contents end up
// sharing one underlying Set. A no-op when the solver has no cache
// (Mutable backing).
func (s *Solver) internPts(n Id) {
	if s.cache == nil {
		return
	}
	s.pts[n] = s.cache.Intern(s.ptsOf(n))
}

// sameType reports whether a and b are compatible enough for a
// NormalGep to be considered type-safe. Either side being nil means
// the type is unknown to the caller (e.g. a client building constraint
// graphs directly, bypassing a type-aware front end) and is treated as
// compatible rather than penalized.
func sameType(a, b irtype.Type) bool {
	if a == nil || b == nil {
		return true
	}
	return a.Kind() == b.Kind() && a.String() == b.String()
}

func (s *Solver) ptsOf(n Id) ptset.Set {
	if p, ok := s.pts[n]; ok {
		return p
	}
	p := ptset.New(s.cfg.PTSBacking)
	s.pts[n] = p
	return p
}

func (s *Solver) propagatedOf(n Id) ptset.Set {
	if p, ok := s.propagated[n]; ok {
		return p
	}
	p := ptset.New(s.cfg.PTSBacking)
	s.propagated[n] = p
	return p
}

// Pts returns the current (fixed-point, once Solve returns) points-to
// set of id. A node merged into an SCC answers with its rep's set.
func (s *Solver) Pts(id Id) ptset.Set { return s.ptsOf(s.cg.SCCRep(id)) }

func (s *Solver) enqueue(n Id) {
	if s.queued[n] {
		return
	}
	s.queued[n] = true
	s.queue = append(s.queue, n)
}

func (s *Solver) pop() (Id, bool) {
	if len(s.queue) == 0 {
		return 0, false
	}
	n := s.queue[0]
	s.queue = s.queue[1:]
	s.queued[n] = false
	return n, true
}

func (s *Solver) logf(format string, args ...any) {
	if s.cfg.Log != nil {
		fmt.Fprintf(s.cfg.Log, format, args...)
	}
}

// ProcessAllAddr seeds every Addr edge's destination with its source.
// Edges are walked in (src, dst) order so the initial worklist is
// identical across runs.
func (s *Solver) ProcessAllAddr() {
	edges := s.cg.Registry(cgraph.RegAddr)
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].Src != edges[j].Src {
			return edges[i].Src < edges[j].Src
		}
		return edges[i].Dst < edges[j].Dst
	})
	for _, e := range edges {
		s.stats.NumProcessedAddr++
		if s.ptsOf(e.Dst).Add(uint32(e.Src)) {
			s.enqueue(e.Dst)
		}
	}
}

// processNode propagates node n's delta along its copy and gep edges,
// then materializes copy edges for its loads and stores. It returns a
// non-nil error only for a TypeMismatch found while
// Config.StrictTypeCheck is set, which aborts the current Solve.
func (s *Solver) processNode(n Id) error {
	s.logf("process node %d\n", n)
	cur := s.ptsOf(n)
	prev := s.propagatedOf(n)

	// With differential propagation off, every pass re-propagates the
	// whole current set instead of just what's new since the last pass.
	delta := cur.Clone()
	if s.cfg.DiffPropagation {
		delta.DifferenceWith(prev)
	}
	// pts(n) as of this visit: anything the rules below add to pts(n)
	// itself stays unpropagated until the node's next visit, or the new
	// elements would never travel the copy edges.
	visited := cur.Clone()

	var typeErr error

	if !delta.Empty() {
		for _, e := range s.cg.EdgesOut(n, cgraph.Copy) {
			s.stats.NumProcessedCopy++
			if s.ptsOf(e.Dst).UnionWith(delta) {
				s.enqueue(e.Dst)
				s.internPts(e.Dst)
			}
		}

		for _, e := range s.cg.EdgesOut(n, cgraph.VariantGep) {
			temp := ptset.New(s.cfg.PTSBacking)
			delta.ForEach(func(oid uint32) {
				// A field id collapses its whole base, not just itself.
				base := s.st.BaseOf(Id(oid))
				obj, err := s.st.ObjOf(base)
				if err != nil {
					return
				}
				s.mm.SetFieldInsensitive(obj)
				s.stats.NumFieldCollapses++
				fi := s.irg.GetFIObjNode(base, obj.Type)
				temp.Add(uint32(fi))
			})
			s.stats.NumProcessedGep++
			if s.ptsOf(e.Dst).UnionWith(temp) {
				s.enqueue(e.Dst)
				s.internPts(e.Dst)
			}
		}

		for _, e := range s.cg.EdgesOut(n, cgraph.NormalGep) {
			temp := ptset.New(s.cfg.PTSBacking)
			delta.ForEach(func(oid uint32) {
				if typeErr != nil {
					return
				}
				// Gep over a field id derives from that field's base.
				base := s.st.BaseOf(Id(oid))
				obj, err := s.st.ObjOf(base)
				if err != nil {
					return
				}
				if obj.IsFieldInsensitive() {
					// Once a base is field-insensitive, every reference
					// to one of its fields goes through its single FI
					// child, never the base id itself.
					fi := s.irg.GetFIObjNode(base, obj.Type)
					temp.Add(uint32(fi))
					return
				}
				limit := obj.MaxFieldOffsetLimit()
				idx := int(fieldlayout.ModulusOffset(limit, e.AP.FieldIndex))
				if fieldType, ferr := s.fm.FlattenedFieldType(obj.Type, idx); ferr == nil && !sameType(fieldType, e.Type) {
					// A field object is only created for an object
					// type-compatible with the access path; an
					// incompatible pairing is dropped unless strict
					// mode demands an error.
					if s.cfg.StrictTypeCheck {
						typeErr = apperr.New(apperr.TypeMismatch, "solver.processNode",
							fmt.Sprintf("object %d field %d: declared type %v incompatible with gep type %v", oid, idx, fieldType, e.Type))
					}
					return
				}
				// GetGepObjNode (not AllocateGepObjectId directly)
				// registers/reuses the ir.Node so serialization can
				// later find this gep object.
				gepID := s.irg.GetGepObjNode(base, e.AP, limit)
				temp.Add(uint32(gepID))
			})
			s.stats.NumProcessedGep++
			if s.ptsOf(e.Dst).UnionWith(temp) {
				s.enqueue(e.Dst)
				s.internPts(e.Dst)
			}
		}
	}

	if typeErr != nil {
		return typeErr
	}

	// The load/store rules may grow pts(n) itself (a set can contain its
	// own node, a load can target its own source), and mutating a set
	// under iteration is undefined; walk a snapshot.
	snap := cur.Clone()

	for _, e := range s.cg.EdgesOut(n, cgraph.Load) {
		snap.ForEach(func(oid uint32) {
			s.stats.NumProcessedLoad++
			s.cg.AddCopyEdge(Id(oid), e.Dst)
			// The copy edge may be brand new: push oid's current pts
			// across it right away rather than waiting for oid's next
			// delta, which could already be empty.
			if s.ptsOf(e.Dst).UnionWith(s.ptsOf(Id(oid))) {
				s.enqueue(e.Dst)
				s.internPts(e.Dst)
			}
			s.enqueue(Id(oid))
		})
	}

	for _, e := range s.cg.EdgesIn(n, cgraph.Store) {
		snap.ForEach(func(oid uint32) {
			s.stats.NumProcessedStore++
			s.cg.AddCopyEdge(e.Src, Id(oid))
			if s.ptsOf(Id(oid)).UnionWith(s.ptsOf(e.Src)) {
				s.enqueue(Id(oid))
				s.internPts(Id(oid))
			}
			s.enqueue(e.Src)
		})
	}

	s.propagated[n] = visited
	s.stats.sample(cur.Count())
	s.internPts(n)
	return nil
}

// Solve runs the worklist to a fixed point, interleaving closure
// passes (SCC detection + merge + PWC collapse + call-graph update)
// whenever the worklist drains.
func (s *Solver) Solve() (Stats, error) {
	s.ProcessAllAddr()
	for {
		if err := s.drainWorklist(); err != nil {
			return s.stats, err
		}
		changed, err := s.closurePass()
		if err != nil {
			return s.stats, err
		}
		if !changed {
			break
		}
	}
	return s.stats, nil
}

func (s *Solver) drainWorklist() error {
	for {
		n, ok := s.pop()
		if !ok {
			return nil
		}
		rep := s.cg.SCCRep(n)
		if rep != n {
			continue
		}
		if err := s.processNode(n); err != nil {
			return err
		}
	}
}

// closurePass runs Tarjan's SCC over the copy+gep subgraph, merges
// every non-trivial SCC into its rep, collapses PWC nodes, and
// updates the call graph. It returns whether anything changed (more
// work was enqueued), so Solve knows whether another round is needed.
func (s *Solver) closurePass() (bool, error) {
	s.logf("closure pass\n")
	changed := false

	sccs := s.tarjanSCCs()
	for _, members := range sccs {
		if len(members) < 2 {
			continue
		}
		s.stats.NumSCCDetections++
		// Pick the numerically smallest member as rep so the choice does
		// not depend on map/Tarjan traversal order: two runs over the
		// same IR must agree on every pts(id).
		rep := members[0]
		for _, m := range members[1:] {
			if m < rep {
				rep = m
			}
		}
		for _, m := range members {
			if m == rep {
				continue
			}
			if s.cg.SCCRep(m) != m {
				continue // already folded into an earlier rep this pass
			}
			s.ptsOf(rep).UnionWith(s.ptsOf(m))
			s.propagatedOf(rep).UnionWith(s.propagatedOf(m))
			s.cg.MoveInEdgesToRep(m, rep)
			s.cg.MoveOutEdgesToRep(m, rep)
		}
		s.internPts(rep)
		s.enqueue(rep)
		changed = true
	}

	if s.cfg.MergePWC {
		if s.collapsePWC() {
			changed = true
		}
	}

	if s.bridge != nil {
		newEdges := s.bridge.Update(s.Pts)
		for _, e := range newEdges {
			// e.Src may already be stable (delta empty), so push its
			// current pts across this brand-new edge immediately rather
			// than waiting on a delta that will never come.
			if s.ptsOf(e.Dst).UnionWith(s.ptsOf(e.Src)) {
				s.enqueue(e.Dst)
				s.internPts(e.Dst)
			}
			s.enqueue(e.Src)
			changed = true
		}
	}

	if changed {
		if err := s.drainWorklist(); err != nil {
			return changed, err
		}
	}
	return changed, nil
}

// collapsePWC handles positive-weight cycles: for every PWC node n,
// every field-object in pts(n) is collapsed to its base, and every
// node whose points-to set references that field id has it replaced by
// the base id.
//
// Nodes referencing a collapsed field id are found by scanning every
// tracked points-to set; there is no incremental reverse index, which
// is fine at moderate program sizes but would need one to scale to a
// very large program.
func (s *Solver) collapsePWC() bool {
	changed := false
	for _, n := range s.trackedIDs() {
		if !s.cg.IsPWC(s.cg.SCCRep(n)) {
			continue
		}
		var toCollapse []Id
		s.ptsOf(n).ForEach(func(oid uint32) {
			base := s.st.BaseOf(Id(oid))
			if base != Id(oid) {
				toCollapse = append(toCollapse, Id(oid))
			}
		})
		for _, f := range toCollapse {
			base := s.st.BaseOf(f)
			obj, err := s.st.ObjOf(base)
			if err != nil {
				continue
			}
			if !obj.IsFieldInsensitive() {
				s.mm.SetFieldInsensitive(obj)
				s.stats.NumFieldCollapses++
			}
			if s.replaceInAllPts(f, base) {
				changed = true
			}
			// Merge f's rep-node into b's rep-node, so any
			// constraints incident on the dead field id keep flowing
			// through the base.
			rf, rb := s.cg.SCCRep(f), s.cg.SCCRep(base)
			if rf != rb {
				s.cg.MoveInEdgesToRep(rf, rb)
				s.cg.MoveOutEdgesToRep(rf, rb)
				s.ptsOf(rb).UnionWith(s.ptsOf(rf))
				s.propagatedOf(rb).UnionWith(s.propagatedOf(rf))
				s.internPts(rb)
				s.enqueue(rb)
				changed = true
			}
		}
	}
	return changed
}

func (s *Solver) replaceInAllPts(f, base Id) bool {
	changed := false
	for _, p := range s.trackedIDs() {
		set := s.pts[p]
		if !set.Test(uint32(f)) {
			continue
		}
		set.Remove(uint32(f))
		if set.Add(uint32(base)) {
			changed = true
		}
		s.enqueue(p)
	}
	return changed
}

// trackedIDs snapshots the ids with a tracked points-to set in
// ascending order; iterating s.pts directly would let map order leak
// into enqueue order and break run-to-run determinism.
func (s *Solver) trackedIDs() []Id {
	ids := make([]Id, 0, len(s.pts))
	for n := range s.pts {
		ids = append(ids, n)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// tarjanSCCs computes strongly connected components of the copy+gep
// subgraph (cgraph.RegDirect), returning every component (including
// trivial singletons, which closurePass skips).
func (s *Solver) tarjanSCCs() [][]Id {
	type tstate struct {
		index, low int
		onStack    bool
	}
	index := 0
	stack := []Id{}
	states := map[Id]*tstate{}
	var sccs [][]Id

	adj := func(n Id) []Id {
		var out []Id
		for _, e := range s.cg.EdgesOut(n, cgraph.Copy) {
			out = append(out, e.Dst)
		}
		for _, e := range s.cg.EdgesOut(n, cgraph.NormalGep) {
			out = append(out, e.Dst)
		}
		for _, e := range s.cg.EdgesOut(n, cgraph.VariantGep) {
			out = append(out, e.Dst)
		}
		return out
	}

	var strongconnect func(v Id)
	strongconnect = func(v Id) {
		if s.cg.SCCRep(v) != v {
			return
		}
		states[v] = &tstate{index: index, low: index, onStack: true}
		index++
		stack = append(stack, v)

		for _, w := range adj(v) {
			if s.cg.SCCRep(w) != w {
				continue
			}
			ws, seen := states[w]
			if !seen {
				strongconnect(w)
				ws = states[w]
				if ws.low < states[v].low {
					states[v].low = ws.low
				}
			} else if ws.onStack {
				if ws.index < states[v].low {
					states[v].low = ws.index
				}
			}
		}

		if states[v].low == states[v].index {
			var comp []Id
			for {
				n := len(stack) - 1
				w := stack[n]
				stack = stack[:n]
				states[w].onStack = false
				comp = append(comp, w)
				if w == v {
					break
				}
			}
			sccs = append(sccs, comp)
		}
	}

	for _, n := range s.cg.NodeIDs() {
		if _, seen := states[n]; !seen {
			strongconnect(n)
		}
	}
	return sccs
}
