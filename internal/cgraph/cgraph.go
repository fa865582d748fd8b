// Package cgraph implements the constraint graph: a projection of the
// statement graph to the solver-relevant edge kinds, with
// edge-kind-sharded bulk registries, SCC rep/sub-set bookkeeping, and
// the positive-weight-cycle flag that triggers field collapse. The
// graph is derived once from the statement graph, then mutated in
// place by the solver.
package cgraph

import (
	"sort"

	"github.com/go-pta/pta/internal/ir"
	"github.com/go-pta/pta/internal/irtype"
)

// Id aliases the shared identifier type.
type Id = ir.Id

// EdgeKind is the constraint-graph-specific edge vocabulary.
type EdgeKind int

const (
	Addr EdgeKind = iota
	Copy
	NormalGep
	VariantGep
	Load
	Store
)

// Registry groups edge kinds for bulk iteration: addr, direct
// (copy+gep), load, and store.
type Registry int

const (
	RegAddr Registry = iota
	RegDirect
	RegLoad
	RegStore
)

func registryOf(k EdgeKind) Registry {
	switch k {
	case Addr:
		return RegAddr
	case Copy, NormalGep, VariantGep:
		return RegDirect
	case Load:
		return RegLoad
	default:
		return RegStore
	}
}

// Edge is one constraint-graph edge.
type Edge struct {
	Src, Dst Id
	Kind     EdgeKind
	AP       ir.AccessPath
	// Type is the gep's declared result type, for NormalGep edges only;
	// the solver checks it against the base object's flattened field
	// type. Nil when the front-end did not supply one.
	Type irtype.Type
}

type edgeKey struct {
	src, dst Id
	kind     EdgeKind
	ap       ir.AccessPath
}

// Node is one constraint-graph node: its SCC rep-set membership, PWC
// flag, and incident edges by kind.
type Node struct {
	ID Id

	rep    Id
	subSet map[Id]struct{} // populated only on rep nodes; includes ID itself
	isPWC  bool

	incoming map[EdgeKind][]*Edge
	outgoing map[EdgeKind][]*Edge
}

func newNode(id Id) *Node {
	return &Node{
		ID:       id,
		rep:      id,
		subSet:   map[Id]struct{}{id: {}},
		incoming: make(map[EdgeKind][]*Edge),
		outgoing: make(map[EdgeKind][]*Edge),
	}
}

// Graph is the constraint graph.
type Graph struct {
	nodes    map[Id]*Node
	edges    map[edgeKey]*Edge
	byReg    map[Registry]map[*Edge]struct{}
}

// NewGraph constructs an empty constraint graph.
func NewGraph() *Graph {
	g := &Graph{
		nodes: make(map[Id]*Node),
		edges: make(map[edgeKey]*Edge),
		byReg: map[Registry]map[*Edge]struct{}{
			RegAddr:   {},
			RegDirect: {},
			RegLoad:   {},
			RegStore:  {},
		},
	}
	return g
}

func (g *Graph) node(id Id) *Node {
	if n, ok := g.nodes[id]; ok {
		return n
	}
	n := newNode(id)
	g.nodes[id] = n
	return n
}

// Node returns the node record for id, for read-only queries.
func (g *Graph) Node(id Id) *Node { return g.node(id) }

// NodeIDs returns the id of every node currently in the graph in
// ascending order, for whole-graph traversals such as SCC detection.
// The fixed order keeps two runs over the same IR processing nodes
// identically, which the deterministic-ids guarantee depends on.
func (g *Graph) NodeIDs() []Id {
	ids := make([]Id, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// addEdge is the shared idempotent constructor. typ is carried only on
// the Edge record itself; it is not part of the dedup key since a
// (src,dst,kind,ap) triple is already unique and its declared type
// does not vary across re-adds.
func (g *Graph) addEdge(src, dst Id, kind EdgeKind, ap ir.AccessPath, typ irtype.Type) *Edge {
	key := edgeKey{src: src, dst: dst, kind: kind, ap: ap}
	if e, ok := g.edges[key]; ok {
		return e
	}
	e := &Edge{Src: src, Dst: dst, Kind: kind, AP: ap, Type: typ}
	g.edges[key] = e
	g.node(src).outgoing[kind] = append(g.node(src).outgoing[kind], e)
	g.node(dst).incoming[kind] = append(g.node(dst).incoming[kind], e)
	g.byReg[registryOf(kind)][e] = struct{}{}
	return e
}

func (g *Graph) AddAddrEdge(src, dst Id) *Edge {
	return g.addEdge(src, dst, Addr, ir.AccessPath{}, nil)
}
func (g *Graph) AddCopyEdge(src, dst Id) *Edge {
	return g.addEdge(src, dst, Copy, ir.AccessPath{}, nil)
}
func (g *Graph) AddLoadEdge(src, dst Id) *Edge {
	return g.addEdge(src, dst, Load, ir.AccessPath{}, nil)
}
func (g *Graph) AddStoreEdge(src, dst Id) *Edge {
	return g.addEdge(src, dst, Store, ir.AccessPath{}, nil)
}
func (g *Graph) AddNormalGepEdge(src, dst Id, ap ir.AccessPath, typ irtype.Type) *Edge {
	return g.addEdge(src, dst, NormalGep, ap, typ)
}
func (g *Graph) AddVariantGepEdge(src, dst Id) *Edge {
	return g.addEdge(src, dst, VariantGep, ir.AccessPath{}, nil)
}

// RemoveEdge deletes e from every index it appears in.
func (g *Graph) RemoveEdge(e *Edge) {
	key := edgeKey{src: e.Src, dst: e.Dst, kind: e.Kind, ap: e.AP}
	if _, ok := g.edges[key]; !ok {
		return
	}
	delete(g.edges, key)
	delete(g.byReg[registryOf(e.Kind)], e)
	removeFromSlice(g.node(e.Src).outgoing, e.Kind, e)
	removeFromSlice(g.node(e.Dst).incoming, e.Kind, e)
}

func removeFromSlice(m map[EdgeKind][]*Edge, kind EdgeKind, e *Edge) {
	xs := m[kind]
	for i, x := range xs {
		if x == e {
			m[kind] = append(xs[:i], xs[i+1:]...)
			return
		}
	}
}

// RetargetSrc moves e's source endpoint to newSrc, preserving kind;
// used during node merge. It is a no-op if e is already sourced at
// newSrc.
func (g *Graph) RetargetSrc(e *Edge, newSrc Id) *Edge {
	if e.Src == newSrc {
		return e
	}
	g.RemoveEdge(e)
	return g.addEdge(newSrc, e.Dst, e.Kind, e.AP, e.Type)
}

// RetargetDst moves e's destination endpoint to newDst, preserving
// kind.
func (g *Graph) RetargetDst(e *Edge, newDst Id) *Edge {
	if e.Dst == newDst {
		return e
	}
	g.RemoveEdge(e)
	return g.addEdge(e.Src, newDst, e.Kind, e.AP, e.Type)
}

// SCCRep returns the current representative of n's SCC (itself if
// unmerged).
func (g *Graph) SCCRep(n Id) Id { return g.node(n).rep }

// SCCSubSet returns the set of node ids merged into rep (including rep
// itself), or nil if rep is not a rep node for any merged set.
func (g *Graph) SCCSubSet(rep Id) []Id {
	n, ok := g.nodes[rep]
	if !ok || n.rep != rep {
		return nil
	}
	out := make([]Id, 0, len(n.subSet))
	for id := range n.subSet {
		out = append(out, id)
	}
	return out
}

// IsPWC reports whether rep is marked as a positive-weight-cycle node,
// i.e. one whose points-to contents must be field-collapsed.
func (g *Graph) IsPWC(rep Id) bool { return g.node(rep).isPWC }

// SetPWC marks rep as a PWC node.
func (g *Graph) SetPWC(rep Id) { g.node(rep).isPWC = true }

// inSet reports whether id belongs to set. The Move*EdgesToRep methods
// use it to test whether an edge's other endpoint already belongs to the
// merged set being built (sub ∪ rep's current subSet), meaning the edge
// becomes a self-loop on rep and should be dropped rather than
// retargeted.
func inSet(id Id, set map[Id]struct{}) bool {
	_, ok := set[id]
	return ok
}

// mergeInto folds sub's SCC membership into rep: rep.rep stays rep,
// sub.rep becomes rep, and rep absorbs sub's sub-set (sub may itself
// already be a rep of an earlier, smaller merge).
func (g *Graph) mergeInto(sub, rep Id) {
	repN := g.node(rep)
	subN := g.node(sub)
	for id := range subN.subSet {
		repN.subSet[id] = struct{}{}
		g.node(id).rep = rep
	}
	subN.rep = rep
	if subN.isPWC {
		repN.isPWC = true
	}
}

// MoveInEdgesToRep moves every incoming edge of sub onto rep, dropping
// edges whose source is already inside the merged set (they become a
// self-loop on rep) and reports whether any dropped intra-SCC gep edge
// had a non-zero field offset, which makes the merged rep a
// positive-weight cycle. It also folds sub's SCC membership into rep.
func (g *Graph) MoveInEdgesToRep(sub, rep Id) bool {
	merged := map[Id]struct{}{}
	for id := range g.node(rep).subSet {
		merged[id] = struct{}{}
	}
	merged[sub] = struct{}{}

	critical := false
	for _, kind := range []EdgeKind{Addr, Copy, NormalGep, VariantGep, Load, Store} {
		for _, e := range append([]*Edge(nil), g.node(sub).incoming[kind]...) {
			if inSet(e.Src, merged) {
				if e.Kind == NormalGep && e.AP.FieldIndex != 0 {
					critical = true
				}
				g.RemoveEdge(e)
				continue
			}
			g.RetargetDst(e, rep)
		}
	}
	g.mergeInto(sub, rep)
	if critical {
		g.SetPWC(rep)
	}
	return critical
}

// MoveOutEdgesToRep is the symmetric operation for sub's outgoing
// edges.
func (g *Graph) MoveOutEdgesToRep(sub, rep Id) bool {
	merged := map[Id]struct{}{}
	for id := range g.node(rep).subSet {
		merged[id] = struct{}{}
	}
	merged[sub] = struct{}{}

	critical := false
	for _, kind := range []EdgeKind{Addr, Copy, NormalGep, VariantGep, Load, Store} {
		for _, e := range append([]*Edge(nil), g.node(sub).outgoing[kind]...) {
			if inSet(e.Dst, merged) {
				if e.Kind == NormalGep && e.AP.FieldIndex != 0 {
					critical = true
				}
				g.RemoveEdge(e)
				continue
			}
			g.RetargetSrc(e, rep)
		}
	}
	if _, already := g.nodes[rep]; already && g.node(rep).rep == rep {
		g.mergeInto(sub, rep)
	}
	if critical {
		g.SetPWC(rep)
	}
	return critical
}

// EdgesIn returns every edge currently incident on n (as destination)
// of kind.
func (g *Graph) EdgesIn(n Id, kind EdgeKind) []*Edge { return g.node(n).incoming[kind] }

// EdgesOut returns every edge currently incident on n (as source) of
// kind.
func (g *Graph) EdgesOut(n Id, kind EdgeKind) []*Edge { return g.node(n).outgoing[kind] }

// Registry returns every edge currently in the named bulk registry,
// for the solver's per-pass iteration.
func (g *Graph) Registry(r Registry) []*Edge {
	out := make([]*Edge, 0, len(g.byReg[r]))
	for e := range g.byReg[r] {
		out = append(out, e)
	}
	return out
}

// FromIR projects an ir.Graph onto a fresh constraint graph: Addr,
// Copy, Load, Store, NormalGep/VariantGep map directly; Phi, Select,
// Call, Ret, ThreadFork, ThreadJoin all project to Copy. Nodes are
// visited in ascending id order so adjacency lists come out identical
// across runs.
func FromIR(g *ir.Graph) *Graph {
	cg := NewGraph()
	nodes := g.Nodes()
	ids := make([]Id, 0, len(nodes))
	for id := range nodes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		for _, e := range nodes[id].GetOutgoingAll() {
			switch e.Kind {
			case ir.Addr:
				cg.AddAddrEdge(e.Src, e.Dst)
			case ir.Copy, ir.Phi, ir.Select, ir.Call, ir.Ret, ir.ThreadFork, ir.ThreadJoin:
				cg.AddCopyEdge(e.Src, e.Dst)
			case ir.GepNormal:
				cg.AddNormalGepEdge(e.Src, e.Dst, e.AP, e.Type)
			case ir.GepVariant:
				cg.AddVariantGepEdge(e.Src, e.Dst)
			case ir.Load:
				cg.AddLoadEdge(e.Src, e.Dst)
			case ir.Store:
				cg.AddStoreEdge(e.Src, e.Dst)
			}
		}
	}
	return cg
}
