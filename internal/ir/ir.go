// Package ir implements the statement graph: nodes are variables
// (tagged by kind), edges are typed statements with edge-kind-indexed
// incoming/outgoing sets, and every add-operation is idempotent on its
// (src, dst, kind, label) key.
package ir

import (
	"fmt"

	"github.com/go-pta/pta/internal/apperr"
	"github.com/go-pta/pta/internal/irtype"
	"github.com/go-pta/pta/internal/symtab"
)

// Id is a node identifier; always a valid symtab.Id.
type Id = symtab.Id

// Kind tags a variable node's variant.
type Kind int

const (
	KindVal Kind = iota
	KindObj
	KindGepVal
	KindGepObj
	KindFIObj
	KindRet
	KindVararg
	KindDummyVal
	KindDummyObj
	KindCloneGepObj
	KindCloneFIObj
	KindCloneDummyObj
)

// EdgeKind enumerates every statement shape the front-end can emit.
type EdgeKind int

const (
	Addr EdgeKind = iota
	Copy
	GepNormal
	GepVariant
	Load
	Store
	Phi
	Select
	Cmp
	BinOp
	UnaryOp
	Branch
	Call
	Ret
	ThreadFork
	ThreadJoin
)

func (k EdgeKind) String() string {
	switch k {
	case Addr:
		return "Addr"
	case Copy:
		return "Copy"
	case GepNormal:
		return "GepNormal"
	case GepVariant:
		return "GepVariant"
	case Load:
		return "Load"
	case Store:
		return "Store"
	case Phi:
		return "Phi"
	case Select:
		return "Select"
	case Cmp:
		return "Cmp"
	case BinOp:
		return "BinOp"
	case UnaryOp:
		return "UnaryOp"
	case Branch:
		return "Branch"
	case Call:
		return "Call"
	case Ret:
		return "Ret"
	case ThreadFork:
		return "ThreadFork"
	case ThreadJoin:
		return "ThreadJoin"
	default:
		return "Unknown"
	}
}

// AccessPath is the constant-field access path of a Gep statement.
type AccessPath struct {
	ByteOffset int64
	FieldIndex int
	Stride     int64
}

// Edge is one statement.
type Edge struct {
	Src, Dst Id
	Kind     EdgeKind
	Label    any // callsite id for Call/Ret/Fork/Join, ICFG node for Store
	AP       AccessPath
	Type     irtype.Type // gep type, for NormalGep edges
}

// Node is one variable node: its kind, a back-pointer to the IR value
// that created it (nil for dummy/synthetic nodes), and incident edges
// indexed by kind.
type Node struct {
	ID               Id
	Kind             Kind
	Value            any
	IsTopLevelPtr    bool
	IsAddressTaken   bool

	BaseID     Id         // for GepVal/GepObj/FIObj: the base this node derives from
	AP         AccessPath // for GepVal/GepObj

	incoming map[EdgeKind][]*Edge
	outgoing map[EdgeKind][]*Edge
}

func newNode(id Id, k Kind) *Node {
	return &Node{
		ID:       id,
		Kind:     k,
		incoming: make(map[EdgeKind][]*Edge),
		outgoing: make(map[EdgeKind][]*Edge),
	}
}

// edgeKey dedups (src, dst, kind, label) triples so structurally equal
// statements coalesce.
type edgeKey struct {
	src, dst Id
	kind     EdgeKind
	label    any
}

// Graph is the statement graph owning every Node and Edge.
type Graph struct {
	st *symtab.Table

	nodes map[Id]*Node
	edges map[edgeKey]*Edge

	// AllowBlackHoleEdges disables the InvalidEdge guard on edges
	// targeting symtab.BlackHole, for clients that opted into
	// black-hole modeling; mirrors Config.HandleBlackhole.
	AllowBlackHoleEdges bool

	gepValCache map[gepValKey]Id
	fiObjCache  map[Id]Id
}

type gepValKey struct {
	ctx  any
	base Id
	ap   AccessPath
}

// NewGraph constructs an empty statement graph over the given symbol
// table; st must already have its reserved ids allocated.
func NewGraph(st *symtab.Table) *Graph {
	g := &Graph{
		st:          st,
		nodes:       make(map[Id]*Node),
		edges:       make(map[edgeKey]*Edge),
		gepValCache: make(map[gepValKey]Id),
		fiObjCache:  make(map[Id]Id),
	}
	return g
}

// Node returns the node for id, creating a default Val node on first
// reference. Front-ends are expected to register nodes explicitly via
// RegisterValNode/RegisterObjNode before wiring edges, but edge
// construction tolerates lazily-seen ids.
func (g *Graph) Node(id Id) *Node {
	if n, ok := g.nodes[id]; ok {
		return n
	}
	n := newNode(id, KindVal)
	g.nodes[id] = n
	return n
}

// RegisterValNode records id as a Val node backed by v.
func (g *Graph) RegisterValNode(id Id, v any) *Node {
	n := g.Node(id)
	n.Kind = KindVal
	n.Value = v
	n.IsTopLevelPtr = true
	return n
}

// RegisterObjNode records id as an Obj node.
func (g *Graph) RegisterObjNode(id Id, v any) *Node {
	n := g.Node(id)
	n.Kind = KindObj
	n.Value = v
	n.IsAddressTaken = true
	return n
}

// RegisterRetNode records id as the unique return value of function f.
func (g *Graph) RegisterRetNode(id Id, f any) *Node {
	n := g.Node(id)
	n.Kind = KindRet
	n.Value = f
	n.IsTopLevelPtr = true
	return n
}

// RegisterVarargNode records id as the vararg sink of function f.
func (g *Graph) RegisterVarargNode(id Id, f any) *Node {
	n := g.Node(id)
	n.Kind = KindVararg
	n.Value = f
	n.IsTopLevelPtr = true
	return n
}

func (g *Graph) addEdge(e Edge) (*Edge, error) {
	if e.Dst == symtab.BlackHole && !g.AllowBlackHoleEdges {
		return nil, apperr.New(apperr.InvalidEdge, "ir.addEdge",
			fmt.Sprintf("edge into BLACK_HOLE (kind %s) requires black-hole modeling", e.Kind))
	}
	key := edgeKey{src: e.Src, dst: e.Dst, kind: e.Kind, label: e.Label}
	if existing, ok := g.edges[key]; ok {
		return existing, nil
	}
	stored := e
	g.edges[key] = &stored
	src := g.Node(e.Src)
	dst := g.Node(e.Dst)
	src.outgoing[e.Kind] = append(src.outgoing[e.Kind], &stored)
	dst.incoming[e.Kind] = append(dst.incoming[e.Kind], &stored)
	return &stored, nil
}

// AddAddr records rhs (an object) as addressed-of into lhs (a value):
// Addr(rhs, lhs).
func (g *Graph) AddAddr(rhs, lhs Id) (*Edge, error) {
	return g.addEdge(Edge{Src: rhs, Dst: lhs, Kind: Addr})
}

// AddCopy records Copy(rhs, lhs).
func (g *Graph) AddCopy(rhs, lhs Id) (*Edge, error) {
	return g.addEdge(Edge{Src: rhs, Dst: lhs, Kind: Copy})
}

// AddLoad records Load(rhs, lhs): lhs receives the contents of *rhs.
func (g *Graph) AddLoad(rhs, lhs Id) (*Edge, error) {
	return g.addEdge(Edge{Src: rhs, Dst: lhs, Kind: Load})
}

// AddStore records Store(rhs, lhs, label): *lhs := rhs.
func (g *Graph) AddStore(rhs, lhs Id, label any) (*Edge, error) {
	return g.addEdge(Edge{Src: rhs, Dst: lhs, Kind: Store, Label: label})
}

// AddGep dispatches to AddNormalGep or AddVariantGep depending on
// isVariant.
func (g *Graph) AddGep(rhs, lhs Id, ap AccessPath, isVariant bool) (*Edge, error) {
	if isVariant {
		return g.AddVariantGep(rhs, lhs)
	}
	return g.AddNormalGep(rhs, lhs, ap, nil)
}

// AddNormalGep records a Gep statement with a known constant access
// path and (optionally) the static type of the derived pointer.
func (g *Graph) AddNormalGep(rhs, lhs Id, ap AccessPath, t irtype.Type) (*Edge, error) {
	return g.addEdge(Edge{Src: rhs, Dst: lhs, Kind: GepNormal, AP: ap, Type: t})
}

// AddVariantGep records a Gep statement whose access path is unknown
// at this site.
func (g *Graph) AddVariantGep(rhs, lhs Id) (*Edge, error) {
	return g.addEdge(Edge{Src: rhs, Dst: lhs, Kind: GepVariant})
}

// AddCall records Copy-shaped actual-to-formal flow for a direct or
// resolved-indirect call, labeled by the call-site id.
func (g *Graph) AddCall(actual, formal Id, callsite any) (*Edge, error) {
	return g.addEdge(Edge{Src: actual, Dst: formal, Kind: Call, Label: callsite})
}

// AddRet records Copy-shaped formal-return→actual-return flow.
func (g *Graph) AddRet(formalRet, actualRet Id, callsite any) (*Edge, error) {
	return g.addEdge(Edge{Src: formalRet, Dst: actualRet, Kind: Ret, Label: callsite})
}

// AddThreadFork has the same shape as AddCall, with a ThreadFork label.
func (g *Graph) AddThreadFork(actual, formal Id, forksite any) (*Edge, error) {
	return g.addEdge(Edge{Src: actual, Dst: formal, Kind: ThreadFork, Label: forksite})
}

// AddThreadJoin has the same shape as AddRet, with a ThreadJoin label.
func (g *Graph) AddThreadJoin(formalRet, actualRet Id, joinsite any) (*Edge, error) {
	return g.addEdge(Edge{Src: formalRet, Dst: actualRet, Kind: ThreadJoin, Label: joinsite})
}

// AddPhi, AddSelect, AddCmp, AddBinOp, AddUnaryOp, AddBranch round out
// the statement vocabulary; the constraint graph projects Phi and
// Select to Copy and ignores the rest.
func (g *Graph) AddPhi(rhs, lhs Id) (*Edge, error)     { return g.addEdge(Edge{Src: rhs, Dst: lhs, Kind: Phi}) }
func (g *Graph) AddSelect(rhs, lhs Id) (*Edge, error)  { return g.addEdge(Edge{Src: rhs, Dst: lhs, Kind: Select}) }
func (g *Graph) AddCmp(rhs, lhs Id) (*Edge, error)     { return g.addEdge(Edge{Src: rhs, Dst: lhs, Kind: Cmp}) }
func (g *Graph) AddBinOp(rhs, lhs Id) (*Edge, error)   { return g.addEdge(Edge{Src: rhs, Dst: lhs, Kind: BinOp}) }
func (g *Graph) AddUnaryOp(rhs, lhs Id) (*Edge, error) { return g.addEdge(Edge{Src: rhs, Dst: lhs, Kind: UnaryOp}) }
func (g *Graph) AddBranch(rhs, lhs Id) (*Edge, error)  { return g.addEdge(Edge{Src: rhs, Dst: lhs, Kind: Branch}) }

// GetIncoming returns node n's incoming edges of the given kind.
func (g *Graph) GetIncoming(n Id, kind EdgeKind) []*Edge {
	return g.Node(n).incoming[kind]
}

// GetOutgoing returns node n's outgoing edges of the given kind.
func (g *Graph) GetOutgoing(n Id, kind EdgeKind) []*Edge {
	return g.Node(n).outgoing[kind]
}

// GetGepValNode allocates or reuses a GepVal node keyed by
// (ctx, base, ap), deduplicating temporaries generated for
// memcpy-like lowerings.
func (g *Graph) GetGepValNode(ctx any, base Id, ap AccessPath, t irtype.Type) Id {
	key := gepValKey{ctx: ctx, base: base, ap: ap}
	if id, ok := g.gepValCache[key]; ok {
		return id
	}
	id := g.st.CreateDummyObj(t)
	n := g.Node(id)
	n.Kind = KindGepVal
	n.BaseID = base
	n.AP = ap
	n.IsTopLevelPtr = true
	g.gepValCache[key] = id
	return id
}

// GetGepObjNode allocates or reuses a GepObj node for field ap of
// base: the id itself is deterministic (symtab.AllocateGepObjectId),
// so this call is memoized purely to register the Node record and
// base/ap bookkeeping on first use.
func (g *Graph) GetGepObjNode(base Id, ap AccessPath, maxFieldLimit uint32) Id {
	id := g.st.AllocateGepObjectId(base, ap.FieldIndex, maxFieldLimit)
	n := g.Node(id)
	if n.Kind == KindVal && n.Value == nil && len(n.incoming) == 0 && len(n.outgoing) == 0 {
		n.Kind = KindGepObj
		n.BaseID = base
		n.AP = ap
		n.IsAddressTaken = true
	}
	return id
}

// GetFIObjNode returns/creates the single field-insensitive child of
// base. A node that is already a field-insensitive or dummy object is
// its own FI child, so repeated collapse converges instead of chaining
// fresh children.
func (g *Graph) GetFIObjNode(base Id, t irtype.Type) Id {
	if n, ok := g.nodes[base]; ok && (n.Kind == KindFIObj || n.Kind == KindDummyObj) {
		return base
	}
	if id, ok := g.fiObjCache[base]; ok {
		return id
	}
	id := g.st.CreateDummyObj(t)
	n := g.Node(id)
	n.Kind = KindFIObj
	n.BaseID = base
	n.IsAddressTaken = true
	g.fiObjCache[base] = id
	return id
}

// Nodes returns every node currently in the graph, for iteration by
// the constraint-graph projection and the solver.
func (g *Graph) Nodes() map[Id]*Node { return g.nodes }

// GetOutgoingAll returns every outgoing edge of n regardless of kind,
// for consumers (e.g. the constraint-graph projection) that dispatch
// on Edge.Kind themselves. Kinds are walked in declaration order, and
// edges within a kind in insertion order, so the result is stable
// across runs.
func (n *Node) GetOutgoingAll() []*Edge {
	var out []*Edge
	for k := Addr; k <= ThreadJoin; k++ {
		out = append(out, n.outgoing[k]...)
	}
	return out
}

// NumEdges reports the total number of distinct statements.
func (g *Graph) NumEdges() int { return len(g.edges) }
