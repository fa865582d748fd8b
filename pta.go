// Package pta is the public surface of the points-to analysis engine:
// a front-end builds a Program through the symbol-table and
// statement-graph methods, then Analyze runs the inclusion solver to a
// fixed point and the Result answers points-to, alias and callee
// queries.
package pta

import (
	"io"
	"os"
	"sort"

	"github.com/go-pta/pta/internal/apperr"
	"github.com/go-pta/pta/internal/callgraph"
	"github.com/go-pta/pta/internal/cgraph"
	"github.com/go-pta/pta/internal/fieldlayout"
	"github.com/go-pta/pta/internal/ir"
	"github.com/go-pta/pta/internal/memobj"
	"github.com/go-pta/pta/internal/ptset"
	"github.com/go-pta/pta/internal/serialize"
	"github.com/go-pta/pta/internal/solver"
	"github.com/go-pta/pta/internal/symtab"
)

// Id is the shared node/object identifier type.
type Id = symtab.Id

// Config enumerates every recognized analysis option.
type Config struct {
	MaxFieldLimit   uint32
	PTSBacking      ptset.Backing
	DiffPropagation bool
	MergePWC        bool

	// FirstFieldEqBase aliases field 0 of every object with its base id.
	// Default false: each field, including field 0, gets its own id.
	FirstFieldEqBase bool

	// HandleBlackhole admits statement edges into the reserved BLACK_HOLE
	// object and gives a pointer formal that receives a non-pointer
	// actual an Addr edge from BLACK_HOLE. Default false: edges into
	// BLACK_HOLE fail with InvalidEdge and such arguments are skipped.
	HandleBlackhole bool

	// ModelConstants gives each constant datum a distinct object.
	// Default false: constant data folds into the reserved CONSTANT_OBJ.
	ModelConstants bool

	AndersenInputFile  string
	AndersenOutputFile string

	// StrictTypeCheck, when set, turns a gep whose access path
	// disagrees with its base object's flattened field type into an
	// error that aborts Analyze, instead of the default of silently
	// dropping the offending field object.
	StrictTypeCheck bool

	// Log, when non-nil, receives the solver's trace output.
	Log io.Writer
}

// DefaultConfig returns the stock configuration: differential
// propagation and PWC merging both on.
func DefaultConfig() Config {
	return Config{DiffPropagation: true, MergePWC: true}
}

func (c Config) solverConfig() solver.Config {
	return solver.Config{
		MaxFieldLimit:      c.MaxFieldLimit,
		PTSBacking:         c.PTSBacking,
		DiffPropagation:    c.DiffPropagation,
		MergePWC:           c.MergePWC,
		FirstFieldEqBase:   c.FirstFieldEqBase,
		HandleBlackhole:    c.HandleBlackhole,
		ModelConstants:     c.ModelConstants,
		AndersenInputFile:  c.AndersenInputFile,
		AndersenOutputFile: c.AndersenOutputFile,
		StrictTypeCheck:    c.StrictTypeCheck,
		Log:                c.Log,
	}
}

// pendingCallSite defers callgraph.Bridge.AddCallSite until Analyze,
// since the Bridge requires a constraint graph that does not exist
// until the IR is complete (cgraph.FromIR runs once, at Analyze time).
type pendingCallSite struct {
	id            any
	funcPtr       Id
	actuals       []Id
	pointerActual []bool
	actualRet     Id
	hasActualRet  bool
}

// Program is the statement graph under construction. A front-end
// builds it by calling the symbol table (ST), field model (FM),
// memory model (MM) and statement graph (IR) directly; lowering
// source IR into those calls is the front-end's business, not this
// package's.
type Program struct {
	FM *fieldlayout.Model
	MM *memobj.Model
	ST *symtab.Table
	IR *ir.Graph

	funcs []callgraph.FuncInfo
	sites []pendingCallSite
}

// NewProgram constructs an empty Program configured per cfg.
func NewProgram(cfg Config) *Program {
	fm := fieldlayout.NewModel()
	mm := memobj.NewModel(fm)
	st := symtab.NewTable(fm, mm, cfg.MaxFieldLimit)
	st.FirstFieldEqBase = cfg.FirstFieldEqBase
	st.ModelConstants = cfg.ModelConstants
	irg := ir.NewGraph(st)
	irg.AllowBlackHoleEdges = cfg.HandleBlackhole
	return &Program{FM: fm, MM: mm, ST: st, IR: irg}
}

// RegisterFunction records the formal interface of a call target, to be
// wired against discovered callers once Analyze builds the call-graph
// bridge.
func (p *Program) RegisterFunction(info callgraph.FuncInfo) {
	p.funcs = append(p.funcs, info)
}

// InternReturn returns the id of f's unique return value, registering
// its node on first use.
func (p *Program) InternReturn(f any) Id {
	id := p.ST.InternReturn(f)
	p.IR.RegisterRetNode(id, f)
	return id
}

// InternVararg returns the id of f's vararg sink, registering its node
// on first use.
func (p *Program) InternVararg(f any) Id {
	id := p.ST.InternVararg(f)
	p.IR.RegisterVarargNode(id, f)
	return id
}

// AddCallSite registers a (possibly indirect) call site. For direct
// calls, pass the zero Id for funcPtr and wire the single known callee
// via RegisterFunction plus a direct ir.AddCall instead.
func (p *Program) AddCallSite(id any, funcPtr Id, actuals []Id, pointerActual []bool, actualRet Id, hasActualRet bool) {
	p.sites = append(p.sites, pendingCallSite{
		id: id, funcPtr: funcPtr, actuals: actuals, pointerActual: pointerActual,
		actualRet: actualRet, hasActualRet: hasActualRet,
	})
}

// AliasKind is the result of an alias query.
type AliasKind int

const (
	NoAlias AliasKind = iota
	MayAlias
	MustAlias
)

func (k AliasKind) String() string {
	switch k {
	case NoAlias:
		return "NoAlias"
	case MayAlias:
		return "MayAlias"
	case MustAlias:
		return "MustAlias"
	default:
		return "Unknown"
	}
}

// Result holds the fixed point computed by Analyze (or, when
// Config.AndersenInputFile is set, loaded from a prior serialized run)
// and answers points-to, alias and callee queries.
type Result struct {
	st  *symtab.Table
	mm  *memobj.Model
	irg *ir.Graph

	sv     *solver.Solver // nil when loaded from AndersenInputFile
	bridge *callgraph.Bridge

	loaded map[uint32][]uint32 // id -> sorted object ids; populated only when sv == nil

	Stats solver.Stats
}

// Analyze derives the constraint graph from prog's statement graph,
// wires any registered call-graph bridge, and runs the solver to a
// fixed point per cfg. If cfg.AndersenInputFile is set, solving is
// skipped entirely and Result.Pts instead answers from the file's
// contents.
func Analyze(prog *Program, cfg Config) (*Result, error) {
	cg := cgraph.FromIR(prog.IR)

	res := &Result{st: prog.ST, mm: prog.MM, irg: prog.IR}

	var bridge *callgraph.Bridge
	if len(prog.funcs) > 0 || len(prog.sites) > 0 {
		bridge = callgraph.NewBridge(prog.ST, cg)
		bridge.HandleBlackhole = cfg.HandleBlackhole
		bridge.Log = cfg.Log
		for _, f := range prog.funcs {
			bridge.RegisterFunction(f)
		}
		for _, s := range prog.sites {
			bridge.AddCallSite(s.id, s.funcPtr, s.actuals, s.pointerActual, s.actualRet, s.hasActualRet)
		}
	}
	res.bridge = bridge

	if cfg.AndersenInputFile != "" {
		f, err := os.Open(cfg.AndersenInputFile)
		if err != nil {
			return nil, apperr.Wrap(apperr.IOError, "pta.Analyze", "open AndersenInputFile", err)
		}
		defer f.Close()
		doc, err := serialize.Load(f)
		if err != nil {
			return nil, err
		}
		res.loaded = make(map[uint32][]uint32, len(doc.Pts))
		for _, l := range doc.Pts {
			res.loaded[l.ID] = l.Obj
		}
		return res, nil
	}

	sv := solver.New(cg, prog.IR, prog.ST, prog.MM, prog.FM, bridge, cfg.solverConfig())
	stats, err := sv.Solve()
	if err != nil {
		return nil, err
	}
	res.sv = sv
	res.Stats = stats

	if cfg.AndersenOutputFile != "" {
		if err := dumpToFile(res, cfg.AndersenOutputFile); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// Pts returns the points-to set of id at the fixed point.
func (r *Result) Pts(id Id) ptset.Set {
	if r.sv != nil {
		return r.sv.Pts(id)
	}
	s := ptset.New(ptset.Mutable)
	for _, o := range r.loaded[uint32(id)] {
		s.Add(o)
	}
	return s
}

// fieldSource adapts symtab/memobj to ptset.FieldSource for FI-expansion.
type fieldSource struct {
	st *symtab.Table
	mm *memobj.Model
}

func (f fieldSource) BlockLen(base uint32) uint32 { return f.st.ObjectBlockLen(Id(base)) }

// IsCollapsed treats every multi-field base object as expandable, not
// only collapsed ones: FI-expansion augments a set with the field ids
// of every base object it names.
func (f fieldSource) IsCollapsed(base uint32) bool {
	return f.st.ObjectBlockLen(Id(base)) > 1 || f.mm.IsFieldInsensitive(base)
}

// Alias reports whether id1 and id2 may refer to the same memory.
// Points-to sets are FI-expanded first, so a base object (or the
// field-insensitive collapse of one) still aliases queries against
// its individual fields. MustAlias is judged on the raw sets: both
// sides naming exactly the same single object.
func (r *Result) Alias(id1, id2 Id) AliasKind {
	raw1, raw2 := r.Pts(id1), r.Pts(id2)
	src := fieldSource{st: r.st, mm: r.mm}
	p1 := ptset.ExpandFI(raw1, src)
	p2 := ptset.ExpandFI(raw2, src)
	if p1.Empty() || p2.Empty() || !p1.Intersects(p2) {
		return NoAlias
	}
	if raw1.Equal(raw2) && raw1.Count() == 1 {
		return MustAlias
	}
	return MayAlias
}

// Callees returns the function objects currently known to reach
// indirect call-site id, or ok=false if id names no registered
// call-site.
func (r *Result) Callees(id any) (callees []Id, ok bool) {
	if r.bridge == nil {
		return nil, false
	}
	return r.bridge.Callees(id)
}

// Dump writes the fixed point to w in the line-oriented text format
// Load reads back. It returns an error if Result was loaded from
// Config.AndersenInputFile rather than computed by solving.
func (r *Result) Dump(w io.Writer) error {
	if r.sv == nil {
		return apperr.New(apperr.IOError, "pta.Result.Dump", "cannot serialize a Result loaded from AndersenInputFile")
	}
	doc := serialize.Doc{}
	for id := Id(0); int(id) < r.st.NumIds(); id++ {
		set := r.sv.Pts(id)
		if set.Empty() {
			continue
		}
		var objs []uint32
		set.ForEach(func(o uint32) { objs = append(objs, o) })
		doc.Pts = append(doc.Pts, serialize.PtsLine{ID: uint32(id), Obj: objs})
	}
	for _, n := range r.irg.Nodes() {
		if n.Kind == ir.KindGepObj {
			doc.GepObjects = append(doc.GepObjects, serialize.GepObjectLine{
				GepID: uint32(n.ID), Base: uint32(n.BaseID), Offset: n.AP.FieldIndex,
			})
		}
	}
	sort.Slice(doc.GepObjects, func(i, j int) bool {
		return doc.GepObjects[i].GepID < doc.GepObjects[j].GepID
	})
	for _, obj := range r.mm.Objects() {
		doc.Insensitive = append(doc.Insensitive, serialize.InsensitiveLine{
			Base: obj.ID, Insensitive: obj.IsFieldInsensitive(),
		})
	}
	return serialize.Dump(w, doc)
}

func dumpToFile(r *Result, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return apperr.Wrap(apperr.IOError, "pta.Analyze", "open AndersenOutputFile", err)
	}
	defer f.Close()
	return r.Dump(f)
}
