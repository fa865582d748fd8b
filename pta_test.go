package pta_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-pta/pta"
	"github.com/go-pta/pta/internal/callgraph"
	"github.com/go-pta/pta/internal/memobj"
)

func val(t *testing.T, prog *pta.Program, name string) pta.Id {
	t.Helper()
	id, err := prog.ST.InternValue(name, 1, false)
	require.NoError(t, err)
	prog.IR.RegisterValNode(id, name)
	return id
}

func obj(t *testing.T, prog *pta.Program, name string) pta.Id {
	t.Helper()
	id := prog.ST.InternObject(name, nil, memobj.HAS_PTR, 1)
	prog.IR.RegisterObjNode(id, name)
	return id
}

func collect(t *testing.T, s interface{ ForEach(func(uint32)) }) []uint32 {
	t.Helper()
	var out []uint32
	s.ForEach(func(id uint32) { out = append(out, id) })
	return out
}

func TestAnalyzeStraightLineCopy(t *testing.T) {
	cfg := pta.DefaultConfig()
	prog := pta.NewProgram(cfg)

	o1 := obj(t, prog, "o1")
	v1, v2, v3 := val(t, prog, "v1"), val(t, prog, "v2"), val(t, prog, "v3")
	_, err := prog.IR.AddAddr(o1, v1)
	require.NoError(t, err)
	_, err = prog.IR.AddCopy(v1, v2)
	require.NoError(t, err)
	_, err = prog.IR.AddCopy(v2, v3)
	require.NoError(t, err)

	res, err := pta.Analyze(prog, cfg)
	require.NoError(t, err)

	want := []uint32{uint32(o1)}
	assert.ElementsMatch(t, want, collect(t, res.Pts(v1)))
	assert.ElementsMatch(t, want, collect(t, res.Pts(v2)))
	assert.ElementsMatch(t, want, collect(t, res.Pts(v3)))
	assert.Equal(t, 1, res.Stats.NumProcessedAddr)
}

func TestAnalyzeAliasQueries(t *testing.T) {
	cfg := pta.DefaultConfig()
	prog := pta.NewProgram(cfg)

	o1 := obj(t, prog, "o1")
	o2 := obj(t, prog, "o2")
	v1, v2, v3 := val(t, prog, "v1"), val(t, prog, "v2"), val(t, prog, "v3")
	_, _ = prog.IR.AddAddr(o1, v1)
	_, _ = prog.IR.AddAddr(o1, v2) // v2 aliases v1: both point only to o1
	_, _ = prog.IR.AddAddr(o2, v3)

	res, err := pta.Analyze(prog, cfg)
	require.NoError(t, err)

	assert.Equal(t, pta.MustAlias, res.Alias(v1, v2))
	assert.Equal(t, pta.NoAlias, res.Alias(v1, v3))
}

func TestAnalyzeIndirectCallCallees(t *testing.T) {
	cfg := pta.DefaultConfig()
	prog := pta.NewProgram(cfg)

	f := prog.ST.InternObject("f", nil, memobj.FUNCTION, 1)
	g := prog.ST.InternObject("g", nil, memobj.FUNCTION, 1)
	prog.IR.RegisterObjNode(f, "f")
	prog.IR.RegisterObjNode(g, "g")

	vfp := val(t, prog, "vfp")
	fpF := val(t, prog, "fp_f")
	fpG := val(t, prog, "fp_g")
	rvF := val(t, prog, "rv_f")
	rvG := val(t, prog, "rv_g")
	rv := val(t, prog, "rv")

	_, _ = prog.IR.AddAddr(f, vfp)
	_, _ = prog.IR.AddAddr(g, vfp)

	prog.RegisterFunction(callgraph.FuncInfo{
		Obj: f, Formals: []callgraph.Id{fpF}, PointerFormal: []bool{true},
		FormalRet: rvF, HasRet: true,
	})
	prog.RegisterFunction(callgraph.FuncInfo{
		Obj: g, Formals: []callgraph.Id{fpG}, PointerFormal: []bool{true},
		FormalRet: rvG, HasRet: true,
	})
	prog.AddCallSite("cs", vfp, nil, nil, rv, true)

	res, err := pta.Analyze(prog, cfg)
	require.NoError(t, err)

	callees, ok := res.Callees("cs")
	require.True(t, ok)
	assert.ElementsMatch(t, []pta.Id{f, g}, callees)

	_, ok = res.Callees("nonexistent")
	assert.False(t, ok)
}

// Two runs over the same IR with identical configuration must yield
// identical pts(id) sets for every id, including ids the solver mints
// itself (field-insensitive children).
func TestAnalyzeDeterministicAcrossRuns(t *testing.T) {
	build := func() (*pta.Program, pta.Config) {
		cfg := pta.DefaultConfig()
		cfg.MaxFieldLimit = 4
		prog := pta.NewProgram(cfg)

		o1 := obj(t, prog, "o1")
		o2 := obj(t, prog, "o2")
		v1 := val(t, prog, "v1")
		v2 := val(t, prog, "v2")
		v3 := val(t, prog, "v3")
		v4 := val(t, prog, "v4")
		v5 := val(t, prog, "v5")

		_, _ = prog.IR.AddAddr(o1, v1)
		_, _ = prog.IR.AddAddr(o2, v2)
		_, _ = prog.IR.AddVariantGep(v1, v3)
		_, _ = prog.IR.AddCopy(v3, v4)
		_, _ = prog.IR.AddCopy(v4, v3)
		_, _ = prog.IR.AddStore(v2, v1, nil)
		_, _ = prog.IR.AddLoad(v1, v5)
		return prog, cfg
	}

	p1, c1 := build()
	r1, err := pta.Analyze(p1, c1)
	require.NoError(t, err)
	p2, c2 := build()
	r2, err := pta.Analyze(p2, c2)
	require.NoError(t, err)

	var b1, b2 bytes.Buffer
	require.NoError(t, r1.Dump(&b1))
	require.NoError(t, r2.Dump(&b2))
	assert.Equal(t, b1.String(), b2.String())
}

func TestAnalyzeDumpAndLoadRoundTrip(t *testing.T) {
	cfg := pta.DefaultConfig()
	prog := pta.NewProgram(cfg)

	o1 := obj(t, prog, "o1")
	v1 := val(t, prog, "v1")
	_, err := prog.IR.AddAddr(o1, v1)
	require.NoError(t, err)

	res, err := pta.Analyze(prog, cfg)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, res.Dump(&buf))
	assert.Contains(t, buf.String(), "------")

	path := filepath.Join(t.TempDir(), "pts.txt")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))
	loadCfg := cfg
	loadCfg.AndersenInputFile = path
	loaded, err := pta.Analyze(prog, loadCfg)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uint32{uint32(o1)}, collect(t, loaded.Pts(v1)))
}
