// Package serialize implements the optional textual serialization of
// analysis results: one "id -> { o1 o2 ... }" line per PtsLine in the
// Doc (an empty set is written as "id -> {  }"), a "------" separator, one "gep_id base
// offset" line per gep-object, another separator, then "base 0|1"
// field-insensitivity lines.
//
// Some producers of this format emit an insensitivity section both
// inline and at the end of the file; the final section is
// authoritative. Dump never emits more than one such section, but Load
// tolerates and discards any earlier one so round-trips against those
// producers still work.
package serialize

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/go-pta/pta/internal/apperr"
)

const sectionSep = "------"

// PtsLine is one node's serialized points-to set.
type PtsLine struct {
	ID  uint32
	Obj []uint32
}

// GepObjectLine records one gep-object's base and field offset.
type GepObjectLine struct {
	GepID, Base uint32
	Offset      int
}

// InsensitiveLine records one base object's field-sensitivity flag.
type InsensitiveLine struct {
	Base        uint32
	Insensitive bool
}

// Doc is the full parsed or to-be-written document.
type Doc struct {
	Pts         []PtsLine
	GepObjects  []GepObjectLine
	Insensitive []InsensitiveLine
}

// Dump writes doc in the line-oriented text format Load reads.
func Dump(w io.Writer, doc Doc) error {
	bw := bufio.NewWriter(w)
	for _, l := range doc.Pts {
		sorted := append([]uint32(nil), l.Obj...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
		parts := make([]string, len(sorted))
		for i, o := range sorted {
			parts[i] = strconv.FormatUint(uint64(o), 10)
		}
		if _, err := fmt.Fprintf(bw, "%d -> { %s }\n", l.ID, strings.Join(parts, " ")); err != nil {
			return apperr.Wrap(apperr.IOError, "serialize.Dump", "write pts line", err)
		}
	}
	if _, err := fmt.Fprintf(bw, "%s\n", sectionSep); err != nil {
		return apperr.Wrap(apperr.IOError, "serialize.Dump", "write separator", err)
	}
	for _, g := range doc.GepObjects {
		if _, err := fmt.Fprintf(bw, "%d %d %d\n", g.GepID, g.Base, g.Offset); err != nil {
			return apperr.Wrap(apperr.IOError, "serialize.Dump", "write gep line", err)
		}
	}
	if _, err := fmt.Fprintf(bw, "%s\n", sectionSep); err != nil {
		return apperr.Wrap(apperr.IOError, "serialize.Dump", "write separator", err)
	}
	for _, ins := range doc.Insensitive {
		bit := 0
		if ins.Insensitive {
			bit = 1
		}
		if _, err := fmt.Fprintf(bw, "%d %d\n", ins.Base, bit); err != nil {
			return apperr.Wrap(apperr.IOError, "serialize.Dump", "write insensitive line", err)
		}
	}
	if err := bw.Flush(); err != nil {
		return apperr.Wrap(apperr.IOError, "serialize.Dump", "flush", err)
	}
	return nil
}

// Load parses the format Dump writes. Blank lines within a section are
// skipped rather than rejected, since nothing depends on strict layout
// there.
func Load(r io.Reader) (Doc, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1<<20)

	var doc Doc
	section := 0
	var curIns []InsensitiveLine
	var insensitiveSections [][]InsensitiveLine

	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if line == sectionSep {
			if section >= 2 {
				insensitiveSections = append(insensitiveSections, curIns)
				curIns = nil
			}
			section++
			continue
		}
		switch section {
		case 0:
			pl, err := parsePtsLine(line)
			if err != nil {
				return Doc{}, err
			}
			doc.Pts = append(doc.Pts, pl)
		case 1:
			gl, err := parseGepLine(line)
			if err != nil {
				return Doc{}, err
			}
			doc.GepObjects = append(doc.GepObjects, gl)
		default:
			il, err := parseInsensitiveLine(line)
			if err != nil {
				return Doc{}, err
			}
			curIns = append(curIns, il)
		}
	}
	if err := sc.Err(); err != nil {
		return Doc{}, apperr.Wrap(apperr.IOError, "serialize.Load", "scan", err)
	}
	insensitiveSections = append(insensitiveSections, curIns)
	// The final section is authoritative; any earlier one is advisory
	// and discarded.
	doc.Insensitive = insensitiveSections[len(insensitiveSections)-1]
	return doc, nil
}

func parsePtsLine(line string) (PtsLine, error) {
	arrow := strings.Index(line, "->")
	open := strings.Index(line, "{")
	close_ := strings.LastIndex(line, "}")
	if arrow < 0 || open < 0 || close_ < 0 || close_ < open {
		return PtsLine{}, apperr.New(apperr.IOError, "serialize.Load", fmt.Sprintf("malformed pts line: %q", line))
	}
	id, err := strconv.ParseUint(strings.TrimSpace(line[:arrow]), 10, 32)
	if err != nil {
		return PtsLine{}, apperr.Wrap(apperr.IOError, "serialize.Load", fmt.Sprintf("malformed pts id in %q", line), err)
	}
	inner := strings.TrimSpace(line[open+1 : close_])
	pl := PtsLine{ID: uint32(id)}
	if inner == "" {
		return pl, nil
	}
	for _, f := range strings.Fields(inner) {
		o, err := strconv.ParseUint(f, 10, 32)
		if err != nil {
			return PtsLine{}, apperr.Wrap(apperr.IOError, "serialize.Load", fmt.Sprintf("malformed object id in %q", line), err)
		}
		pl.Obj = append(pl.Obj, uint32(o))
	}
	return pl, nil
}

func parseGepLine(line string) (GepObjectLine, error) {
	fields := strings.Fields(line)
	if len(fields) != 3 {
		return GepObjectLine{}, apperr.New(apperr.IOError, "serialize.Load", fmt.Sprintf("malformed gep-object line: %q", line))
	}
	gepID, err := strconv.ParseUint(fields[0], 10, 32)
	if err != nil {
		return GepObjectLine{}, apperr.Wrap(apperr.IOError, "serialize.Load", fmt.Sprintf("malformed gep id in %q", line), err)
	}
	base, err := strconv.ParseUint(fields[1], 10, 32)
	if err != nil {
		return GepObjectLine{}, apperr.Wrap(apperr.IOError, "serialize.Load", fmt.Sprintf("malformed base id in %q", line), err)
	}
	offset, err := strconv.Atoi(fields[2])
	if err != nil {
		return GepObjectLine{}, apperr.Wrap(apperr.IOError, "serialize.Load", fmt.Sprintf("malformed offset in %q", line), err)
	}
	return GepObjectLine{GepID: uint32(gepID), Base: uint32(base), Offset: offset}, nil
}

func parseInsensitiveLine(line string) (InsensitiveLine, error) {
	fields := strings.Fields(line)
	if len(fields) != 2 {
		return InsensitiveLine{}, apperr.New(apperr.IOError, "serialize.Load", fmt.Sprintf("malformed insensitive line: %q", line))
	}
	base, err := strconv.ParseUint(fields[0], 10, 32)
	if err != nil {
		return InsensitiveLine{}, apperr.Wrap(apperr.IOError, "serialize.Load", fmt.Sprintf("malformed base id in %q", line), err)
	}
	bit, err := strconv.Atoi(fields[1])
	if err != nil || (bit != 0 && bit != 1) {
		return InsensitiveLine{}, apperr.New(apperr.IOError, "serialize.Load", fmt.Sprintf("malformed 0|1 flag in %q", line))
	}
	return InsensitiveLine{Base: uint32(base), Insensitive: bit == 1}, nil
}
