// Package project encodes the complete engine state (drawers, scripts and
// demos) into a versioned binary record.
//
// Layout, all integers big-endian or uvarint:
//
//	magic    "TRTL"
//	version  string (semver)
//	drawers  count, then each drawer
//	scripts  count, then name, source, deleted
//	demos    count, then name, created-at, commands
//
// Strings are a uvarint length followed by UTF-8 bytes; floats are IEEE-754
// bits as uint64.
package project

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/Masterminds/semver/v3"

	"github.com/zot/turtle/internal/command"
	"github.com/zot/turtle/internal/demo"
	"github.com/zot/turtle/internal/drawer"
)

// FormatVersion is the version written into new records.
const FormatVersion = "1.0.0"

const (
	magic = "TRTL"
	// maxDepth bounds loop nesting in decoded commands.
	maxDepth = 16
	maxLoop  = 1 << 24
)

var (
	// ErrFormat is returned for data that is not a valid record.
	ErrFormat = errors.New("invalid project data")
	// ErrVersion is returned for records written in an incompatible format.
	ErrVersion = fmt.Errorf("%w: unsupported version", ErrFormat)

	readable = mustConstraint("^1.0.0, <= " + FormatVersion)
)

func mustConstraint(c string) *semver.Constraints {
	cs, err := semver.NewConstraint(c)
	if err != nil {
		panic(err)
	}
	return cs
}

// Script is a stored script. Deleted scripts stay in the record until purged.
type Script struct {
	Name    string `json:"name"`
	Source  string `json:"source"`
	Deleted bool   `json:"deleted,omitempty"`
}

// Record is everything a project file holds.
type Record struct {
	Version string          `json:"version"`
	Drawers []drawer.State  `json:"drawers"`
	Scripts []Script        `json:"scripts"`
	Demos   []demo.Instance `json:"demos"`
}

// Encode serializes rec. The version field is always FormatVersion.
func Encode(rec *Record) ([]byte, error) {
	e := &encoder{}
	e.buf.WriteString(magic)
	e.string(FormatVersion)

	e.uvarint(uint64(len(rec.Drawers)))
	for _, d := range rec.Drawers {
		if d.ID == "" {
			return nil, fmt.Errorf("%w: drawer with empty id", ErrFormat)
		}
		e.drawer(d)
	}
	e.uvarint(uint64(len(rec.Scripts)))
	for _, s := range rec.Scripts {
		e.string(s.Name)
		e.string(s.Source)
		e.bool(s.Deleted)
	}
	e.uvarint(uint64(len(rec.Demos)))
	for _, d := range rec.Demos {
		e.demo(d)
	}
	return e.buf.Bytes(), nil
}

// Decode parses data produced by Encode.
func Decode(data []byte) (*Record, error) {
	d := &decoder{data: data}
	version, err := d.header()
	if err != nil {
		return nil, err
	}
	rec := &Record{Version: version}

	if n := d.count(minDrawer); n > 0 {
		rec.Drawers = make([]drawer.State, 0, n)
		seen := make(map[string]bool, n)
		for i := 0; i < n && d.err == nil; i++ {
			s := d.drawer()
			if d.err != nil {
				break
			}
			if s.ID == "" {
				return nil, fmt.Errorf("%w: drawer with empty id", ErrFormat)
			}
			if seen[s.ID] {
				return nil, fmt.Errorf("%w: duplicate drawer %q", ErrFormat, s.ID)
			}
			seen[s.ID] = true
			rec.Drawers = append(rec.Drawers, s)
		}
	}
	if n := d.count(minScript); n > 0 {
		rec.Scripts = make([]Script, 0, n)
		seen := make(map[string]bool, n)
		for i := 0; i < n && d.err == nil; i++ {
			s := Script{Name: d.string(), Source: d.string(), Deleted: d.bool()}
			if d.err != nil {
				break
			}
			if seen[s.Name] {
				return nil, fmt.Errorf("%w: duplicate script %q", ErrFormat, s.Name)
			}
			seen[s.Name] = true
			rec.Scripts = append(rec.Scripts, s)
		}
	}
	if n := d.count(minDemo); n > 0 {
		rec.Demos = make([]demo.Instance, 0, n)
		for i := 0; i < n && d.err == nil; i++ {
			rec.Demos = append(rec.Demos, d.demo())
		}
	}
	if err := d.finish(); err != nil {
		return nil, err
	}
	return rec, nil
}

// EncodeDemo serializes a single demo.
func EncodeDemo(inst demo.Instance) []byte {
	e := &encoder{}
	e.buf.WriteString(magic)
	e.string(FormatVersion)
	e.demo(inst)
	return e.buf.Bytes()
}

// DecodeDemo parses data produced by EncodeDemo.
func DecodeDemo(data []byte) (demo.Instance, error) {
	d := &decoder{data: data}
	if _, err := d.header(); err != nil {
		return demo.Instance{}, err
	}
	inst := d.demo()
	if err := d.finish(); err != nil {
		return demo.Instance{}, err
	}
	return inst, nil
}

type encoder struct {
	buf bytes.Buffer
}

func (e *encoder) uvarint(v uint64) {
	e.buf.Write(binary.AppendUvarint(nil, v))
}

func (e *encoder) varint(v int64) {
	e.buf.Write(binary.AppendVarint(nil, v))
}

func (e *encoder) float(v float64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], math.Float64bits(v))
	e.buf.Write(b[:])
}

func (e *encoder) bool(v bool) {
	if v {
		e.buf.WriteByte(1)
	} else {
		e.buf.WriteByte(0)
	}
}

func (e *encoder) string(s string) {
	e.uvarint(uint64(len(s)))
	e.buf.WriteString(s)
}

func (e *encoder) point(p drawer.Point) {
	e.float(p.X)
	e.float(p.Y)
}

func (e *encoder) color(c drawer.Color) {
	e.float(c.R)
	e.float(c.G)
	e.float(c.B)
	e.float(c.A)
}

func (e *encoder) drawer(s drawer.State) {
	e.string(s.ID)
	e.point(s.Position)
	e.float(s.Heading)
	e.color(s.Color)
	e.bool(s.Enabled)
	e.uvarint(uint64(len(s.Segments)))
	for _, seg := range s.Segments {
		e.point(seg.Start)
		e.point(seg.End)
		e.color(seg.Color)
		e.string(seg.DrawerID)
	}
	e.uvarint(uint64(len(s.Polygons)))
	for _, poly := range s.Polygons {
		e.uvarint(uint64(len(poly.Points)))
		for _, p := range poly.Points {
			e.point(p)
		}
		e.color(poly.Color)
		e.string(poly.DrawerID)
	}
}

func (e *encoder) demo(inst demo.Instance) {
	e.string(inst.Name)
	e.bool(!inst.CreatedAt.IsZero())
	if !inst.CreatedAt.IsZero() {
		e.varint(inst.CreatedAt.UnixNano())
	}
	e.commands(inst.Steps)
}

func (e *encoder) commands(cmds []command.Command) {
	e.uvarint(uint64(len(cmds)))
	for _, c := range cmds {
		e.buf.WriteByte(byte(c.Op))
		e.string(c.ID)
		e.uvarint(uint64(len(c.Args)))
		for _, a := range c.Args {
			e.float(a)
		}
		e.string(c.Text)
		e.varint(int64(c.Kind))
		e.uvarint(uint64(c.Count))
		e.commands(c.Body)
	}
}

// decoder reads a record. The first failure sticks in err and every later
// read returns a zero value.
type decoder struct {
	data  []byte
	pos   int
	depth int
	err   error
}

func (d *decoder) fail(format string, args ...interface{}) {
	if d.err == nil {
		d.err = fmt.Errorf("%w: %s at offset %d", ErrFormat, fmt.Sprintf(format, args...), d.pos)
	}
}

func (d *decoder) header() (string, error) {
	if len(d.data) < len(magic) || string(d.data[:len(magic)]) != magic {
		return "", fmt.Errorf("%w: bad magic", ErrFormat)
	}
	d.pos = len(magic)
	raw := d.string()
	if d.err != nil {
		return "", d.err
	}
	v, err := semver.NewVersion(raw)
	if err != nil {
		return "", fmt.Errorf("%w: version %q: %v", ErrFormat, raw, err)
	}
	if !readable.Check(v) {
		return "", fmt.Errorf("%w: %s (reader supports %s)", ErrVersion, v, FormatVersion)
	}
	return v.String(), nil
}

func (d *decoder) finish() error {
	if d.err != nil {
		return d.err
	}
	if d.pos != len(d.data) {
		return fmt.Errorf("%w: %d trailing bytes", ErrFormat, len(d.data)-d.pos)
	}
	return nil
}

func (d *decoder) take(n int) []byte {
	if d.err != nil {
		return nil
	}
	if n < 0 || n > len(d.data)-d.pos {
		d.fail("truncated")
		return nil
	}
	b := d.data[d.pos : d.pos+n]
	d.pos += n
	return b
}

func (d *decoder) uvarint() uint64 {
	if d.err != nil {
		return 0
	}
	v, n := binary.Uvarint(d.data[d.pos:])
	if n <= 0 {
		d.fail("bad uvarint")
		return 0
	}
	d.pos += n
	return v
}

func (d *decoder) varint() int64 {
	if d.err != nil {
		return 0
	}
	v, n := binary.Varint(d.data[d.pos:])
	if n <= 0 {
		d.fail("bad varint")
		return 0
	}
	d.pos += n
	return v
}

// Smallest encoded size of each element kind.
const (
	minString  = 1
	minFloat   = 8
	minPoint   = 2 * minFloat
	minColor   = 4 * minFloat
	minSegment = 2*minPoint + minColor + minString
	minPolygon = 1 + minColor + minString
	minDrawer  = minString + minPoint + minFloat + minColor + 1 + 1 + 1
	minScript  = 2*minString + 1
	minDemo    = minString + 1 + 1
	minCommand = 1 + minString + 1 + minString + 1 + 1 + 1
)

// count reads the number of elements that follow, each at least size bytes
// long. A count the remaining data cannot hold is corrupt, so capacities
// derived from it stay proportional to the input.
func (d *decoder) count(size int) int {
	n := d.uvarint()
	if d.err == nil && n > uint64((len(d.data)-d.pos)/size) {
		d.fail("count %d exceeds data", n)
		return 0
	}
	return int(n)
}

func (d *decoder) float() float64 {
	b := d.take(8)
	if b == nil {
		return 0
	}
	return math.Float64frombits(binary.BigEndian.Uint64(b))
}

func (d *decoder) bool() bool {
	b := d.take(1)
	if b == nil {
		return false
	}
	switch b[0] {
	case 0:
		return false
	case 1:
		return true
	}
	d.fail("bad bool %d", b[0])
	return false
}

func (d *decoder) string() string {
	n := d.count(1)
	return string(d.take(n))
}

func (d *decoder) point() drawer.Point {
	return drawer.Point{X: d.float(), Y: d.float()}
}

func (d *decoder) color() drawer.Color {
	return drawer.Color{R: d.float(), G: d.float(), B: d.float(), A: d.float()}
}

func (d *decoder) drawer() drawer.State {
	s := drawer.State{
		ID:       d.string(),
		Position: d.point(),
		Heading:  d.float(),
		Color:    d.color(),
		Enabled:  d.bool(),
	}
	if n := d.count(minSegment); n > 0 {
		s.Segments = make([]drawer.Segment, 0, n)
		for i := 0; i < n && d.err == nil; i++ {
			s.Segments = append(s.Segments, drawer.Segment{
				Start:    d.point(),
				End:      d.point(),
				Color:    d.color(),
				DrawerID: d.string(),
			})
		}
	}
	if n := d.count(minPolygon); n > 0 {
		s.Polygons = make([]drawer.Polygon, 0, n)
		for i := 0; i < n && d.err == nil; i++ {
			var poly drawer.Polygon
			if m := d.count(minPoint); m > 0 {
				poly.Points = make([]drawer.Point, 0, m)
				for j := 0; j < m && d.err == nil; j++ {
					poly.Points = append(poly.Points, d.point())
				}
			}
			poly.Color = d.color()
			poly.DrawerID = d.string()
			s.Polygons = append(s.Polygons, poly)
		}
	}
	return s
}

func (d *decoder) demo() demo.Instance {
	inst := demo.Instance{Name: d.string()}
	if d.bool() {
		inst.CreatedAt = time.Unix(0, d.varint())
	}
	inst.Steps = d.commands()
	return inst
}

func (d *decoder) commands() []command.Command {
	n := d.count(minCommand)
	if n == 0 {
		return nil
	}
	if d.depth >= maxDepth {
		d.fail("loops nested too deeply")
		return nil
	}
	d.depth++
	defer func() { d.depth-- }()

	cmds := make([]command.Command, 0, n)
	for i := 0; i < n && d.err == nil; i++ {
		var c command.Command
		if b := d.take(1); b != nil {
			c.Op = command.Op(b[0])
		}
		c.ID = d.string()
		if m := d.count(minFloat); m > 0 {
			c.Args = make([]float64, 0, m)
			for j := 0; j < m && d.err == nil; j++ {
				c.Args = append(c.Args, d.float())
			}
		}
		c.Text = d.string()
		c.Kind = int(d.varint())
		count := d.uvarint()
		if count > maxLoop {
			d.fail("loop count %d", count)
		}
		c.Count = int(count)
		c.Body = d.commands()
		if d.err == nil {
			if err := c.Validate(); err != nil {
				d.fail("%v", err)
			}
		}
		cmds = append(cmds, c)
	}
	return cmds
}
