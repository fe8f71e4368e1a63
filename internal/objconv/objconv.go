// Package objconv converts Wavefront OBJ geometry into the vertex and
// index buffers the container writer expects. Faces are fan-triangulated
// and each distinct position/uv/normal triple becomes one output vertex.
package objconv

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/iyesgames/iyesmesh/pkg/ima"
)

var (
	ErrNoPositions = errors.New("objconv: no vertex positions")
	ErrNoFaces     = errors.New("objconv: no faces")
)

// Mesh holds the converted buffers. Positions are always present;
// Normals and UVs are empty when the OBJ faces do not reference them.
type Mesh struct {
	Positions []byte // float32x3 per vertex
	Normals   []byte // float32x3 per vertex, or empty
	UVs       []byte // float32x2 per vertex, or empty
	Indices   []byte
	Format    ima.IndexFormat

	nVertices int
}

// NVertices returns the number of deduplicated output vertices.
func (m *Mesh) NVertices() int { return m.nVertices }

// NTriangles returns the number of triangles after fan triangulation.
func (m *Mesh) NTriangles() int { return len(m.Indices) / m.Format.Size() / 3 }

// MeshData returns a view of the buffers ready for the writer.
func (m *Mesh) MeshData() ima.MeshData {
	attrs := map[ima.VertexUsage]ima.AttributeBuffer{
		ima.UsagePosition: {Format: ima.FormatFloat32x3, Data: m.Positions},
	}
	if len(m.Normals) > 0 {
		attrs[ima.UsageNormal] = ima.AttributeBuffer{Format: ima.FormatFloat32x3, Data: m.Normals}
	}
	if len(m.UVs) > 0 {
		attrs[ima.UsageUv0] = ima.AttributeBuffer{Format: ima.FormatFloat32x2, Data: m.UVs}
	}
	return ima.MeshData{
		Indices:    &ima.IndexBuffer{Format: m.Format, Data: m.Indices},
		Attributes: attrs,
	}
}

// corner is one face vertex reference after index resolution.
// Zero-valued fields mean "not referenced" (OBJ indices are 1-based).
type corner struct {
	v, vt, vn int
}

type parser struct {
	positions [][3]float32
	uvs       [][2]float32
	normals   [][3]float32

	hasUV     bool
	hasNormal bool

	seen    map[corner]uint32
	order   []corner
	indices []uint32
}

// Parse reads OBJ text and converts it to mesh buffers.
func Parse(r io.Reader) (*Mesh, error) {
	p := &parser{seen: make(map[corner]uint32)}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		var err error
		switch fields[0] {
		case "v":
			err = p.parsePosition(fields[1:])
		case "vt":
			err = p.parseUV(fields[1:])
		case "vn":
			err = p.parseNormal(fields[1:])
		case "f":
			err = p.parseFace(fields[1:])
		default:
			// objects, groups, materials and smoothing are ignored
		}
		if err != nil {
			return nil, fmt.Errorf("objconv: line %d: %w", lineNo, err)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("objconv: read: %w", err)
	}

	if len(p.positions) == 0 {
		return nil, ErrNoPositions
	}
	if len(p.indices) == 0 {
		return nil, ErrNoFaces
	}
	return p.build()
}

func (p *parser) parsePosition(fields []string) error {
	if len(fields) < 3 {
		return errors.New("position needs 3 components")
	}
	var pos [3]float32
	for i := range 3 {
		f, err := strconv.ParseFloat(fields[i], 32)
		if err != nil {
			return fmt.Errorf("bad position component %q", fields[i])
		}
		pos[i] = float32(f)
	}
	p.positions = append(p.positions, pos)
	return nil
}

func (p *parser) parseUV(fields []string) error {
	if len(fields) < 2 {
		return errors.New("texcoord needs 2 components")
	}
	var uv [2]float32
	for i := range 2 {
		f, err := strconv.ParseFloat(fields[i], 32)
		if err != nil {
			return fmt.Errorf("bad texcoord component %q", fields[i])
		}
		uv[i] = float32(f)
	}
	p.uvs = append(p.uvs, uv)
	return nil
}

func (p *parser) parseNormal(fields []string) error {
	if len(fields) < 3 {
		return errors.New("normal needs 3 components")
	}
	var n [3]float32
	for i := range 3 {
		f, err := strconv.ParseFloat(fields[i], 32)
		if err != nil {
			return fmt.Errorf("bad normal component %q", fields[i])
		}
		n[i] = float32(f)
	}
	p.normals = append(p.normals, n)
	return nil
}

func (p *parser) parseFace(fields []string) error {
	if len(fields) < 3 {
		return errors.New("face needs at least 3 vertices")
	}

	corners := make([]uint32, len(fields))
	for i, field := range fields {
		c, err := p.parseCorner(field)
		if err != nil {
			return err
		}
		corners[i] = p.intern(c)
	}

	// fan triangulation for quads and larger polygons
	for i := 1; i+1 < len(corners); i++ {
		p.indices = append(p.indices, corners[0], corners[i], corners[i+1])
	}
	return nil
}

// parseCorner handles the v, v/vt, v//vn and v/vt/vn reference forms,
// including negative (relative) indices.
func (p *parser) parseCorner(field string) (corner, error) {
	parts := strings.Split(field, "/")
	if len(parts) > 3 {
		return corner{}, fmt.Errorf("bad face vertex %q", field)
	}

	var c corner
	v, err := resolveIndex(parts[0], len(p.positions))
	if err != nil {
		return corner{}, fmt.Errorf("bad face vertex %q: %w", field, err)
	}
	c.v = v

	useUV := len(parts) >= 2 && parts[1] != ""
	useNormal := len(parts) == 3 && parts[2] != ""
	if len(p.seen) == 0 {
		p.hasUV = useUV
		p.hasNormal = useNormal
	} else if useUV != p.hasUV || useNormal != p.hasNormal {
		return corner{}, fmt.Errorf("inconsistent face vertex %q", field)
	}

	if useUV {
		c.vt, err = resolveIndex(parts[1], len(p.uvs))
		if err != nil {
			return corner{}, fmt.Errorf("bad face vertex %q: %w", field, err)
		}
	}
	if useNormal {
		c.vn, err = resolveIndex(parts[2], len(p.normals))
		if err != nil {
			return corner{}, fmt.Errorf("bad face vertex %q: %w", field, err)
		}
	}
	return c, nil
}

// resolveIndex turns a 1-based (or negative relative) OBJ index into a
// 1-based absolute one, checked against the element count so far.
func resolveIndex(s string, n int) (int, error) {
	idx, err := strconv.Atoi(s)
	if err != nil || idx == 0 {
		return 0, fmt.Errorf("bad index %q", s)
	}
	if idx < 0 {
		idx = n + idx + 1
	}
	if idx < 1 || idx > n {
		return 0, fmt.Errorf("index %q out of range", s)
	}
	return idx, nil
}

// intern deduplicates a corner, returning its output vertex index.
func (p *parser) intern(c corner) uint32 {
	if idx, ok := p.seen[c]; ok {
		return idx
	}
	idx := uint32(len(p.order))
	p.seen[c] = idx
	p.order = append(p.order, c)
	return idx
}

func (p *parser) build() (*Mesh, error) {
	nVertices := len(p.order)
	m := &Mesh{
		Positions: make([]byte, 0, nVertices*12),
		nVertices: nVertices,
	}
	if p.hasNormal {
		m.Normals = make([]byte, 0, nVertices*12)
	}
	if p.hasUV {
		m.UVs = make([]byte, 0, nVertices*8)
	}

	for _, c := range p.order {
		pos := p.positions[c.v-1]
		m.Positions = appendF32(m.Positions, pos[0], pos[1], pos[2])
		if p.hasNormal {
			n := p.normals[c.vn-1]
			m.Normals = appendF32(m.Normals, n[0], n[1], n[2])
		}
		if p.hasUV {
			uv := p.uvs[c.vt-1]
			m.UVs = appendF32(m.UVs, uv[0], uv[1])
		}
	}

	// u16 indices when every vertex is addressable, u32 otherwise
	if nVertices <= 1<<16 {
		m.Format = ima.IndexU16
		m.Indices = make([]byte, 0, len(p.indices)*2)
		for _, idx := range p.indices {
			m.Indices = binary.LittleEndian.AppendUint16(m.Indices, uint16(idx))
		}
	} else {
		m.Format = ima.IndexU32
		m.Indices = make([]byte, 0, len(p.indices)*4)
		for _, idx := range p.indices {
			m.Indices = binary.LittleEndian.AppendUint32(m.Indices, idx)
		}
	}
	return m, nil
}

func appendF32(buf []byte, vals ...float32) []byte {
	for _, v := range vals {
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(v))
	}
	return buf
}
