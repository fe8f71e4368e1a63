package ima

import (
	"encoding/binary"
	"fmt"
	"sort"
)

// VertexUsage identifies the semantic role of a vertex attribute buffer.
// The numeric code is part of the file format and also defines the
// canonical attribute order used for the payload layout.
type VertexUsage uint32

const (
	UsagePosition VertexUsage = iota
	UsageNormal
	UsageTangent
	UsageUv0
	UsageUv1
	UsageJointIndex
	UsageJointWeight
	UsageColor
)

// customUsageBase offsets application-defined slots so they can never
// collide with named usages added in future format versions.
const customUsageBase VertexUsage = 0x10000

// CustomUsage returns the application-defined usage for the given slot.
func CustomUsage(slot uint32) VertexUsage {
	return customUsageBase + VertexUsage(slot)
}

// IsCustom reports whether u is an application-defined usage.
func (u VertexUsage) IsCustom() bool {
	return u >= customUsageBase
}

// CustomSlot returns the slot number of an application-defined usage.
func (u VertexUsage) CustomSlot() uint32 {
	return uint32(u - customUsageBase)
}

func (u VertexUsage) String() string {
	switch u {
	case UsagePosition:
		return "Position"
	case UsageNormal:
		return "Normal"
	case UsageTangent:
		return "Tangent"
	case UsageUv0:
		return "Uv0"
	case UsageUv1:
		return "Uv1"
	case UsageJointIndex:
		return "JointIndex"
	case UsageJointWeight:
		return "JointWeight"
	case UsageColor:
		return "Color"
	}
	if u.IsCustom() {
		return fmt.Sprintf("Custom(%d)", u.CustomSlot())
	}
	return fmt.Sprintf("usage(%d)", uint32(u))
}

func validUsage(u VertexUsage) bool {
	return u <= UsageColor || u.IsCustom()
}

// IndexFormat is the element width of an index buffer.
type IndexFormat uint8

const (
	IndexU16 IndexFormat = iota
	IndexU32
)

// Size returns the byte size of one index element.
func (f IndexFormat) Size() int {
	if f == IndexU32 {
		return 4
	}
	return 2
}

func (f IndexFormat) String() string {
	if f == IndexU32 {
		return "U32"
	}
	return "U16"
}

// VertexFormat is the element layout of a vertex attribute buffer.
// The numeric codes are part of the file format.
type VertexFormat uint8

const (
	FormatFloat16 VertexFormat = iota
	FormatFloat32
	FormatFloat64
	FormatFloat16x2
	FormatFloat16x4
	FormatFloat32x2
	FormatFloat32x3
	FormatFloat32x4
	FormatFloat64x2
	FormatFloat64x3
	FormatFloat64x4
	FormatSint8
	FormatSint8x2
	FormatSint8x4
	FormatSint16
	FormatSint32
	FormatSint16x2
	FormatSint16x4
	FormatSint32x2
	FormatSint32x3
	FormatSint32x4
	FormatSnorm8
	FormatSnorm8x2
	FormatSnorm8x4
	FormatSnorm16
	FormatSnorm16x2
	FormatSnorm16x4
	FormatUint8
	FormatUint8x2
	FormatUint8x4
	FormatUint16
	FormatUint32
	FormatUint16x2
	FormatUint16x4
	FormatUint32x2
	FormatUint32x3
	FormatUint32x4
	FormatUnorm8
	FormatUnorm8x2
	FormatUnorm8x4
	FormatUnorm8x4Bgra
	FormatUnorm16
	FormatUnorm10_10_10_2
	FormatUnorm16x2
	FormatUnorm16x4

	numVertexFormats
)

// Size returns the byte size of one element of the format.
func (f VertexFormat) Size() int {
	switch f {
	case FormatUint8, FormatSint8, FormatUnorm8, FormatSnorm8:
		return 1
	case FormatUint8x2, FormatSint8x2, FormatUnorm8x2, FormatSnorm8x2,
		FormatUint16, FormatSint16, FormatUnorm16, FormatSnorm16,
		FormatFloat16:
		return 2
	case FormatUint8x4, FormatSint8x4, FormatUnorm8x4, FormatSnorm8x4,
		FormatUint16x2, FormatSint16x2, FormatUnorm16x2, FormatSnorm16x2,
		FormatFloat16x2, FormatFloat32, FormatUint32, FormatSint32,
		FormatUnorm10_10_10_2, FormatUnorm8x4Bgra:
		return 4
	case FormatUint16x4, FormatSint16x4, FormatUnorm16x4, FormatSnorm16x4,
		FormatFloat16x4, FormatFloat32x2, FormatUint32x2, FormatSint32x2,
		FormatFloat64:
		return 8
	case FormatFloat32x3, FormatUint32x3, FormatSint32x3:
		return 12
	case FormatFloat32x4, FormatUint32x4, FormatSint32x4, FormatFloat64x2:
		return 16
	case FormatFloat64x3:
		return 24
	case FormatFloat64x4:
		return 32
	}
	return 0
}

var vertexFormatNames = [numVertexFormats]string{
	"Float16", "Float32", "Float64", "Float16x2", "Float16x4",
	"Float32x2", "Float32x3", "Float32x4", "Float64x2", "Float64x3",
	"Float64x4", "Sint8", "Sint8x2", "Sint8x4", "Sint16", "Sint32",
	"Sint16x2", "Sint16x4", "Sint32x2", "Sint32x3", "Sint32x4",
	"Snorm8", "Snorm8x2", "Snorm8x4", "Snorm16", "Snorm16x2",
	"Snorm16x4", "Uint8", "Uint8x2", "Uint8x4", "Uint16", "Uint32",
	"Uint16x2", "Uint16x4", "Uint32x2", "Uint32x3", "Uint32x4",
	"Unorm8", "Unorm8x2", "Unorm8x4", "Unorm8x4Bgra", "Unorm16",
	"Unorm10_10_10_2", "Unorm16x2", "Unorm16x4",
}

func (f VertexFormat) String() string {
	if f < numVertexFormats {
		return vertexFormatNames[f]
	}
	return fmt.Sprintf("format(%d)", uint8(f))
}

// MeshInfo locates one logical mesh within the shared buffers.
type MeshInfo struct {
	// First index (if indices are present) or first vertex otherwise.
	First uint32
	// Number of indices (if present) or vertices otherwise.
	Count uint32
	// Offset added to raw index values when locating vertices.
	// Unused for non-indexed meshes.
	BaseVertex int32
}

// IndicesInfo describes the shared index buffer.
type IndicesInfo struct {
	NIndices uint32
	Format   IndexFormat
}

// Descriptor is the variable-length metadata record following the
// header. It fully determines the layout of the decompressed payload.
type Descriptor struct {
	// NVertices applies uniformly to every attribute buffer.
	NVertices   uint32
	UserDataLen uint32
	Meshes      []MeshInfo
	// Indices is nil when the meshes are non-indexed.
	Indices    *IndicesInfo
	Attributes map[VertexUsage]VertexFormat
}

// CanonicalAttributeOrder returns the attribute usages sorted by their
// numeric code. The payload byte layout depends on this order on both
// encode and decode; map iteration order is never used for layout.
func (d *Descriptor) CanonicalAttributeOrder() []VertexUsage {
	usages := make([]VertexUsage, 0, len(d.Attributes))
	for u := range d.Attributes {
		usages = append(usages, u)
	}
	sort.Slice(usages, func(i, j int) bool { return usages[i] < usages[j] })
	return usages
}

// VertexBufSize returns the byte size of the buffer for one attribute,
// or false if the descriptor has no such attribute.
func (d *Descriptor) VertexBufSize(u VertexUsage) (uint64, bool) {
	f, ok := d.Attributes[u]
	if !ok {
		return 0, false
	}
	return uint64(f.Size()) * uint64(d.NVertices), true
}

// IndexBufSize returns the byte size of the shared index buffer, or
// zero when the meshes are non-indexed.
func (d *Descriptor) IndexBufSize() uint64 {
	if d.Indices == nil {
		return 0
	}
	return uint64(d.Indices.Format.Size()) * uint64(d.Indices.NIndices)
}

// AllVertexBufSizes returns the summed byte size of all attribute buffers.
func (d *Descriptor) AllVertexBufSizes() uint64 {
	var total uint64
	for _, f := range d.Attributes {
		total += uint64(f.Size()) * uint64(d.NVertices)
	}
	return total
}

// AllBufSizes returns the summed byte size of the index buffer and all
// attribute buffers.
func (d *Descriptor) AllBufSizes() uint64 {
	return d.IndexBufSize() + d.AllVertexBufSizes()
}

// TotalRawDataSize returns the exact decompressed payload length.
func (d *Descriptor) TotalRawDataSize() uint64 {
	return d.AllBufSizes() + uint64(d.UserDataLen)
}

// Descriptor wire schema, all little-endian:
//
//	u32 n_vertices
//	u32 user_data_len
//	u32 mesh_count, then mesh_count x { u32 first; u32 count; i32 base_vertex }
//	u8  has_indices; if nonzero: u32 n_indices, u8 index_format
//	u16 attr_count, then attr_count x { u32 usage; u8 format }
//
// Attributes are emitted in canonical usage order; the decoder rejects
// out-of-order or duplicate usages.

func encodeDescriptor(d *Descriptor) ([]byte, error) {
	buf := make([]byte, 0, 16+12*len(d.Meshes)+6+5*len(d.Attributes))
	buf = binary.LittleEndian.AppendUint32(buf, d.NVertices)
	buf = binary.LittleEndian.AppendUint32(buf, d.UserDataLen)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(d.Meshes)))
	for _, m := range d.Meshes {
		buf = binary.LittleEndian.AppendUint32(buf, m.First)
		buf = binary.LittleEndian.AppendUint32(buf, m.Count)
		buf = binary.LittleEndian.AppendUint32(buf, uint32(m.BaseVertex))
	}
	if d.Indices != nil {
		buf = append(buf, 1)
		buf = binary.LittleEndian.AppendUint32(buf, d.Indices.NIndices)
		buf = append(buf, byte(d.Indices.Format))
	} else {
		buf = append(buf, 0)
	}
	if len(d.Attributes) > 0xffff {
		return nil, fmt.Errorf("%w: too many attributes", ErrInvalidDescriptor)
	}
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(d.Attributes)))
	for _, u := range d.CanonicalAttributeOrder() {
		f := d.Attributes[u]
		if !validUsage(u) || f >= numVertexFormats {
			return nil, fmt.Errorf("%w: invalid attribute %v/%v", ErrInvalidDescriptor, u, f)
		}
		buf = binary.LittleEndian.AppendUint32(buf, uint32(u))
		buf = append(buf, byte(f))
	}
	return buf, nil
}

// descReader is a bounds-checked cursor over the raw descriptor bytes.
type descReader struct {
	buf []byte
	off int
}

func (r *descReader) u8() (uint8, error) {
	if r.off+1 > len(r.buf) {
		return 0, ErrInvalidDescriptor
	}
	v := r.buf[r.off]
	r.off++
	return v, nil
}

func (r *descReader) u16() (uint16, error) {
	if r.off+2 > len(r.buf) {
		return 0, ErrInvalidDescriptor
	}
	v := binary.LittleEndian.Uint16(r.buf[r.off:])
	r.off += 2
	return v, nil
}

func (r *descReader) u32() (uint32, error) {
	if r.off+4 > len(r.buf) {
		return 0, ErrInvalidDescriptor
	}
	v := binary.LittleEndian.Uint32(r.buf[r.off:])
	r.off += 4
	return v, nil
}

func decodeDescriptor(buf []byte) (*Descriptor, error) {
	r := descReader{buf: buf}
	var d Descriptor
	var err error
	if d.NVertices, err = r.u32(); err != nil {
		return nil, err
	}
	if d.UserDataLen, err = r.u32(); err != nil {
		return nil, err
	}
	meshCount, err := r.u32()
	if err != nil {
		return nil, err
	}
	// descriptor_len is a u16, so any plausible count fits in the buffer
	if uint64(meshCount)*12 > uint64(len(buf)) {
		return nil, fmt.Errorf("%w: mesh count out of range", ErrInvalidDescriptor)
	}
	d.Meshes = make([]MeshInfo, meshCount)
	for i := range d.Meshes {
		if d.Meshes[i].First, err = r.u32(); err != nil {
			return nil, err
		}
		if d.Meshes[i].Count, err = r.u32(); err != nil {
			return nil, err
		}
		base, err := r.u32()
		if err != nil {
			return nil, err
		}
		d.Meshes[i].BaseVertex = int32(base)
	}
	hasIndices, err := r.u8()
	if err != nil {
		return nil, err
	}
	switch hasIndices {
	case 0:
	case 1:
		var info IndicesInfo
		if info.NIndices, err = r.u32(); err != nil {
			return nil, err
		}
		f, err := r.u8()
		if err != nil {
			return nil, err
		}
		if f != uint8(IndexU16) && f != uint8(IndexU32) {
			return nil, fmt.Errorf("%w: unknown index format %d", ErrInvalidDescriptor, f)
		}
		info.Format = IndexFormat(f)
		d.Indices = &info
	default:
		return nil, fmt.Errorf("%w: bad indices tag %d", ErrInvalidDescriptor, hasIndices)
	}
	attrCount, err := r.u16()
	if err != nil {
		return nil, err
	}
	d.Attributes = make(map[VertexUsage]VertexFormat, attrCount)
	prev := int64(-1)
	for i := 0; i < int(attrCount); i++ {
		rawUsage, err := r.u32()
		if err != nil {
			return nil, err
		}
		rawFormat, err := r.u8()
		if err != nil {
			return nil, err
		}
		u := VertexUsage(rawUsage)
		if !validUsage(u) {
			return nil, fmt.Errorf("%w: unknown usage %d", ErrInvalidDescriptor, rawUsage)
		}
		if int64(rawUsage) <= prev {
			return nil, fmt.Errorf("%w: attributes not in canonical order", ErrInvalidDescriptor)
		}
		prev = int64(rawUsage)
		if VertexFormat(rawFormat) >= numVertexFormats {
			return nil, fmt.Errorf("%w: unknown vertex format %d", ErrInvalidDescriptor, rawFormat)
		}
		d.Attributes[u] = VertexFormat(rawFormat)
	}
	if r.off != len(buf) {
		return nil, fmt.Errorf("%w: trailing bytes", ErrInvalidDescriptor)
	}
	return &d, nil
}
