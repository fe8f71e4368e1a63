package ima

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// MaxCompressionLevel is the strongest zstd compression level.
const MaxCompressionLevel = 22

// WriterSettings controls how a Writer encodes its output.
type WriterSettings struct {
	// UpconvertIndices widens U16 index buffers to U32 when the
	// accumulated meshes disagree on index width. Without it, mixed
	// widths are an incompatibility error.
	UpconvertIndices bool

	// WriteDataChecksum controls whether the payload checksum is
	// computed and stored. Disabling it writes the zero sentinel
	// instead and lets the compressed payload stream straight to the
	// output in a single pass, with no full-payload buffering.
	WriteDataChecksum bool

	// CompressionLevel is the zstd compression level (1..22).
	CompressionLevel int
}

// DefaultWriterSettings returns the settings used by NewWriter:
// no index upconversion, data checksum on, maximum compression.
func DefaultWriterSettings() WriterSettings {
	return WriterSettings{
		UpconvertIndices:  false,
		WriteDataChecksum: true,
		CompressionLevel:  MaxCompressionLevel,
	}
}

// Writer accumulates mesh views and user data, then encodes them into
// one container with WriteTo. A Writer is single-use: WriteTo consumes
// it, successful or not.
type Writer struct {
	settings WriterSettings
	userData []byte
	meshes   []MeshData
	consumed bool
}

// NewWriter returns a Writer with default settings.
func NewWriter() *Writer {
	return NewWriterWithSettings(DefaultWriterSettings())
}

// NewWriterWithSettings returns a Writer with the given settings.
func NewWriterWithSettings(settings WriterSettings) *Writer {
	return &Writer{settings: settings}
}

// SetUserData sets the opaque user-data blob stored at the start of the
// payload. The slice is borrowed until WriteTo returns.
func (w *Writer) SetUserData(data []byte) {
	w.userData = data
}

// ClearUserData removes any previously set user data.
func (w *Writer) ClearUserData() {
	w.userData = nil
}

// AddMesh validates the view's buffer invariants and appends it,
// unmodified, to the accumulation list. Returns ErrInvalidMesh if the
// invariants do not hold. The view's slices are borrowed until WriteTo
// returns.
func (w *Writer) AddMesh(mesh MeshData) error {
	if !mesh.Validate() {
		return ErrInvalidMesh
	}
	w.meshes = append(w.meshes, mesh)
	return nil
}

// unifiedBuffers is the shared shape every accumulated mesh must fit.
type unifiedBuffers struct {
	hasIndices  bool
	indexFormat IndexFormat
	attrs       map[VertexUsage]VertexFormat
}

func (w *Writer) unifyBuffers() (unifiedBuffers, error) {
	if len(w.meshes) == 0 {
		return unifiedBuffers{}, ErrNoMeshes
	}
	first := &w.meshes[0]
	uni := unifiedBuffers{
		hasIndices: first.Indices != nil,
		attrs:      make(map[VertexUsage]VertexFormat, len(first.Attributes)),
	}
	if first.Indices != nil {
		uni.indexFormat = first.Indices.Format
	}
	for u, b := range first.Attributes {
		uni.attrs[u] = b.Format
	}
	for i := 1; i < len(w.meshes); i++ {
		m := &w.meshes[i]
		switch {
		case m.Indices == nil && !uni.hasIndices:
		case m.Indices == nil || !uni.hasIndices:
			// indexed and non-indexed meshes cannot share a layout
			return unifiedBuffers{}, ErrIncompatibleMeshes
		case m.Indices.Format == uni.indexFormat:
		case m.Indices.Format == IndexU16 && uni.indexFormat == IndexU32:
			if !w.settings.UpconvertIndices {
				return unifiedBuffers{}, ErrIncompatibleMeshes
			}
		case m.Indices.Format == IndexU32 && uni.indexFormat == IndexU16:
			if !w.settings.UpconvertIndices {
				return unifiedBuffers{}, ErrIncompatibleMeshes
			}
			uni.indexFormat = IndexU32
		}
		if len(m.Attributes) != len(uni.attrs) {
			return unifiedBuffers{}, ErrIncompatibleMeshes
		}
		for u, b := range m.Attributes {
			if f, ok := uni.attrs[u]; !ok || f != b.Format {
				return unifiedBuffers{}, ErrIncompatibleMeshes
			}
		}
	}
	return uni, nil
}

// computeUncompressedSize sums the raw payload bytes contributed by the
// accumulated meshes, doubling the index bytes of any U16 buffer that
// will be widened to U32.
func (w *Writer) computeUncompressedSize(upconverting bool) uint64 {
	var total uint64
	for i := range w.meshes {
		m := &w.meshes[i]
		if m.Indices != nil {
			if upconverting && m.Indices.Format == IndexU16 {
				total += uint64(len(m.Indices.Data)) * 2
			} else {
				total += uint64(len(m.Indices.Data))
			}
		}
		for _, b := range m.Attributes {
			total += uint64(len(b.Data))
		}
	}
	return total
}

// genMeshTable assigns each mesh its sub-range of the shared buffers,
// in accumulation order. For indexed output, First/Count walk a running
// index cursor and BaseVertex a running vertex cursor; raw index values
// stay mesh-local and are rebased through BaseVertex. For non-indexed
// output, First/Count walk the vertex cursor directly.
func (w *Writer) genMeshTable(hasIndices bool) []MeshInfo {
	table := make([]MeshInfo, 0, len(w.meshes))
	var first uint32
	var baseVertex uint32
	for i := range w.meshes {
		m := &w.meshes[i]
		nVertices := uint32(m.NVertices())
		if hasIndices {
			nIndices, _ := m.NIndices()
			table = append(table, MeshInfo{
				First:      first,
				Count:      uint32(nIndices),
				BaseVertex: int32(baseVertex),
			})
			first += uint32(nIndices)
			baseVertex += nVertices
		} else {
			table = append(table, MeshInfo{
				First: first,
				Count: nVertices,
			})
			first += nVertices
		}
	}
	return table
}

// WriteTo validates and unifies the accumulated meshes, derives the
// packed layout, and emits the complete container to out. It consumes
// the Writer.
func (w *Writer) WriteTo(out io.Writer) error {
	if w.consumed {
		return errors.New("ima: writer already consumed")
	}
	w.consumed = true

	uni, err := w.unifyBuffers()
	if err != nil {
		return err
	}
	upconverting := w.settings.UpconvertIndices &&
		uni.hasIndices && uni.indexFormat == IndexU32
	var nVertices, nIndices uint64
	for i := range w.meshes {
		nVertices += uint64(w.meshes[i].NVertices())
		if n, ok := w.meshes[i].NIndices(); ok {
			nIndices += uint64(n)
		}
	}
	descriptor := &Descriptor{
		NVertices:   uint32(nVertices),
		UserDataLen: uint32(len(w.userData)),
		Meshes:      w.genMeshTable(uni.hasIndices),
		Attributes:  uni.attrs,
	}
	if uni.hasIndices {
		descriptor.Indices = &IndicesInfo{
			NIndices: uint32(nIndices),
			Format:   uni.indexFormat,
		}
	}
	descriptorBytes, err := encodeDescriptor(descriptor)
	if err != nil {
		return err
	}
	if len(descriptorBytes) > math.MaxUint16 {
		return fmt.Errorf("%w: descriptor exceeds %d bytes", ErrInvalidDescriptor, math.MaxUint16)
	}
	header := Header{
		Magic:         magicBytes,
		Version:       FormatVersion,
		DescriptorLen: uint16(len(descriptorBytes)),
	}
	totalUncompressed := w.computeUncompressedSize(upconverting) + uint64(len(w.userData))

	var headerBytes [HeaderSize]byte
	if w.settings.WriteDataChecksum {
		// Two-pass path: the whole compressed payload is produced into
		// memory first, since the checksum needs the finished bytes.
		var payload bytes.Buffer
		enc, err := newZstdEncoder(&payload, w.settings.CompressionLevel, totalUncompressed)
		if err != nil {
			return err
		}
		if err := w.encodeData(descriptor, upconverting, enc); err != nil {
			return err
		}
		if err := enc.Close(); err != nil {
			return err
		}
		header.DataChecksum = ChecksumData(payload.Bytes())
		header.MetadataChecksum = ChecksumMetadata(header, descriptorBytes)
		encodeHeader(headerBytes[:], header)
		if _, err := out.Write(headerBytes[:]); err != nil {
			return err
		}
		if _, err := out.Write(descriptorBytes); err != nil {
			return err
		}
		_, err = out.Write(payload.Bytes())
		return err
	}

	// Single-pass path: DataChecksum stays at the zero sentinel and the
	// compressed payload streams straight to the output.
	header.MetadataChecksum = ChecksumMetadata(header, descriptorBytes)
	encodeHeader(headerBytes[:], header)
	if _, err := out.Write(headerBytes[:]); err != nil {
		return err
	}
	if _, err := out.Write(descriptorBytes); err != nil {
		return err
	}
	enc, err := newZstdEncoder(out, w.settings.CompressionLevel, totalUncompressed)
	if err != nil {
		return err
	}
	if err := w.encodeData(descriptor, upconverting, enc); err != nil {
		return err
	}
	return enc.Close()
}

// encodeData writes the raw payload through the compressor in the fixed
// order: user data, all index bytes in accumulation order (widened if
// upconverting), then for each attribute in canonical order all meshes'
// vertex bytes in accumulation order.
func (w *Writer) encodeData(descriptor *Descriptor, upconverting bool, enc io.Writer) error {
	if len(w.userData) > 0 {
		if _, err := enc.Write(w.userData); err != nil {
			return err
		}
	}
	if descriptor.Indices != nil {
		var scratch []byte
		for i := range w.meshes {
			idx := w.meshes[i].Indices
			if upconverting && idx.Format == IndexU16 {
				scratch = widenIndices(scratch[:0], idx.Data)
				if _, err := enc.Write(scratch); err != nil {
					return err
				}
			} else {
				if _, err := enc.Write(idx.Data); err != nil {
					return err
				}
			}
		}
	}
	for _, u := range descriptor.CanonicalAttributeOrder() {
		for i := range w.meshes {
			if _, err := enc.Write(w.meshes[i].Attributes[u].Data); err != nil {
				return err
			}
		}
	}
	return nil
}

// widenIndices converts little-endian u16 index bytes to u32, appending
// to dst. Values are unchanged, only the width grows.
func widenIndices(dst, src []byte) []byte {
	for i := 0; i+2 <= len(src); i += 2 {
		v := uint32(binary.LittleEndian.Uint16(src[i:]))
		dst = binary.LittleEndian.AppendUint32(dst, v)
	}
	return dst
}
