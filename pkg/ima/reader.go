package ima

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/cespare/xxhash/v2"
)

// ReaderSettings controls checksum verification on read.
type ReaderSettings struct {
	VerifyMetadataChecksum bool
	VerifyDataChecksum     bool
}

// DefaultReaderSettings returns the settings used by Open: both
// checksums verified.
func DefaultReaderSettings() ReaderSettings {
	return ReaderSettings{
		VerifyMetadataChecksum: true,
		VerifyDataChecksum:     true,
	}
}

// Reader is a container opened for reading: header and descriptor are
// parsed, the payload is still compressed on the underlying stream.
//
// A Reader is single-use: VerifyDataChecksum, ReadAllData and
// ReadUserData each consume it. The source must be an io.ReadSeeker
// because verified-data reads hash the whole compressed payload first
// and then seek back to decompress it in a second pass; callers with a
// non-seekable transport must buffer it themselves or disable data
// verification.
type Reader struct {
	src        io.ReadSeeker
	settings   ReaderSettings
	header     Header
	descriptor *Descriptor
	rawDataLen uint64
	consumed   bool
}

// Open parses the header and descriptor from src with default settings.
func Open(src io.ReadSeeker) (*Reader, error) {
	return OpenWithSettings(DefaultReaderSettings(), src)
}

// OpenWithSettings parses the header and descriptor from src. The
// stream is left positioned at the start of the compressed payload.
func OpenWithSettings(settings ReaderSettings, src io.ReadSeeker) (*Reader, error) {
	var headerBytes [HeaderSize]byte
	if _, err := io.ReadFull(src, headerBytes[:]); err != nil {
		return nil, fmt.Errorf("ima: read header: %w", err)
	}
	header, ok := decodeHeader(headerBytes[:])
	if !ok {
		return nil, ErrInvalidHeader
	}
	if header.Magic != magicBytes {
		return nil, ErrBadMagic
	}
	if header.Version != FormatVersion {
		return nil, fmt.Errorf("%w: %d", ErrBadVersion, header.Version)
	}
	descriptorBytes := make([]byte, header.DescriptorLen)
	if _, err := io.ReadFull(src, descriptorBytes); err != nil {
		return nil, fmt.Errorf("ima: read descriptor: %w", err)
	}
	if settings.VerifyMetadataChecksum {
		if ChecksumMetadata(header, descriptorBytes) != header.MetadataChecksum {
			return nil, ErrInvalidChecksums
		}
	}
	descriptor, err := decodeDescriptor(descriptorBytes)
	if err != nil {
		return nil, err
	}
	return &Reader{
		src:        src,
		settings:   settings,
		header:     header,
		descriptor: descriptor,
		rawDataLen: descriptor.TotalRawDataSize(),
	}, nil
}

// Header returns the decoded file header.
func (r *Reader) Header() Header {
	return r.header
}

// Descriptor returns the decoded descriptor.
func (r *Reader) Descriptor() *Descriptor {
	return r.descriptor
}

func (r *Reader) consume() error {
	if r.consumed {
		return errors.New("ima: reader already consumed")
	}
	r.consumed = true
	return nil
}

// hashRemaining hashes everything from the current stream position to
// EOF, chunk by chunk.
func hashRemaining(src io.Reader) (uint64, error) {
	d := xxhash.New()
	buf := make([]byte, 4096)
	for {
		n, err := src.Read(buf)
		if n > 0 {
			_, _ = d.Write(buf[:n])
		}
		if err == io.EOF {
			return d.Sum64(), nil
		}
		if err != nil {
			return 0, err
		}
	}
}

// verifyDataAndRewind implements the two-pass verified read: hash the
// whole compressed payload, compare, then seek back to the payload
// start. A zero stored checksum means "no checksum" and skips the pass.
func (r *Reader) verifyDataAndRewind() error {
	if !r.settings.VerifyDataChecksum || r.header.DataChecksum == 0 {
		return nil
	}
	sum, err := hashRemaining(r.src)
	if err != nil {
		return err
	}
	if sum != r.header.DataChecksum {
		return ErrInvalidChecksums
	}
	_, err = r.src.Seek(int64(HeaderSize)+int64(r.header.DescriptorLen), io.SeekStart)
	return err
}

// VerifyDataChecksum hashes the compressed payload and compares it to
// the stored data checksum, without decompressing anything. A zero
// stored checksum always passes. Consumes the Reader.
func (r *Reader) VerifyDataChecksum() error {
	if err := r.consume(); err != nil {
		return err
	}
	if r.header.DataChecksum == 0 {
		return nil
	}
	sum, err := hashRemaining(r.src)
	if err != nil {
		return err
	}
	if sum != r.header.DataChecksum {
		return ErrInvalidChecksums
	}
	return nil
}

// ReadAllData verifies the payload checksum if requested, decompresses
// the payload into a buffer sized exactly from descriptor math, and
// returns the data-bearing stage. Consumes the Reader.
func (r *Reader) ReadAllData() (*WithData, error) {
	if err := r.consume(); err != nil {
		return nil, err
	}
	if err := r.verifyDataAndRewind(); err != nil {
		return nil, err
	}
	buf, err := r.decompress(r.rawDataLen)
	if err != nil {
		return nil, err
	}
	return &WithData{descriptor: r.descriptor, buf: buf}, nil
}

// ReadUserData is like ReadAllData but materializes only the user-data
// blob, which is always first in payload order, leaving the index and
// attribute data undecoded. Consumes the Reader.
func (r *Reader) ReadUserData() ([]byte, error) {
	if err := r.consume(); err != nil {
		return nil, err
	}
	if err := r.verifyDataAndRewind(); err != nil {
		return nil, err
	}
	return r.decompress(uint64(r.descriptor.UserDataLen))
}

func (r *Reader) decompress(n uint64) ([]byte, error) {
	dec, err := newZstdDecoder(r.src)
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	buf := make([]byte, n)
	if _, err := io.ReadFull(dec, buf); err != nil {
		return nil, fmt.Errorf("ima: decompress payload: %w", err)
	}
	return buf, nil
}

// WithData is a container whose payload has been fully decompressed.
// It owns the single decompressed allocation; every view produced by
// IntoFlatBuffers and IntoSplitMeshes borrows from it.
type WithData struct {
	descriptor *Descriptor
	buf        []byte
}

// Descriptor returns the decoded descriptor.
func (d *WithData) Descriptor() *Descriptor {
	return d.descriptor
}

// FlatBuffers exposes the whole-file logical buffers as zero-copy
// slices of the decompressed payload.
type FlatBuffers struct {
	// UserData is nil when the file carries no user data.
	UserData []byte
	// Indices is nil when the meshes are non-indexed.
	Indices    *IndexBuffer
	Attributes map[VertexUsage]AttributeBuffer
}

// IntoFlatBuffers carves the decompressed payload into the named
// buffers in the fixed order: user data, index buffer, then attributes
// in canonical order. The payload must be accounted for exactly: any
// shortfall is ErrNotEnoughData, any leftover is ErrTooMuchData.
func (d *WithData) IntoFlatBuffers() (*FlatBuffers, error) {
	out := &FlatBuffers{
		Attributes: make(map[VertexUsage]AttributeBuffer, len(d.descriptor.Attributes)),
	}
	remain := d.buf
	if d.descriptor.UserDataLen > 0 {
		size := int(d.descriptor.UserDataLen)
		if len(remain) < size {
			return nil, ErrNotEnoughData
		}
		out.UserData = remain[:size:size]
		remain = remain[size:]
	}
	if d.descriptor.Indices != nil {
		size := int(d.descriptor.IndexBufSize())
		if len(remain) < size {
			return nil, ErrNotEnoughData
		}
		out.Indices = &IndexBuffer{
			Format: d.descriptor.Indices.Format,
			Data:   remain[:size:size],
		}
		remain = remain[size:]
	}
	for _, u := range d.descriptor.CanonicalAttributeOrder() {
		format := d.descriptor.Attributes[u]
		size := format.Size() * int(d.descriptor.NVertices)
		if len(remain) < size {
			return nil, ErrNotEnoughData
		}
		out.Attributes[u] = AttributeBuffer{
			Format: format,
			Data:   remain[:size:size],
		}
		remain = remain[size:]
	}
	if len(remain) != 0 {
		return nil, ErrTooMuchData
	}
	return out, nil
}

// IntoSplitMeshes slices the flat buffers into one MeshData view per
// descriptor mesh entry. For indexed meshes the vertex sub-range is
// reconstructed by scanning the mesh's index values and rebasing the
// min/max through BaseVertex. All views borrow from the flat buffers.
func (d *WithData) IntoSplitMeshes(buffers *FlatBuffers) ([]MeshData, error) {
	meshes := make([]MeshData, 0, len(d.descriptor.Meshes))
	for _, m := range d.descriptor.Meshes {
		mesh := MeshData{
			Attributes: make(map[VertexUsage]AttributeBuffer, len(buffers.Attributes)),
		}
		if buffers.Indices != nil {
			isz := buffers.Indices.Format.Size()
			offset := uint64(m.First) * uint64(isz)
			end := offset + uint64(m.Count)*uint64(isz)
			if end > uint64(len(buffers.Indices.Data)) {
				return nil, ErrNotEnoughData
			}
			indexData := buffers.Indices.Data[offset:end:end]
			mesh.Indices = &IndexBuffer{
				Format: buffers.Indices.Format,
				Data:   indexData,
			}
			vMin, vMax, ok := vertexRangeFromIndices(indexData, buffers.Indices.Format, m.BaseVertex)
			if !ok {
				return nil, ErrNotEnoughData
			}
			for u, b := range buffers.Attributes {
				vsz := b.Format.Size()
				start := vMin * uint64(vsz)
				stop := (vMax + 1) * uint64(vsz)
				if stop > uint64(len(b.Data)) {
					return nil, ErrNotEnoughData
				}
				mesh.Attributes[u] = AttributeBuffer{
					Format: b.Format,
					Data:   b.Data[start:stop:stop],
				}
			}
		} else {
			for u, b := range buffers.Attributes {
				vsz := b.Format.Size()
				offset := uint64(m.First) * uint64(vsz)
				end := offset + uint64(m.Count)*uint64(vsz)
				if end > uint64(len(b.Data)) {
					return nil, ErrNotEnoughData
				}
				mesh.Attributes[u] = AttributeBuffer{
					Format: b.Format,
					Data:   b.Data[offset:end:end],
				}
			}
		}
		meshes = append(meshes, mesh)
	}
	return meshes, nil
}

// vertexRangeFromIndices scans raw index data for its minimum and
// maximum values and rebases them through baseVertex. The resulting
// inclusive range must be non-negative and non-decreasing.
func vertexRangeFromIndices(data []byte, format IndexFormat, baseVertex int32) (uint64, uint64, bool) {
	var iMin, iMax uint32
	switch format {
	case IndexU16:
		for i := 0; i+2 <= len(data); i += 2 {
			v := uint32(binary.LittleEndian.Uint16(data[i:]))
			if i == 0 || v < iMin {
				iMin = v
			}
			if v > iMax {
				iMax = v
			}
		}
	case IndexU32:
		for i := 0; i+4 <= len(data); i += 4 {
			v := binary.LittleEndian.Uint32(data[i:])
			if i == 0 || v < iMin {
				iMin = v
			}
			if v > iMax {
				iMax = v
			}
		}
	}
	vMin := int64(iMin) + int64(baseVertex)
	vMax := int64(iMax) + int64(baseVertex)
	if vMin < 0 || vMax < vMin {
		return 0, 0, false
	}
	return uint64(vMin), uint64(vMax), true
}

// IsContainerFile peeks at the first four bytes of src and reports
// whether they match the container magic, restoring the position to the
// start of the stream.
func IsContainerFile(src io.ReadSeeker) (bool, error) {
	if _, err := src.Seek(0, io.SeekStart); err != nil {
		return false, err
	}
	var magic [4]byte
	if _, err := io.ReadFull(src, magic[:]); err != nil {
		return false, err
	}
	if _, err := src.Seek(0, io.SeekStart); err != nil {
		return false, err
	}
	return magic == magicBytes, nil
}
