package ima

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"testing"
)

func f32Bytes(vals ...float32) []byte {
	buf := make([]byte, 0, 4*len(vals))
	for _, v := range vals {
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(v))
	}
	return buf
}

func u16Bytes(vals ...uint16) []byte {
	buf := make([]byte, 0, 2*len(vals))
	for _, v := range vals {
		buf = binary.LittleEndian.AppendUint16(buf, v)
	}
	return buf
}

func u32Bytes(vals ...uint32) []byte {
	buf := make([]byte, 0, 4*len(vals))
	for _, v := range vals {
		buf = binary.LittleEndian.AppendUint32(buf, v)
	}
	return buf
}

// seqPositions returns n distinct Float32x3 positions.
func seqPositions(n int, seed float32) []byte {
	vals := make([]float32, 0, 3*n)
	for i := 0; i < n; i++ {
		f := seed + float32(i)
		vals = append(vals, f, f+0.25, f+0.5)
	}
	return f32Bytes(vals...)
}

var (
	cubePositions = f32Bytes(
		-1, -1, 1, 1, -1, 1, 1, 1, 1, -1, 1, 1,
		-1, -1, -1, 1, -1, -1, 1, 1, -1, -1, 1, -1,
	)
	cubeNormals = f32Bytes(
		0, 0, 1, 0, 0, 1, 0, 0, 1, 0, 0, 1,
		0, 0, -1, 0, 0, -1, 0, 0, -1, 0, 0, -1,
	)
	cubeUvs = f32Bytes(
		0, 0, 0, 1, 1, 0, 1, 1,
		1, 1, 1, 0, 0, 1, 0, 0,
	)
	cubeColors = f32Bytes(
		0, 0, 0, 1, 1, 0, 0, 1, 0, 1, 0, 1, 0, 0, 1, 1,
		1, 1, 1, 1, 0, 1, 1, 1, 1, 0, 1, 1, 1, 1, 0, 1,
	)
	cubeIndices = u16Bytes(
		0, 1, 2, 2, 3, 0,
		4, 5, 6, 6, 7, 4,
		4, 0, 3, 3, 7, 4,
		1, 5, 6, 6, 2, 1,
		3, 2, 6, 6, 7, 3,
		4, 5, 1, 1, 0, 4,
	)
	cubeUserData = []byte("Hello World!")
)

func cubeMesh() MeshData {
	return MeshData{
		Indices: &IndexBuffer{Format: IndexU16, Data: cubeIndices},
		Attributes: map[VertexUsage]AttributeBuffer{
			UsagePosition: {Format: FormatFloat32x3, Data: cubePositions},
			UsageNormal:   {Format: FormatFloat32x3, Data: cubeNormals},
			UsageUv0:      {Format: FormatFloat32x2, Data: cubeUvs},
			UsageColor:    {Format: FormatFloat32x4, Data: cubeColors},
		},
	}
}

func writeCubeFile(t *testing.T, settings WriterSettings) []byte {
	t.Helper()
	w := NewWriterWithSettings(settings)
	w.SetUserData(cubeUserData)
	if err := w.AddMesh(cubeMesh()); err != nil {
		t.Fatalf("add mesh: %v", err)
	}
	var out bytes.Buffer
	if err := w.WriteTo(&out); err != nil {
		t.Fatalf("write: %v", err)
	}
	return out.Bytes()
}

func TestCubeEndToEnd(t *testing.T) {
	t.Parallel()

	file := writeCubeFile(t, DefaultWriterSettings())

	r, err := Open(bytes.NewReader(file))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if r.Header().DataChecksum == 0 {
		t.Fatalf("expected a data checksum to be written")
	}
	d := r.Descriptor()
	if d.NVertices != 8 {
		t.Fatalf("NVertices: got %d want 8", d.NVertices)
	}
	if d.UserDataLen != 12 {
		t.Fatalf("UserDataLen: got %d want 12", d.UserDataLen)
	}
	if d.Indices == nil || d.Indices.NIndices != 36 || d.Indices.Format != IndexU16 {
		t.Fatalf("indices: got %+v", d.Indices)
	}
	if len(d.Meshes) != 1 || d.Meshes[0].Count != 36 {
		t.Fatalf("mesh table: got %+v", d.Meshes)
	}

	withData, err := r.ReadAllData()
	if err != nil {
		t.Fatalf("read all data: %v", err)
	}
	bufs, err := withData.IntoFlatBuffers()
	if err != nil {
		t.Fatalf("flat buffers: %v", err)
	}
	if !bytes.Equal(bufs.UserData, cubeUserData) {
		t.Fatalf("user data mismatch: got %q", bufs.UserData)
	}
	if !bytes.Equal(bufs.Indices.Data, cubeIndices) {
		t.Fatalf("flat index buffer mismatch")
	}
	meshes, err := withData.IntoSplitMeshes(bufs)
	if err != nil {
		t.Fatalf("split meshes: %v", err)
	}
	if len(meshes) != 1 {
		t.Fatalf("got %d meshes", len(meshes))
	}
	m := meshes[0]
	if !bytes.Equal(m.Indices.Data, cubeIndices) {
		t.Fatalf("split index buffer mismatch")
	}
	want := map[VertexUsage][]byte{
		UsagePosition: cubePositions,
		UsageNormal:   cubeNormals,
		UsageUv0:      cubeUvs,
		UsageColor:    cubeColors,
	}
	for u, wantData := range want {
		if !bytes.Equal(m.Attributes[u].Data, wantData) {
			t.Fatalf("attribute %v mismatch", u)
		}
	}

	// user-data-only path on a fresh reader
	r2, err := Open(bytes.NewReader(file))
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	userData, err := r2.ReadUserData()
	if err != nil {
		t.Fatalf("read user data: %v", err)
	}
	if !bytes.Equal(userData, cubeUserData) {
		t.Fatalf("user data mismatch: got %q", userData)
	}
}

func TestTwoMeshesIndexRebasing(t *testing.T) {
	t.Parallel()

	posA := seqPositions(4, 1)
	posB := seqPositions(3, 100)
	idxA := u16Bytes(0, 1, 2, 2, 3, 0)
	idxB := u16Bytes(0, 1, 2)

	w := NewWriter()
	if err := w.AddMesh(MeshData{
		Indices: &IndexBuffer{Format: IndexU16, Data: idxA},
		Attributes: map[VertexUsage]AttributeBuffer{
			UsagePosition: {Format: FormatFloat32x3, Data: posA},
		},
	}); err != nil {
		t.Fatalf("add mesh A: %v", err)
	}
	if err := w.AddMesh(MeshData{
		Indices: &IndexBuffer{Format: IndexU16, Data: idxB},
		Attributes: map[VertexUsage]AttributeBuffer{
			UsagePosition: {Format: FormatFloat32x3, Data: posB},
		},
	}); err != nil {
		t.Fatalf("add mesh B: %v", err)
	}
	var out bytes.Buffer
	if err := w.WriteTo(&out); err != nil {
		t.Fatalf("write: %v", err)
	}

	r, err := Open(bytes.NewReader(out.Bytes()))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	d := r.Descriptor()
	if d.NVertices != 7 {
		t.Fatalf("NVertices: got %d want 7", d.NVertices)
	}
	if len(d.Meshes) != 2 {
		t.Fatalf("mesh table: got %+v", d.Meshes)
	}
	if d.Meshes[0] != (MeshInfo{First: 0, Count: 6, BaseVertex: 0}) {
		t.Fatalf("mesh 0: got %+v", d.Meshes[0])
	}
	if d.Meshes[1] != (MeshInfo{First: 6, Count: 3, BaseVertex: 4}) {
		t.Fatalf("mesh 1: got %+v", d.Meshes[1])
	}

	withData, err := r.ReadAllData()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	bufs, err := withData.IntoFlatBuffers()
	if err != nil {
		t.Fatalf("flat: %v", err)
	}
	wantFlatPos := append(append([]byte(nil), posA...), posB...)
	if !bytes.Equal(bufs.Attributes[UsagePosition].Data, wantFlatPos) {
		t.Fatalf("flat position buffer is not the concatenation")
	}
	meshes, err := withData.IntoSplitMeshes(bufs)
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	if !bytes.Equal(meshes[0].Attributes[UsagePosition].Data, posA) {
		t.Fatalf("mesh 0 positions not rebased correctly")
	}
	if !bytes.Equal(meshes[1].Attributes[UsagePosition].Data, posB) {
		t.Fatalf("mesh 1 positions not rebased correctly")
	}
	if !bytes.Equal(meshes[0].Indices.Data, idxA) || !bytes.Equal(meshes[1].Indices.Data, idxB) {
		t.Fatalf("split index sub-ranges mismatch")
	}
}

func TestNonIndexedRoundTrip(t *testing.T) {
	t.Parallel()

	posA := seqPositions(5, 0)
	posB := seqPositions(2, 50)

	w := NewWriter()
	for _, pos := range [][]byte{posA, posB} {
		if err := w.AddMesh(MeshData{
			Attributes: map[VertexUsage]AttributeBuffer{
				UsagePosition: {Format: FormatFloat32x3, Data: pos},
			},
		}); err != nil {
			t.Fatalf("add mesh: %v", err)
		}
	}
	var out bytes.Buffer
	if err := w.WriteTo(&out); err != nil {
		t.Fatalf("write: %v", err)
	}

	r, err := Open(bytes.NewReader(out.Bytes()))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	d := r.Descriptor()
	if d.Indices != nil {
		t.Fatalf("expected no index buffer")
	}
	if d.Meshes[0] != (MeshInfo{First: 0, Count: 5}) ||
		d.Meshes[1] != (MeshInfo{First: 5, Count: 2}) {
		t.Fatalf("mesh table: got %+v", d.Meshes)
	}
	withData, err := r.ReadAllData()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	bufs, err := withData.IntoFlatBuffers()
	if err != nil {
		t.Fatalf("flat: %v", err)
	}
	meshes, err := withData.IntoSplitMeshes(bufs)
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	if meshes[0].Indices != nil {
		t.Fatalf("split mesh should be non-indexed")
	}
	if !bytes.Equal(meshes[0].Attributes[UsagePosition].Data, posA) ||
		!bytes.Equal(meshes[1].Attributes[UsagePosition].Data, posB) {
		t.Fatalf("vertex sub-ranges mismatch")
	}
}

func TestIncompatibleMeshes(t *testing.T) {
	t.Parallel()

	pos := seqPositions(3, 0)
	norm := seqPositions(3, 9)

	// differing attribute sets
	w := NewWriter()
	_ = w.AddMesh(MeshData{Attributes: map[VertexUsage]AttributeBuffer{
		UsagePosition: {Format: FormatFloat32x3, Data: pos},
	}})
	_ = w.AddMesh(MeshData{Attributes: map[VertexUsage]AttributeBuffer{
		UsagePosition: {Format: FormatFloat32x3, Data: pos},
		UsageNormal:   {Format: FormatFloat32x3, Data: norm},
	}})
	if err := w.WriteTo(&bytes.Buffer{}); !errors.Is(err, ErrIncompatibleMeshes) {
		t.Fatalf("attribute set mismatch: got %v", err)
	}

	// differing format for a shared usage
	w = NewWriter()
	_ = w.AddMesh(MeshData{Attributes: map[VertexUsage]AttributeBuffer{
		UsagePosition: {Format: FormatFloat32x3, Data: pos},
	}})
	_ = w.AddMesh(MeshData{Attributes: map[VertexUsage]AttributeBuffer{
		UsagePosition: {Format: FormatFloat32x4, Data: make([]byte, 16*3)},
	}})
	if err := w.WriteTo(&bytes.Buffer{}); !errors.Is(err, ErrIncompatibleMeshes) {
		t.Fatalf("format mismatch: got %v", err)
	}

	// indexed vs non-indexed
	w = NewWriter()
	_ = w.AddMesh(MeshData{Attributes: map[VertexUsage]AttributeBuffer{
		UsagePosition: {Format: FormatFloat32x3, Data: pos},
	}})
	_ = w.AddMesh(MeshData{
		Indices: &IndexBuffer{Format: IndexU16, Data: u16Bytes(0, 1, 2)},
		Attributes: map[VertexUsage]AttributeBuffer{
			UsagePosition: {Format: FormatFloat32x3, Data: pos},
		},
	})
	if err := w.WriteTo(&bytes.Buffer{}); !errors.Is(err, ErrIncompatibleMeshes) {
		t.Fatalf("indexed/non-indexed mix: got %v", err)
	}
}

func TestIndexUpconversion(t *testing.T) {
	t.Parallel()

	posA := seqPositions(3, 0)
	posB := seqPositions(3, 10)
	idxA := u16Bytes(0, 1, 2)
	idxB := u32Bytes(0, 1, 2)

	build := func(settings WriterSettings) (*Writer, error) {
		w := NewWriterWithSettings(settings)
		if err := w.AddMesh(MeshData{
			Indices: &IndexBuffer{Format: IndexU16, Data: idxA},
			Attributes: map[VertexUsage]AttributeBuffer{
				UsagePosition: {Format: FormatFloat32x3, Data: posA},
			},
		}); err != nil {
			return nil, err
		}
		err := w.AddMesh(MeshData{
			Indices: &IndexBuffer{Format: IndexU32, Data: idxB},
			Attributes: map[VertexUsage]AttributeBuffer{
				UsagePosition: {Format: FormatFloat32x3, Data: posB},
			},
		})
		return w, err
	}

	// disabled: mixed widths are an error
	w, err := build(DefaultWriterSettings())
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := w.WriteTo(&bytes.Buffer{}); !errors.Is(err, ErrIncompatibleMeshes) {
		t.Fatalf("expected ErrIncompatibleMeshes, got %v", err)
	}

	// enabled: the file carries U32 indices, values unchanged
	settings := DefaultWriterSettings()
	settings.UpconvertIndices = true
	w, err = build(settings)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	var out bytes.Buffer
	if err := w.WriteTo(&out); err != nil {
		t.Fatalf("write: %v", err)
	}
	r, err := Open(bytes.NewReader(out.Bytes()))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	d := r.Descriptor()
	if d.Indices == nil || d.Indices.Format != IndexU32 || d.Indices.NIndices != 6 {
		t.Fatalf("indices: got %+v", d.Indices)
	}
	withData, err := r.ReadAllData()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	bufs, err := withData.IntoFlatBuffers()
	if err != nil {
		t.Fatalf("flat: %v", err)
	}
	meshes, err := withData.IntoSplitMeshes(bufs)
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	if !bytes.Equal(meshes[0].Indices.Data, u32Bytes(0, 1, 2)) {
		t.Fatalf("widened indices mismatch: got %x", meshes[0].Indices.Data)
	}
	if !bytes.Equal(meshes[1].Indices.Data, idxB) {
		t.Fatalf("unconverted indices changed: got %x", meshes[1].Indices.Data)
	}
}

func TestWriterFailures(t *testing.T) {
	t.Parallel()

	if err := NewWriter().WriteTo(&bytes.Buffer{}); !errors.Is(err, ErrNoMeshes) {
		t.Fatalf("expected ErrNoMeshes, got %v", err)
	}

	w := NewWriter()
	err := w.AddMesh(MeshData{Attributes: map[VertexUsage]AttributeBuffer{
		UsagePosition: {Format: FormatFloat32x3, Data: make([]byte, 13)},
	}})
	if !errors.Is(err, ErrInvalidMesh) {
		t.Fatalf("expected ErrInvalidMesh, got %v", err)
	}

	w = NewWriter()
	_ = w.AddMesh(cubeMesh())
	if err := w.WriteTo(&bytes.Buffer{}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := w.WriteTo(&bytes.Buffer{}); err == nil {
		t.Fatalf("second WriteTo should fail")
	}
}

func TestChecksumSensitivity(t *testing.T) {
	t.Parallel()

	file := writeCubeFile(t, DefaultWriterSettings())
	header, ok := decodeHeader(file[:HeaderSize])
	if !ok {
		t.Fatalf("decode header")
	}
	payloadStart := HeaderSize + int(header.DescriptorLen)

	corrupt := func(at int) []byte {
		c := append([]byte(nil), file...)
		c[at] ^= 0x01
		return c
	}

	// stored metadata checksum
	if _, err := Open(bytes.NewReader(corrupt(8))); !errors.Is(err, ErrInvalidChecksums) {
		t.Fatalf("metadata checksum corruption: got %v", err)
	}
	// descriptor byte
	if _, err := Open(bytes.NewReader(corrupt(HeaderSize))); !errors.Is(err, ErrInvalidChecksums) {
		t.Fatalf("descriptor corruption: got %v", err)
	}
	// payload byte: metadata still checks out, data stage must fail
	r, err := Open(bytes.NewReader(corrupt(payloadStart)))
	if err != nil {
		t.Fatalf("open with corrupt payload: %v", err)
	}
	if _, err := r.ReadAllData(); !errors.Is(err, ErrInvalidChecksums) {
		t.Fatalf("payload corruption: got %v", err)
	}
	// standalone verification sees the same corruption
	r, err = Open(bytes.NewReader(corrupt(payloadStart)))
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if err := r.VerifyDataChecksum(); !errors.Is(err, ErrInvalidChecksums) {
		t.Fatalf("standalone verification: got %v", err)
	}
	// a clean file passes standalone verification
	r, err = Open(bytes.NewReader(file))
	if err != nil {
		t.Fatalf("open clean: %v", err)
	}
	if err := r.VerifyDataChecksum(); err != nil {
		t.Fatalf("clean verification: %v", err)
	}
}

func TestSentinelBypass(t *testing.T) {
	t.Parallel()

	settings := DefaultWriterSettings()
	settings.WriteDataChecksum = false
	file := writeCubeFile(t, settings)

	header, ok := decodeHeader(file[:HeaderSize])
	if !ok {
		t.Fatalf("decode header")
	}
	if header.DataChecksum != 0 {
		t.Fatalf("expected zero data checksum sentinel, got %x", header.DataChecksum)
	}

	// a verifying reader accepts the sentinel: nothing to check
	r, err := Open(bytes.NewReader(file))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	withData, err := r.ReadAllData()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if _, err := withData.IntoFlatBuffers(); err != nil {
		t.Fatalf("flat: %v", err)
	}
	r, err = Open(bytes.NewReader(file))
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if err := r.VerifyDataChecksum(); err != nil {
		t.Fatalf("verify: %v", err)
	}
}

func TestBadMagicAndVersion(t *testing.T) {
	t.Parallel()

	file := writeCubeFile(t, DefaultWriterSettings())

	bad := append([]byte(nil), file...)
	bad[0] = 'X'
	if _, err := Open(bytes.NewReader(bad)); !errors.Is(err, ErrBadMagic) {
		t.Fatalf("bad magic: got %v", err)
	}

	bad = append([]byte(nil), file...)
	bad[4] = 0x7f
	if _, err := Open(bytes.NewReader(bad)); !errors.Is(err, ErrBadVersion) {
		t.Fatalf("bad version: got %v", err)
	}
}

func TestExactAccounting(t *testing.T) {
	t.Parallel()

	d := &Descriptor{
		NVertices:   4,
		UserDataLen: 3,
		Meshes:      []MeshInfo{{First: 0, Count: 6}},
		Indices:     &IndicesInfo{NIndices: 6, Format: IndexU16},
		Attributes: map[VertexUsage]VertexFormat{
			UsagePosition: FormatFloat32x3,
		},
	}
	total := int(d.TotalRawDataSize())
	if total != 3+12+48 {
		t.Fatalf("total: got %d", total)
	}

	exact := &WithData{descriptor: d, buf: make([]byte, total)}
	if _, err := exact.IntoFlatBuffers(); err != nil {
		t.Fatalf("exact: %v", err)
	}
	short := &WithData{descriptor: d, buf: make([]byte, total-1)}
	if _, err := short.IntoFlatBuffers(); !errors.Is(err, ErrNotEnoughData) {
		t.Fatalf("short: got %v", err)
	}
	long := &WithData{descriptor: d, buf: make([]byte, total+1)}
	if _, err := long.IntoFlatBuffers(); !errors.Is(err, ErrTooMuchData) {
		t.Fatalf("long: got %v", err)
	}
}

func TestSplitMeshesBoundsChecked(t *testing.T) {
	t.Parallel()

	d := &Descriptor{
		NVertices: 4,
		// count runs past the shared index buffer
		Meshes:  []MeshInfo{{First: 0, Count: 100}},
		Indices: &IndicesInfo{NIndices: 6, Format: IndexU16},
		Attributes: map[VertexUsage]VertexFormat{
			UsagePosition: FormatFloat32x3,
		},
	}
	withData := &WithData{descriptor: d, buf: make([]byte, d.TotalRawDataSize())}
	bufs, err := withData.IntoFlatBuffers()
	if err != nil {
		t.Fatalf("flat: %v", err)
	}
	if _, err := withData.IntoSplitMeshes(bufs); !errors.Is(err, ErrNotEnoughData) {
		t.Fatalf("index overrun: got %v", err)
	}

	// a negative rebased vertex range is rejected
	d.Meshes = []MeshInfo{{First: 0, Count: 6, BaseVertex: -1}}
	bufs, err = withData.IntoFlatBuffers()
	if err != nil {
		t.Fatalf("flat: %v", err)
	}
	if _, err := withData.IntoSplitMeshes(bufs); !errors.Is(err, ErrNotEnoughData) {
		t.Fatalf("negative rebase: got %v", err)
	}

	// a rebased range past the vertex buffers is rejected
	d.Meshes = []MeshInfo{{First: 0, Count: 6, BaseVertex: 100}}
	bufs, err = withData.IntoFlatBuffers()
	if err != nil {
		t.Fatalf("flat: %v", err)
	}
	if _, err := withData.IntoSplitMeshes(bufs); !errors.Is(err, ErrNotEnoughData) {
		t.Fatalf("vertex overrun: got %v", err)
	}
}

func TestReaderSingleUse(t *testing.T) {
	t.Parallel()

	file := writeCubeFile(t, DefaultWriterSettings())
	r, err := Open(bytes.NewReader(file))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := r.ReadAllData(); err != nil {
		t.Fatalf("read: %v", err)
	}
	if _, err := r.ReadAllData(); err == nil {
		t.Fatalf("second ReadAllData should fail")
	}
	if _, err := r.ReadUserData(); err == nil {
		t.Fatalf("ReadUserData after consumption should fail")
	}
}

func TestIsContainerFile(t *testing.T) {
	t.Parallel()

	file := writeCubeFile(t, DefaultWriterSettings())
	src := bytes.NewReader(file)
	ok, err := IsContainerFile(src)
	if err != nil || !ok {
		t.Fatalf("container not recognized: %v %v", ok, err)
	}
	// position restored: a full read must still succeed
	if _, err := Open(src); err != nil {
		t.Fatalf("open after sniff: %v", err)
	}

	ok, err = IsContainerFile(bytes.NewReader([]byte("not a container")))
	if err != nil || ok {
		t.Fatalf("raw bytes misdetected: %v %v", ok, err)
	}
}
