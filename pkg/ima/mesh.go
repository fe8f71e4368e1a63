package ima

// IndexBuffer is a borrowed view of raw index data in a given format.
type IndexBuffer struct {
	Format IndexFormat
	Data   []byte
}

// AttributeBuffer is a borrowed view of raw vertex data in a given format.
type AttributeBuffer struct {
	Format VertexFormat
	Data   []byte
}

// MeshData is a zero-copy view of one logical mesh: an optional index
// buffer plus a set of vertex attribute buffers. The byte slices are
// borrowed; they must not outlive the buffer they were sliced from
// (the caller's data on the write side, the decompressed allocation on
// the read side).
type MeshData struct {
	// Indices is nil for non-indexed meshes.
	Indices    *IndexBuffer
	Attributes map[VertexUsage]AttributeBuffer
}

// NVertices returns the vertex count implied by the attribute buffers.
// It is only meaningful for views that pass Validate.
func (m *MeshData) NVertices() int {
	for _, b := range m.Attributes {
		if sz := b.Format.Size(); sz > 0 {
			return len(b.Data) / sz
		}
		return 0
	}
	return 0
}

// NIndices returns the index count, or false for non-indexed meshes.
func (m *MeshData) NIndices() (int, bool) {
	if m.Indices == nil {
		return 0, false
	}
	return len(m.Indices.Data) / m.Indices.Format.Size(), true
}

// Validate reports whether the view satisfies the buffer invariants:
// at least one attribute, every attribute buffer an exact multiple of
// its element size yielding one common vertex count, and the index
// buffer (if any) an exact multiple of its element size.
func (m *MeshData) Validate() bool {
	if len(m.Attributes) == 0 {
		return false
	}
	nVertices := m.NVertices()
	if m.Indices != nil {
		sz := m.Indices.Format.Size()
		if len(m.Indices.Data)%sz != 0 {
			return false
		}
	}
	for _, b := range m.Attributes {
		if !validateBuf(nVertices, b.Format.Size(), b.Data) {
			return false
		}
	}
	return true
}

func validateBuf(nVertices, fmtSize int, buf []byte) bool {
	if fmtSize == 0 {
		return false
	}
	return len(buf)%fmtSize == 0 && len(buf)/fmtSize == nVertices
}
