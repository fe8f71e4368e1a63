package httpapi

import (
	"github.com/iyesgames/iyesmesh/pkg/ima"
)

// FileEntry is one container file known to the store.
type FileEntry struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Size int64  `json:"size"`
}

// FileInfo summarizes a container's header and descriptor.
type FileInfo struct {
	Version          uint16          `json:"version"`
	MetadataChecksum uint64          `json:"metadata_checksum"`
	DataChecksum     uint64          `json:"data_checksum"`
	NVertices        uint32          `json:"n_vertices"`
	UserDataLen      uint32          `json:"user_data_len"`
	Meshes           []MeshEntry     `json:"meshes"`
	Indices          *IndicesEntry   `json:"indices,omitempty"`
	Attributes       []AttributeInfo `json:"attributes"`
}

type MeshEntry struct {
	First      uint32 `json:"first"`
	Count      uint32 `json:"count"`
	BaseVertex int32  `json:"base_vertex"`
}

type IndicesEntry struct {
	NIndices uint32 `json:"n_indices"`
	Format   string `json:"format"`
}

type AttributeInfo struct {
	Usage  string `json:"usage"`
	Format string `json:"format"`
}

// Describe builds the info summary for a decoded container.
func Describe(h ima.Header, d *ima.Descriptor) FileInfo {
	info := FileInfo{
		Version:          h.Version,
		MetadataChecksum: h.MetadataChecksum,
		DataChecksum:     h.DataChecksum,
		NVertices:        d.NVertices,
		UserDataLen:      d.UserDataLen,
		Meshes:           make([]MeshEntry, 0, len(d.Meshes)),
		Attributes:       make([]AttributeInfo, 0, len(d.Attributes)),
	}
	for _, m := range d.Meshes {
		info.Meshes = append(info.Meshes, MeshEntry{
			First:      m.First,
			Count:      m.Count,
			BaseVertex: m.BaseVertex,
		})
	}
	if d.Indices != nil {
		info.Indices = &IndicesEntry{
			NIndices: d.Indices.NIndices,
			Format:   d.Indices.Format.String(),
		}
	}
	for _, usage := range d.CanonicalAttributeOrder() {
		info.Attributes = append(info.Attributes, AttributeInfo{
			Usage:  usage.String(),
			Format: d.Attributes[usage].String(),
		})
	}
	return info
}
