// Package ima implements the IyesMesh Archive container format.
//
// An .ima file packs the geometry of one or more logical meshes into
// shared index/vertex buffers, together with an opaque user-data blob.
// The file is a fixed 24-byte header, a compact binary descriptor, and
// a zstd-compressed payload. Checksums over the metadata and the
// compressed payload allow corruption to be detected before decoding.
package ima

// Format constants. These must never change within a format version.
const (
	// Magic is the 4-byte tag at the start of every IyesMesh container.
	Magic = "IyMA"

	// FormatVersion is the single supported format version. There is no
	// version negotiation: any other value is rejected on read.
	FormatVersion uint16 = 1
)

var magicBytes = [4]byte{'I', 'y', 'M', 'A'}
