package ima

import "encoding/binary"

// HeaderSize is the exact encoded size of the file header in bytes.
const HeaderSize = 24

// Header is the fixed record at the start of every container.
// All integer fields are little-endian on disk, with no padding:
//
//	offset 0  magic              4 bytes
//	offset 4  version            u16
//	offset 6  descriptor_len     u16
//	offset 8  metadata_checksum  u64
//	offset 16 data_checksum      u64
//
// A DataChecksum of zero means "no checksum present" and skips data
// verification on read.
type Header struct {
	Magic            [4]byte
	Version          uint16
	DescriptorLen    uint16
	MetadataChecksum uint64
	DataChecksum     uint64
}

func encodeHeader(dst []byte, h Header) bool {
	if len(dst) < HeaderSize {
		return false
	}
	copy(dst[0:4], h.Magic[:])
	binary.LittleEndian.PutUint16(dst[4:6], h.Version)
	binary.LittleEndian.PutUint16(dst[6:8], h.DescriptorLen)
	binary.LittleEndian.PutUint64(dst[8:16], h.MetadataChecksum)
	binary.LittleEndian.PutUint64(dst[16:24], h.DataChecksum)
	return true
}

func decodeHeader(buf []byte) (Header, bool) {
	if len(buf) != HeaderSize {
		return Header{}, false
	}
	var h Header
	copy(h.Magic[:], buf[0:4])
	h.Version = binary.LittleEndian.Uint16(buf[4:6])
	h.DescriptorLen = binary.LittleEndian.Uint16(buf[6:8])
	h.MetadataChecksum = binary.LittleEndian.Uint64(buf[8:16])
	h.DataChecksum = binary.LittleEndian.Uint64(buf[16:24])
	return h, true
}
