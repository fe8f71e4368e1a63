package ima

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

// ChecksumData computes the 64-bit content checksum used for the
// compressed payload. Streaming the same bytes through an xxhash.Digest
// in any chunking yields the same value.
func ChecksumData(data []byte) uint64 {
	return xxhash.Sum64(data)
}

// ChecksumMetadata computes the checksum binding the header to the
// descriptor bytes. It covers the descriptor, the descriptor length,
// and the data checksum; the metadata checksum field itself is excluded
// (it would be circular). The data checksum must therefore already be
// final, or left at the zero sentinel, before this is called.
func ChecksumMetadata(h Header, encodedDescriptor []byte) uint64 {
	var scratch [8]byte
	d := xxhash.New()
	_, _ = d.Write(encodedDescriptor)
	binary.LittleEndian.PutUint16(scratch[:2], h.DescriptorLen)
	_, _ = d.Write(scratch[:2])
	binary.LittleEndian.PutUint64(scratch[:], h.DataChecksum)
	_, _ = d.Write(scratch[:])
	return d.Sum64()
}
