package ima

import (
	"io"
	"math/bits"

	"github.com/klauspost/compress/zstd"
)

// The payload is compressed as a single zstd frame with the frame CRC
// disabled; the descriptor already binds the content via the data
// checksum and always tells the reader exactly how many uncompressed
// bytes to expect, so nothing is read from the frame's own metadata.

// windowLimit caps the encoder window used for long-range matching.
const windowLimit = 1 << 27 // 128 MiB

// encoderWindowSize picks the smallest power-of-two window covering the
// pledged uncompressed size, within the encoder's supported range.
func encoderWindowSize(pledged uint64) int {
	if pledged <= zstd.MinWindowSize {
		return zstd.MinWindowSize
	}
	if pledged >= windowLimit {
		return windowLimit
	}
	return 1 << bits.Len64(pledged-1)
}

func newZstdEncoder(w io.Writer, level int, pledged uint64) (*zstd.Encoder, error) {
	return zstd.NewWriter(w,
		zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)),
		zstd.WithEncoderCRC(false),
		zstd.WithEncoderConcurrency(1),
		zstd.WithWindowSize(encoderWindowSize(pledged)),
	)
}

func newZstdDecoder(r io.Reader) (*zstd.Decoder, error) {
	return zstd.NewReader(r,
		zstd.WithDecoderConcurrency(1),
		zstd.WithDecoderMaxWindow(windowLimit),
		zstd.IgnoreChecksum(true),
	)
}
