package ima

import (
	"bytes"
	"io"
	"os"

	"golang.org/x/sys/unix"
)

// File is a whole container file held in memory, mmapped read-only when
// the platform allows it. It exists for tooling that reads many files:
// the reader pipeline then operates on the mapping with no extra copy
// of the compressed bytes.
type File struct {
	data    []byte
	mmapped bool
}

// OpenFile maps the file at path read-only. If mmap is unavailable it
// falls back to reading the file into memory. The returned File must be
// closed to release any mapping.
func OpenFile(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	stat, err := f.Stat()
	if err != nil {
		return nil, err
	}
	size64 := stat.Size()
	if size64 < 0 || size64 > int64(int(^uint(0)>>1)) {
		// cannot index this file safely as []byte on this architecture.
		return nil, ErrInvalidHeader
	}
	size := int(size64)

	if size > 0 {
		data, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ, unix.MAP_SHARED)
		if err == nil {
			return &File{data: data, mmapped: true}, nil
		}
	}

	// Fallback path that does not require mmap support.
	data, err := readAllAt(f, size)
	if err != nil {
		return nil, err
	}
	return &File{data: data}, nil
}

func readAllAt(r io.ReaderAt, size int) ([]byte, error) {
	out := make([]byte, size)
	var off int64
	for off < int64(size) {
		n, err := r.ReadAt(out[off:], off)
		off += int64(n)
		if err == nil {
			continue
		}
		if err == io.EOF && off == int64(size) {
			break
		}
		return nil, err
	}
	return out, nil
}

// Bytes returns the raw file contents. The slice must not be retained
// after Close.
func (f *File) Bytes() []byte {
	return f.data
}

// Reader returns a seekable reader over the file contents, suitable for
// OpenWithSettings or IsContainerFile. It must not be used after Close.
func (f *File) Reader() *bytes.Reader {
	return bytes.NewReader(f.data)
}

// Close releases the mapping, if any.
func (f *File) Close() error {
	if f == nil || f.data == nil {
		return nil
	}
	var err error
	if f.mmapped {
		err = unix.Munmap(f.data)
	}
	f.data = nil
	f.mmapped = false
	return err
}
