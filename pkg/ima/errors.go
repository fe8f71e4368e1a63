package ima

import "errors"

// Read-path failures.
var (
	ErrBadMagic          = errors.New("ima: missing magic bytes at start of file")
	ErrBadVersion        = errors.New("ima: incompatible format version")
	ErrInvalidChecksums  = errors.New("ima: checksum mismatch")
	ErrInvalidHeader     = errors.New("ima: cannot decode header")
	ErrInvalidDescriptor = errors.New("ima: cannot decode descriptor")
	ErrNotEnoughData     = errors.New("ima: data ends too early")
	ErrTooMuchData       = errors.New("ima: unexpected extra data")
)

// Write-path failures.
var (
	ErrInvalidMesh        = errors.New("ima: invalid mesh data")
	ErrIncompatibleMeshes = errors.New("ima: meshes must have an identical set of buffers and formats")
	ErrNoMeshes           = errors.New("ima: no source meshes provided")
)
