package main

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/iyesgames/iyesmesh/pkg/ima"
)

// loadUserData reads replacement user data. The path "-" (or empty)
// reads raw bytes from stdin. A container file is sniffed and its user
// data extracted, unless forceRaw is set.
func loadUserData(path string, settings ima.ReaderSettings, forceRaw bool) ([]byte, error) {
	if path == "" || path == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("could not read user data from stdin: %w", err)
		}
		return data, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("could not open user data file: %w", err)
	}
	defer f.Close()

	if !forceRaw {
		isContainer, err := ima.IsContainerFile(f)
		if err != nil {
			return nil, fmt.Errorf("cannot autodetect file format: %w", err)
		}
		if isContainer {
			rd, err := ima.OpenWithSettings(settings, f)
			if err != nil {
				return nil, fmt.Errorf("cannot extract user data from container file: %w", err)
			}
			data, err := rd.ReadUserData()
			if err != nil {
				return nil, fmt.Errorf("cannot extract user data from container file: %w", err)
			}
			return data, nil
		}
	}

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("could not read user data from raw file: %w", err)
	}
	return data, nil
}

// createOutput opens the output file, refusing to clobber an existing
// file unless allowed.
func createOutput(path string, overwrite bool) (*os.File, error) {
	if overwrite {
		f, err := os.Create(path)
		if err != nil {
			return nil, fmt.Errorf("could not open output file: %w", err)
		}
		return f, nil
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("could not open output file: %w", err)
	}
	return f, nil
}

// writeContainer encodes the writer's contents into the output file.
func writeContainer(w *ima.Writer, path string, overwrite bool) error {
	f, err := createOutput(path, overwrite)
	if err != nil {
		return err
	}
	bw := bufio.NewWriter(f)
	if err := w.WriteTo(bw); err != nil {
		f.Close()
		return fmt.Errorf("cannot encode output file: %w", err)
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("could not write output: %w", err)
	}
	return f.Close()
}

// decodeMeshes runs the full read pipeline on one container file.
func decodeMeshes(path string, settings ima.ReaderSettings) (*ima.FlatBuffers, []ima.MeshData, error) {
	f, err := ima.OpenFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("could not open input file: %w", err)
	}
	defer f.Close()

	rd, err := ima.OpenWithSettings(settings, f.Reader())
	if err != nil {
		return nil, nil, fmt.Errorf("cannot decode file metadata: %w", err)
	}
	withData, err := rd.ReadAllData()
	if err != nil {
		return nil, nil, fmt.Errorf("cannot decode file data: %w", err)
	}
	flat, err := withData.IntoFlatBuffers()
	if err != nil {
		return nil, nil, fmt.Errorf("cannot decode file buffers: %w", err)
	}
	meshes, err := withData.IntoSplitMeshes(flat)
	if err != nil {
		return nil, nil, fmt.Errorf("cannot decode file meshes: %w", err)
	}
	return flat, meshes, nil
}
