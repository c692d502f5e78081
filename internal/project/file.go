package project

import (
	"bytes"
	"compress/flate"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/zot/turtle/internal/demo"
)

// File suffixes.
const (
	Ext     = ".save"
	DemoExt = ".demo"
)

// maxInflated bounds the decompressed size of a file.
const maxInflated = 256 << 20

// Compress deflates data.
func Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.BestCompression)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decompress inflates data written by Compress.
func Decompress(data []byte) ([]byte, error) {
	r := flate.NewReader(bytes.NewReader(data))
	defer r.Close()
	out, err := io.ReadAll(io.LimitReader(r, maxInflated+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	if len(out) > maxInflated {
		return nil, fmt.Errorf("%w: file too large", ErrFormat)
	}
	return out, nil
}

// WithExt returns path with ext appended unless it already ends in it.
func WithExt(path, ext string) string {
	if strings.EqualFold(filepath.Ext(path), ext) {
		return path
	}
	return path + ext
}

// WriteFile saves rec as a compressed project file.
func WriteFile(path string, rec *Record) error {
	data, err := Encode(rec)
	if err != nil {
		return err
	}
	return writeCompressed(path, data)
}

// ReadFile loads a project file.
func ReadFile(path string) (*Record, error) {
	data, err := readCompressed(path)
	if err != nil {
		return nil, err
	}
	rec, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rec, nil
}

// WriteDemoFile saves a single demo.
func WriteDemoFile(path string, inst demo.Instance) error {
	return writeCompressed(path, EncodeDemo(inst))
}

// ReadDemoFile loads a demo file.
func ReadDemoFile(path string) (demo.Instance, error) {
	data, err := readCompressed(path)
	if err != nil {
		return demo.Instance{}, err
	}
	inst, err := DecodeDemo(data)
	if err != nil {
		return demo.Instance{}, fmt.Errorf("%s: %w", path, err)
	}
	return inst, nil
}

func writeCompressed(path string, data []byte) error {
	packed, err := Compress(data)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, packed, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func readCompressed(path string) ([]byte, error) {
	packed, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	data, err := Decompress(packed)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return data, nil
}
