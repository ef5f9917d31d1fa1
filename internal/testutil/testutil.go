// Package testutil provides testing utilities for Selfie2Snap tests.
package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// pngHeader is the PNG signature plus an IHDR chunk header, enough for
// content sniffing to classify the blob as image/png.
var pngHeader = []byte{
	0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n',
	0x00, 0x00, 0x00, 0x0d, 'I', 'H', 'D', 'R',
	0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
	0x08, 0x06, 0x00, 0x00, 0x00,
}

// jpegHeader is a JFIF start-of-image marker.
var jpegHeader = []byte{
	0xff, 0xd8, 0xff, 0xe0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00,
	0x01, 0x01, 0x00, 0x00, 0x01, 0x00, 0x01, 0x00, 0x00,
}

// PNG returns a small blob that sniffs as image/png. The tag is appended
// after the header so different fixtures compare unequal.
func PNG(tag string) []byte {
	out := make([]byte, 0, len(pngHeader)+len(tag))
	out = append(out, pngHeader...)
	return append(out, tag...)
}

// JPEG returns a small blob that sniffs as image/jpeg.
func JPEG(tag string) []byte {
	out := make([]byte, 0, len(jpegHeader)+len(tag))
	out = append(out, jpegHeader...)
	return append(out, tag...)
}

// Text returns a blob that sniffs as text/plain.
func Text() []byte {
	return []byte("definitely not a selfie\n")
}

// WriteFile writes data into a file under a fresh temp directory and
// returns its path.
func WriteFile(t *testing.T, name string, data []byte) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
	return path
}
