// Package media holds the image blobs that flow between uploads, jobs and
// the generation providers.
package media

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// ErrInvalidMediaType is returned when a blob is not an image.
var ErrInvalidMediaType = errors.New("invalid media type")

// Image is an encoded image blob with its media type.
type Image struct {
	Data      []byte `json:"-"`
	MediaType string `json:"media_type"`
	Name      string `json:"name,omitempty"`
}

// NewImage validates data as an image and returns it.
//
// declared is the media type reported by the client (multipart header or
// file picker). It may be empty, in which case only the sniffed type is
// checked. Both must start with "image/".
func NewImage(name, declared string, data []byte) (Image, error) {
	if len(data) == 0 {
		return Image{}, fmt.Errorf("%w: empty blob", ErrInvalidMediaType)
	}
	if declared != "" && !IsImageType(declared) {
		return Image{}, fmt.Errorf("%w: declared %q", ErrInvalidMediaType, declared)
	}

	detected := mimetype.Detect(data)
	if !IsImageType(detected.String()) {
		return Image{}, fmt.Errorf("%w: detected %q", ErrInvalidMediaType, detected.String())
	}

	return Image{
		Data:      data,
		MediaType: baseType(detected.String()),
		Name:      name,
	}, nil
}

// IsImageType reports whether mediaType is in the image/ family.
func IsImageType(mediaType string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(mediaType)), "image/")
}

// Empty reports whether the image carries no data.
func (i Image) Empty() bool {
	return len(i.Data) == 0
}

// Clone returns a deep copy so the caller can hand it to another owner.
func (i Image) Clone() Image {
	cp := i
	if i.Data != nil {
		cp.Data = make([]byte, len(i.Data))
		copy(cp.Data, i.Data)
	}
	return cp
}

// DataURI encodes the image as a base64 data URI.
func (i Image) DataURI() string {
	return "data:" + i.MediaType + ";base64," + base64.StdEncoding.EncodeToString(i.Data)
}

// Extension returns the preferred file extension for the image, including
// the leading dot.
func (i Image) Extension() string {
	if m := mimetype.Lookup(i.MediaType); m != nil {
		return m.Extension()
	}
	switch i.MediaType {
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	default:
		return ".png"
	}
}

// baseType strips parameters such as "; charset=binary".
func baseType(mediaType string) string {
	if idx := strings.Index(mediaType, ";"); idx >= 0 {
		return strings.TrimSpace(mediaType[:idx])
	}
	return mediaType
}
