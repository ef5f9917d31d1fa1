// Package prompt composes the text instruction sent to image providers.
package prompt

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"strings"

	"github.com/selfie2snap/selfie2snap/internal/options"
)

var sceneDescriptions = map[options.Scene]string{
	options.SceneNatural:   "a natural outdoor setting with soft daylight",
	options.SceneBeach:     "a sunny beach with the ocean in the background",
	options.SceneCity:      "a lively city street at golden hour",
	options.SceneMountains: "a mountain overlook with distant peaks",
	options.SceneStudio:    "a clean photo studio with a seamless backdrop",
	options.SceneParty:     "a festive party with warm string lights",
}

// variations give each frame of a job a different shot so N frames are not
// N copies of the same picture.
var variations = []string{
	"both people smiling at the camera, shoulder to shoulder",
	"a candid moment of the two laughing together",
	"a slightly wider shot with more of the scene visible",
	"a close-up framing with a shallow depth of field",
	"one person with an arm around the other",
	"both looking at each other mid-conversation",
	"a playful pose with exaggerated expressions",
	"a relaxed pose seen from a low angle",
	"a classic portrait composition with centered subjects",
	"a dynamic, slightly tilted selfie-style angle",
}

// Build returns the prompt for frame index of a job with opts. Every index
// in [0,10) gets a different variation line.
func Build(opts options.Options, index int) string {
	scene, ok := sceneDescriptions[opts.Scene]
	if !ok {
		scene = sceneDescriptions[options.SceneNatural]
	}

	var sb strings.Builder
	sb.WriteString("Create a single photorealistic photo of the two people from the reference images together in one shot. ")
	sb.WriteString("Keep each person's face, hair and skin tone faithful to their reference image. ")
	fmt.Fprintf(&sb, "Setting: %s. ", scene)
	if opts.Style != "" {
		fmt.Fprintf(&sb, "Style: %s. ", opts.Style)
	}
	fmt.Fprintf(&sb, "Composition: %s. ", variations[mod(index, len(variations))])
	fmt.Fprintf(&sb, "Aspect ratio %s.", opts.AspectRatio)
	return sb.String()
}

// Seed derives a deterministic, non-negative seed for one dispatch so that
// retries of the same frame explore a different sample.
func Seed(jobID string, index, attempt int) int64 {
	h := fnv.New64a()
	h.Write([]byte(jobID))
	var buf [16]byte
	binary.BigEndian.PutUint64(buf[:8], uint64(index))
	binary.BigEndian.PutUint64(buf[8:], uint64(attempt))
	h.Write(buf[:])
	// Providers accept 31-bit seeds
	return int64(h.Sum64() & 0x7fffffff)
}

func mod(a, b int) int {
	r := a % b
	if r < 0 {
		r += b
	}
	return r
}
