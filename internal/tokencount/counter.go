// Package tokencount implements the TokenCounter of spec.md §4.1: a pure,
// cheap, monotonic estimator used by the ContextManager and by logging.
// Accuracy is not required to be exact.
package tokencount

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"image"

	// Blank-imported so image.DecodeConfig recognizes common formats when
	// sizing inline images, matching the teacher's reliance on stdlib
	// image decoding (internal/imggen) rather than a third-party decoder.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
)

// bytesPerToken approximates English-language token density; the spec
// fixes this at ceil(len/3).
const bytesPerToken = 3

// pixelsPerToken approximates image token cost by pixel area.
const pixelsPerToken = 750

// Text estimates the token count of a plain string.
func Text(s string) int {
	if s == "" {
		return 0
	}
	return (len(s) + bytesPerToken - 1) / bytesPerToken
}

// Part is the minimal shape needed to count a multi-part content item
// without importing the history package (avoiding a cycle); callers pass
// adapters built from their own content-block types.
type Part struct {
	// Text is set for text-like parts; ignored if empty and Image is set.
	Text string
	// ImageMediaType/ImageBase64 are set for image parts.
	ImageMediaType string
	ImageBase64    string
	// Other, when non-nil, is JSON-marshaled and counted by serialized length.
	Other any
}

// Parts sums the token estimate across a slice of multi-part content,
// exactly as spec.md §4.1 specifies: image parts by pixel area, text parts
// by the string rule, anything else by its JSON serialization length.
func Parts(parts []Part) int {
	total := 0
	for _, p := range parts {
		total += part(p)
	}
	return total
}

func part(p Part) int {
	if p.ImageBase64 != "" {
		if n, ok := imageTokens(p.ImageBase64); ok {
			return n
		}
		// Fall through to text-style counting if decode fails; still
		// monotonic in the size of the payload.
		return Text(p.ImageBase64)
	}
	if p.Text != "" {
		return Text(p.Text)
	}
	if p.Other != nil {
		b, err := json.Marshal(p.Other)
		if err != nil {
			return 0
		}
		return Text(string(b))
	}
	return 0
}

func imageTokens(b64 string) (int, bool) {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return 0, false
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return 0, false
	}
	area := cfg.Width * cfg.Height
	if area <= 0 {
		return 0, false
	}
	return (area + pixelsPerToken - 1) / pixelsPerToken, true
}
