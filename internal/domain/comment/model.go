package comment

import "strings"

// ImageRef points at an image attached to a comment (usually its src URL).
type ImageRef string

// Block is one comment as rendered on the post during a single render pass.
// Blocks are ephemeral and never persisted.
type Block struct {
	Author       string
	Text         string
	Images       []ImageRef
	RelativeTime string // empty when the render carried no time token
}

// HasImages reports whether the block carries at least one non-empty image reference.
func (b Block) HasImages() bool {
	for _, img := range b.Images {
		if strings.TrimSpace(string(img)) != "" {
			return true
		}
	}
	return false
}

// ImageStrings returns the image references as plain strings.
func (b Block) ImageStrings() []string {
	if len(b.Images) == 0 {
		return nil
	}
	out := make([]string, 0, len(b.Images))
	for _, img := range b.Images {
		out = append(out, string(img))
	}
	return out
}
