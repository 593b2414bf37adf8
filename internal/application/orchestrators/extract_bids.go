package orchestrators

import (
	"context"
	"log/slog"
	"strings"

	"bidwatch/internal/domain/bid"
	"bidwatch/internal/domain/bidparse"
	"bidwatch/internal/domain/comment"
)

// Recognizer returns best-effort text for an image. It never fails: an
// unavailable or failing OCR backend yields "".
type Recognizer interface {
	Recognize(ctx context.Context, imageRef string) string
}

// ExtractBidsDeps holds dependencies for ExtractBids.
type ExtractBidsDeps struct {
	Parser     *bidparse.Parser
	Recognizer Recognizer // optional
}

// ExecuteExtractBids turns one render's comment blocks into candidate bids.
// For blocks with images, recognized text is appended to the comment text,
// one line per image. OCR failure leaves the block text-only.
// PRE: postID is non-empty
// POST: returned bids are valid and exclude self-bids
func ExecuteExtractBids(ctx context.Context, postID string, blocks []comment.Block, deps ExtractBidsDeps) []bid.Bid {
	var out []bid.Bid
	for _, block := range blocks {
		src := bidparse.Source{
			PostID:       postID,
			Author:       block.Author,
			Text:         block.Text,
			RelativeTime: block.RelativeTime,
			Images:       block.ImageStrings(),
		}
		if block.HasImages() && deps.Recognizer != nil {
			src.OCRText = recognizeAll(ctx, block.Images, deps.Recognizer)
		}
		out = append(out, deps.Parser.Parse(src)...)
	}
	return out
}

func recognizeAll(ctx context.Context, images []comment.ImageRef, r Recognizer) string {
	var lines []string
	for _, img := range images {
		text := strings.TrimSpace(r.Recognize(ctx, string(img)))
		if text == "" {
			slog.Debug("ocr_empty", "image", string(img))
			continue
		}
		lines = append(lines, text)
	}
	return strings.Join(lines, "\n")
}
