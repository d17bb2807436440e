package tokens

import "strings"

// ClipOptions tunes ClipTokens. NumInputTokens < 0 means "count them".
type ClipOptions struct {
	AddThreeDots   bool
	NumInputTokens int
	DeleteLastLine bool
}

// DefaultClip appends the truncation marker and counts input tokens.
var DefaultClip = ClipOptions{AddThreeDots: true, NumInputTokens: -1}

// TruncationMarker ends text shortened by ClipTokens.
const TruncationMarker = "\n...(truncated)"

// ClipTokens shortens text to roughly maxTokens tokens by keeping a prefix
// proportional to the average characters per token, minus ten percent.
func (e *Encoder) ClipTokens(text string, maxTokens int, opts ClipOptions) string {
	if text == "" {
		return text
	}
	numInput := opts.NumInputTokens
	if numInput < 0 {
		numInput = e.Count(text)
	}
	if numInput <= maxTokens {
		return text
	}
	if maxTokens < 0 || numInput == 0 {
		return ""
	}

	runes := []rune(text)
	charsPerToken := float64(len(runes)) / float64(numInput)
	numOutputChars := int(0.9 * charsPerToken * float64(maxTokens))
	if numOutputChars <= 0 {
		return ""
	}
	if numOutputChars > len(runes) {
		numOutputChars = len(runes)
	}

	clipped := string(runes[:numOutputChars])
	if opts.DeleteLastLine {
		if i := strings.LastIndex(clipped, "\n"); i >= 0 {
			clipped = clipped[:i]
		}
	}
	if opts.AddThreeDots {
		clipped += TruncationMarker
	}
	return clipped
}
