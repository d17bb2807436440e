package tokens

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
	tiktokenloader "github.com/pkoukk/tiktoken-go-loader"
)

const defaultEncoding = "cl100k_base"

func init() {
	// BPE ranks ship inside the binary so counting never touches the network.
	tiktoken.SetBpeLoader(tiktokenloader.NewOfflineLoader())
}

// Encoder counts tokens for one model. A nil tiktoken encoding falls back to
// a four-characters-per-token estimate.
type Encoder struct {
	model string
	enc   *tiktoken.Tiktoken
}

var (
	encodersMu sync.Mutex
	encoders   = map[string]*Encoder{}
)

// ForModel returns the cached encoder for model. GPT models use their own
// encoding, everything else is counted with cl100k_base.
func ForModel(model string) *Encoder {
	encodersMu.Lock()
	defer encodersMu.Unlock()

	if e, ok := encoders[model]; ok {
		return e
	}

	var enc *tiktoken.Tiktoken
	var err error
	if strings.Contains(model, "gpt") {
		enc, err = tiktoken.EncodingForModel(model)
	}
	if enc == nil || err != nil {
		enc, err = tiktoken.GetEncoding(defaultEncoding)
	}
	if err != nil {
		enc = nil
	}

	e := &Encoder{model: model, enc: enc}
	encoders[model] = e
	return e
}

// Count returns the number of tokens in text. Special tokens are counted as
// plain text.
func (e *Encoder) Count(text string) int {
	if text == "" {
		return 0
	}
	if e == nil || e.enc == nil {
		return len(text) / 4
	}
	return len(e.enc.Encode(text, nil, nil))
}

// Count uses the default encoding.
func Count(text string) int {
	return ForModel("").Count(text)
}
