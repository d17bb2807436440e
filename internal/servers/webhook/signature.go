package webhook

import (
	"github.com/google/go-github/v80/github"

	domainErrors "github.com/khulnasoft/pr-insight/internal/errors"
)

// SignatureHeader carries the HMAC-SHA256 of a GitHub delivery.
const SignatureHeader = "X-Hub-Signature-256"

// VerifySignature checks body against a "sha256=<hex>" signature computed
// with secret. The comparison runs in constant time.
func VerifySignature(body []byte, secret, signature string) error {
	if signature == "" {
		return domainErrors.ErrInvalidSignature.WithContext("reason", SignatureHeader+" header is missing")
	}
	if err := github.ValidateSignature(signature, body, []byte(secret)); err != nil {
		return domainErrors.ErrInvalidSignature.WithError(err)
	}
	return nil
}
