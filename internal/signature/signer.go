package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/corvid-labs/chronicle/pkg/api"
)

// Signer computes and verifies event signatures: HMAC-SHA256 over the
// event's canonical form, keyed by a secret held by the engine process.
// The secret never travels with the event or the store.
type Signer struct {
	key []byte
}

// NewSigner creates a Signer from the given secret key.
func NewSigner(key []byte) (*Signer, error) {
	if len(key) == 0 {
		return nil, errors.New("signature: signing key must not be empty")
	}
	k := make([]byte, len(key))
	copy(k, key)
	return &Signer{key: k}, nil
}

// Sign returns the hex-encoded signature of the event. The event's own
// Signature field is excluded from the signed content.
func (s *Signer) Sign(e api.WorkflowEvent) (string, error) {
	canonical, err := CanonicalBytes(e)
	if err != nil {
		return "", fmt.Errorf("signature: canonicalize event %s: %w", e.EventID, err)
	}
	mac := hmac.New(sha256.New, s.key)
	mac.Write(canonical)
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// SignEvent returns a copy of the event with its signature attached and
// its version set to the current schema version.
func (s *Signer) SignEvent(e api.WorkflowEvent) (api.WorkflowEvent, error) {
	out := e.Clone()
	out.EventVersion = api.EventVersionCurrent
	sig, err := s.Sign(out)
	if err != nil {
		return api.WorkflowEvent{}, err
	}
	out.Signature = sig
	return out, nil
}

// Verify reports whether the event's signature matches its contents.
// Comparison is constant-time.
func (s *Signer) Verify(e api.WorkflowEvent) (bool, error) {
	if e.Signature == "" {
		return false, nil
	}
	want, err := s.Sign(e)
	if err != nil {
		return false, err
	}
	// hex strings of equal-length digests; compare the raw bytes.
	got, err := hex.DecodeString(e.Signature)
	if err != nil {
		return false, nil
	}
	wantRaw, _ := hex.DecodeString(want)
	return hmac.Equal(got, wantRaw), nil
}
