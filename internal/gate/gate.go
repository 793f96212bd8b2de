// Package gate signs and verifies the wrappers that carry every event and
// batch report in the system. Verification never panics and never reports a
// reason to the sender: a wrapper either verifies or it does not.
package gate

import (
	"crypto/ed25519"
	"errors"
	"fmt"

	"skirmish/internal/identity"
	"skirmish/internal/proto"
	"skirmish/internal/telemetry"
)

// ErrSigningUnavailable is returned by Wrap when no usable private key is
// present. Callers treat it as transient and retry on a later tick.
var ErrSigningUnavailable = errors.New("gate: signing unavailable")

// Signer wraps payloads in signed envelopes under a single ed25519 identity.
type Signer struct {
	priv      ed25519.PrivateKey
	pub       ed25519.PublicKey
	publicPEM string
}

// NewSigner builds a Signer from an ed25519 private key.
func NewSigner(priv ed25519.PrivateKey) (*Signer, error) {
	if len(priv) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("gate: private key must be %d bytes, got %d", ed25519.PrivateKeySize, len(priv))
	}
	pub, ok := priv.Public().(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("gate: private key has no ed25519 public half")
	}
	pemBytes, err := identity.EncodePublicKeyPEM(pub)
	if err != nil {
		return nil, fmt.Errorf("gate: encode public key: %w", err)
	}
	return &Signer{priv: priv, pub: pub, publicPEM: string(pemBytes)}, nil
}

// Wrap canonicalizes payload, signs the canonical bytes and returns the
// envelope carrying payload, signature and the signer's public key.
func (s *Signer) Wrap(payload any) (proto.SignedWrapper, error) {
	if s == nil || len(s.priv) != ed25519.PrivateKeySize {
		return proto.SignedWrapper{}, ErrSigningUnavailable
	}
	data, err := Canonical(payload)
	if err != nil {
		return proto.SignedWrapper{}, fmt.Errorf("gate: canonicalize payload: %w", err)
	}
	return proto.SignedWrapper{
		Ver:       proto.Version,
		Payload:   data,
		Signature: ed25519.Sign(s.priv, data),
		PublicKey: s.publicPEM,
	}, nil
}

// PublicKeyPEM returns the signer's public key in the wire encoding.
func (s *Signer) PublicKeyPEM() string {
	return s.publicPEM
}

// PublicKey returns the signer's raw public key.
func (s *Signer) PublicKey() ed25519.PublicKey {
	return s.pub
}

// Fingerprint returns the short hex identifier peers are addressed by.
func (s *Signer) Fingerprint() string {
	return identity.Fingerprint(s.pub)
}

// Verifier checks wrapper signatures. The zero value is not usable; construct
// with NewVerifier.
type Verifier struct {
	keys    *keyCache
	metrics telemetry.Metrics
}

// NewVerifier builds a Verifier. metrics may be nil.
func NewVerifier(metrics telemetry.Metrics) *Verifier {
	return &Verifier{keys: newKeyCache(metrics), metrics: metrics}
}

// Verify reports whether w's signature matches its payload under the public
// key the wrapper itself carries. Malformed keys, payloads and signatures all
// verify false.
func (v *Verifier) Verify(w proto.SignedWrapper) bool {
	pub, err := v.keys.parse(w.PublicKey)
	if err != nil {
		v.countReject()
		return false
	}
	return v.verifyWithKey(pub, w)
}

// VerifyFrom is Verify restricted to a pinned sender: the wrapper must carry
// exactly the expected public key and its signature must match. Used for
// batch reports, where only the relay's key is trusted.
func (v *Verifier) VerifyFrom(expected ed25519.PublicKey, w proto.SignedWrapper) bool {
	pub, err := v.keys.parse(w.PublicKey)
	if err != nil {
		v.countReject()
		return false
	}
	if !pub.Equal(expected) {
		v.countReject()
		return false
	}
	return v.verifyWithKey(pub, w)
}

func (v *Verifier) verifyWithKey(pub ed25519.PublicKey, w proto.SignedWrapper) bool {
	if len(w.Signature) != ed25519.SignatureSize {
		v.countReject()
		return false
	}
	data, err := CanonicalRaw(w.Payload)
	if err != nil {
		v.countReject()
		return false
	}
	if !ed25519.Verify(pub, data, w.Signature) {
		v.countReject()
		return false
	}
	return true
}

func (v *Verifier) countReject() {
	if v.metrics != nil {
		v.metrics.Add(metricVerifyRejects, 1)
	}
}
