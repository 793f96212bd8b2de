// Package proto defines the wire shapes exchanged between peers and the
// relay: signed wrappers, the player action union, and batch reports. Decode
// helpers are strict; anything that fails them is dropped by callers without
// feedback to the sender.
package proto

import (
	"encoding/json"
	"errors"

	jsoniter "github.com/json-iterator/go"
)

// Version tracks the wire-protocol revision. Messages without a ver field are
// treated as version 1.
const Version = 1

var codec = jsoniter.ConfigCompatibleWithStandardLibrary

// Decode failure classes, matched with errors.Is at call sites.
var (
	ErrMalformedWrapper = errors.New("proto: malformed signed wrapper")
	ErrMalformedAction  = errors.New("proto: malformed action event")
	ErrMalformedReport  = errors.New("proto: malformed batch report")
)

// SignedWrapper carries an opaque payload, an ed25519 signature over the
// payload's canonical serialization, and the signer's PEM public key. The
// wrapper asserts nothing about sender identity beyond key possession.
type SignedWrapper struct {
	Ver       int             `json:"ver,omitempty"`
	Payload   json.RawMessage `json:"payload"`
	Signature []byte          `json:"signature"`
	PublicKey string          `json:"publicKey"`
}

// DecodeWrapper parses bytes into a SignedWrapper. Missing payload,
// signature, or public key all classify as ErrMalformedWrapper.
func DecodeWrapper(data []byte) (SignedWrapper, error) {
	var w SignedWrapper
	if err := codec.Unmarshal(data, &w); err != nil {
		return SignedWrapper{}, ErrMalformedWrapper
	}
	if len(w.Payload) == 0 || string(w.Payload) == "null" {
		return SignedWrapper{}, ErrMalformedWrapper
	}
	if len(w.Signature) == 0 || w.PublicKey == "" {
		return SignedWrapper{}, ErrMalformedWrapper
	}
	return w, nil
}

// EncodeWrapper renders a SignedWrapper for transmission.
func EncodeWrapper(w SignedWrapper) ([]byte, error) {
	if w.Ver == 0 {
		w.Ver = Version
	}
	return codec.Marshal(w)
}
