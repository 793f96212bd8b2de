// Package identity manages the ed25519 keypairs that name every participant.
// Keys live on disk as PEM files under <dir>/<name>/ so the relay and peers
// can be provisioned out-of-band and restarted without re-keying.
package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"
)

const (
	// PrivateKeyFile is the file name of the private half inside an identity dir.
	PrivateKeyFile = "client_private_key.pem"
	// PublicKeyFile is the file name of the public half inside an identity dir.
	PublicKeyFile = "client_public_key.pem"

	privatePEMType = "PRIVATE KEY"
	publicPEMType  = "PUBLIC KEY"
)

// Identity bundles a named keypair.
type Identity struct {
	Name    string
	Private ed25519.PrivateKey
	Public  ed25519.PublicKey
}

// Generate creates a fresh ed25519 identity for the given name.
func Generate(name string) (*Identity, error) {
	if name == "" {
		return nil, fmt.Errorf("identity: name must not be empty")
	}
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("identity: generate keypair: %w", err)
	}
	return &Identity{Name: name, Private: priv, Public: pub}, nil
}

// Save writes the keypair under dir/<name>/ with the conventional file names.
// The private key is written with 0600 permissions.
func (id *Identity) Save(dir string) error {
	if id == nil || len(id.Private) == 0 || len(id.Public) == 0 {
		return fmt.Errorf("identity: incomplete identity")
	}
	target := filepath.Join(dir, id.Name)
	if err := os.MkdirAll(target, 0o755); err != nil {
		return fmt.Errorf("identity: create %s: %w", target, err)
	}
	privPEM, err := EncodePrivateKeyPEM(id.Private)
	if err != nil {
		return err
	}
	pubPEM, err := EncodePublicKeyPEM(id.Public)
	if err != nil {
		return err
	}
	privPath := filepath.Join(target, PrivateKeyFile)
	if err := os.WriteFile(privPath, privPEM, 0o600); err != nil {
		return fmt.Errorf("identity: write %s: %w", privPath, err)
	}
	pubPath := filepath.Join(target, PublicKeyFile)
	if err := os.WriteFile(pubPath, pubPEM, 0o644); err != nil {
		return fmt.Errorf("identity: write %s: %w", pubPath, err)
	}
	return nil
}

// Load reads the keypair stored under dir/<name>/.
func Load(dir, name string) (*Identity, error) {
	base := filepath.Join(dir, name)
	privData, err := os.ReadFile(filepath.Join(base, PrivateKeyFile))
	if err != nil {
		return nil, fmt.Errorf("identity: read private key: %w", err)
	}
	priv, err := ParsePrivateKeyPEM(privData)
	if err != nil {
		return nil, err
	}
	pub, ok := priv.Public().(ed25519.PublicKey)
	if !ok {
		return nil, fmt.Errorf("identity: private key has no ed25519 public half")
	}
	return &Identity{Name: name, Private: priv, Public: pub}, nil
}

// LoadPublicKey reads a single PEM public key from path. Peers use this to
// pin the relay's verification key.
func LoadPublicKey(path string) (ed25519.PublicKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("identity: read public key: %w", err)
	}
	return ParsePublicKeyPEM(data)
}

// EncodePrivateKeyPEM renders the private key as a PKCS8 PEM block.
func EncodePrivateKeyPEM(priv ed25519.PrivateKey) ([]byte, error) {
	der, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return nil, fmt.Errorf("identity: marshal private key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: privatePEMType, Bytes: der}), nil
}

// EncodePublicKeyPEM renders the public key as a PKIX PEM block. The exact
// string also travels on the wire inside signed wrappers, so encoding must
// stay stable.
func EncodePublicKeyPEM(pub ed25519.PublicKey) ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, fmt.Errorf("identity: marshal public key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: publicPEMType, Bytes: der}), nil
}

// ParsePrivateKeyPEM decodes a PKCS8 PEM private key and requires ed25519.
func ParsePrivateKeyPEM(data []byte) (ed25519.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil || block.Type != privatePEMType {
		return nil, fmt.Errorf("identity: no %s PEM block found", privatePEMType)
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("identity: parse private key: %w", err)
	}
	priv, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("identity: private key is %T, want ed25519", parsed)
	}
	return priv, nil
}

// ParsePublicKeyPEM decodes a PKIX PEM public key and requires ed25519.
func ParsePublicKeyPEM(data []byte) (ed25519.PublicKey, error) {
	block, _ := pem.Decode(data)
	if block == nil || block.Type != publicPEMType {
		return nil, fmt.Errorf("identity: no %s PEM block found", publicPEMType)
	}
	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("identity: parse public key: %w", err)
	}
	pub, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, fmt.Errorf("identity: public key is %T, want ed25519", parsed)
	}
	return pub, nil
}

// Fingerprint returns the short stable hex id for a public key. It is the
// player identity used across the simulation, rule checks, and logs.
func Fingerprint(pub ed25519.PublicKey) string {
	if len(pub) == 0 {
		return ""
	}
	sum := sha256.Sum256(pub)
	return hex.EncodeToString(sum[:8])
}
