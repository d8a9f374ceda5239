// Package keys generates WireGuard key pairs and derives public keys from private ones.
package keys

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/curve25519"
	"golang.zx2c4.com/wireguard/wgctrl/wgtypes"
)

// ErrInvalidKey is returned when a key is not 32 bytes of base64.
var ErrInvalidKey = errors.New("invalid key")

// Generator creates new key pairs.
type Generator interface {
	GenerateKeyPair() (priv, pub string, err error)
}

// Deriver computes the public key belonging to a private key.
type Deriver interface {
	PublicKey(priv string) (string, error)
}

// Source is both a Generator and a Deriver.
type Source interface {
	Generator
	Deriver
}

// WireGuard produces Curve25519 keys in the base64 form used by wg(8).
type WireGuard struct{}

// GenerateKeyPair returns a fresh private key and its public key.
func (WireGuard) GenerateKeyPair() (string, string, error) {
	k, err := wgtypes.GeneratePrivateKey()
	if err != nil {
		return "", "", fmt.Errorf("generate private key: %w", err)
	}
	return k.String(), k.PublicKey().String(), nil
}

// PublicKey returns the public key for a base64 private key.
func (WireGuard) PublicKey(priv string) (string, error) {
	raw, err := decode(priv)
	if err != nil {
		return "", err
	}

	pub, err := curve25519.X25519(raw, curve25519.Basepoint)
	if err != nil {
		return "", fmt.Errorf("derive public key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(pub), nil
}

// Validate checks that s is a well-formed base64 key.
func Validate(s string) error {
	_, err := decode(s)
	return err
}

func decode(s string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	if len(raw) != wgtypes.KeyLen {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidKey, wgtypes.KeyLen, len(raw))
	}
	return raw, nil
}

// Static is a Source that hands out predetermined keys. PublicKey looks the
// private key up in Pairs and falls back to Fallback when it is set.
type Static struct {
	Pairs    [][2]string // private, public
	Fallback Deriver
	next     int
}

// GenerateKeyPair returns the next pair in order.
func (s *Static) GenerateKeyPair() (string, string, error) {
	if s.next >= len(s.Pairs) {
		return "", "", errors.New("static key source exhausted")
	}
	p := s.Pairs[s.next]
	s.next++
	return p[0], p[1], nil
}

// PublicKey returns the public key paired with priv.
func (s *Static) PublicKey(priv string) (string, error) {
	for _, p := range s.Pairs {
		if p[0] == priv {
			return p[1], nil
		}
	}
	if s.Fallback != nil {
		return s.Fallback.PublicKey(priv)
	}
	return "", fmt.Errorf("%w: unknown private key", ErrInvalidKey)
}
