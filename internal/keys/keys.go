// Package keys mints the local asymmetric keypair bound to an account.
// Keys are X25519; both halves are carried base64-encoded so they can live
// in string-keyed persistence and backend payloads.
package keys

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/curve25519"

	"github.com/aegisdns/syncd/internal/models"
)

// Generator produces fresh keypairs. The modeled contract never fails;
// an error here means the platform randomness source is broken.
type Generator interface {
	Generate() (models.Keypair, error)
}

type X25519Generator struct{}

func NewX25519Generator() *X25519Generator {
	return &X25519Generator{}
}

func (g *X25519Generator) Generate() (models.Keypair, error) {
	priv := make([]byte, curve25519.ScalarSize)
	if _, err := rand.Read(priv); err != nil {
		return models.Keypair{}, fmt.Errorf("failed to read randomness: %w", err)
	}

	pub, err := curve25519.X25519(priv, curve25519.Basepoint)
	if err != nil {
		return models.Keypair{}, fmt.Errorf("failed to derive public key: %w", err)
	}

	return models.Keypair{
		PrivateKey: base64.StdEncoding.EncodeToString(priv),
		PublicKey:  base64.StdEncoding.EncodeToString(pub),
	}, nil
}

// PublicFromPrivate rederives the public half from a stored private key.
// Used to repair legacy records that persisted only the private half.
func PublicFromPrivate(privateKey string) (string, error) {
	priv, err := base64.StdEncoding.DecodeString(privateKey)
	if err != nil {
		return "", fmt.Errorf("invalid private key encoding: %w", err)
	}
	pub, err := curve25519.X25519(priv, curve25519.Basepoint)
	if err != nil {
		return "", fmt.Errorf("failed to derive public key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(pub), nil
}
