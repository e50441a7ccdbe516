// Package models defines the identity and device records the synchronization
// core reconciles between local persistence and the backend.
package models

import (
	"strings"
	"time"

	"github.com/aegisdns/syncd/internal/common"
)

// Account is the backend-authoritative identity record. It is immutable once
// fetched; the stores replace it wholesale rather than mutating fields.
type Account struct {
	ID          string    `json:"id"`
	Type        string    `json:"type,omitempty"`
	ActiveUntil time.Time `json:"active_until,omitempty"`
}

// NormalizeAccountID sanitizes user-entered identifiers: surrounding
// whitespace is dropped and the ID is lowercased. Backend IDs are
// case-insensitive.
func NormalizeAccountID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

func (a Account) Validate() error {
	if NormalizeAccountID(a.ID) == "" {
		return common.ErrEmptyAccountID
	}
	return nil
}

// Keypair is locally generated asymmetric key material, both halves base64
// encoded. It is never derived from the backend.
type Keypair struct {
	PrivateKey string `json:"privateKey"`
	PublicKey  string `json:"publicKey"`
}

func (k Keypair) Validate() error {
	if k.PrivateKey == "" || k.PublicKey == "" {
		return common.ErrEmptyKeyMaterial
	}
	return nil
}

// AccountWithKeypair pairs an account with the keypair generated for it.
// A keypair is only meaningful next to the account ID it was minted for;
// when the ID changes the keypair must be replaced (see AccountStore's
// reuse rule).
type AccountWithKeypair struct {
	Account Account `json:"account"`
	Keypair Keypair `json:"keypair"`
}

func (awk AccountWithKeypair) Validate() error {
	if err := awk.Account.Validate(); err != nil {
		return err
	}
	return awk.Keypair.Validate()
}
