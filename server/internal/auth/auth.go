// Package auth classifies User tokens into roles per spec §4.4.
package auth

import (
	"crypto/subtle"
	"encoding/hex"
	"errors"

	"golang.org/x/crypto/blake2b"

	"github.com/wireterm/wireterm/pkg/protocol"
	"github.com/wireterm/wireterm/server/internal/store"
)

// ErrTokenTooShort is returned when a presented token is below the
// configured minimum length; the store is never consulted in this case.
var ErrTokenTooShort = errors.New("token below minimum length")

// Classifier classifies presented tokens into roles.
type Classifier struct {
	store           store.Store
	superAdminToken string
	tokenMinLength  int
	hashKey         []byte
}

// New builds a Classifier. hashKey is a server-held pepper mixed into the
// keyed BLAKE2b digest of every Agent token; it must stay stable across
// restarts for stored hashes to keep matching (see DESIGN.md).
func New(s store.Store, superAdminToken string, tokenMinLength int, hashKey []byte) *Classifier {
	return &Classifier{
		store:           s,
		superAdminToken: superAdminToken,
		tokenMinLength:  tokenMinLength,
		hashKey:         hashKey,
	}
}

// HashToken computes the deterministic, salt-free digest of a token used
// for Agent admin/share token storage and lookup.
func (c *Classifier) HashToken(token string) string {
	h, _ := blake2b.New256(c.hashKey)
	h.Write([]byte(token))
	return hex.EncodeToString(h.Sum(nil))
}

// Identity is the result of successful classification.
type Identity struct {
	Role    string // protocol.RoleShare / RoleAdmin / RoleSuperAdmin
	AgentID string // bound Agent Record id, empty for SuperAdmin
}

// Classify implements the two-step lookup of spec §4.4: constant-time
// compare against the configured SuperAdmin token first, then a hash match
// against stored Agent admin/share hashes.
func (c *Classifier) Classify(token string) (*Identity, error) {
	if len(token) < c.tokenMinLength {
		return nil, ErrTokenTooShort
	}

	if subtle.ConstantTimeCompare([]byte(token), []byte(c.superAdminToken)) == 1 {
		return &Identity{Role: protocol.RoleSuperAdmin}, nil
	}

	hash := c.HashToken(token)

	if agent, err := c.store.GetAgentByAdminHash(hash); err == nil && agent != nil {
		return &Identity{Role: protocol.RoleAdmin, AgentID: agent.ID}, nil
	}
	if agent, err := c.store.GetAgentByShareHash(hash); err == nil && agent != nil {
		return &Identity{Role: protocol.RoleShare, AgentID: agent.ID}, nil
	}

	return nil, errors.New("no matching credential")
}
