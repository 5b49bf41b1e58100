package models

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// ScopeAdmin grants access to the operator endpoints under /api/v1/admin.
const ScopeAdmin = "admin"

var knownScopes = []string{ScopeAdmin}

// KnownScope reports whether scope can be granted to an operator key.
func KnownScope(scope string) bool {
	return slices.Contains(knownScopes, scope)
}

// APIKey is an operator credential for the admin surface (reconciliation).
// Raw keys are shown once by settlementctl; only the bcrypt hash is stored.
type APIKey struct {
	ID         uuid.UUID  `db:"id"           json:"id"`
	Name       string     `db:"name"         json:"name"`
	KeyHash    string     `db:"key_hash"     json:"-"`
	KeyPrefix  string     `db:"key_prefix"   json:"key_prefix"`
	Scopes     []string   `db:"scopes"       json:"scopes"`
	LastUsedAt *time.Time `db:"last_used_at" json:"last_used_at,omitempty"`
	DeletedAt  *time.Time `db:"deleted_at"   json:"-"`
	CreatedAt  time.Time  `db:"created_at"   json:"created_at"`
	UpdatedAt  time.Time  `db:"updated_at"   json:"updated_at"`
}

func (k *APIKey) HasScope(scope string) bool {
	return slices.Contains(k.Scopes, scope)
}

// Revoked keys stay in the table for audit but never authenticate.
func (k *APIKey) Revoked() bool {
	return k.DeletedAt != nil
}
