package users

import (
	"crypto/sha256"
	"encoding/hex"

	"golang.org/x/crypto/bcrypt"
)

// Role tags the store an Identity was resolved from
type Role string

const (
	RoleAdmin   Role = "admin"   // Manages sponsors and trainees
	RoleSponsor Role = "sponsor" // Mentors trainees, logs in with email and secret
	RoleTrainee Role = "trainee" // Logs in with a single-use token
)

// Valid reports whether r is one of the known roles
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleSponsor, RoleTrainee:
		return true
	}
	return false
}

// Record is the raw row a credential store returns. It carries no role; the
// role is attached once, by whoever decided which store to ask.
type Record struct {
	ID         int
	Email      string
	SecretHash string
	LoginToken string
}

// Identity is an authenticated principal. Only the copy returned by
// WithoutSecret may be kept beyond the authentication check.
type Identity struct {
	Role       Role   `json:"role"`
	ID         int    `json:"id"`
	Email      string `json:"email,omitempty"`
	SecretHash string `json:"secret_hash,omitempty"`
	LoginToken string `json:"login_token,omitempty"`
}

// NewIdentity tags a store record with the role of the store it came from
func NewIdentity(role Role, rec Record) Identity {
	return Identity{
		Role:       role,
		ID:         rec.ID,
		Email:      rec.Email,
		SecretHash: rec.SecretHash,
		LoginToken: rec.LoginToken,
	}
}

// WithoutSecret returns a copy with the password hash and login token cleared
func (i Identity) WithoutSecret() Identity {
	i.SecretHash = ""
	i.LoginToken = ""
	return i
}

// Valid reports whether the identity has a known role and a positive ID
func (i Identity) Valid() bool {
	return i.Role.Valid() && i.ID > 0
}

// SecretHasher checks secrets against bcrypt digests. The candidate is
// peppered and pre-hashed so that long secrets stay within bcrypt's 72 byte
// input limit.
type SecretHasher struct {
	Pepper    string
	Separator string
	Cost      int
}

// NewSecretHasher returns a hasher using bcrypt.DefaultCost
func NewSecretHasher(pepper, separator string) SecretHasher {
	return SecretHasher{Pepper: pepper, Separator: separator, Cost: bcrypt.DefaultCost}
}

func (h SecretHasher) prepare(secret string) []byte {
	sum := sha256.Sum256([]byte(secret + h.Separator + h.Pepper))
	return []byte(hex.EncodeToString(sum[:]))
}

// Hash produces the stored digest for secret
func (h SecretHasher) Hash(secret string) (string, error) {
	cost := h.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	bytes, err := bcrypt.GenerateFromPassword(h.prepare(secret), cost)
	return string(bytes), err
}

// IsEqual reports whether candidate matches storedDigest
func (h SecretHasher) IsEqual(candidate, storedDigest string) bool {
	if storedDigest == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(storedDigest), h.prepare(candidate)) == nil
}
