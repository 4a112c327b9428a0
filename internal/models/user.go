package models

import (
	"time"

	pkgauth "github.com/harvestly/harvestly/pkg/auth"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User is the persisted account record. Token fields hold sha256 digests only.
type User struct {
	ID                     string     `bson:"_id"`
	FirstName              string     `bson:"first_name"`
	LastName               string     `bson:"last_name"`
	Email                  string     `bson:"email"`
	PasswordHash           string     `bson:"password_hash"`
	Phone                  string     `bson:"phone"`
	State                  string     `bson:"state"`
	Role                   string     `bson:"role"` // "user" or "admin"
	ProfilePicture         string     `bson:"profile_picture,omitempty"`
	IsVerified             bool       `bson:"is_verified"`
	VerificationTokenHash  *string    `bson:"verification_token_hash,omitempty"`
	PasswordResetTokenHash *string    `bson:"password_reset_token_hash,omitempty"`
	PasswordResetExpires   *time.Time `bson:"password_reset_expires,omitempty"`
	LastLogin              *time.Time `bson:"last_login,omitempty"`
	PasswordChangedAt      *time.Time `bson:"password_changed_at,omitempty"`
	TokensValidAfter       *time.Time `bson:"tokens_valid_after,omitempty"` // bearer tokens issued before this are rejected
	CreatedAt              time.Time  `bson:"created_at"`
	UpdatedAt              time.Time  `bson:"updated_at"`
}

// SetPassword hashes plain and stores the digest. The plaintext never reaches the record.
func (u *User) SetPassword(plain string) error {
	hash, err := pkgauth.HashPassword(plain)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	u.PasswordHash = hash
	u.PasswordChangedAt = &now
	return nil
}

// CheckPassword reports whether plain matches the stored digest.
func (u *User) CheckPassword(plain string) bool {
	if u.PasswordHash == "" {
		return false
	}
	return pkgauth.ComparePassword(u.PasswordHash, plain) == nil
}

// IsAdmin reports whether the stored role grants admin capability.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// HasPendingReset reports whether an unexpired reset token is outstanding at now.
func (u *User) HasPendingReset(now time.Time) bool {
	return u.PasswordResetTokenHash != nil && u.PasswordResetExpires != nil && now.Before(*u.PasswordResetExpires)
}

// TokenIssuedBeforeCutoff reports whether a token issued at issuedAt predates the revocation cutoff.
func (u *User) TokenIssuedBeforeCutoff(issuedAt time.Time) bool {
	return u.TokensValidAfter != nil && issuedAt.Before(*u.TokensValidAfter)
}

// UserPatch carries the profile fields a caller may change. Nil means unchanged.
type UserPatch struct {
	FirstName *string
	LastName  *string
	Phone     *string
	State     *string
	Role      *string
}

// Empty reports whether the patch changes nothing
func (p UserPatch) Empty() bool {
	for _, f := range []*string{p.FirstName, p.LastName, p.Phone, p.State, p.Role} {
		if f != nil && *f != "" {
			return false
		}
	}
	return true
}

// Apply copies the non-nil, non-empty fields onto u.
func (p UserPatch) Apply(u *User) {
	if p.FirstName != nil && *p.FirstName != "" {
		u.FirstName = *p.FirstName
	}
	if p.LastName != nil && *p.LastName != "" {
		u.LastName = *p.LastName
	}
	if p.Phone != nil && *p.Phone != "" {
		u.Phone = *p.Phone
	}
	if p.State != nil && *p.State != "" {
		u.State = *p.State
	}
	if p.Role != nil && *p.Role != "" {
		u.Role = *p.Role
	}
}
