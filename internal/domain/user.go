package domain

import (
	"errors"
	"time"
)

// User represents a bank customer or operator.
type User struct {
	ID             string
	Username       string
	Email          string
	Name           string
	HashedPassword string
	Role           Role
	Profile        Profile
	CreatedAt      time.Time
	UpdatedAt      time.Time
	Active         bool
}

// Profile holds the KYC details collected at registration.
type Profile struct {
	Phone          string
	Address        string
	DateOfBirth    time.Time
	IdentityProof  IdentityProof
	IdentityNumber string
}

// IdentityProof is the document type a customer registered with.
type IdentityProof string

const (
	IdentityAadhaar  IdentityProof = "aadhaar"
	IdentityPAN      IdentityProof = "pan"
	IdentityPassport IdentityProof = "passport"
	IdentityLicense  IdentityProof = "license"
)

// IsValid checks if the proof is an accepted document type
func (p IdentityProof) IsValid() bool {
	switch p {
	case IdentityAadhaar, IdentityPAN, IdentityPassport, IdentityLicense:
		return true
	default:
		return false
	}
}

// Role represents a user's access level
type Role string

const (
	// RoleAdmin can operate on every account and run maintenance jobs
	RoleAdmin Role = "admin"

	// RoleCustomer can only operate on accounts they own
	RoleCustomer Role = "customer"
)

var validRoles = map[Role]bool{
	RoleAdmin:    true,
	RoleCustomer: true,
}

// IsValid checks if the role is a valid role
func (r Role) IsValid() bool {
	return validRoles[r]
}

// CanManageAccounts checks if the role can act on accounts it does not own
func (r Role) CanManageAccounts() bool {
	return r == RoleAdmin
}

// CanOperate reports whether u may debit or view the given account.
func (u *User) CanOperate(acc *Account) bool {
	if u == nil || acc == nil {
		return false
	}
	return u.Role.CanManageAccounts() || acc.OwnerID == u.ID
}

// Authentication errors
var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrInvalidToken       = errors.New("invalid token")
	ErrExpiredToken       = errors.New("token has expired")
	ErrInsufficientRole   = errors.New("insufficient role for this operation")
	ErrInvalidCredentials = errors.New("invalid username or password")
)
