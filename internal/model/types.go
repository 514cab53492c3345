package model

import (
	"time"

	"github.com/google/uuid"
)

// Role is the resolved authorization role of an account
type Role string

const (
	RoleClient     Role = "client"
	RoleInstructor Role = "instructor"
	RoleAdmin      Role = "admin"
	RoleMaster     Role = "master"
)

// Panel is the role-scoped area of the application a login targets
type Panel string

const (
	PanelClient     Panel = "client"
	PanelInstructor Panel = "instructor"
	PanelAdmin      Panel = "admin"
)

// ParsePanel returns the panel for s; empty input defaults to the client panel.
func ParsePanel(s string) (Panel, bool) {
	switch Panel(s) {
	case "":
		return PanelClient, true
	case PanelClient, PanelInstructor, PanelAdmin:
		return Panel(s), true
	}
	return "", false
}

// LicenseType is the commercial type of a license
type LicenseType string

const (
	LicenseDemo   LicenseType = "demo"
	LicenseTrial  LicenseType = "trial"
	LicenseFull   LicenseType = "full"
	LicenseMaster LicenseType = "master"
)

// LicenseStatus is the lifecycle state of a license
type LicenseStatus string

const (
	LicenseActive  LicenseStatus = "active"
	LicenseExpired LicenseStatus = "expired"
	LicenseBlocked LicenseStatus = "blocked"
)

// Account types a pre-generated account can declare
const (
	AccountDemo       = "demo"
	AccountAdminDemo  = "admin_demo"
	AccountTrial      = "trial"
	AccountFull       = "full"
	AccountClient     = "client"
	AccountInstructor = "instructor"
	AccountAdmin      = "admin"
)

// IdentityUser is a user of the backing identity provider
type IdentityUser struct {
	ID           uuid.UUID
	Email        string
	PasswordHash string
	CreatedAt    time.Time
	LastSignInAt *time.Time
}

// Profile is the application-level account record
type Profile struct {
	ID             uuid.UUID
	IdentityUserID *uuid.UUID
	Username       string
	FullName       string
	Email          *string
	ProfessionalID *string
	AccountType    *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// License holds the validity window of a profile. StartedAt and ExpiresAt are
// written once, when the row is inserted.
type License struct {
	ID         uuid.UUID
	ProfileID  uuid.UUID
	LicenseKey string
	Type       LicenseType
	Status     LicenseStatus
	StartedAt  *time.Time
	ExpiresAt  *time.Time
	CreatedAt  time.Time
}

// NewLicense is the insert payload for a license
type NewLicense struct {
	ProfileID  uuid.UUID
	LicenseKey string
	Type       LicenseType
	StartedAt  time.Time
	ExpiresAt  *time.Time
}

// PreGeneratedAccount is a bulk-issued, single-use credential
type PreGeneratedAccount struct {
	ID          uuid.UUID
	Username    string
	LicenseKey  string
	AccountType string
	Duration    *int
	IsUsed      bool
	UsedBy      *uuid.UUID
	UsedAt      *time.Time
	CreatedAt   time.Time
}

// Session is the single valid login session of a profile
type Session struct {
	ID         uuid.UUID
	ProfileID  uuid.UUID
	TokenHash  string
	DeviceInfo *string
	Role       Role
	Panel      Panel
	IsValid    bool
	CreatedAt  time.Time
	LastSeenAt *time.Time
}

// MasterCredential is an administrator-managed master login
type MasterCredential struct {
	ID          uuid.UUID
	Username    string
	DisplayName string
	Active      bool
	CreatedAt   time.Time
}
