package models

import (
	"time"

	"docstack/internal/identity"
)

// MembershipRole is the role a user holds inside an organization.
type MembershipRole string

const (
	RoleAdmin MembershipRole = "ADMIN"
	RoleUser  MembershipRole = "USER"
)

// MembershipStatus is the activity state of a membership. There is no DELETED
// state: deactivation is the tombstone, and it instantly revokes access to
// everything created under the membership.
type MembershipStatus string

const (
	MembershipActive   MembershipStatus = "ACTIVE"
	MembershipInactive MembershipStatus = "INACTIVE"
)

// OrgMembership links a user to an organization. At most one ACTIVE
// membership may exist per (user, organization) pair; a second ACTIVE row is
// a data-integrity violation, not a recoverable state. The constraint cannot
// be a unique index (INACTIVE duplicates are legal), so reads enforce it.
type OrgMembership struct {
	ID             identity.MembershipID `gorm:"primaryKey;size:64"`
	OrganizationID identity.OrgID        `gorm:"index:idx_member_org,priority:2;not null;size:64"`
	UserID         identity.UserID       `gorm:"index:idx_member_org,priority:1;not null;size:64"`

	Role   MembershipRole   `gorm:"type:varchar(16);not null"`
	Status MembershipStatus `gorm:"type:varchar(16);not null;default:'ACTIVE'"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (OrgMembership) TableName() string {
	return "org_memberships"
}

// IsActive reports whether the membership currently grants access.
func (m *OrgMembership) IsActive() bool {
	return m.Status == MembershipActive
}
