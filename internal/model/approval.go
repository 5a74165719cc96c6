package model

import (
	"time"

	"procurement/internal/identity"

	"github.com/google/uuid"
)

// Approval is one approver's decision on a request. A missing row means the approver has not decided.
type Approval struct {
	ID           uuid.UUID     `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	RequestID    uuid.UUID     `gorm:"type:uuid;not null;uniqueIndex:idx_approvals_request_approver,priority:1" json:"request_id"`
	ApproverID   string        `gorm:"type:varchar(64);not null;uniqueIndex:idx_approvals_request_approver,priority:2" json:"approver_id"`
	ApproverRole identity.Role `gorm:"type:varchar(32);not null" json:"approver_role"` // snapshot at decision time
	Approved     bool          `gorm:"not null" json:"approved"`
	Comments     string        `gorm:"type:text" json:"comments"`
	CreatedAt    time.Time     `gorm:"not null;index" json:"created_at"`
}
