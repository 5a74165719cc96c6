package model

import (
	"time"

	"procurement/internal/identity"

	"github.com/google/uuid"
)

const (
	ActionCreateRequest  = "CREATE_REQUEST"
	ActionUpdateRequest  = "UPDATE_REQUEST"
	ActionDeleteRequest  = "DELETE_REQUEST"
	ActionAttachProforma = "ATTACH_PROFORMA"
	ActionApproveRequest = "APPROVE_REQUEST"
	ActionRejectRequest  = "REJECT_REQUEST"
	ActionStatusChanged  = "STATUS_CHANGED"
	ActionSubmitReceipt  = "SUBMIT_RECEIPT"
)

// AuditLog tracks who did what to a request, and when.
type AuditLog struct {
	ID        uuid.UUID     `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	ActorID   string        `gorm:"type:varchar(64);index" json:"actor_id"`
	ActorRole identity.Role `gorm:"type:varchar(32)" json:"actor_role"`
	Action    string        `gorm:"type:varchar(50);not null;index" json:"action"`
	EntityID  string        `gorm:"type:varchar(50);index" json:"entity_id"`
	Details   string        `gorm:"type:jsonb" json:"details"` // serialized JSON payload of the action
	CreatedAt time.Time     `gorm:"index" json:"created_at"`
}
