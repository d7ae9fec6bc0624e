package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Approver roles
const (
	RoleAdminAssistant      = "admin_assistant"
	RoleModerator           = "moderator"
	RoleAcademicCoordinator = "academic_coordinator"
	RoleDean                = "dean"
	RoleVPFinance           = "vp_finance"

	// RoleStudent submits requests and never approves.
	RoleStudent = "student"
)

// User is read by the workflow engine for display names only; accounts are managed elsewhere.
type User struct {
	ID        uuid.UUID      `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Username  string         `gorm:"type:varchar(255);uniqueIndex;not null" json:"username"`
	Email     string         `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	Role      string         `gorm:"type:varchar(50);not null;index" json:"role"`
	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}
