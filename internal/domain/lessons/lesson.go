package lessons

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	StatusGenerating = "generating"
	StatusGenerated  = "generated"
	StatusError      = "error"
)

const (
	StageQueued           = "queued"
	StageContentGenerated = "content_generated"
	StageContentParsed    = "content_parsed"
	StageVisuals          = "visuals"
	StageCompleted        = "completed"
	StageFailed           = "failed"
)

// Lesson is one generation run. All pipeline state lives on this row.
type Lesson struct {
	ID             uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Outline        string         `gorm:"column:outline;type:text;not null" json:"outline"`
	Status         string         `gorm:"column:status;not null;index" json:"status"`
	Stage          string         `gorm:"column:stage;not null" json:"stage"`
	Progress       int            `gorm:"column:progress;not null;default:0" json:"progress"`
	RawContent     string         `gorm:"column:raw_content;type:text" json:"-"`
	Content        datatypes.JSON `gorm:"column:content;type:jsonb" json:"content,omitempty"`
	ErrorMessage   string         `gorm:"column:error_message;type:text" json:"error_message,omitempty"`
	DiagramAsset   string         `gorm:"column:diagram_asset;type:text" json:"diagram_asset,omitempty"`
	LeaseToken     *uuid.UUID     `gorm:"type:uuid;column:lease_token" json:"-"`
	LeaseExpiresAt *time.Time     `gorm:"column:lease_expires_at;index" json:"-"`
	CreatedAt      time.Time      `gorm:"not null;autoCreateTime;index" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"not null;autoUpdateTime;index" json:"updated_at"`
}

func (Lesson) TableName() string { return "lesson" }

func (l *Lesson) BeforeCreate(tx *gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}

// Terminal reports whether no further step may mutate the record.
func (l *Lesson) Terminal() bool {
	return l != nil && IsTerminalStatus(l.Status)
}

func IsTerminalStatus(status string) bool {
	return status == StatusGenerated || status == StatusError
}
