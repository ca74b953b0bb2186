package db

import (
	"fmt"

	"gorm.io/gorm"

	types "github.com/yungbote/lessonforge-backend/internal/domain"
)

// Indexes gorm tags cannot express. Both Postgres and SQLite accept this
// partial index syntax.
var lessonIndexes = []string{
	// recovery sweeps scan generating lessons oldest first
	`CREATE INDEX IF NOT EXISTS idx_lessons_generating_updated_at
		ON lesson (updated_at) WHERE status = 'generating'`,
}

func AutoMigrateAll(db *gorm.DB) error {
	if err := db.AutoMigrate(&types.Lesson{}); err != nil {
		return err
	}
	for _, stmt := range lessonIndexes {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("create lesson index: %w", err)
		}
	}
	return nil
}
