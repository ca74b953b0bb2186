package main

import (
	"github.com/spf13/cobra"

	"github.com/yungbote/lessonforge-backend/internal/app"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the database schema and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		return app.Migrate()
	},
}
