package main

import (
	"github.com/spf13/cobra"

	"github.com/yungbote/lessonforge-backend/internal/app"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and, for the inline driver, the in-process runners",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := app.New(cmd.Context(), app.Options{})
		if err != nil {
			return err
		}
		defer a.Close()
		return a.Serve(cmd.Context())
	},
}
