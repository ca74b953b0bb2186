package main

import (
	"github.com/spf13/cobra"

	"github.com/yungbote/lessonforge-backend/internal/app"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the Temporal worker that advances lessons",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := app.New(cmd.Context(), app.Options{Worker: true})
		if err != nil {
			return err
		}
		defer a.Close()
		return a.RunWorker(cmd.Context())
	},
}
