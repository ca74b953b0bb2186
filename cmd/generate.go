package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/yungbote/lessonforge-backend/internal/app"
	"github.com/yungbote/lessonforge-backend/internal/domain/lessons"
	"github.com/yungbote/lessonforge-backend/internal/services"
)

var generateOpts struct {
	Outline string
	Compact bool
}

// generateCmd runs one lesson to completion without the HTTP API.
var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Create a lesson from an outline and print it as JSON",
	Long: `Creates a lesson, runs every generation step in this process and prints
the final status and document. A lesson that ends in error is still printed;
the command then exits non-zero.`,
	RunE: generateCommand,
}

func init() {
	generateCmd.Flags().StringVarP(&generateOpts.Outline, "outline", "o", "", "lesson topic or outline (3 to 500 characters)")
	generateCmd.Flags().BoolVar(&generateOpts.Compact, "compact", false, "print single-line JSON")
	_ = generateCmd.MarkFlagRequired("outline")
}

func generateCommand(cmd *cobra.Command, args []string) error {
	outline := strings.TrimSpace(generateOpts.Outline)
	if outline == "" {
		return fmt.Errorf("--outline is required")
	}

	a, err := app.New(cmd.Context(), app.Options{Driver: services.DriverClient})
	if err != nil {
		return err
	}
	defer a.Close()

	lesson, err := a.GenerateLesson(cmd.Context(), outline)
	if err != nil {
		return err
	}

	var out []byte
	if generateOpts.Compact {
		out, err = json.Marshal(lesson)
	} else {
		out, err = json.MarshalIndent(lesson, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("encode lesson: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))

	if lesson.Status == lessons.StatusError {
		return fmt.Errorf("lesson %s ended in error: %s", lesson.ID, lesson.ErrorMessage)
	}
	return nil
}
