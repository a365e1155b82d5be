package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"placement-quiz-service/internal/app"
	"placement-quiz-service/internal/domain"
)

// SeedFile is the YAML layout accepted by the seed command.
type SeedFile struct {
	Students []domain.Student       `yaml:"students"`
	Quizzes  []app.CreateQuizRequest `yaml:"quizzes"`
}

// NewSeedCmd loads students and quizzes from a YAML file into the configured store.
func NewSeedCmd(configPath *string) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load students and quizzes from a YAML file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			seed, err := readSeedFile(file)
			if err != nil {
				return err
			}
			rt, err := buildRuntime(cmd.Context(), cfg, logger, nil)
			if err != nil {
				return err
			}
			defer rt.Close()
			return applySeed(cmd.Context(), rt, seed, logger)
		},
	}
	cmd.Flags().StringVar(&file, "file", "config/seed.yaml", "seed YAML file")
	return cmd
}

func readSeedFile(path string) (SeedFile, error) {
	var seed SeedFile
	data, err := os.ReadFile(path)
	if err != nil {
		return seed, err
	}
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return seed, fmt.Errorf("parse %s: %w", path, err)
	}
	return seed, nil
}

// applySeed is idempotent: students are upserted and quizzes with an existing id are skipped.
func applySeed(ctx context.Context, rt *runtime, seed SeedFile, logger *slog.Logger) error {
	for _, s := range seed.Students {
		if err := rt.students.PutStudent(ctx, s); err != nil {
			return fmt.Errorf("seed student %s: %w", s.ID, err)
		}
	}
	created := 0
	for _, req := range seed.Quizzes {
		quiz, err := rt.catalogService.CreateQuiz(ctx, req)
		switch {
		case err == nil:
			created++
			logger.InfoContext(ctx, "quiz seeded", slog.String("quiz_id", quiz.ID))
		case errors.Is(err, domain.ErrInvalidState):
			logger.InfoContext(ctx, "quiz already present", slog.String("quiz_id", req.ID))
		default:
			return fmt.Errorf("seed quiz %s: %w", req.ID, err)
		}
	}
	logger.InfoContext(ctx, "seed finished", slog.Int("students", len(seed.Students)), slog.Int("quizzes_created", created))
	return nil
}
