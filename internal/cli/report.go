package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/xuri/excelize/v2"

	"placement-quiz-service/internal/app"
	"placement-quiz-service/internal/domain"
)

const (
	leaderboardSheet = "Leaderboard"
	statisticsSheet  = "Quiz Statistics"
)

// NewReportCmd exports the leaderboard and per-quiz statistics of a company to XLSX.
func NewReportCmd(configPath *string) *cobra.Command {
	var (
		company string
		out     string
		limit   int
	)
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Export leaderboard and quiz statistics to an XLSX workbook",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			rt, err := buildRuntime(cmd.Context(), cfg, logger, nil)
			if err != nil {
				return err
			}
			defer rt.Close()

			f, err := buildReport(cmd.Context(), rt, company, limit)
			if err != nil {
				return err
			}
			defer f.Close()
			if err := f.SaveAs(out); err != nil {
				return fmt.Errorf("save report: %w", err)
			}
			logger.Info("report written", slog.String("path", out), slog.String("company", company))
			return nil
		},
	}
	cmd.Flags().StringVar(&company, "company", "", "restrict the report to one company")
	cmd.Flags().StringVar(&out, "out", "report.xlsx", "output file")
	cmd.Flags().IntVar(&limit, "limit", app.DefaultLeaderboardLimit, "leaderboard rows")
	return cmd
}

func buildReport(ctx context.Context, rt *runtime, company string, limit int) (*excelize.File, error) {
	entries, err := rt.analyticsService.Leaderboard(ctx, app.LeaderboardQuery{Company: company, Limit: limit})
	if err != nil {
		return nil, err
	}
	quizzes, err := rt.catalogService.ListQuizzes(ctx, app.QuizFilter{Company: company})
	if err != nil {
		return nil, err
	}
	stats := make([]*domain.QuizStatistics, 0, len(quizzes))
	for _, q := range quizzes {
		s, err := rt.analyticsService.QuizStatistics(ctx, q.ID)
		if err != nil {
			return nil, err
		}
		if s != nil {
			stats = append(stats, s)
		}
	}

	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", leaderboardSheet); err != nil {
		_ = f.Close()
		return nil, err
	}
	if _, err := f.NewSheet(statisticsSheet); err != nil {
		_ = f.Close()
		return nil, err
	}

	rows := [][]any{{"Rank", "Student ID", "Name", "Branch", "Company", "Average Score", "Attempts", "Questions", "Correct"}}
	for _, e := range entries {
		rows = append(rows, []any{e.Rank, e.StudentID, e.DisplayName, e.Branch, e.Company, e.AverageScore, e.TotalAttempts, e.TotalQuestions, e.CorrectAnswers})
	}
	if err := writeRows(f, leaderboardSheet, rows); err != nil {
		_ = f.Close()
		return nil, err
	}

	rows = [][]any{{"Quiz ID", "Company", "Completed", "Students", "Average %", "Highest %", "Lowest %", "Completion Rate", "Average Time (s)"}}
	for _, s := range stats {
		rows = append(rows, []any{s.QuizID, s.Company, s.TotalAttempts, s.TotalStudents, s.AverageScore, s.HighestScore, s.LowestScore, s.CompletionRate, s.AverageTimeTaken})
	}
	if err := writeRows(f, statisticsSheet, rows); err != nil {
		_ = f.Close()
		return nil, err
	}
	return f, nil
}

func writeRows(f *excelize.File, sheet string, rows [][]any) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}
