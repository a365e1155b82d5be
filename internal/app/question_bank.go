package app

import (
	"context"
	"fmt"
	"math/rand"

	"placement-quiz-service/internal/domain"
)

// QuestionBank is a QuestionProvider that samples questions from quizzes already in the
// catalog for the same company and type. Duplicate prompts are skipped.
type QuestionBank struct {
	catalog QuizCatalog
	shuffle func(n int, swap func(i, j int))
}

func NewQuestionBank(catalog QuizCatalog) *QuestionBank {
	return &QuestionBank{catalog: catalog, shuffle: rand.Shuffle}
}

func (b *QuestionBank) Generate(ctx context.Context, company string, quizType domain.QuizType, count int) ([]domain.Question, error) {
	quizzes, err := b.catalog.ListQuizzes(ctx, QuizFilter{Company: company, Type: quizType})
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	var pool []domain.Question
	for _, quiz := range quizzes {
		for _, q := range quiz.Questions {
			if _, dup := seen[q.Prompt]; dup {
				continue
			}
			seen[q.Prompt] = struct{}{}
			q.ID = ""
			q.Options = append([]string(nil), q.Options...)
			pool = append(pool, q)
		}
	}
	if len(pool) < count {
		return nil, domain.Invalid("count", fmt.Sprintf("question bank for %s/%s holds %d questions, %d requested", company, quizType, len(pool), count))
	}
	b.shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
	return pool[:count], nil
}
