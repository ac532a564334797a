package generator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/zazaki-quiz/backend/internal/models"
)

const maxBatchSize = 20

var (
	ErrInvalidRequest = errors.New("invalid generation request")
	// ErrGeneration covers model failures and unusable model output.
	ErrGeneration = errors.New("question generation failed")
)

// QuestionSink stores a drafted question in the pool.
type QuestionSink interface {
	CreateQuestion(ctx context.Context, req models.CreateQuestionRequest) (*models.Question, error)
}

type Service struct {
	llm  LLMClient
	sink QuestionSink
}

func NewService(llm LLMClient, sink QuestionSink) *Service {
	return &Service{llm: llm, sink: sink}
}

// Generate drafts up to req.Count questions and inserts them into the pool.
// Questions the sink refuses are reported in Rejected; the rest are kept.
func (s *Service) Generate(ctx context.Context, req models.GenerateQuestionsRequest) (*models.GenerateQuestionsResponse, error) {
	topic := strings.TrimSpace(req.Topic)
	if topic == "" {
		return nil, fmt.Errorf("%w: topic is required", ErrInvalidRequest)
	}
	if req.Count <= 0 || req.Count > maxBatchSize {
		return nil, fmt.Errorf("%w: count must be between 1 and %d", ErrInvalidRequest, maxBatchSize)
	}
	difficulty := req.Difficulty
	if difficulty == "" {
		difficulty = models.DifficultyMedium
	}
	if !models.ValidDifficulties[difficulty] {
		return nil, fmt.Errorf("%w: unknown difficulty %q", ErrInvalidRequest, difficulty)
	}

	resp, err := s.llm.Generate(ctx, SystemPrompt(), BuildUserPrompt(topic, difficulty, req.Count))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGeneration, err)
	}
	batch, err := ParseResponse(resp.Content)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGeneration, err)
	}

	questions := batch.Questions
	if len(questions) > req.Count {
		questions = questions[:req.Count]
	}

	out := &models.GenerateQuestionsResponse{
		Requested:    req.Count,
		Created:      []models.Question{},
		Rejected:     []string{},
		PromptTokens: resp.PromptTokens,
		OutputTokens: resp.OutputTokens,
	}
	for _, gq := range questions {
		options, err := json.Marshal(gq.Options)
		if err != nil {
			return nil, fmt.Errorf("encode options: %w", err)
		}
		q, err := s.sink.CreateQuestion(ctx, models.CreateQuestionRequest{
			Prompt:        gq.Prompt,
			Options:       options,
			CorrectAnswer: gq.CorrectAnswer,
			Difficulty:    difficulty,
		})
		if err != nil {
			log.Printf("[generator] rejected %q: %v", gq.Word, err)
			out.Rejected = append(out.Rejected, gq.Word)
			continue
		}
		out.Created = append(out.Created, *q)
	}

	log.Printf("[generator] topic %q (%s): %d created, %d rejected, %d+%d tokens",
		topic, difficulty, len(out.Created), len(out.Rejected), resp.PromptTokens, resp.OutputTokens)
	return out, nil
}
