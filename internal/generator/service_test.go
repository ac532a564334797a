package generator

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zazaki-quiz/backend/internal/models"
)

type stubLLM struct {
	content string
	err     error
	prompts []string
}

func (s *stubLLM) Generate(_ context.Context, _ string, userPrompt string) (*LLMResponse, error) {
	s.prompts = append(s.prompts, userPrompt)
	if s.err != nil {
		return nil, s.err
	}
	return &LLMResponse{Content: s.content, PromptTokens: 10, OutputTokens: 20}, nil
}

type memSink struct {
	created []models.CreateQuestionRequest
	refuse  string
}

func (m *memSink) CreateQuestion(_ context.Context, req models.CreateQuestionRequest) (*models.Question, error) {
	if m.refuse != "" && strings.Contains(req.Prompt, m.refuse) {
		return nil, errors.New("invalid question")
	}
	m.created = append(m.created, req)
	return &models.Question{ID: int64(len(m.created)), Prompt: req.Prompt, Options: req.Options, Difficulty: req.Difficulty}, nil
}

func TestGenerate_InsertsIntoPool(t *testing.T) {
	sink := &memSink{}
	svc := NewService(NewMockClient(), sink)

	resp, err := svc.Generate(t.Context(), models.GenerateQuestionsRequest{Topic: "Natur", Difficulty: models.DifficultyEasy, Count: 3})
	require.NoError(t, err)
	assert.Equal(t, 3, resp.Requested)
	assert.Len(t, resp.Created, 3)
	assert.Empty(t, resp.Rejected)
	require.Len(t, sink.created, 3)
	for _, req := range sink.created {
		assert.Nil(t, req.QuizID)
		assert.Equal(t, models.DifficultyEasy, req.Difficulty)
		assert.Contains(t, string(req.Options), req.CorrectAnswer)
	}
}

func TestGenerate_SinkRejectionsAreReported(t *testing.T) {
	sink := &memSink{refuse: "„nan“"}
	svc := NewService(NewMockClient(), sink)

	resp, err := svc.Generate(t.Context(), models.GenerateQuestionsRequest{Topic: "Essen", Count: 5})
	require.NoError(t, err)
	assert.Len(t, resp.Created, 4)
	assert.Equal(t, []string{"nan"}, resp.Rejected)
	assert.Equal(t, models.DifficultyMedium, sink.created[0].Difficulty)
}

func TestGenerate_InvalidRequest(t *testing.T) {
	llm := &stubLLM{}
	svc := NewService(llm, &memSink{})

	for _, req := range []models.GenerateQuestionsRequest{
		{Topic: "", Count: 3},
		{Topic: "Natur", Count: 0},
		{Topic: "Natur", Count: maxBatchSize + 1},
		{Topic: "Natur", Count: 3, Difficulty: "brutal"},
	} {
		_, err := svc.Generate(t.Context(), req)
		assert.ErrorIs(t, err, ErrInvalidRequest)
	}
	assert.Empty(t, llm.prompts)
}

func TestGenerate_BadModelOutputAddsNothing(t *testing.T) {
	sink := &memSink{}

	for name, llm := range map[string]*stubLLM{
		"api error":  {err: errors.New("overloaded")},
		"not json":   {content: "Here are your questions!"},
		"bad option": {content: `{"questions":[{"word":"av","prompt":"av?","options":["a","b"],"correct_answer":"a"}]}`},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := NewService(llm, sink).Generate(t.Context(), models.GenerateQuestionsRequest{Topic: "Natur", Count: 2})
			assert.ErrorIs(t, err, ErrGeneration)
		})
	}
	assert.Empty(t, sink.created)
}

func TestHandler_Generate(t *testing.T) {
	h := NewHandler(NewService(NewMockClient(), &memSink{}))

	rec := httptest.NewRecorder()
	h.Generate(rec, httptest.NewRequest(http.MethodPost, "/admin/questions/generate", strings.NewReader(`{"topic":"Tiere","count":2}`)))
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"requested":2`)

	rec = httptest.NewRecorder()
	h.Generate(rec, httptest.NewRequest(http.MethodPost, "/admin/questions/generate", strings.NewReader(`{"topic":"Tiere","count":99}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	failing := NewHandler(NewService(&stubLLM{err: errors.New("api key sk-secret rejected")}, &memSink{}))
	rec = httptest.NewRecorder()
	failing.Generate(rec, httptest.NewRequest(http.MethodPost, "/admin/questions/generate", strings.NewReader(`{"topic":"Tiere","count":2}`)))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.NotContains(t, rec.Body.String(), "sk-secret")
}
