package generator

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func validBatchJSON(words ...string) string {
	batch := GeneratedBatch{}
	for _, w := range words {
		batch.Questions = append(batch.Questions, GeneratedQuestion{
			Word:          w,
			Prompt:        "Was bedeutet „" + w + "“ auf Deutsch?",
			Options:       []string{"Wasser", "Brot", "Buch", "Haus"},
			CorrectAnswer: "Brot",
		})
	}
	data, _ := json.Marshal(batch)
	return string(data)
}

func validationErrors(t *testing.T, err error) []string {
	t.Helper()
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got: %v", err)
	}
	return ve.Errors
}

func containsError(errs []string, fragment string) bool {
	for _, e := range errs {
		if strings.Contains(e, fragment) {
			return true
		}
	}
	return false
}

func TestParseResponse_ValidJSON(t *testing.T) {
	batch, err := ParseResponse(validBatchJSON("nan", "av", "kitab"))
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if len(batch.Questions) != 3 {
		t.Errorf("expected 3 questions, got %d", len(batch.Questions))
	}
}

func TestParseResponse_MarkdownFences(t *testing.T) {
	for _, input := range []string{
		"```json\n" + validBatchJSON("nan") + "\n```",
		"```\n" + validBatchJSON("nan") + "\n```",
	} {
		batch, err := ParseResponse(input)
		if err != nil {
			t.Fatalf("expected no error with markdown fences, got: %v", err)
		}
		if len(batch.Questions) != 1 {
			t.Errorf("expected 1 question, got %d", len(batch.Questions))
		}
	}
}

func TestParseResponse_TrimsFields(t *testing.T) {
	input := `{"questions":[{"word":" roj ","prompt":" Was bedeutet „roj“? ","options":[" Sonne","Mond ","Stern","Himmel"],"correct_answer":"sonne "}]}`

	batch, err := ParseResponse(input)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	q := batch.Questions[0]
	if q.Word != "roj" || q.Options[0] != "Sonne" || q.CorrectAnswer != "sonne" {
		t.Errorf("fields not trimmed: %+v", q)
	}
}

func TestParseResponse_Rejections(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		fragment string
	}{
		{
			name:     "empty batch",
			input:    `{"questions":[]}`,
			fragment: "no questions",
		},
		{
			name:     "three options",
			input:    `{"questions":[{"word":"av","prompt":"av?","options":["a","b","c"],"correct_answer":"a"}]}`,
			fragment: "expected 4 options",
		},
		{
			name:     "answer not an option",
			input:    `{"questions":[{"word":"av","prompt":"av?","options":["a","b","c","d"],"correct_answer":"e"}]}`,
			fragment: "must match exactly one option",
		},
		{
			name:     "duplicate option",
			input:    `{"questions":[{"word":"av","prompt":"av?","options":["a","A","c","d"],"correct_answer":"c"}]}`,
			fragment: "duplicate option",
		},
		{
			name:     "empty prompt",
			input:    `{"questions":[{"word":"av","prompt":" ","options":["a","b","c","d"],"correct_answer":"a"}]}`,
			fragment: "prompt length 0",
		},
		{
			name:     "repeated word",
			input:    validBatchJSON("av", "Av"),
			fragment: "already used by question 1",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseResponse(tt.input)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if errs := validationErrors(t, err); !containsError(errs, tt.fragment) {
				t.Errorf("expected error containing %q, got: %v", tt.fragment, errs)
			}
		})
	}
}

func TestParseResponse_MalformedJSON(t *testing.T) {
	_, err := ParseResponse(`{"questions": [{"word": "av"`)
	if err == nil {
		t.Fatal("expected error for malformed JSON")
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		t.Errorf("malformed JSON should not be a ValidationError")
	}
}

func TestMockClient_OutputParses(t *testing.T) {
	resp, err := NewMockClient().Generate(t.Context(), SystemPrompt(), BuildUserPrompt("Natur", "easy", 5))
	if err != nil {
		t.Fatalf("mock generate: %v", err)
	}
	batch, err := ParseResponse(resp.Content)
	if err != nil {
		t.Fatalf("mock output must validate, got: %v", err)
	}
	if len(batch.Questions) != len(mockLexicon) {
		t.Errorf("expected %d questions, got %d", len(mockLexicon), len(batch.Questions))
	}
}

func TestBuildUserPrompt(t *testing.T) {
	p := BuildUserPrompt("Familie", "hard", 7)
	if !strings.Contains(p, "Write 7 vocabulary questions") || !strings.Contains(p, `"Familie"`) {
		t.Errorf("prompt missing count or topic: %s", p)
	}
	if !strings.Contains(p, "DIFFICULTY (hard)") {
		t.Errorf("prompt missing difficulty guidance: %s", p)
	}
}
