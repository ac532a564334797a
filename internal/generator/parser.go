package generator

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"unicode/utf8"
)

const (
	optionCount     = 4
	maxPromptLength = 300
	maxOptionLength = 120
)

type GeneratedBatch struct {
	Questions []GeneratedQuestion `json:"questions"`
}

// GeneratedQuestion is one drafted vocabulary question: the Zazaki word, the
// prompt shown to the player and four answer options.
type GeneratedQuestion struct {
	Word          string   `json:"word"`
	Prompt        string   `json:"prompt"`
	Options       []string `json:"options"`
	CorrectAnswer string   `json:"correct_answer"`
}

type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s", strings.Join(e.Errors, "; "))
}

// ParseResponse decodes a model response and validates every question. A
// batch with any invalid question is rejected as a whole.
func ParseResponse(responseBody string) (*GeneratedBatch, error) {
	cleaned := stripCodeFences(responseBody)

	var batch GeneratedBatch
	if err := json.Unmarshal([]byte(cleaned), &batch); err != nil {
		return nil, fmt.Errorf("failed to parse JSON response: %w", err)
	}

	for i := range batch.Questions {
		normalize(&batch.Questions[i])
	}
	if err := validateBatch(&batch); err != nil {
		return nil, err
	}
	return &batch, nil
}

func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSpace(s)
	}
	if strings.HasSuffix(s, "```") {
		s = strings.TrimSpace(strings.TrimSuffix(s, "```"))
	}
	return s
}

func normalize(q *GeneratedQuestion) {
	q.Word = strings.TrimSpace(q.Word)
	q.Prompt = strings.TrimSpace(q.Prompt)
	q.CorrectAnswer = strings.TrimSpace(q.CorrectAnswer)
	for i, o := range q.Options {
		q.Options[i] = strings.TrimSpace(o)
	}
}

func validateBatch(batch *GeneratedBatch) error {
	if len(batch.Questions) == 0 {
		return &ValidationError{Errors: []string{"no questions in batch"}}
	}

	var errs []string
	words := make(map[string]int)

	for i, q := range batch.Questions {
		n := i + 1

		if q.Word == "" {
			errs = append(errs, fmt.Sprintf("question %d: empty word", n))
		} else if first, dup := words[strings.ToLower(q.Word)]; dup {
			errs = append(errs, fmt.Sprintf("question %d: word %q already used by question %d", n, q.Word, first))
		} else {
			words[strings.ToLower(q.Word)] = n
		}

		if l := utf8.RuneCountInString(q.Prompt); l == 0 || l > maxPromptLength {
			errs = append(errs, fmt.Sprintf("question %d: prompt length %d outside range [1, %d]", n, l, maxPromptLength))
		}

		if len(q.Options) != optionCount {
			errs = append(errs, fmt.Sprintf("question %d: expected %d options, got %d", n, optionCount, len(q.Options)))
			continue
		}

		seen := make(map[string]bool, optionCount)
		matches := 0
		for j, o := range q.Options {
			if o == "" || utf8.RuneCountInString(o) > maxOptionLength {
				errs = append(errs, fmt.Sprintf("question %d: option %d length outside range [1, %d]", n, j+1, maxOptionLength))
			}
			key := strings.ToLower(o)
			if seen[key] {
				errs = append(errs, fmt.Sprintf("question %d: duplicate option %q", n, o))
			}
			seen[key] = true
			if strings.EqualFold(o, q.CorrectAnswer) {
				matches++
			}
		}
		if matches != 1 {
			errs = append(errs, fmt.Sprintf("question %d: correct_answer %q must match exactly one option", n, q.CorrectAnswer))
		}

		if q.Word != "" && !strings.Contains(strings.ToLower(q.Prompt), strings.ToLower(q.Word)) {
			log.Printf("[generator] WARNING: question %d prompt does not mention %q", n, q.Word)
		}
	}

	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}
