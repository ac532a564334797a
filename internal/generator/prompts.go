package generator

import (
	"fmt"
	"strings"

	"github.com/zazaki-quiz/backend/internal/models"
)

var difficultyGuidance = map[models.Difficulty]string{
	models.DifficultyEasy: `
DIFFICULTY (easy):
- Everyday nouns and verbs a beginner meets in the first lessons (family, food, body, numbers)
- Distractors come from a different word field than the correct answer`,

	models.DifficultyMedium: `
DIFFICULTY (medium):
- Common words beyond the basics: adjectives, frequent verbs, household and nature vocabulary
- At least one distractor comes from the same word field as the correct answer`,

	models.DifficultyHard: `
DIFFICULTY (hard):
- Less frequent words, idiomatic expressions or words with regional variants (Kirmancki/Dimli)
- All distractors come from the same word field and are plausible translations`,
}

// SystemPrompt describes the output contract shared by every batch.
func SystemPrompt() string {
	return `You write vocabulary quiz questions for learners of Zazaki (Kirmancki/Dimli) whose interface language is German.

Each question asks for the German meaning of one Zazaki word.

OUTPUT FORMAT:
Return only a JSON object, no prose and no markdown:
{"questions":[{"word":"<Zazaki word>","prompt":"Was bedeutet „<word>“ auf Deutsch?","options":["<German>","<German>","<German>","<German>"],"correct_answer":"<one of the options>"}]}

RULES:
- Exactly 4 options per question, all different, each a short German word or phrase
- correct_answer must be identical to exactly one option
- Vary the position of the correct answer across the batch
- Never use the same Zazaki word twice in a batch
- Use the standard Zazaki Latin orthography (ç, ê, ı, î, ş, û)`
}

// BuildUserPrompt asks for count questions on topic at the given difficulty.
func BuildUserPrompt(topic string, difficulty models.Difficulty, count int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Write %d vocabulary questions on the topic %q.\n", count, topic)
	if guidance, ok := difficultyGuidance[difficulty]; ok {
		b.WriteString(guidance)
		b.WriteString("\n")
	}
	return b.String()
}
