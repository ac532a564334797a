package gamification

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Kind tags a criteria node.
type Kind string

const (
	KindXPAtLeast                    Kind = "xp_at_least"
	KindStreakAtLeast                Kind = "streak_at_least"
	KindQuizzesCompletedAtLeast      Kind = "quizzes_completed_at_least"
	KindDailyQuizzesCompletedAtLeast Kind = "daily_quizzes_completed_at_least"
	KindPerfectQuizzesAtLeast        Kind = "perfect_quizzes_at_least"
	KindHasAvatar                    Kind = "has_avatar"
	KindAll                          Kind = "all"
	KindAny                          Kind = "any"
)

// maxCriteriaDepth bounds nesting of all/any nodes.
const maxCriteriaDepth = 8

var ErrInvalidCriteria = errors.New("invalid badge criteria")

// Criteria is the declarative unlock condition stored with a badge, e.g.
// {"kind":"streak_at_least","value":7} or
// {"kind":"all","of":[{"kind":"has_avatar"},{"kind":"xp_at_least","value":100}]}.
type Criteria struct {
	Kind  Kind       `json:"kind"`
	Value *int64     `json:"value,omitempty"`
	Of    []Criteria `json:"of,omitempty"`
}

// Stats is the snapshot of a user's aggregates that criteria are evaluated against.
type Stats struct {
	TotalXP               int64
	Streak                int
	QuizzesCompleted      int
	DailyQuizzesCompleted int
	PerfectQuizzes        int
	HasAvatar             bool
}

// ParseCriteria decodes and validates a stored criteria document. Unknown
// fields and fields that do not belong to a node's kind are rejected.
func ParseCriteria(raw []byte) (Criteria, error) {
	var c Criteria
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&c); err != nil {
		return Criteria{}, fmt.Errorf("%w: %v", ErrInvalidCriteria, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return Criteria{}, fmt.Errorf("%w: trailing data after document", ErrInvalidCriteria)
	}
	if _, err := evaluate(c, Stats{}, 0); err != nil {
		return Criteria{}, err
	}
	return c, nil
}

// Evaluate reports whether s satisfies c. It depends on nothing but its
// arguments. Composite nodes evaluate every child so a malformed branch is
// reported even when another branch already decides the result.
func Evaluate(c Criteria, s Stats) (bool, error) {
	return evaluate(c, s, 0)
}

func evaluate(c Criteria, s Stats, depth int) (bool, error) {
	if depth > maxCriteriaDepth {
		return false, fmt.Errorf("%w: nested deeper than %d", ErrInvalidCriteria, maxCriteriaDepth)
	}

	switch c.Kind {
	case KindXPAtLeast:
		return atLeast(c, s.TotalXP)
	case KindStreakAtLeast:
		return atLeast(c, int64(s.Streak))
	case KindQuizzesCompletedAtLeast:
		return atLeast(c, int64(s.QuizzesCompleted))
	case KindDailyQuizzesCompletedAtLeast:
		return atLeast(c, int64(s.DailyQuizzesCompleted))
	case KindPerfectQuizzesAtLeast:
		return atLeast(c, int64(s.PerfectQuizzes))
	case KindHasAvatar:
		if c.Value != nil || c.Of != nil {
			return false, fmt.Errorf("%w: %s takes no value or children", ErrInvalidCriteria, c.Kind)
		}
		return s.HasAvatar, nil

	case KindAll, KindAny:
		if c.Value != nil {
			return false, fmt.Errorf("%w: %s takes no value", ErrInvalidCriteria, c.Kind)
		}
		if len(c.Of) == 0 {
			return false, fmt.Errorf("%w: %q needs at least one child", ErrInvalidCriteria, c.Kind)
		}
		allOK, anyOK := true, false
		for i, child := range c.Of {
			ok, err := evaluate(child, s, depth+1)
			if err != nil {
				return false, fmt.Errorf("%s[%d]: %w", c.Kind, i, err)
			}
			allOK = allOK && ok
			anyOK = anyOK || ok
		}
		if c.Kind == KindAll {
			return allOK, nil
		}
		return anyOK, nil

	case "":
		return false, fmt.Errorf("%w: missing kind", ErrInvalidCriteria)
	default:
		return false, fmt.Errorf("%w: unknown kind %q", ErrInvalidCriteria, c.Kind)
	}
}

func atLeast(c Criteria, actual int64) (bool, error) {
	switch {
	case c.Value == nil:
		return false, fmt.Errorf("%w: %s needs a value", ErrInvalidCriteria, c.Kind)
	case *c.Value < 0:
		return false, fmt.Errorf("%w: %s threshold %d is negative", ErrInvalidCriteria, c.Kind, *c.Value)
	case c.Of != nil:
		return false, fmt.Errorf("%w: %s takes no children", ErrInvalidCriteria, c.Kind)
	}
	return actual >= *c.Value, nil
}
