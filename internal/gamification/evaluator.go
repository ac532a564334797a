package gamification

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/zazaki-quiz/backend/internal/models"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// EvaluatorStore is the persistence badge evaluation needs.
type EvaluatorStore interface {
	UserStats(ctx context.Context, userID int64) (Stats, error)
	// UnearnedActiveBadges returns active badges the user does not hold yet.
	UnearnedActiveBadges(ctx context.Context, userID int64) ([]models.Badge, error)
	// GrantBadge records the badge for the user once. granted is false when
	// the user already held it.
	GrantBadge(ctx context.Context, userID, badgeID int64) (earnedAt time.Time, granted bool, err error)
}

// BadgeError is a failure confined to one badge.
type BadgeError struct {
	BadgeID int64
	Code    string
	Err     error
}

func (e BadgeError) Error() string {
	return fmt.Sprintf("badge %s (%d): %v", e.Code, e.BadgeID, e.Err)
}

func (e BadgeError) Unwrap() error { return e.Err }

type EvaluationResult struct {
	UserID  int64
	Granted []models.BadgeUnlock
	Errors  []BadgeError
}

// Evaluator grants badges whose criteria a user newly satisfies. Delivering
// the grants to the user is the caller's job.
type Evaluator struct {
	store EvaluatorStore
}

func NewEvaluator(store EvaluatorStore) *Evaluator {
	return &Evaluator{store: store}
}

// Evaluate checks every active badge the user has not earned. A badge that
// fails to parse, evaluate or grant is recorded in Errors and the rest still
// run; only failing to load the stats or the badge list returns an error.
func (e *Evaluator) Evaluate(ctx context.Context, userID int64) (res *EvaluationResult, err error) {
	ctx, span := otel.Tracer("gamification").Start(ctx, "EvaluateBadges",
		trace.WithAttributes(attribute.Int64("user.id", userID)),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		if res != nil {
			span.SetAttributes(
				attribute.Int("badges.granted", len(res.Granted)),
				attribute.Int("badges.failed", len(res.Errors)),
			)
		}
		span.End()
	}()

	stats, err := e.store.UserStats(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load stats for user %d: %w", userID, err)
	}

	badges, err := e.store.UnearnedActiveBadges(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load badges for user %d: %w", userID, err)
	}

	res = &EvaluationResult{UserID: userID, Granted: []models.BadgeUnlock{}}
	for _, b := range badges {
		unlock, ok, berr := e.evaluateBadge(ctx, userID, b, stats)
		if berr != nil {
			log.Printf("[gamification] user %d: %v", userID, berr)
			span.RecordError(berr)
			res.Errors = append(res.Errors, *berr)
			continue
		}
		if ok {
			res.Granted = append(res.Granted, unlock)
		}
	}

	if len(res.Granted) > 0 {
		log.Printf("[gamification] user %d unlocked %d badges", userID, len(res.Granted))
	}
	return res, nil
}

func (e *Evaluator) evaluateBadge(ctx context.Context, userID int64, b models.Badge, stats Stats) (models.BadgeUnlock, bool, *BadgeError) {
	fail := func(err error) (models.BadgeUnlock, bool, *BadgeError) {
		return models.BadgeUnlock{}, false, &BadgeError{BadgeID: b.ID, Code: b.Code, Err: err}
	}

	criteria, err := ParseCriteria(b.Criteria)
	if err != nil {
		return fail(err)
	}
	ok, err := Evaluate(criteria, stats)
	if err != nil {
		return fail(err)
	}
	if !ok {
		return models.BadgeUnlock{}, false, nil
	}

	earnedAt, granted, err := e.store.GrantBadge(ctx, userID, b.ID)
	if err != nil {
		return fail(fmt.Errorf("grant: %w", err))
	}
	if !granted {
		// Another evaluation for the same user got there first.
		return models.BadgeUnlock{}, false, nil
	}

	return models.BadgeUnlock{
		BadgeID:  b.ID,
		Code:     b.Code,
		Title:    b.Title,
		ImageURL: b.ImageURL,
		EarnedAt: earnedAt,
	}, true, nil
}
