package gamification

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/zazaki-quiz/backend/internal/models"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrInvalidBadge   = errors.New("invalid badge")
	ErrBadgeCodeTaken = errors.New("badge code already in use")
)

// XPTotal pairs a user's cached XP with the sum over completed attempts.
type XPTotal struct {
	UserID int64
	Cached int64
	Actual int64
}

type Repository interface {
	EvaluatorStore

	UserProgress(ctx context.Context, userID int64) (*models.User, error)
	EarnedBadges(ctx context.Context, userID int64) ([]models.EarnedBadge, error)

	XPTotals(ctx context.Context) ([]XPTotal, error)
	// ApplyXPFixes sets total_xp = Actual for every entry whose total_xp still
	// equals Cached, in one transaction, and returns the entries it changed.
	ApplyXPFixes(ctx context.Context, fixes []XPTotal) ([]XPTotal, error)

	ListBadges(ctx context.Context) ([]models.Badge, error)
	CreateBadge(ctx context.Context, b *models.Badge) error
	UpdateBadge(ctx context.Context, b *models.Badge) error
	ResetUserBadges(ctx context.Context, userID int64) (int, error)
}

type Service struct {
	repo      Repository
	queue     UnlockQueue
	evaluator *Evaluator
}

func NewService(repo Repository, queue UnlockQueue) *Service {
	if queue == nil {
		queue = NewMemoryUnlockQueue()
	}
	return &Service{
		repo:      repo,
		queue:     queue,
		evaluator: NewEvaluator(repo),
	}
}

// EvaluateUser runs badge evaluation after a gamification-relevant event the
// user triggered. The caller returns res.Granted in its response, so nothing
// is queued.
func (s *Service) EvaluateUser(ctx context.Context, userID int64) (*EvaluationResult, error) {
	return s.evaluator.Evaluate(ctx, userID)
}

// evaluateQueued evaluates a user outside of any request of theirs and queues
// the grants for GET /me/unlocks. Failures are logged.
func (s *Service) evaluateQueued(ctx context.Context, userID int64) {
	res, err := s.evaluator.Evaluate(ctx, userID)
	if err != nil {
		log.Printf("[gamification] background evaluation for user %d: %v", userID, err)
		return
	}
	if len(res.Granted) == 0 {
		return
	}
	if err := s.queue.Push(ctx, userID, res.Granted); err != nil {
		log.Printf("[gamification] failed to queue unlocks for user %d: %v", userID, err)
	}
}

// ── Player state ────────────────────────────────────────

func (s *Service) GetGamification(ctx context.Context, userID int64) (*models.GamificationResponse, error) {
	user, err := s.repo.UserProgress(ctx, userID)
	if err != nil {
		return nil, err
	}

	badges, err := s.repo.EarnedBadges(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("earned badges: %w", err)
	}
	if badges == nil {
		badges = []models.EarnedBadge{}
	}

	resp := &models.GamificationResponse{
		TotalXP: user.TotalXP,
		Streak:  user.Streak,
		Badges:  badges,
	}
	if user.LastActiveDate != nil {
		resp.LastActiveDate = user.LastActiveDate.Format("2006-01-02")
	}
	return resp, nil
}

// Unlocks returns and clears the badges the user has not been shown yet.
func (s *Service) Unlocks(ctx context.Context, userID int64) ([]models.BadgeUnlock, error) {
	return s.queue.Drain(ctx, userID)
}

// ── Maintenance ─────────────────────────────────────────

// FixXP repairs drift between cached total_xp and completed attempts. All
// corrections are applied together or not at all.
func (s *Service) FixXP(ctx context.Context) (*models.XPFixResponse, error) {
	totals, err := s.repo.XPTotals(ctx)
	if err != nil {
		return nil, fmt.Errorf("load xp totals: %w", err)
	}

	var fixes []XPTotal
	for _, t := range totals {
		if t.Cached != t.Actual {
			fixes = append(fixes, t)
		}
	}

	var applied []XPTotal
	if len(fixes) > 0 {
		applied, err = s.repo.ApplyXPFixes(ctx, fixes)
		if err != nil {
			return nil, fmt.Errorf("apply xp fixes: %w", err)
		}
		for _, f := range applied {
			log.Printf("[gamification] fixed xp for user %d: %d -> %d", f.UserID, f.Cached, f.Actual)
		}
		if skipped := len(fixes) - len(applied); skipped > 0 {
			log.Printf("[gamification] %d users earned xp during the check, left for the next run", skipped)
		}
		for _, f := range applied {
			s.evaluateQueued(ctx, f.UserID)
		}
	}

	return &models.XPFixResponse{
		UsersChecked:       len(totals),
		DiscrepanciesFixed: len(applied),
		Message:            fmt.Sprintf("XP check complete. %d of %d users fixed.", len(applied), len(totals)),
	}, nil
}

// ── Badge admin ─────────────────────────────────────────

func (s *Service) ListBadges(ctx context.Context) ([]models.Badge, error) {
	badges, err := s.repo.ListBadges(ctx)
	if err != nil {
		return nil, err
	}
	if badges == nil {
		badges = []models.Badge{}
	}
	return badges, nil
}

func (s *Service) CreateBadge(ctx context.Context, req models.BadgeRequest) (*models.Badge, error) {
	b, err := badgeFromRequest(req)
	if err != nil {
		return nil, err
	}
	if err := s.repo.CreateBadge(ctx, b); err != nil {
		return nil, err
	}
	log.Printf("[gamification] created badge %s (%d)", b.Code, b.ID)
	return b, nil
}

func (s *Service) UpdateBadge(ctx context.Context, id int64, req models.BadgeRequest) (*models.Badge, error) {
	b, err := badgeFromRequest(req)
	if err != nil {
		return nil, err
	}
	b.ID = id
	if err := s.repo.UpdateBadge(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

// ResetUserBadges deletes every badge the user has earned.
func (s *Service) ResetUserBadges(ctx context.Context, userID int64) (*models.BadgeResetResponse, error) {
	n, err := s.repo.ResetUserBadges(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("reset badges for user %d: %w", userID, err)
	}
	log.Printf("[gamification] removed %d badges from user %d", n, userID)
	return &models.BadgeResetResponse{
		UserID:  userID,
		Removed: n,
		Message: fmt.Sprintf("Removed %d badges from user %d.", n, userID),
	}, nil
}

func badgeFromRequest(req models.BadgeRequest) (*models.Badge, error) {
	code := strings.TrimSpace(req.Code)
	title := strings.TrimSpace(req.Title)
	if code == "" || title == "" {
		return nil, fmt.Errorf("%w: code and title are required", ErrInvalidBadge)
	}
	if _, err := ParseCriteria(req.Criteria); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBadge, err)
	}

	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	return &models.Badge{
		Code:        code,
		Title:       title,
		Description: req.Description,
		Criteria:    req.Criteria,
		ImageURL:    req.ImageURL,
		IsActive:    active,
		SortOrder:   req.SortOrder,
	}, nil
}
