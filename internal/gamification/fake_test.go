package gamification

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/zazaki-quiz/backend/internal/models"
)

type earnKey struct{ user, badge int64 }

// fakeRepo is an in-memory Repository. GrantBadge enforces one row per
// (user, badge) like the unique constraint does.
type fakeRepo struct {
	mu          sync.Mutex
	stats       map[int64]Stats
	users       map[int64]*models.User
	attemptXP   map[int64]int64
	badges      []models.Badge
	earned      map[earnKey]time.Time
	nextBadgeID int64

	statsErr   error
	grantErr   map[int64]error
	applyErr   error
	staleList  bool
	grantCalls int

	// beforeApply runs inside ApplyXPFixes with the lock held.
	beforeApply func()
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		stats:       map[int64]Stats{},
		users:       map[int64]*models.User{},
		attemptXP:   map[int64]int64{},
		earned:      map[earnKey]time.Time{},
		grantErr:    map[int64]error{},
		nextBadgeID: 1,
	}
}

func (r *fakeRepo) addBadge(code, criteria string, active bool) models.Badge {
	r.mu.Lock()
	defer r.mu.Unlock()
	b := models.Badge{
		ID:        r.nextBadgeID,
		Code:      code,
		Title:     code,
		Criteria:  json.RawMessage(criteria),
		IsActive:  active,
		SortOrder: int(r.nextBadgeID),
	}
	r.nextBadgeID++
	r.badges = append(r.badges, b)
	return b
}

func (r *fakeRepo) earnedCount(userID int64) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for k := range r.earned {
		if k.user == userID {
			n++
		}
	}
	return n
}

func (r *fakeRepo) UserStats(_ context.Context, userID int64) (Stats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.statsErr != nil {
		return Stats{}, r.statsErr
	}
	st, ok := r.stats[userID]
	if !ok {
		return Stats{}, ErrNotFound
	}
	return st, nil
}

func (r *fakeRepo) UnearnedActiveBadges(_ context.Context, userID int64) ([]models.Badge, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Badge
	for _, b := range r.badges {
		if !b.IsActive {
			continue
		}
		if _, has := r.earned[earnKey{userID, b.ID}]; has && !r.staleList {
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

func (r *fakeRepo) GrantBadge(_ context.Context, userID, badgeID int64) (time.Time, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.grantCalls++
	if err := r.grantErr[badgeID]; err != nil {
		return time.Time{}, false, err
	}
	k := earnKey{userID, badgeID}
	if _, has := r.earned[k]; has {
		return time.Time{}, false, nil
	}
	now := time.Now()
	r.earned[k] = now
	return now, true, nil
}

func (r *fakeRepo) UserProgress(_ context.Context, userID int64) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *fakeRepo) EarnedBadges(_ context.Context, userID int64) ([]models.EarnedBadge, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.EarnedBadge
	for _, b := range r.badges {
		if at, has := r.earned[earnKey{userID, b.ID}]; has {
			out = append(out, models.EarnedBadge{Badge: b, EarnedAt: at})
		}
	}
	return out, nil
}

func (r *fakeRepo) XPTotals(context.Context) ([]XPTotal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []XPTotal
	for id, u := range r.users {
		out = append(out, XPTotal{UserID: id, Cached: u.TotalXP, Actual: r.attemptXP[id]})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (r *fakeRepo) ApplyXPFixes(_ context.Context, fixes []XPTotal) ([]XPTotal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.applyErr != nil {
		return nil, r.applyErr
	}
	if r.beforeApply != nil {
		r.beforeApply()
	}
	var applied []XPTotal
	for _, f := range fixes {
		if u := r.users[f.UserID]; u.TotalXP == f.Cached {
			u.TotalXP = f.Actual
			applied = append(applied, f)
		}
	}
	return applied, nil
}

func (r *fakeRepo) ListBadges(context.Context) ([]models.Badge, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.Badge(nil), r.badges...), nil
}

func (r *fakeRepo) CreateBadge(_ context.Context, b *models.Badge) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.badges {
		if existing.Code == b.Code {
			return ErrBadgeCodeTaken
		}
	}
	b.ID = r.nextBadgeID
	r.nextBadgeID++
	r.badges = append(r.badges, *b)
	return nil
}

func (r *fakeRepo) UpdateBadge(_ context.Context, b *models.Badge) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.badges {
		if r.badges[i].ID == b.ID {
			r.badges[i] = *b
			return nil
		}
	}
	return ErrNotFound
}

func (r *fakeRepo) ResetUserBadges(_ context.Context, userID int64) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for k := range r.earned {
		if k.user == userID {
			delete(r.earned, k)
			n++
		}
	}
	return n, nil
}
