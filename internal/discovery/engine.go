package discovery

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/oggyb/muzz-matching/internal/db"
	svcErr "github.com/oggyb/muzz-matching/internal/errors"
	"github.com/oggyb/muzz-matching/internal/quota"
	"github.com/oggyb/muzz-matching/internal/repository"
	"github.com/oggyb/muzz-matching/internal/scoring"
)

const (
	defaultLimit = 10
	maxLimit     = 50
)

// Profiles is the read side of the profile subsystem used by discovery.
type Profiles interface {
	Get(ctx context.Context, userID uint64) (db.User, error)
	ListCandidates(ctx context.Context, q repository.CandidateQuery) ([]db.User, error)
}

// Quota reserves and refunds units of the viewer's rolling-day candidate cap.
type Quota interface {
	Reserve(ctx context.Context, userID uint64, want int, premium bool) (quota.Reservation, error)
	Refund(ctx context.Context, userID uint64, reservationID string, n int) error
}

type Config struct {
	Workers            int
	ScoreTimeout       time.Duration
	MinScore           int
	OverFetchFactor    int
	AgeSpan            int
	MinAge             int
	MaxAge             int
	OppositeGenderOnly bool
}

// Candidate is a scored profile proposed to the viewer.
type Candidate struct {
	Profile db.User
	Score   int
}

// Result of one discovery call.
type Result struct {
	Candidates []Candidate
	// Requested is the limit asked for; Returned is len(Candidates).
	Requested int
	Returned  int
	// Dropped counts candidates whose scoring failed or timed out.
	Dropped int
	// QuotaRemaining is the unused rolling-day quota after this call, -1
	// when no quota is enforced.
	QuotaRemaining int
}

// Engine produces ranked, filtered candidate lists.
type Engine struct {
	profiles Profiles
	scorer   scoring.Scorer
	quota    Quota
	cfg      Config
	logger   *slog.Logger
}

// NewEngine wires a discovery engine. quota may be nil to disable the cap.
func NewEngine(profiles Profiles, scorer scoring.Scorer, quota Quota, cfg Config, logger *slog.Logger) *Engine {
	if cfg.Workers <= 0 {
		cfg.Workers = 8
	}
	if cfg.ScoreTimeout <= 0 {
		cfg.ScoreTimeout = 800 * time.Millisecond
	}
	if cfg.MinScore <= 0 {
		cfg.MinScore = 65
	}
	if cfg.OverFetchFactor <= 0 {
		cfg.OverFetchFactor = 2
	}
	if cfg.AgeSpan <= 0 {
		cfg.AgeSpan = 10
	}
	if cfg.MinAge <= 0 {
		cfg.MinAge = 18
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = 80
	}
	return &Engine{profiles: profiles, scorer: scorer, quota: quota, cfg: cfg, logger: logger}
}

// Discover returns up to limit candidates for userID, best score first.
//
// Behavior:
//   - Never returns the viewer or anyone sharing a Match row with them.
//   - Filters by opposite gender (configurable), age window and verification.
//   - Over-fetches OverFetchFactor x limit raw candidates, scores them with
//     bounded parallelism and keeps those scoring >= MinScore.
//   - A failed or timed-out score drops that candidate only.
//   - The result is capped by the viewer's remaining rolling-day quota;
//     unused reservations are refunded.
func (e *Engine) Discover(ctx context.Context, userID uint64, limit int) (Result, error) {
	if userID == 0 {
		return Result{}, svcErr.Validation("user id is required")
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	viewer, err := e.profiles.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Result{}, svcErr.NotFound("user")
		}
		return Result{}, svcErr.Transient("load viewer", err)
	}

	res := Result{Requested: limit, QuotaRemaining: -1}

	want := limit
	var reservation quota.Reservation
	if e.quota != nil {
		reservation, err = e.quota.Reserve(ctx, userID, limit, viewer.Premium)
		if err != nil {
			return Result{}, err
		}
		res.QuotaRemaining = reservation.Remaining
		if reservation.Granted == 0 {
			e.logger.Debug("discovery quota exhausted", "user", userID)
			return res, nil
		}
		want = reservation.Granted
	}

	// the pool is sized by the request; the quota only caps the result
	candidates, dropped, err := e.rank(ctx, viewer, limit*e.cfg.OverFetchFactor, want)
	if err != nil {
		e.refund(userID, reservation.ID, want, &res)
		return Result{}, err
	}

	res.Candidates = candidates
	res.Returned = len(candidates)
	res.Dropped = dropped
	e.refund(userID, reservation.ID, want-len(candidates), &res)

	e.logger.Debug("discovery done",
		"user", userID,
		"requested", limit,
		"returned", res.Returned,
		"dropped", dropped,
		"quota_remaining", res.QuotaRemaining,
	)
	return res, nil
}

func (e *Engine) rank(ctx context.Context, viewer db.User, fetch, want int) ([]Candidate, int, error) {
	minAge, maxAge := e.ageWindow(viewer.Age)
	raw, err := e.profiles.ListCandidates(ctx, repository.CandidateQuery{
		ViewerID: viewer.ID,
		Gender:   e.targetGender(viewer.Gender),
		MinAge:   minAge,
		MaxAge:   maxAge,
		Limit:    fetch,
	})
	if err != nil {
		return nil, 0, svcErr.Transient("list candidates", err)
	}

	scores, dropped := e.scoreAll(ctx, viewer.ID, raw)
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	out := make([]Candidate, 0, len(raw))
	for i, c := range raw {
		if scores[i] < e.cfg.MinScore {
			continue
		}
		out = append(out, Candidate{Profile: c, Score: scores[i]})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Profile.ID < out[j].Profile.ID
	})
	if len(out) > want {
		out = out[:want]
	}
	return out, dropped, nil
}

// scoreAll scores every candidate through a fixed-size worker pool.
// Failed entries get score -1 and are counted as dropped.
func (e *Engine) scoreAll(ctx context.Context, viewerID uint64, raw []db.User) ([]int, int) {
	scores := make([]int, len(raw))
	failed := make([]bool, len(raw))

	var g errgroup.Group
	g.SetLimit(e.cfg.Workers)
	for i, c := range raw {
		i, c := i, c
		g.Go(func() error {
			score, err := e.scoreOne(ctx, viewerID, c.ID)
			if err != nil {
				e.logger.Warn("candidate scoring failed, dropping",
					"viewer", viewerID,
					"candidate", c.ID,
					"err", err,
				)
				scores[i], failed[i] = -1, true
				return nil
			}
			scores[i] = score
			return nil
		})
	}
	_ = g.Wait()

	dropped := 0
	for _, f := range failed {
		if f {
			dropped++
		}
	}
	return scores, dropped
}

// scoreOne bounds a single scorer call by ScoreTimeout even if the scorer
// ignores its context.
func (e *Engine) scoreOne(ctx context.Context, viewerID, candidateID uint64) (int, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.cfg.ScoreTimeout)
	defer cancel()

	type outcome struct {
		score int
		err   error
	}
	done := make(chan outcome, 1)
	go func() {
		score, err := e.scorer.Score(callCtx, viewerID, candidateID)
		done <- outcome{score: score, err: err}
	}()

	select {
	case o := <-done:
		if o.err != nil {
			return 0, o.err
		}
		return scoring.Clamp(o.score), nil
	case <-callCtx.Done():
		return 0, callCtx.Err()
	}
}

func (e *Engine) refund(userID uint64, reservationID string, n int, res *Result) {
	if e.quota == nil || n <= 0 {
		return
	}
	// the request context may already be gone; refunds must still land
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := e.quota.Refund(ctx, userID, reservationID, n); err != nil {
		e.logger.Error("quota refund failed", "user", userID, "units", n, "err", err)
		return
	}
	if res.QuotaRemaining >= 0 {
		res.QuotaRemaining += n
	}
}

func (e *Engine) ageWindow(age int) (int, int) {
	lo, hi := age-e.cfg.AgeSpan, age+e.cfg.AgeSpan
	if lo < e.cfg.MinAge {
		lo = e.cfg.MinAge
	}
	if hi > e.cfg.MaxAge {
		hi = e.cfg.MaxAge
	}
	return lo, hi
}

func (e *Engine) targetGender(gender string) string {
	if !e.cfg.OppositeGenderOnly {
		return ""
	}
	switch gender {
	case "male":
		return "female"
	case "female":
		return "male"
	}
	return ""
}
