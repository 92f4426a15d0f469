package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/oggyb/muzz-matching/internal/db"
	"github.com/oggyb/muzz-matching/internal/utils/pagination"
)

// MatchRepository provides data access methods for the Match model.
// Uniqueness of the normalized pair key is the only race guard.
type MatchRepository struct {
	db  *gorm.DB
	now func() time.Time
}

// NewMatchRepository creates a new repository bound to the given DB connection.
func NewMatchRepository(database *gorm.DB) *MatchRepository {
	return &MatchRepository{db: database, now: time.Now}
}

// stamp is the write time of a row. It has the millisecond precision of
// the list cursor, so a row at a page boundary compares equal to it.
func (r *MatchRepository) stamp() time.Time {
	return r.now().UTC().Truncate(time.Millisecond)
}

// CreateIfAbsent inserts a pending match for actor -> recipient.
//
// Behavior:
//   - PairKey is normalized, so {A,B} and {B,A} map to the same row.
//   - If a row for the pair already exists (any status, any direction) the
//     insert is a no-op and the existing row is returned with created=false.
//   - Concurrent callers race on the unique index; exactly one wins.
//
// Example:
//
//	m, created, err := repo.CreateIfAbsent(ctx, 1, 2, 80) // user 1 liked user 2
func (r *MatchRepository) CreateIfAbsent(
	ctx context.Context,
	actorID, recipientID uint64,
	score int,
) (db.Match, bool, error) {
	at := r.stamp()
	match := db.Match{
		PairKey:            db.PairKey(actorID, recipientID),
		UserAID:            actorID,
		UserBID:            recipientID,
		CompatibilityScore: score,
		Status:             db.MatchStatusPending,
		CreatedAt:          at,
		UpdatedAt:          at,
	}

	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "pair_key"}},
			DoNothing: true,
		}).
		Create(&match)
	if res.Error != nil {
		return db.Match{}, false, res.Error
	}
	if res.RowsAffected == 1 && match.ID != 0 {
		return match, true, nil
	}

	existing, err := r.GetByPair(ctx, actorID, recipientID)
	if err != nil {
		return db.Match{}, false, err
	}
	return existing, false, nil
}

// Get loads a match by id.
func (r *MatchRepository) Get(ctx context.Context, matchID uint64) (db.Match, error) {
	var m db.Match
	err := r.db.WithContext(ctx).First(&m, "id = ?", matchID).Error
	return m, err
}

// GetByPair loads the match of an unordered pair.
func (r *MatchRepository) GetByPair(ctx context.Context, a, b uint64) (db.Match, error) {
	var m db.Match
	err := r.db.WithContext(ctx).First(&m, "pair_key = ?", db.PairKey(a, b)).Error
	return m, err
}

// TransitionFromPending moves a pending match to the given status.
//
// Behavior:
//   - Conditional UPDATE guarded by status = 'pending'; a terminal row is
//     never touched.
//   - Returns true if this call performed the transition.
func (r *MatchRepository) TransitionFromPending(
	ctx context.Context,
	matchID uint64,
	to db.MatchStatus,
) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&db.Match{}).
		Where("id = ? AND status = ?", matchID, db.MatchStatusPending).
		Updates(map[string]any{"status": to, "updated_at": r.stamp()})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// ListForUser returns matches the user takes part in, newest activity first.
//
// Behavior:
//   - status filters by a single status when non-empty.
//   - Ordered by updated_at DESC, id DESC.
//   - Supports cursor-based pagination via paginationToken.
func (r *MatchRepository) ListForUser(
	ctx context.Context,
	userID uint64,
	status db.MatchStatus,
	paginationToken *string,
	limit int,
) ([]db.Match, *string, error) {
	var matches []db.Match

	cursor, err := pagination.Decode(getString(paginationToken))
	if err != nil {
		return nil, nil, err
	}

	query := r.db.WithContext(ctx).
		Model(&db.Match{}).
		Where("(user_a_id = ? OR user_b_id = ?)", userID, userID).
		Order("updated_at DESC, id DESC").
		Limit(limit + 1)

	if status != "" {
		query = query.Where("status = ?", status)
	}

	// apply cursor
	if cursor.ID > 0 && cursor.AtUnix > 0 {
		ts := cursor.At()
		query = query.Where(
			"(updated_at < ? OR (updated_at = ? AND id < ?))",
			ts, ts, cursor.ID,
		)
	}

	if err := query.Find(&matches).Error; err != nil {
		return nil, nil, err
	}

	var nextToken *string
	if len(matches) > limit {
		last := matches[limit-1]
		token, _ := pagination.Encode(pagination.Cursor{
			ID:     last.ID,
			AtUnix: last.UpdatedAt.UnixMilli(),
		})
		nextToken = &token
		matches = matches[:limit]
	}

	return matches, nextToken, nil
}

// getString safely dereferences a string pointer for pagination tokens.
func getString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
