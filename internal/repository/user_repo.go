package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/oggyb/muzz-matching/internal/db"
)

// UserRepository reads profiles owned by the profile subsystem.
// Nothing in the matching core writes to the users table.
type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(database *gorm.DB) *UserRepository {
	return &UserRepository{db: database}
}

// CandidateQuery describes the discovery filter pipeline pushed down to SQL.
type CandidateQuery struct {
	ViewerID uint64
	// Gender restricts candidates to one gender; empty disables the filter.
	Gender string
	MinAge int
	MaxAge int
	Limit  int
}

// Get loads a single profile. Returns gorm.ErrRecordNotFound when absent.
func (r *UserRepository) Get(ctx context.Context, userID uint64) (db.User, error) {
	var u db.User
	err := r.db.WithContext(ctx).First(&u, "id = ?", userID).Error
	return u, err
}

// ListCandidates returns raw (unscored) discovery candidates for a viewer.
//
// Behavior:
//   - Excludes the viewer and inactive/unverified profiles.
//   - Excludes every user sharing a Match row with the viewer, in either
//     direction and regardless of status.
//   - Applies the gender and age window filters.
//   - Ordered by last_login_at DESC, id ASC (recently active first).
//
// Example:
//
//	repo.ListCandidates(ctx, CandidateQuery{ViewerID: 1, Gender: "female", MinAge: 20, MaxAge: 40, Limit: 20})
func (r *UserRepository) ListCandidates(ctx context.Context, q CandidateQuery) ([]db.User, error) {
	var users []db.User

	query := r.db.WithContext(ctx).
		Model(&db.User{}).
		Where("users.id <> ?", q.ViewerID).
		Where("users.active = ? AND users.verified = ?", true, true).
		Where("users.age BETWEEN ? AND ?", q.MinAge, q.MaxAge).
		Where(`
			NOT EXISTS (
				SELECT 1 FROM matches m
				WHERE (m.user_a_id = ? AND m.user_b_id = users.id)
				   OR (m.user_b_id = ? AND m.user_a_id = users.id)
			)`, q.ViewerID, q.ViewerID).
		Order("users.last_login_at DESC, users.id ASC")

	if q.Gender != "" {
		query = query.Where("users.gender = ?", q.Gender)
	}
	if q.Limit > 0 {
		query = query.Limit(q.Limit)
	}

	if err := query.Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

// PushToken returns the device token used for push notifications, or "".
func (r *UserRepository) PushToken(ctx context.Context, userID uint64) (string, error) {
	var u db.User
	err := r.db.WithContext(ctx).Select("id", "push_token").First(&u, "id = ?", userID).Error
	return u.PushToken, err
}
