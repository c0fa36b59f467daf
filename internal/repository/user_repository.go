package repository

import (
	"context"
	"errors"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"gorm.io/gorm"

	"github.com/embermatch/engine/internal/db"
)

// Filters are the optional attribute predicates of discovery. Zero values
// mean "not set". Each filter is a pure AND predicate.
type Filters struct {
	AgeMin    int
	AgeMax    int
	BodyType  string
	Ethnicity string
	Religion  string
}

// Active reports whether any filter is set.
func (f Filters) Active() bool {
	return f.AgeMin > 0 || f.AgeMax > 0 || f.BodyType != "" || f.Ethnicity != "" || f.Religion != ""
}

// Candidate is a user+profile row as surfaced by discovery.
type Candidate struct {
	ID          uint64
	Gender      string
	LookingFor  string
	DisplayName string
	DateOfBirth time.Time
	BodyType    string
	Ethnicity   string
	Religion    string
}

// Wants reports whether the candidate's looking_for set contains the gender.
func (c *Candidate) Wants(gender string) bool {
	u := db.User{LookingFor: c.LookingFor}
	return u.Wants(gender)
}

// UserRepository provides read access to users, profiles and matchmakers.
// User rows are immutable from the engine's point of view, so lookups go
// through a short-lived in-process LRU.
type UserRepository struct {
	db    *gorm.DB
	users *expirable.LRU[uint64, db.User]
}

// NewUserRepository creates a new repository bound to the given DB connection.
func NewUserRepository(database *gorm.DB) *UserRepository {
	return &UserRepository{
		db:    database,
		users: expirable.NewLRU[uint64, db.User](4096, nil, 30*time.Second),
	}
}

// Get returns the user by id; gorm.ErrRecordNotFound when absent.
func (r *UserRepository) Get(ctx context.Context, id uint64) (*db.User, error) {
	if u, ok := r.users.Get(id); ok {
		return &u, nil
	}
	var user db.User
	if err := r.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, err
	}
	r.users.Add(id, user)
	return &user, nil
}

// GetProfile returns the user's profile; gorm.ErrRecordNotFound when absent.
func (r *UserRepository) GetProfile(ctx context.Context, userID uint64) (*db.Profile, error) {
	var profile db.Profile
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		First(&profile).Error
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

// GetMatchmaker returns the matchmaker record keyed by user id, or nil when
// the user is not a matchmaker.
func (r *UserRepository) GetMatchmaker(ctx context.Context, userID uint64) (*db.Matchmaker, error) {
	var mm db.Matchmaker
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		First(&mm).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &mm, nil
}

// FindCandidates returns eligible users ordered by id (stable keyset
// pagination), after the given id, excluding the exclusion set, restricted
// to the wanted genders and the attribute filters. Reciprocal preference is
// applied by the caller, since looking_for is a set column.
func (r *UserRepository) FindCandidates(
	ctx context.Context,
	afterID uint64,
	limit int,
	exclude []uint64,
	genders []string,
	f Filters,
) ([]Candidate, error) {
	var rows []Candidate
	query := r.candidateQuery(ctx, exclude, genders, f).
		Select("u.id, u.gender, u.looking_for, p.display_name, p.date_of_birth, p.body_type, p.ethnicity, p.religion").
		Where("u.id > ?", afterID).
		Order("u.id ASC").
		Limit(limit)
	if err := query.Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// CountCandidates counts eligible users under the same conditions as
// FindCandidates. Used for filter diagnostics.
func (r *UserRepository) CountCandidates(
	ctx context.Context,
	exclude []uint64,
	genders []string,
	f Filters,
) (int64, error) {
	var count int64
	err := r.candidateQuery(ctx, exclude, genders, f).Count(&count).Error
	return count, err
}

func (r *UserRepository) candidateQuery(ctx context.Context, exclude []uint64, genders []string, f Filters) *gorm.DB {
	query := r.db.WithContext(ctx).
		Table("users u").
		Joins("JOIN profiles p ON p.user_id = u.id").
		Where("u.status = ?", db.UserStatusActive).
		Where("u.can_start_matching = ?", true).
		Where("u.profile_hidden = ?", false).
		Where("u.gender IN ?", genders)
	if len(exclude) > 0 {
		query = query.Where("u.id NOT IN ?", exclude)
	}

	now := time.Now().UTC()
	if f.AgeMin > 0 {
		// age >= AgeMin: born on or before today minus AgeMin years
		query = query.Where("p.date_of_birth <= ?", now.AddDate(-f.AgeMin, 0, 0))
	}
	if f.AgeMax > 0 {
		// age <= AgeMax: born after today minus AgeMax+1 years
		query = query.Where("p.date_of_birth > ?", now.AddDate(-(f.AgeMax+1), 0, 0))
	}
	if f.BodyType != "" {
		query = query.Where("p.body_type = ?", f.BodyType)
	}
	if f.Ethnicity != "" {
		query = query.Where("p.ethnicity = ?", f.Ethnicity)
	}
	if f.Religion != "" {
		query = query.Where("p.religion = ?", f.Religion)
	}
	return query
}
