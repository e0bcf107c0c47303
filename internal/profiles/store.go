package profiles

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store persists profiles. Implementations report ErrNotFound, ErrConflict or ErrUnavailable
// (possibly wrapped) so callers can tell the outcomes apart.
type Store interface {
	FindByOwner(ctx context.Context, ownerID string) (Profile, error)
	FindByHandle(ctx context.Context, handle string) (Profile, error)
	Create(ctx context.Context, profile *Profile) error
	Update(ctx context.Context, profile *Profile) error
	Upsert(ctx context.Context, profile *Profile) (Profile, error)
	ListAll(ctx context.Context) iter.Seq2[Profile, error]
}

// GormStore implements Store on top of gorm.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore wraps an initialized gorm handle.
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if db == nil {
		return nil, errMissingDatabase
	}
	return &GormStore{db: db}, nil
}

var errMissingDatabase = errors.New("profiles: database handle is required")

func (s *GormStore) FindByOwner(ctx context.Context, ownerID string) (Profile, error) {
	return s.take(ctx, "owner_id = ?", ownerID)
}

func (s *GormStore) FindByHandle(ctx context.Context, handle string) (Profile, error) {
	return s.take(ctx, "handle = ?", handle)
}

func (s *GormStore) take(ctx context.Context, query string, argument string) (Profile, error) {
	var found []Profile
	if err := s.db.WithContext(ctx).Where(query, argument).Limit(1).Find(&found).Error; err != nil {
		return Profile{}, classifyStoreError(err)
	}
	if len(found) == 0 {
		return Profile{}, ErrNotFound
	}
	return found[0], nil
}

func (s *GormStore) Create(ctx context.Context, profile *Profile) error {
	if err := s.db.WithContext(ctx).Create(profile).Error; err != nil {
		return classifyStoreError(err)
	}
	return nil
}

// Update replaces the mutable columns of the profile owned by profile.OwnerID.
func (s *GormStore) Update(ctx context.Context, profile *Profile) error {
	result := s.db.WithContext(ctx).
		Model(&Profile{}).
		Where("owner_id = ?", profile.OwnerID).
		Select(mutableColumns).
		Updates(profile)
	if result.Error != nil {
		return classifyStoreError(result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Upsert inserts the profile or, when the owner already has one, replaces its mutable columns
// in the same statement. The stored row is returned.
func (s *GormStore) Upsert(ctx context.Context, profile *Profile) (Profile, error) {
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "owner_id"}},
			DoUpdates: clause.AssignmentColumns(mutableColumns),
		}).
		Create(profile).Error
	if err != nil {
		return Profile{}, classifyStoreError(err)
	}
	return s.FindByOwner(ctx, profile.OwnerID)
}

// ListAll streams every profile newest first. The cursor holds a connection until iteration
// ends, so callers must not issue other queries from inside the loop.
func (s *GormStore) ListAll(ctx context.Context) iter.Seq2[Profile, error] {
	return func(yield func(Profile, error) bool) {
		rows, err := s.db.WithContext(ctx).
			Model(&Profile{}).
			Order("created_at DESC").
			Order("profile_id DESC").
			Rows()
		if err != nil {
			yield(Profile{}, classifyStoreError(err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			var profile Profile
			if err := s.db.ScanRows(rows, &profile); err != nil {
				yield(Profile{}, classifyStoreError(err))
				return
			}
			if !yield(profile, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(Profile{}, classifyStoreError(err))
		}
	}
}

func classifyStoreError(err error) error {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case isUniqueViolation(err):
		return fmt.Errorf("%w: %w", ErrConflict, err)
	default:
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	message := strings.ToLower(err.Error())
	return strings.Contains(message, "unique constraint") ||
		strings.Contains(message, "duplicate key") ||
		strings.Contains(message, "sqlstate 23505")
}
