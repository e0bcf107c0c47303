package profiles

import (
	"context"
	"errors"
	"iter"
	"strings"
	"time"

	"go.uber.org/zap"
)

var (
	errMissingStore      = errors.New("profile store is required")
	errMissingIDProvider = errors.New("id provider is required")
	noOpLogger           = zap.NewNop()
)

// IDProvider issues identifiers for new profiles.
type IDProvider interface {
	NewID() (string, error)
}

// Indexer mirrors stored profiles into an external search index.
type Indexer interface {
	IndexProfile(ctx context.Context, profile Profile) error
}

// ChangeNotifier is told about every successful profile write.
type ChangeNotifier interface {
	ProfileChanged(profile Profile)
}

type ServiceConfig struct {
	Store      Store
	Clock      func() time.Time
	IDProvider IDProvider
	Logger     *zap.Logger
	Indexer    Indexer
	Notifier   ChangeNotifier
}

// Service normalizes submissions and persists them with one profile per owner.
type Service struct {
	store      Store
	clock      func() time.Time
	idProvider IDProvider
	logger     *zap.Logger
	indexer    Indexer
	notifier   ChangeNotifier
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Store == nil {
		return nil, newServiceError(opServiceNew, "missing_store", errMissingStore)
	}
	if cfg.IDProvider == nil {
		return nil, newServiceError(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Service{
		store:      cfg.Store,
		clock:      clock,
		idProvider: cfg.IDProvider,
		logger:     logger,
		indexer:    cfg.Indexer,
		notifier:   cfg.Notifier,
	}, nil
}

// Create stores the first profile for an owner. It fails with PROFILE_ALREADY_EXISTS when the
// owner already has one.
func (s *Service) Create(ctx context.Context, ownerID string, payload Payload) (Profile, error) {
	owner, err := requireOwner(ownerID)
	if err != nil {
		return Profile{}, err
	}
	normalized, err := Normalize(payload)
	if err != nil {
		return Profile{}, err
	}

	_, err = s.store.FindByOwner(ctx, owner)
	switch {
	case err == nil:
		return Profile{}, newValidationError(KindProfileAlreadyExists)
	case !errors.Is(err, ErrNotFound):
		return Profile{}, s.storageError(opCreate, "owner_lookup_failed", err, zap.String("owner_id", owner))
	}
	if err := s.ensureHandleAvailable(ctx, opCreate, owner, normalized.Handle); err != nil {
		return Profile{}, err
	}

	profile, err := s.newProfile(owner, normalized)
	if err != nil {
		return Profile{}, s.storageError(opCreate, "id_generation_failed", err, zap.String("owner_id", owner))
	}
	if err := s.store.Create(ctx, &profile); err != nil {
		if errors.Is(err, ErrConflict) {
			return Profile{}, s.conflictOutcome(ctx, owner)
		}
		return Profile{}, s.storageError(opCreate, "insert_failed", err, zap.String("owner_id", owner))
	}

	s.afterWrite(ctx, profile)
	return profile, nil
}

// Save normalizes the payload and upserts it for the owner.
func (s *Service) Save(ctx context.Context, ownerID string, payload Payload) (Profile, error) {
	if _, err := requireOwner(ownerID); err != nil {
		return Profile{}, err
	}
	normalized, err := Normalize(payload)
	if err != nil {
		return Profile{}, err
	}
	return s.UpsertForOwner(ctx, ownerID, normalized)
}

// UpsertForOwner creates the owner's profile or fully replaces its mutable fields. Absent
// optional fields in normalized are stored as NULL.
func (s *Service) UpsertForOwner(ctx context.Context, ownerID string, normalized NormalizedProfile) (Profile, error) {
	owner, err := requireOwner(ownerID)
	if err != nil {
		return Profile{}, err
	}
	if err := s.ensureHandleAvailable(ctx, opUpsert, owner, normalized.Handle); err != nil {
		return Profile{}, err
	}

	candidate, err := s.newProfile(owner, normalized)
	if err != nil {
		return Profile{}, s.storageError(opUpsert, "id_generation_failed", err, zap.String("owner_id", owner))
	}
	stored, err := s.store.Upsert(ctx, &candidate)
	if err != nil {
		if errors.Is(err, ErrConflict) {
			return Profile{}, newValidationError(KindHandleTaken)
		}
		return Profile{}, s.storageError(opUpsert, "upsert_failed", err, zap.String("owner_id", owner))
	}

	stored = canonicalOnRead(stored)
	s.afterWrite(ctx, stored)
	return stored, nil
}

// Update replaces the fields of an existing profile. It never creates one.
func (s *Service) Update(ctx context.Context, ownerID string, payload Payload) (Profile, error) {
	owner, err := requireOwner(ownerID)
	if err != nil {
		return Profile{}, err
	}
	normalized, err := Normalize(payload)
	if err != nil {
		return Profile{}, err
	}

	existing, err := s.store.FindByOwner(ctx, owner)
	if errors.Is(err, ErrNotFound) {
		return Profile{}, ErrProfileNotFound
	}
	if err != nil {
		return Profile{}, s.storageError(opUpdate, "owner_lookup_failed", err, zap.String("owner_id", owner))
	}
	if err := s.ensureHandleAvailable(ctx, opUpdate, owner, normalized.Handle); err != nil {
		return Profile{}, err
	}

	normalized.apply(&existing)
	existing.UpdatedAt = s.clock().UTC()
	if err := s.store.Update(ctx, &existing); err != nil {
		switch {
		case errors.Is(err, ErrConflict):
			return Profile{}, newValidationError(KindHandleTaken)
		case errors.Is(err, ErrNotFound):
			return Profile{}, ErrProfileNotFound
		}
		return Profile{}, s.storageError(opUpdate, "update_failed", err, zap.String("owner_id", owner))
	}

	s.afterWrite(ctx, existing)
	return existing, nil
}

// GetByOwner returns the owner's profile or ErrProfileNotFound.
func (s *Service) GetByOwner(ctx context.Context, ownerID string) (Profile, error) {
	owner, err := requireOwner(ownerID)
	if err != nil {
		return Profile{}, err
	}
	profile, err := s.store.FindByOwner(ctx, owner)
	if errors.Is(err, ErrNotFound) {
		return Profile{}, ErrProfileNotFound
	}
	if err != nil {
		return Profile{}, s.storageError(opGetByOwner, "query_failed", err, zap.String("owner_id", owner))
	}
	return canonicalOnRead(profile), nil
}

// GetByHandle returns the public profile registered under handle.
func (s *Service) GetByHandle(ctx context.Context, handle string) (Profile, error) {
	trimmed := strings.TrimSpace(handle)
	if trimmed == "" {
		return Profile{}, ErrProfileNotFound
	}
	profile, err := s.store.FindByHandle(ctx, trimmed)
	if errors.Is(err, ErrNotFound) {
		return Profile{}, ErrProfileNotFound
	}
	if err != nil {
		return Profile{}, s.storageError(opGetByHandle, "query_failed", err, zap.String("handle", trimmed))
	}
	return canonicalOnRead(profile), nil
}

// ListAll yields every profile newest first. Each range over the sequence runs a fresh query.
func (s *Service) ListAll(ctx context.Context) iter.Seq2[Profile, error] {
	return func(yield func(Profile, error) bool) {
		for profile, err := range s.store.ListAll(ctx) {
			if err != nil {
				yield(Profile{}, s.storageError(opListAll, "query_failed", err))
				return
			}
			if !yield(canonicalOnRead(profile), nil) {
				return
			}
		}
	}
}

func (s *Service) newProfile(owner string, normalized NormalizedProfile) (Profile, error) {
	profileID, err := s.idProvider.NewID()
	if err != nil {
		return Profile{}, err
	}
	now := s.clock().UTC()
	profile := Profile{
		ProfileID: profileID,
		OwnerID:   owner,
		CreatedAt: now,
		UpdatedAt: now,
	}
	normalized.apply(&profile)
	return profile, nil
}

func (s *Service) ensureHandleAvailable(ctx context.Context, operation, owner, handle string) error {
	holder, err := s.store.FindByHandle(ctx, handle)
	switch {
	case errors.Is(err, ErrNotFound):
		return nil
	case err != nil:
		return s.storageError(operation, "handle_lookup_failed", err, zap.String("handle", handle))
	case holder.OwnerID != owner:
		return newValidationError(KindHandleTaken)
	default:
		return nil
	}
}

// conflictOutcome decides which uniqueness rule a rejected insert violated.
func (s *Service) conflictOutcome(ctx context.Context, owner string) error {
	if _, err := s.store.FindByOwner(ctx, owner); err == nil {
		return newValidationError(KindProfileAlreadyExists)
	}
	return newValidationError(KindHandleTaken)
}

func (s *Service) afterWrite(ctx context.Context, profile Profile) {
	if s.indexer != nil {
		if err := s.indexer.IndexProfile(ctx, profile); err != nil {
			s.logger.Warn("profile indexing failed",
				zap.String("profile_id", profile.ProfileID),
				zap.String("handle", profile.Handle),
				zap.Error(err))
		}
	}
	if s.notifier != nil {
		s.notifier.ProfileChanged(profile)
	}
}

func (s *Service) storageError(operation, reason string, err error, fields ...zap.Field) error {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
		zap.Error(err),
	}
	attrs = append(attrs, fields...)
	s.logger.Error("profiles service error", attrs...)
	return newServiceError(operation, reason, err)
}

func requireOwner(ownerID string) (string, error) {
	owner := strings.TrimSpace(ownerID)
	if owner == "" {
		return "", ErrUnauthorized
	}
	return owner, nil
}

// canonicalOnRead repairs rows written before stricter validation existed.
func canonicalOnRead(profile Profile) Profile {
	profile.Tags = TagList(normalizeTags([]string(profile.Tags)))
	if !profile.Role.Valid() {
		profile.Role = DefaultRole
	}
	return profile
}
