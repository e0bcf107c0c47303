package profiles

import (
	"context"
	"fmt"
	"iter"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

var databaseSequence atomic.Int64

func openTestDatabase(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:profiles_%d?mode=memory&cache=shared", databaseSequence.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})
	if err := db.AutoMigrate(&Profile{}); err != nil {
		t.Fatalf("failed to migrate profile schema: %v", err)
	}
	return db
}

// steppingClock advances one second per call so creation order is observable.
func steppingClock(start time.Time) func() time.Time {
	var mu sync.Mutex
	current := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		value := current
		current = current.Add(time.Second)
		return value
	}
}

type sequenceIDProvider struct {
	next atomic.Int64
}

func (p *sequenceIDProvider) NewID() (string, error) {
	return fmt.Sprintf("profile-%03d", p.next.Add(1)), nil
}

func newTestService(t *testing.T, options ...func(*ServiceConfig)) (*Service, *gorm.DB) {
	t.Helper()
	db := openTestDatabase(t)
	store, err := NewGormStore(db)
	if err != nil {
		t.Fatalf("failed to build store: %v", err)
	}
	cfg := ServiceConfig{
		Store:      store,
		Clock:      steppingClock(time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)),
		IDProvider: &sequenceIDProvider{},
	}
	for _, option := range options {
		option(&cfg)
	}
	service, err := NewService(cfg)
	if err != nil {
		t.Fatalf("failed to build service: %v", err)
	}
	return service, db
}

func mustNormalize(t *testing.T, payload Payload) NormalizedProfile {
	t.Helper()
	normalized, err := Normalize(payload)
	if err != nil {
		t.Fatalf("unexpected normalize error: %v", err)
	}
	return normalized
}

func basePayload(handle string) Payload {
	return Payload{
		"handle":      handle,
		"displayName": "Ada L.",
		"location":    "Remote",
	}
}

func collectAll(t *testing.T, sequence iter.Seq2[Profile, error]) []Profile {
	t.Helper()
	var collected []Profile
	for profile, err := range sequence {
		if err != nil {
			t.Fatalf("unexpected iteration error: %v", err)
		}
		collected = append(collected, profile)
	}
	return collected
}

// countingStore records storage calls and serves nothing.
type countingStore struct {
	calls int
}

func (s *countingStore) FindByOwner(context.Context, string) (Profile, error) {
	s.calls++
	return Profile{}, ErrNotFound
}

func (s *countingStore) FindByHandle(context.Context, string) (Profile, error) {
	s.calls++
	return Profile{}, ErrNotFound
}

func (s *countingStore) Create(context.Context, *Profile) error {
	s.calls++
	return nil
}

func (s *countingStore) Update(context.Context, *Profile) error {
	s.calls++
	return nil
}

func (s *countingStore) Upsert(_ context.Context, profile *Profile) (Profile, error) {
	s.calls++
	return *profile, nil
}

func (s *countingStore) ListAll(context.Context) iter.Seq2[Profile, error] {
	s.calls++
	return func(func(Profile, error) bool) {}
}

func stringPointer(value string) *string {
	return &value
}
