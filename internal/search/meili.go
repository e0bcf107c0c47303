package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/MarcoPoloResearchLab/shipyard/internal/profiles"
	"github.com/meilisearch/meilisearch-go"
	"go.uber.org/zap"
)

const (
	defaultLimit = 20
	maxLimit     = 100
)

var errMissingClient = errors.New("search: meilisearch client required")

// Document is the indexed projection of a profile.
type Document struct {
	ID                string   `json:"id"`
	Handle            string   `json:"handle"`
	DisplayName       string   `json:"display_name"`
	Bio               string   `json:"bio"`
	Location          string   `json:"location"`
	Role              string   `json:"role"`
	Tags              []string `json:"tags"`
	AvatarURL         string   `json:"avatar_url"`
	AvailableForWork  bool     `json:"available_for_work"`
	Hiring            bool     `json:"hiring"`
	SeekingInvestment bool     `json:"seeking_investment"`
	CreatedAt         int64    `json:"created_at"`
}

// Query describes a full-text directory search.
type Query struct {
	Text          string
	Role          string
	AvailableOnly bool
	Limit         int
}

// Result is a page of search hits.
type Result struct {
	Hits               []Document `json:"hits"`
	EstimatedTotalHits int64      `json:"estimatedTotalHits"`
}

// MeiliIndex mirrors profiles into a Meilisearch index and queries it.
type MeiliIndex struct {
	client    meilisearch.ServiceManager
	indexName string
	logger    *zap.Logger
}

// NewMeiliIndex builds an index client for indexName.
func NewMeiliIndex(client meilisearch.ServiceManager, indexName string, logger *zap.Logger) (*MeiliIndex, error) {
	if client == nil {
		return nil, errMissingClient
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MeiliIndex{client: client, indexName: indexName, logger: logger}, nil
}

// Connect dials a Meilisearch host.
func Connect(host string, apiKey string, indexName string, logger *zap.Logger) (*MeiliIndex, error) {
	client := meilisearch.New(host, meilisearch.WithAPIKey(apiKey))
	return NewMeiliIndex(client, indexName, logger)
}

// EnsureSettings declares the filterable and sortable attributes the directory relies on.
func (m *MeiliIndex) EnsureSettings(ctx context.Context) error {
	filterable := []any{"role", "tags", "available_for_work", "hiring", "seeking_investment"}
	if _, err := m.client.Index(m.indexName).UpdateFilterableAttributesWithContext(ctx, &filterable); err != nil {
		return fmt.Errorf("search: update filterable attributes: %w", err)
	}
	sortable := []string{"created_at"}
	if _, err := m.client.Index(m.indexName).UpdateSortableAttributesWithContext(ctx, &sortable); err != nil {
		return fmt.Errorf("search: update sortable attributes: %w", err)
	}
	m.logger.Info("search index initialized", zap.String("index", m.indexName))
	return nil
}

// IndexProfile adds or replaces the profile's document.
func (m *MeiliIndex) IndexProfile(ctx context.Context, profile profiles.Profile) error {
	document := newDocument(profile)
	task, err := m.client.Index(m.indexName).AddDocumentsWithContext(ctx, []Document{document}, strPtr("id"))
	if err != nil {
		return fmt.Errorf("search: index profile %s: %w", profile.Handle, err)
	}
	m.logger.Debug("profile indexed", zap.String("handle", profile.Handle), zap.Int64("task_uid", task.TaskUID))
	return nil
}

// Search runs a full-text query newest first.
func (m *MeiliIndex) Search(ctx context.Context, query Query) (Result, error) {
	limit := query.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	request := &meilisearch.SearchRequest{
		Limit: int64(limit),
		Sort:  []string{"created_at:desc"},
	}
	if filters := buildFilters(query); len(filters) > 0 {
		request.Filter = strings.Join(filters, " AND ")
	}

	raw, err := m.client.Index(m.indexName).SearchRawWithContext(ctx, strings.TrimSpace(query.Text), request)
	if err != nil {
		return Result{}, fmt.Errorf("search: query: %w", err)
	}
	result := Result{Hits: []Document{}}
	if raw == nil {
		return result, nil
	}
	if err := json.Unmarshal(*raw, &result); err != nil {
		return Result{}, fmt.Errorf("search: decode response: %w", err)
	}
	if result.Hits == nil {
		result.Hits = []Document{}
	}
	return result, nil
}

func buildFilters(query Query) []string {
	var filters []string
	if role := strings.TrimSpace(query.Role); role != "" && !strings.EqualFold(role, "all") {
		resolved, ok := profiles.LookupRole(role)
		if !ok {
			// unknown roles match nothing, same as the directory listing
			resolved = profiles.Role("__none__")
		}
		filters = append(filters, fmt.Sprintf("role = %q", string(resolved)))
	}
	if query.AvailableOnly {
		filters = append(filters, "available_for_work = true")
	}
	return filters
}

func newDocument(profile profiles.Profile) Document {
	tags := []string(profile.Tags)
	if tags == nil {
		tags = []string{}
	}
	return Document{
		ID:                profile.ProfileID,
		Handle:            profile.Handle,
		DisplayName:       profile.DisplayName,
		Bio:               valueOf(profile.Bio),
		Location:          profile.Location,
		Role:              profile.Role.String(),
		Tags:              tags,
		AvatarURL:         valueOf(profile.AvatarURL),
		AvailableForWork:  profile.AvailableForWork,
		Hiring:            profile.Hiring,
		SeekingInvestment: profile.SeekingInvestment,
		CreatedAt:         profile.CreatedAt.Unix(),
	}
}

func valueOf(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

func strPtr(s string) *string {
	return &s
}
