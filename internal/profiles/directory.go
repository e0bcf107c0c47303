package profiles

import (
	"context"
	"strings"
)

// DirectoryQuery narrows the directory listing. Zero values match everything.
type DirectoryQuery struct {
	Text              string
	Role              string
	Tag               string
	AvailableOnly     bool
	HiringOnly        bool
	SeekingInvestment bool
}

// Matches reports whether profile satisfies every filter of the query.
func (q DirectoryQuery) Matches(profile Profile) bool {
	if q.AvailableOnly && !profile.AvailableForWork {
		return false
	}
	if q.HiringOnly && !profile.Hiring {
		return false
	}
	if q.SeekingInvestment && !profile.SeekingInvestment {
		return false
	}
	if role := strings.TrimSpace(q.Role); role != "" && !strings.EqualFold(role, "all") {
		wanted, ok := LookupRole(role)
		if !ok || profile.Role != wanted {
			return false
		}
	}
	if tag := strings.TrimSpace(q.Tag); tag != "" && !hasTag(profile.Tags, tag) {
		return false
	}

	needle := strings.ToLower(strings.TrimSpace(q.Text))
	if needle == "" {
		return true
	}
	return strings.Contains(searchHaystack(profile), needle)
}

// Directory collects the profiles matching query, newest first.
func (s *Service) Directory(ctx context.Context, query DirectoryQuery) ([]Profile, error) {
	matches := make([]Profile, 0)
	for profile, err := range s.ListAll(ctx) {
		if err != nil {
			return nil, err
		}
		if query.Matches(profile) {
			matches = append(matches, profile)
		}
	}
	return matches, nil
}

func hasTag(tags TagList, wanted string) bool {
	for _, tag := range tags {
		if strings.EqualFold(tag, wanted) {
			return true
		}
	}
	return false
}

func searchHaystack(profile Profile) string {
	parts := []string{profile.DisplayName, profile.Handle, deref(profile.Bio), profile.Location}
	parts = append(parts, profile.Tags...)
	return strings.ToLower(strings.Join(parts, " "))
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
