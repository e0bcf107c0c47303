package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/shipyard/internal/profiles"
	"github.com/MarcoPoloResearchLab/shipyard/internal/search"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type profileResponsePayload struct {
	ID                string    `json:"id"`
	Handle            string    `json:"handle"`
	DisplayName       string    `json:"displayName"`
	AvatarURL         *string   `json:"avatarUrl"`
	Bio               *string   `json:"bio"`
	Role              string    `json:"role"`
	Tags              []string  `json:"tags"`
	Location          string    `json:"location"`
	AvailableForWork  bool      `json:"availableForWork"`
	Hiring            bool      `json:"hiring"`
	SeekingInvestment bool      `json:"seekingInvestment"`
	LinkedinURL       *string   `json:"linkedinUrl"`
	XURL              *string   `json:"xUrl"`
	CalendlyURL       *string   `json:"calendlyUrl"`
	TelegramHandle    *string   `json:"telegramHandle"`
	DiscordHandle     *string   `json:"discordHandle"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

func newProfileResponse(profile profiles.Profile) profileResponsePayload {
	tags := []string(profile.Tags)
	if tags == nil {
		tags = []string{}
	}
	return profileResponsePayload{
		ID:                profile.ProfileID,
		Handle:            profile.Handle,
		DisplayName:       profile.DisplayName,
		AvatarURL:         profile.AvatarURL,
		Bio:               profile.Bio,
		Role:              profile.Role.String(),
		Tags:              tags,
		Location:          profile.Location,
		AvailableForWork:  profile.AvailableForWork,
		Hiring:            profile.Hiring,
		SeekingInvestment: profile.SeekingInvestment,
		LinkedinURL:       profile.LinkedinURL,
		XURL:              profile.XURL,
		CalendlyURL:       profile.CalendlyURL,
		TelegramHandle:    profile.TelegramHandle,
		DiscordHandle:     profile.DiscordHandle,
		CreatedAt:         profile.CreatedAt,
		UpdatedAt:         profile.UpdatedAt,
	}
}

func (h *httpHandler) handleListProfiles(c *gin.Context) {
	query := profiles.DirectoryQuery{
		Text:              c.Query("q"),
		Role:              c.Query("role"),
		Tag:               c.Query("tag"),
		AvailableOnly:     queryFlag(c, "available"),
		HiringOnly:        queryFlag(c, "hiring"),
		SeekingInvestment: queryFlag(c, "investing"),
	}
	matches, err := h.profiles.Directory(c.Request.Context(), query)
	if err != nil {
		h.writeProfileError(c, "list", err)
		return
	}
	items := make([]profileResponsePayload, 0, len(matches))
	for _, profile := range matches {
		items = append(items, newProfileResponse(profile))
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (h *httpHandler) handleSearchProfiles(c *gin.Context) {
	if h.search == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "search_unavailable"})
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))
	result, err := h.search.Search(c.Request.Context(), search.Query{
		Text:          c.Query("q"),
		Role:          c.Query("role"),
		AvailableOnly: queryFlag(c, "available"),
		Limit:         limit,
	})
	if err != nil {
		h.logger.Error("profile search failed", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "search_failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": result.Hits, "estimatedTotal": result.EstimatedTotalHits})
}

func (h *httpHandler) handleGetOwnProfile(c *gin.Context) {
	profile, err := h.profiles.GetByOwner(c.Request.Context(), c.GetString(accountIDContextKey))
	if errors.Is(err, profiles.ErrProfileNotFound) {
		c.JSON(http.StatusOK, gin.H{"exists": false})
		return
	}
	if err != nil {
		h.writeProfileError(c, "get_own", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"exists": true, "profile": newProfileResponse(profile)})
}

func (h *httpHandler) handleGetProfileByHandle(c *gin.Context) {
	profile, err := h.profiles.GetByHandle(c.Request.Context(), c.Param("handle"))
	if err != nil {
		h.writeProfileError(c, "get_by_handle", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"item": newProfileResponse(profile)})
}

func (h *httpHandler) handleCreateProfile(c *gin.Context) {
	payload, ok := bindPayload(c)
	if !ok {
		return
	}
	profile, err := h.profiles.Create(c.Request.Context(), c.GetString(accountIDContextKey), payload)
	if err != nil {
		h.writeProfileError(c, "create", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"item": newProfileResponse(profile)})
}

func (h *httpHandler) handleUpdateProfile(c *gin.Context) {
	payload, ok := bindPayload(c)
	if !ok {
		return
	}
	profile, err := h.profiles.Update(c.Request.Context(), c.GetString(accountIDContextKey), payload)
	if err != nil {
		h.writeProfileError(c, "update", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"item": newProfileResponse(profile)})
}

func (h *httpHandler) handleUpsertProfile(c *gin.Context) {
	payload, ok := bindPayload(c)
	if !ok {
		return
	}
	profile, err := h.profiles.Save(c.Request.Context(), c.GetString(accountIDContextKey), payload)
	if err != nil {
		h.writeProfileError(c, "upsert", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"item": newProfileResponse(profile)})
}

func bindPayload(c *gin.Context) (profiles.Payload, bool) {
	var payload profiles.Payload
	if err := c.ShouldBindJSON(&payload); err != nil || payload == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return nil, false
	}
	return payload, true
}

func queryFlag(c *gin.Context, name string) bool {
	value := strings.ToLower(strings.TrimSpace(c.Query(name)))
	if value == "on" || value == "yes" {
		return true
	}
	parsed, err := strconv.ParseBool(value)
	return err == nil && parsed
}

func formatSeconds(duration time.Duration) string {
	seconds := int64(duration.Round(time.Second) / time.Second)
	if seconds < 1 {
		seconds = 1
	}
	return strconv.FormatInt(seconds, 10)
}
