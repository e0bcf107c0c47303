package profiles

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const (
	minHandleLength = 3
	maxHandleLength = 32
	maxTags         = 30
)

// Profile is the stored directory record; exactly one exists per owner.
type Profile struct {
	ProfileID         string    `gorm:"column:profile_id;primaryKey;size:64;not null"`
	OwnerID           string    `gorm:"column:owner_id;size:190;not null;uniqueIndex:idx_profiles_owner"`
	Handle            string    `gorm:"column:handle;size:64;not null;uniqueIndex:idx_profiles_handle"`
	DisplayName       string    `gorm:"column:display_name;size:320;not null"`
	AvatarURL         *string   `gorm:"column:avatar_url;size:1024"`
	Bio               *string   `gorm:"column:bio;type:text"`
	Role              Role      `gorm:"column:role;size:32;not null"`
	Tags              TagList   `gorm:"column:tags;type:text;not null"`
	Location          string    `gorm:"column:location;size:320;not null"`
	AvailableForWork  bool      `gorm:"column:available_for_work;not null;default:false"`
	Hiring            bool      `gorm:"column:hiring;not null;default:false"`
	SeekingInvestment bool      `gorm:"column:seeking_investment;not null;default:false"`
	LinkedinURL       *string   `gorm:"column:linkedin_url;size:1024"`
	XURL              *string   `gorm:"column:x_url;size:1024"`
	CalendlyURL       *string   `gorm:"column:calendly_url;size:1024"`
	TelegramHandle    *string   `gorm:"column:telegram_handle;size:190"`
	DiscordHandle     *string   `gorm:"column:discord_handle;size:190"`
	CreatedAt         time.Time `gorm:"column:created_at;not null;autoCreateTime:false;index:idx_profiles_created"`
	UpdatedAt         time.Time `gorm:"column:updated_at;not null;autoUpdateTime:false"`
}

// TableName provides the explicit table binding for GORM.
func (Profile) TableName() string {
	return "profiles"
}

// NormalizedProfile is a canonical, validated submission ready for storage. Absent optional
// fields are nil.
type NormalizedProfile struct {
	Handle            string
	DisplayName       string
	AvatarURL         *string
	Bio               *string
	Role              Role
	Tags              []string
	Location          string
	AvailableForWork  bool
	Hiring            bool
	SeekingInvestment bool
	LinkedinURL       *string
	XURL              *string
	CalendlyURL       *string
	TelegramHandle    *string
	DiscordHandle     *string
}

// apply overwrites every mutable field of the stored profile.
func (n NormalizedProfile) apply(profile *Profile) {
	profile.Handle = n.Handle
	profile.DisplayName = n.DisplayName
	profile.AvatarURL = n.AvatarURL
	profile.Bio = n.Bio
	profile.Role = n.Role
	profile.Tags = TagList(append([]string{}, n.Tags...))
	profile.Location = n.Location
	profile.AvailableForWork = n.AvailableForWork
	profile.Hiring = n.Hiring
	profile.SeekingInvestment = n.SeekingInvestment
	profile.LinkedinURL = n.LinkedinURL
	profile.XURL = n.XURL
	profile.CalendlyURL = n.CalendlyURL
	profile.TelegramHandle = n.TelegramHandle
	profile.DiscordHandle = n.DiscordHandle
}

// mutableColumns lists the columns replaced by an upsert.
var mutableColumns = []string{
	"handle",
	"display_name",
	"avatar_url",
	"bio",
	"role",
	"tags",
	"location",
	"available_for_work",
	"hiring",
	"seeking_investment",
	"linkedin_url",
	"x_url",
	"calendly_url",
	"telegram_handle",
	"discord_handle",
	"updated_at",
}

// TagList stores tags as a JSON array. Scanning also accepts a legacy comma-separated value and
// always yields the normalized list.
type TagList []string

// Value implements driver.Valuer.
func (t TagList) Value() (driver.Value, error) {
	if t == nil {
		return "[]", nil
	}
	encoded, err := json.Marshal([]string(t))
	if err != nil {
		return nil, err
	}
	return string(encoded), nil
}

// Scan implements sql.Scanner.
func (t *TagList) Scan(src any) error {
	var raw string
	switch value := src.(type) {
	case nil:
		*t = TagList{}
		return nil
	case string:
		raw = value
	case []byte:
		raw = string(value)
	default:
		return fmt.Errorf("profiles: unsupported tag column type %T", src)
	}

	trimmed := strings.TrimSpace(raw)
	if strings.HasPrefix(trimmed, "[") {
		var decoded []any
		if err := json.Unmarshal([]byte(trimmed), &decoded); err == nil {
			*t = TagList(normalizeTags(decoded))
			return nil
		}
	}
	*t = TagList(normalizeTags(raw))
	return nil
}
