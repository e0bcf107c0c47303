package profiles

import (
	"encoding/json"
	"fmt"
	"html"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

// Payload is an untyped profile submission as decoded from a request body.
type Payload map[string]any

// Canonical payload keys.
const (
	FieldHandle            = "handle"
	FieldDisplayName       = "displayName"
	FieldAvatarURL         = "avatarUrl"
	FieldBio               = "bio"
	FieldRole              = "role"
	FieldTags              = "tags"
	FieldLocation          = "location"
	FieldAvailableForWork  = "availableForWork"
	FieldHiring            = "hiring"
	FieldSeekingInvestment = "seekingInvestment"
	FieldLinkedinURL       = "linkedinUrl"
	FieldXURL              = "xUrl"
	FieldCalendlyURL       = "calendlyUrl"
	FieldTelegramHandle    = "telegramHandle"
	FieldDiscordHandle     = "discordHandle"
)

// fieldAliases lists the older payload keys still sent by existing clients, in lookup order.
var fieldAliases = map[string][]string{
	FieldHandle:            {"username"},
	FieldDisplayName:       {"fullName", "name"},
	FieldAvatarURL:         {"avatar"},
	FieldRole:              {"category"},
	FieldTags:              {"skills"},
	FieldAvailableForWork:  {"available"},
	FieldSeekingInvestment: {"investing"},
	FieldLinkedinURL:       {"linkedin"},
	FieldXURL:              {"x"},
	FieldCalendlyURL:       {"calendly"},
	FieldTelegramHandle:    {"telegram"},
	FieldDiscordHandle:     {"discord"},
}

var markupPolicy = bluemonday.StrictPolicy()

// maxSanitizePasses bounds how many layers of entity encoding plainText unwraps.
const maxSanitizePasses = 8

// reservedHandles collide with static routes under /profiles.
var reservedHandles = map[string]struct{}{
	"me":     {},
	"search": {},
	"stream": {},
}

// Normalize canonicalizes a raw payload. It reports the first validation failure, checking
// handle, then display name, then location.
func Normalize(payload Payload) (NormalizedProfile, error) {
	handle := payload.text(FieldHandle)
	if handle == "" {
		return NormalizedProfile{}, newValidationError(KindMissingHandle)
	}
	if !validHandle(handle) {
		return NormalizedProfile{}, newValidationError(KindInvalidHandle)
	}

	displayName := plainText(payload.text(FieldDisplayName))
	if displayName == "" {
		return NormalizedProfile{}, newValidationError(KindMissingName)
	}

	location := plainText(payload.text(FieldLocation))
	if location == "" {
		return NormalizedProfile{}, newValidationError(KindMissingLocation)
	}

	tagsValue, _ := payload.lookup(FieldTags)

	return NormalizedProfile{
		Handle:            handle,
		DisplayName:       displayName,
		AvatarURL:         optional(payload.text(FieldAvatarURL)),
		Bio:               optional(plainText(payload.text(FieldBio))),
		Role:              ResolveRole(payload.text(FieldRole)),
		Tags:              normalizeTags(tagsValue),
		Location:          location,
		AvailableForWork:  payload.flag(FieldAvailableForWork),
		Hiring:            payload.flag(FieldHiring),
		SeekingInvestment: payload.flag(FieldSeekingInvestment),
		LinkedinURL:       NormalizeURL(payload.text(FieldLinkedinURL)),
		XURL:              NormalizeURL(payload.text(FieldXURL)),
		CalendlyURL:       NormalizeURL(payload.text(FieldCalendlyURL)),
		TelegramHandle:    optional(payload.text(FieldTelegramHandle)),
		DiscordHandle:     optional(payload.text(FieldDiscordHandle)),
	}, nil
}

// NormalizeURL trims the value and prefixes https:// when no http(s) scheme is present.
// Empty input yields nil.
func NormalizeURL(raw string) *string {
	value := strings.TrimSpace(raw)
	if value == "" {
		return nil
	}
	lower := strings.ToLower(value)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		value = "https://" + value
	}
	return &value
}

// NormalizeTags accepts a list or a comma-separated string and returns at most 30 trimmed,
// non-empty entries in input order.
func NormalizeTags(value any) []string {
	return normalizeTags(value)
}

func normalizeTags(value any) []string {
	var candidates []string
	switch typed := value.(type) {
	case []string:
		candidates = typed
	case []any:
		candidates = make([]string, 0, len(typed))
		for _, element := range typed {
			candidates = append(candidates, stringify(element))
		}
	case string:
		candidates = strings.Split(typed, ",")
	}

	tags := make([]string, 0, len(candidates))
	for _, candidate := range candidates {
		tag := strings.TrimSpace(candidate)
		if tag == "" {
			continue
		}
		tags = append(tags, tag)
		if len(tags) == maxTags {
			break
		}
	}
	return tags
}

func (p Payload) lookup(field string) (any, bool) {
	if value, ok := p[field]; ok {
		return value, true
	}
	for _, alias := range fieldAliases[field] {
		if value, ok := p[alias]; ok {
			return value, true
		}
	}
	return nil, false
}

func (p Payload) text(field string) string {
	value, _ := p.lookup(field)
	return strings.TrimSpace(stringify(value))
}

func (p Payload) flag(field string) bool {
	value, _ := p.lookup(field)
	return truthy(value)
}

func stringify(value any) string {
	switch typed := value.(type) {
	case nil:
		return ""
	case string:
		return typed
	case bool:
		return strconv.FormatBool(typed)
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64)
	case json.Number:
		return typed.String()
	case fmt.Stringer:
		return typed.String()
	default:
		return fmt.Sprint(typed)
	}
}

// truthy reads a flag. Strings are false when blank or one of "0", "false", "off" or "no"
// (any case); every other non-empty string is true.
func truthy(value any) bool {
	switch typed := value.(type) {
	case nil:
		return false
	case bool:
		return typed
	case float64:
		return typed != 0
	case int:
		return typed != 0
	case json.Number:
		parsed, err := typed.Float64()
		return err != nil || parsed != 0
	case string:
		switch strings.ToLower(strings.TrimSpace(typed)) {
		case "", "0", "false", "off", "no":
			return false
		}
		return true
	default:
		return true
	}
}

// plainText strips markup, unwrapping entity-encoded markup until the value is stable.
func plainText(value string) string {
	current := value
	for pass := 0; pass < maxSanitizePasses; pass++ {
		next := strings.TrimSpace(html.UnescapeString(markupPolicy.Sanitize(current)))
		if next == current {
			return next
		}
		current = next
	}
	return strings.TrimSpace(markupPolicy.Sanitize(current))
}

// validHandle accepts 3 to 32 letters, digits, '_' or '-', excluding route words.
func validHandle(handle string) bool {
	if length := utf8.RuneCountInString(handle); length < minHandleLength || length > maxHandleLength {
		return false
	}
	for _, r := range handle {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' && r != '-' {
			return false
		}
	}
	_, reserved := reservedHandles[strings.ToLower(handle)]
	return !reserved
}

func optional(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
