package domain

import "time"

// Theme is the client UI theme preference.
type Theme string

// Supported themes.
const (
	ThemeLight  Theme = "light"
	ThemeDark   Theme = "dark"
	ThemeSystem Theme = "system"
)

// Settings contains the application's user-configurable options.
// Stored as a single key in Badger. Settings is a value type: every
// change produces a new value, nothing mutates a published one.
type Settings struct {
	Theme                Theme     `json:"theme" validate:"oneof=light dark system"`
	Language             string    `json:"language" validate:"bcp47_language_tag"`
	NotificationsEnabled bool      `json:"notifications_enabled"`
	PollIntervalSec      int       `json:"poll_interval_sec" validate:"gte=5,lte=3600"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// NewSettings creates settings with sensible defaults.
func NewSettings() Settings {
	return Settings{
		Theme:                ThemeLight,
		Language:             "en",
		NotificationsEnabled: true,
		PollIntervalSec:      60,
		UpdatedAt:            time.Now().UTC(),
	}
}

// Touch returns a copy with UpdatedAt set to now.
func (s Settings) Touch() Settings {
	s.UpdatedAt = time.Now().UTC()
	return s
}
