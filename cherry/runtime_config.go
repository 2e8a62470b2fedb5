package cherry

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"

	"github.com/bwmarrin/discordgo"
)

var (
	columnRuntimeConfigAdminUsername = "admin_username"
	columnRuntimeConfigAdminPassword = "admin_password"
)

// RuntimeConfig holds settings that can be changed while the bot is
// running (via the admin API) and persist across restarts.
//
//nolint:lll // struct tags can't be split
type RuntimeConfig struct {
	ModelUintID
	ModelUnixTime

	// AdminUsername for the admin API
	AdminUsername string `json:"admin_username" gorm:"type:string" log:"[redacted]"`

	// AdminPassword stores the hashed password for the admin user
	AdminPassword string `json:"admin_password" gorm:"type:string" log:"[redacted]"`

	// DiscordStatus is the bot's presence status (online, idle, dnd, invisible)
	DiscordStatus string `json:"discord_status" gorm:"type:string;default:dnd" binding:"oneof=online idle dnd invisible"`

	// DiscordActivity is shown as the bot's 'playing' activity
	DiscordActivity string `json:"discord_activity" gorm:"type:string" binding:"max=128"`

	// AutoResponsesEnabled toggles keyword auto-responses
	AutoResponsesEnabled bool `json:"auto_responses_enabled" gorm:"not null;default:true"`

	// AutoEmojiEnabled toggles the self-introduction channel reaction
	AutoEmojiEnabled bool `json:"auto_emoji_enabled" gorm:"not null;default:true"`

	// AIChatEnabled toggles replies in AI threads
	AIChatEnabled bool `json:"ai_chat_enabled" gorm:"not null;default:true"`

	LogLevel        DBLogLevel `gorm:"default:INFO;type:string;check:log_level in ('INFO', 'WARN', 'ERROR', 'DEBUG')" json:"log_level" binding:"omitempty,oneof=INFO WARN ERROR DEBUG"`
	DiscordLogLevel DBLogLevel `gorm:"default:INFO;type:string;check:discord_log_level in ('INFO', 'WARN', 'ERROR', 'DEBUG')" json:"discord_log_level" binding:"omitempty,oneof=INFO WARN ERROR DEBUG"`
	AILogLevel      DBLogLevel `gorm:"default:INFO;column:ai_log_level;type:string;check:ai_log_level in ('INFO', 'WARN', 'ERROR', 'DEBUG')" json:"ai_log_level" binding:"omitempty,oneof=INFO WARN ERROR DEBUG"`
	APILogLevel     DBLogLevel `gorm:"default:INFO;type:string;check:api_log_level in ('INFO', 'WARN', 'ERROR', 'DEBUG')" json:"api_log_level" binding:"omitempty,oneof=INFO WARN ERROR DEBUG"`
}

func (RuntimeConfig) TableName() string {
	return "config"
}

func DefaultRuntimeConfig() RuntimeConfig {
	return RuntimeConfig{
		DiscordStatus:        DefaultDiscordStatus,
		DiscordActivity:      DefaultDiscordActivity,
		AutoResponsesEnabled: true,
		AutoEmojiEnabled:     true,
		AIChatEnabled:        true,
		LogLevel:             DBLogLevel(slog.LevelInfo.String()),
		DiscordLogLevel:      DBLogLevel(slog.LevelInfo.String()),
		AILogLevel:           DBLogLevel(slog.LevelInfo.String()),
		APILogLevel:          DBLogLevel(slog.LevelInfo.String()),
	}
}

// RuntimeConfigUpdate is the PATCH payload for RuntimeConfig. Nil fields
// are left unchanged.
//
//nolint:lll // can't break tags
type RuntimeConfigUpdate struct {
	DiscordStatus        *string `json:"discord_status,omitempty" binding:"omitnil,oneof=online idle dnd invisible"`
	DiscordActivity      *string `json:"discord_activity,omitempty" binding:"omitnil,max=128"`
	AutoResponsesEnabled *bool   `json:"auto_responses_enabled,omitempty"`
	AutoEmojiEnabled     *bool   `json:"auto_emoji_enabled,omitempty"`
	AIChatEnabled        *bool   `json:"ai_chat_enabled,omitempty"`

	LogLevel        *DBLogLevel `json:"log_level,omitempty" binding:"omitnil,oneof=INFO WARN ERROR DEBUG"`
	DiscordLogLevel *DBLogLevel `json:"discord_log_level,omitempty" binding:"omitnil,oneof=INFO WARN ERROR DEBUG"`
	AILogLevel      *DBLogLevel `json:"ai_log_level,omitempty" binding:"omitnil,oneof=INFO WARN ERROR DEBUG"`
	APILogLevel     *DBLogLevel `json:"api_log_level,omitempty" binding:"omitnil,oneof=INFO WARN ERROR DEBUG"`
}

func validateRuntimeConfigUpdate(field reflect.Value) any {
	if value, ok := field.Interface().(RuntimeConfigUpdate); ok {
		if value.DiscordActivity != nil && strings.TrimSpace(*value.DiscordActivity) == "" &&
			*value.DiscordActivity != "" {
			return "discord_activity must not be blank"
		}
	}
	return nil
}

// updates returns the column/value pairs of the non-nil fields
func (u RuntimeConfigUpdate) updates() (map[string]any, error) {
	data, err := json.Marshal(u)
	if err != nil {
		return nil, err
	}
	var rv map[string]any
	if err = json.Unmarshal(data, &rv); err != nil {
		return nil, err
	}
	return rv, nil
}

// presenceChanged reports whether the update touches the bot's presence
func (u RuntimeConfigUpdate) presenceChanged(current RuntimeConfig) bool {
	return (u.DiscordStatus != nil && *u.DiscordStatus != current.DiscordStatus) ||
		(u.DiscordActivity != nil && *u.DiscordActivity != current.DiscordActivity)
}

// DBLogLevel is a slog level persisted as its string name
type DBLogLevel string

func (l *DBLogLevel) Scan(value any) error {
	switch v := value.(type) {
	case []byte:
		return l.parseLevel(string(v))
	case string:
		return l.parseLevel(v)
	default:
		return errors.New("invalid type for DBLogLevel")
	}
}

func (l DBLogLevel) Value() (driver.Value, error) {
	return l.String(), nil
}

func (DBLogLevel) GormDataType() string {
	return "string"
}

func (l *DBLogLevel) UnmarshalJSON(data []byte) error {
	var levelString string
	if err := json.Unmarshal(data, &levelString); err != nil {
		return err
	}
	return l.parseLevel(levelString)
}

func (l DBLogLevel) String() string {
	return string(l)
}

// Level returns the slog.Level, defaulting to INFO when unset
func (l DBLogLevel) Level() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(l)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

func (l *DBLogLevel) parseLevel(s string) error {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return fmt.Errorf("invalid log level %q: %w", s, err)
	}
	*l = DBLogLevel(lvl.String())
	return nil
}

// discordStatus validates a presence status string
func discordStatus(s string) discordgo.Status {
	switch st := discordgo.Status(s); st {
	case discordgo.StatusOnline, discordgo.StatusIdle, discordgo.StatusDoNotDisturb,
		discordgo.StatusInvisible:
		return st
	default:
		return discordgo.StatusOnline
	}
}
