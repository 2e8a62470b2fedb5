package cherry

import (
	"context"
	"crypto/rand"
	"crypto/sha512"
	"crypto/subtle"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"
	"golang.org/x/crypto/argon2"
)

const loggerContextKey contextKey = "logger"

var (
	argon2Time    uint32 = 1
	argon2Memory  uint32 = 64 * 1024
	argon2Threads uint8  = 4
	argon2KeyLen  uint32 = 32
)

type contextKey string

// shortenString reduces the size of the input string to a specified limit.
//
// Double newlines and bold markers are dropped first. If the string is
// still too long, it's truncated and a suffix is appended to indicate
// the limit was reached.
func shortenString(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	s = strings.ReplaceAll(s, "\n\n", "\n")
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	s = strings.ReplaceAll(s, "**", "")
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	suffix := "\n\n**(output limit reached)**"
	suffixChars := []rune(suffix)
	if limit-len(suffixChars) <= 0 {
		return strings.TrimSpace(string([]rune(s)[:limit]))
	}
	return strings.TrimSpace(
		string([]rune(s)[:limit-len(suffixChars)]) + suffix,
	)
}

// discordInteractionOptions returns a map of the interaction's top-level
// options, keyed by option name.
func discordInteractionOptions(
	i *discordgo.InteractionCreate,
) map[string]*discordgo.ApplicationCommandInteractionDataOption {
	options := i.ApplicationCommandData().Options
	optionMap := make(
		map[string]*discordgo.ApplicationCommandInteractionDataOption,
		len(options),
	)
	for _, option := range options {
		optionMap[option.Name] = option
	}
	return optionMap
}

// optionString returns the string value of the named option, or ""
func optionString(
	opts map[string]*discordgo.ApplicationCommandInteractionDataOption,
	name string,
) string {
	opt, ok := opts[name]
	if !ok || opt == nil {
		return ""
	}
	if s, ok := opt.Value.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", opt.Value)
}

// optionID returns the snowflake ID held by a user/channel/role option
func optionID(
	opts map[string]*discordgo.ApplicationCommandInteractionDataOption,
	name string,
) string {
	return optionString(opts, name)
}

// resolvedUser returns the user referenced by a user option, using the
// interaction's resolved data when it's present.
func resolvedUser(i *discordgo.InteractionCreate, userID string) *discordgo.User {
	if userID == "" {
		return nil
	}
	data := i.ApplicationCommandData()
	if data.Resolved != nil && data.Resolved.Users != nil {
		if u, ok := data.Resolved.Users[userID]; ok && u != nil {
			return u
		}
	}
	return &discordgo.User{ID: userID}
}

var discordGoLogLevels = map[int]slog.Level{
	discordgo.LogDebug:         slog.LevelDebug,
	discordgo.LogError:         slog.LevelError,
	discordgo.LogWarning:       slog.LevelWarn,
	discordgo.LogInformational: slog.LevelInfo,
}

func tlsConfig(certfile string, keyfile string, minVersion uint16) (
	*tls.Config,
	error,
) {
	cert, err := tls.LoadX509KeyPair(certfile, keyfile)
	if err != nil {
		return nil, err
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   minVersion,
		ClientAuth:   tls.NoClientCert,
	}, nil
}

// structToSlogValue converts a struct to a slog.Value, using the struct's
// JSON tag as the key for each field, if set.
// If the `log` tag is set, the value specified will override the
// field's actual value. Ex: `log:"REDACTED"` will cause "REDACTED" to
// be shown as the field's value.
func structToSlogValue(v any) slog.Value {
	typ := reflect.TypeOf(v)
	if typ == nil {
		return slog.AnyValue(nil)
	}
	val := reflect.ValueOf(v)

	if typ.Kind() == reflect.Ptr {
		if val.IsNil() {
			return slog.AnyValue(nil)
		}
		val = val.Elem()
		typ = typ.Elem()
	}

	if typ.Kind() != reflect.Struct {
		return slog.AnyValue(v)
	}

	var groupAttrs []slog.Attr

	for i := 0; i < typ.NumField(); i++ {
		field := typ.Field(i)
		jsonTag, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if jsonTag == "-" {
			continue
		}
		if jsonTag == "" {
			jsonTag = field.Name
		}

		fv := val.Field(i)
		if !fv.CanInterface() {
			continue
		}

		if logTag := field.Tag.Get("log"); logTag != "" {
			groupAttrs = append(
				groupAttrs,
				slog.Attr{Key: jsonTag, Value: slog.StringValue(logTag)},
			)
			continue
		}

		switch fv.Kind() {
		case reflect.Ptr:
			if fv.IsNil() {
				continue
			}
		case reflect.Map, reflect.Slice:
			if fv.IsNil() || fv.Len() == 0 {
				continue
			}
		case reflect.String:
			if fv.Len() == 0 {
				continue
			}
		}

		groupAttrs = append(
			groupAttrs,
			slog.Attr{Key: jsonTag, Value: structToSlogValue(fv.Interface())},
		)
	}
	return slog.GroupValue(groupAttrs...)
}

// WithLogger returns a new context with the given logger added.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	if logger == nil {
		logger = slog.Default()
	}
	return context.WithValue(ctx, loggerContextKey, logger)
}

// ContextLogger returns a logger from the given context if one
// is present, and a boolean indicating whether a logger was found.
func ContextLogger(ctx context.Context) (*slog.Logger, bool) {
	logger, ok := ctx.Value(loggerContextKey).(*slog.Logger)
	return logger, ok
}

func interactionLogAttrs(i discordgo.InteractionCreate) []any {
	logAttrs := []any{
		"id", i.ID,
		"type", i.Type.String(),
	}
	if i.ChannelID != "" {
		logAttrs = append(logAttrs, "channel_id", i.ChannelID)
	}
	if i.GuildID != "" {
		logAttrs = append(logAttrs, "guild_id", i.GuildID)
	}
	if u := getDiscordUser(&i); u != nil {
		logAttrs = append(logAttrs, "user_id", u.ID, "username", u.Username)
	}
	return logAttrs
}

func messageLogAttrs(m *discordgo.Message) []any {
	attrs := []any{
		"id", m.ID,
		"channel_id", m.ChannelID,
	}
	if m.GuildID != "" {
		attrs = append(attrs, "guild_id", m.GuildID)
	}
	if m.Author != nil {
		attrs = append(attrs, "author_id", m.Author.ID, "author", m.Author.Username)
	}
	return attrs
}

func derive64ByteKey(input string) []byte {
	hash := sha512.Sum512([]byte(input))
	return hash[:]
}

// HashPassword securely hashes a password using Argon2id
func HashPassword(password string) (string, error) {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}

	hash := argon2.IDKey(
		[]byte(password),
		salt,
		argon2Time,
		argon2Memory,
		argon2Threads,
		argon2KeyLen,
	)

	// Format: $argon2id$v=19$m=65536,t=1,p=4$<salt>$<hash>
	return fmt.Sprintf(
		"$argon2id$v=19$m=%d,t=%d,p=%d$%s$%s",
		argon2Memory,
		argon2Time,
		argon2Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	), nil
}

// VerifyPassword checks if the provided password matches the stored hash
func VerifyPassword(storedHash, password string) (bool, error) {
	parts := strings.Split(storedHash, "$")
	if len(parts) != 6 {
		return false, errors.New("invalid hash format")
	}

	var memory, argonTime, threads int
	if _, err := fmt.Sscanf(
		parts[3],
		"m=%d,t=%d,p=%d",
		&memory,
		&argonTime,
		&threads,
	); err != nil {
		return false, errors.New("invalid hash format")
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false, errors.New("invalid salt")
	}

	decodedHash, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return false, errors.New("invalid hash")
	}

	hashToCompare := argon2.IDKey(
		[]byte(password),
		salt,
		uint32(argonTime),
		uint32(memory),
		uint8(threads),
		uint32(len(decodedHash)),
	)

	return subtle.ConstantTimeCompare(decodedHash, hashToCompare) == 1, nil
}

func ptr[T any](v T) *T {
	return &v
}
