//nolint:lll // struct tags can't be split
package cherry

import (
	"crypto/tls"
	"github.com/bwmarrin/discordgo"
	"github.com/gin-contrib/cors"
	"log/slog"
	"net/http"
	"reflect"
	"time"
)

const (
	EnvvarSetEnvPrefix   = "CHERRY_ENV_PREFIX"
	DefaultEnvPrefix     = "CHERRY"
	DefaultDatabaseType  = "sqlite"
	DefaultDataDir       = "data"
	DefaultDatabase      = "data/cherry.sqlite3"
	DefaultStoreBackend  = storeBackendFile
	DefaultLogLevel      = slog.LevelInfo
	DefaultTimezone      = "UTC"
	DefaultPolicyFile    = "config/allowed.json"
	DefaultResponsesFile = "config/responses.json"
	DefaultPersonaFile   = "config/xihai.json"
	DefaultImagesDir     = "images"

	DefaultStartupTimeout  = 30 * time.Second
	DefaultShutdownTimeout = 60 * time.Second

	DefaultReadTimeout       = 5 * time.Second
	DefaultReadHeaderTimeout = 5 * time.Second
	DefaultWriteTimeout      = 10 * time.Second
	DefaultIdleTimeout       = 30 * time.Second

	DefaultDiscordWebhookServerListen        = "127.0.0.1:5001"
	DefaultDiscordWebhookServerTLSminVersion = tls.VersionTLS12
	DefaultDiscordGatewayIntent              = discordgo.IntentsAllWithoutPrivileged |
		discordgo.IntentMessageContent |
		discordgo.IntentGuildMembers
	DefaultDiscordWebhookLogLevel = slog.LevelInfo
	DefaultDiscordLogLevel        = slog.LevelInfo
	DefaultDiscordgoLogLevel      = slog.LevelWarn
	DefaultDiscordStatus          = string(discordgo.StatusDoNotDisturb)
	DefaultDiscordActivity        = "音度空間"

	DefaultSelfIntroEmoji     = "<:yyin39:1365321302369374208>"
	DefaultAutoResponseChance = 1.0

	DefaultAIBaseURL           = "https://generativelanguage.googleapis.com/v1beta/openai/"
	DefaultAIModel             = "gemini-1.5-pro"
	DefaultAIMemoryTurns       = 20
	DefaultAIRequestsPerMinute = 15
	DefaultAITimeout           = time.Minute
	DefaultAILogLevel          = slog.LevelInfo

	DefaultRedisAddr      = "localhost:6379"
	DefaultRedisKeyPrefix = "cherry:"

	DefaultAPIListen               = "127.0.0.1:5000"
	DefaultAPITLSMinVersion        = tls.VersionTLS12
	DefaultAPISessionMaxAge        = 6 * time.Hour
	DefaultAPILogLevel             = slog.LevelInfo
	DefaultAPICORSAllowCredentials = true

	DefaultDatabaseSlowThreshold = 200 * time.Millisecond
	DefaultDatabaseLogLevel      = slog.LevelWarn

	defaultListenNetwork    = "tcp"
	discordMaxMessageLength = 2000
)

type DiscordInteractionReceiveMethod string

var (
	discordInteractionReceiveMethodGateway DiscordInteractionReceiveMethod = "gateway"
	discordInteractionReceiveMethodWebhook DiscordInteractionReceiveMethod = "webhook"
)

var (
	DefaultCORSAllowMethods = []string{
		http.MethodGet,
		http.MethodPost,
		http.MethodPatch,
		http.MethodDelete,
		http.MethodOptions,
		http.MethodHead,
	}
	DefaultCORSAllowHeaders = []string{
		"Origin",
		"Content-Length",
		"Content-Type",
		"Accept",
		"Authorization",
		"X-Requested-With",
		"Cache-Control",
		"X-CSRF-Token",
		xRequestIDHeader,
	}
	DefaultCORSExposeHeaders = []string{
		"Content-Type",
		"Content-Length",
		xRequestIDHeader,
		"Location",
	}
	DefaultCORSMaxAge = 12 * time.Hour
)

type Config struct {
	// Database connection string, or SQLite file path
	Database string `yaml:"database" mapstructure:"database" json:"database" binding:"required"`

	// DatabaseType specifies the type of database, either 'sqlite' or 'postgres'
	DatabaseType string `yaml:"database_type" mapstructure:"database_type" json:"database_type" binding:"oneof=sqlite postgres"`

	// DatabaseLogLevel sets the log level for database operations
	DatabaseLogLevel *slog.LevelVar `yaml:"database_log_level" mapstructure:"database_log_level" json:"database_log_level"`

	// DatabaseSlowThreshold is the duration threshold for identifying slow database queries
	DatabaseSlowThreshold time.Duration `yaml:"database_slow_threshold" mapstructure:"database_slow_threshold" json:"database_slow_threshold"`

	// DataDir is where the 'file' store backend keeps its JSON documents,
	// and where crash reports are written
	DataDir string `yaml:"data_dir" mapstructure:"data_dir" json:"data_dir" binding:"required"`

	// Store selects the backend for persisted documents (schedules,
	// auto-ban config, warnings, AI thread registry, memory, sign-ins)
	// (validated by validateStoreConfig, which yields a message on failure)
	Store *StoreConfig `yaml:"store" mapstructure:"store" json:"store" binding:"isdefault"`

	// LogLevel is the base log level, for the default logger
	LogLevel *slog.LevelVar `yaml:"log_level" mapstructure:"log_level" json:"log_level"`

	// LogFile, if set, receives a copy of all log output
	LogFile string `yaml:"log_file" mapstructure:"log_file" json:"log_file"`

	// Timezone used to interpret scheduled deletion dates, the daily
	// reconcile and sign-in days
	Timezone string `yaml:"timezone" mapstructure:"timezone" json:"timezone" binding:"required,timezone"`

	// PolicyFile maps command names to channel restrictions (JSON with
	// comments, or YAML)
	PolicyFile string `yaml:"policy_file" mapstructure:"policy_file" json:"policy_file"`

	// ResponsesFile holds keyword auto-responses
	ResponsesFile string `yaml:"responses_file" mapstructure:"responses_file" json:"responses_file"`

	// PersonaFile holds the AI chat character profile
	PersonaFile string `yaml:"persona_file" mapstructure:"persona_file" json:"persona_file"`

	// ImagesDir holds the sign-in fortune images
	ImagesDir string `yaml:"images_dir" mapstructure:"images_dir" json:"images_dir"`

	// AutoResponseChance is the probability (0-1) that a keyword match
	// is answered
	AutoResponseChance float64 `yaml:"auto_response_chance" mapstructure:"auto_response_chance" json:"auto_response_chance" binding:"min=0,max=1"`

	// Discord configures the discord bot itself
	Discord *DiscordConfig `yaml:"discord" mapstructure:"discord" json:"discord"`

	// Guild holds the server-specific channel and role IDs
	Guild *GuildConfig `yaml:"guild" mapstructure:"guild" json:"guild"`

	// AI configures the chat completion backend used in AI threads
	AI *AIConfig `yaml:"ai" mapstructure:"ai" json:"ai"`

	// API configures the admin API server
	API *APIConfig `yaml:"api" mapstructure:"api" json:"api"`

	// StartupTimeout sets a limit on the amount of time the bot has to
	// initialize. If this is passed, the bot will abort startup.
	StartupTimeout time.Duration `yaml:"startup_timeout" mapstructure:"startup_timeout" json:"startup_timeout"`

	// ShutdownTimeout is the time to allow for a graceful shutdown.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout" json:"shutdown_timeout"`

	// Development relaxes cookie/CORS settings and enables pprof
	Development bool `yaml:"development" mapstructure:"development" json:"development"`

	HTTPClient *http.Client `mapstructure:"-" log:"[redacted]"`
}

func (c Config) LogValue() slog.Value {
	return structToSlogValue(c)
}

// Location returns the configured time zone, falling back to UTC
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// StoreConfig selects and configures the document store backend.
type StoreConfig struct {
	// Backend is one of 'file', 'database' or 'redis'
	Backend string `yaml:"backend" mapstructure:"backend" json:"backend" binding:"oneof=file database redis"`

	RedisAddr      string `yaml:"redis_addr" mapstructure:"redis_addr" json:"redis_addr" binding:"required_if=Backend redis"`
	RedisPassword  string `yaml:"redis_password" mapstructure:"redis_password" json:"redis_password" log:"[redacted]"`
	RedisDB        int    `yaml:"redis_db" mapstructure:"redis_db" json:"redis_db" binding:"min=0"`
	RedisKeyPrefix string `yaml:"redis_key_prefix" mapstructure:"redis_key_prefix" json:"redis_key_prefix"`
}

// GuildConfig holds the IDs of the server's special channels and roles.
type GuildConfig struct {
	// RestrictedChannelID is the channel for commands missing from the
	// policy file, or whose policy entry doesn't name a channel
	RestrictedChannelID string `yaml:"restricted_channel_id" mapstructure:"restricted_channel_id" json:"restricted_channel_id"`

	// SupportRoleIDs can see and answer tickets
	SupportRoleIDs []string `yaml:"support_role_ids" mapstructure:"support_role_ids" json:"support_role_ids"`

	// ArchiveChannelID receives ticket transcripts on deletion
	ArchiveChannelID string `yaml:"archive_channel_id" mapstructure:"archive_channel_id" json:"archive_channel_id"`

	// ArchiveHTML adds an HTML rendition of the transcript
	ArchiveHTML bool `yaml:"archive_html" mapstructure:"archive_html" json:"archive_html"`

	// ArchiveCompress gzips transcript attachments
	ArchiveCompress bool `yaml:"archive_compress" mapstructure:"archive_compress" json:"archive_compress"`

	// TicketParentID is an optional category channel new tickets are
	// created under
	TicketParentID string `yaml:"ticket_parent_id" mapstructure:"ticket_parent_id" json:"ticket_parent_id"`

	// SelfIntroChannelID is the self-introduction channel, where new
	// messages get SelfIntroEmoji as a reaction
	SelfIntroChannelID string `yaml:"self_intro_channel_id" mapstructure:"self_intro_channel_id" json:"self_intro_channel_id"`
	SelfIntroEmoji     string `yaml:"self_intro_emoji" mapstructure:"self_intro_emoji" json:"self_intro_emoji"`
}

// IsSupportRole reports whether roleID is one of the configured support roles
func (g GuildConfig) IsSupportRole(roleID string) bool {
	for _, r := range g.SupportRoleIDs {
		if r == roleID {
			return true
		}
	}
	return false
}

// DiscordConfig configures the discord bot itself.
type DiscordConfig struct {
	// Discord bot token (from the 'Bot' tab in the discord dev portal)
	Token string `yaml:"token" mapstructure:"token" json:"token" log:"[redacted]" binding:"required"`

	// Discord application ID (from the 'General Information' tab in the discord dev portal)
	ApplicationID string `yaml:"application_id" mapstructure:"application_id" json:"application_id" binding:"required"`

	// GuildID is the server this bot manages. Slash commands are
	// registered to this guild when set, globally otherwise.
	GuildID string `yaml:"guild_id" mapstructure:"guild_id" json:"guild_id"`

	// RegisterCommands overwrites the slash commands on startup
	RegisterCommands bool `yaml:"register_commands" mapstructure:"register_commands" json:"register_commands"`

	// Required when receiving webhook events rather than websockets
	WebhookServer DiscordWebhookServerConfig `yaml:"webhook_server" mapstructure:"webhook_server" json:"webhook_server"`

	// Base discord logging level
	LogLevel *slog.LevelVar `yaml:"log_level" mapstructure:"log_level" json:"log_level"`

	// Log level for the `discordgo` library's logger
	DiscordGoLogLevel *slog.LevelVar `yaml:"discordgo_log_level" mapstructure:"discordgo_log_level" json:"discordgo_log_level"`

	// Discord gateway intents. See: https://discord.com/developers/docs/topics/gateway#gateway-intents
	GatewayIntents discordgo.Intent `yaml:"gateway_intents" mapstructure:"gateway_intents" json:"gateway_intents"`

	httpClient *http.Client
}

// DiscordWebhookServerConfig represents the configuration for the Discord
// webhook server, used when interactions are delivered by HTTP POST rather
// than over the gateway.
type DiscordWebhookServerConfig struct {
	// Determines if the webhook server should be active.
	Enabled bool `yaml:"enabled" mapstructure:"enabled" json:"enabled"`

	// The address and port on which the server should listen (e.g., "127.0.0.1:5001").
	Listen string `yaml:"listen" mapstructure:"listen" json:"listen" binding:"required_if=Enabled true"`

	// Configuration for SSL/TLS.
	SSL SSLConfig `yaml:"ssl" mapstructure:"ssl" json:"ssl"`

	// The public key used for verifying Discord interaction POST requests.
	// In the Discord dev portal for your bot, this is under 'General Information'
	PublicKey string `yaml:"public_key" mapstructure:"public_key" json:"public_key" binding:"required_if=Enabled true"`

	// The logging level for the webhook server.
	LogLevel *slog.LevelVar `yaml:"log_level" mapstructure:"log_level" json:"log_level"`

	ReadTimeout       time.Duration `yaml:"read_timeout" mapstructure:"read_timeout" json:"read_timeout"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout" mapstructure:"read_header_timeout" json:"read_header_timeout"`
	WriteTimeout      time.Duration `yaml:"write_timeout" mapstructure:"write_timeout" json:"write_timeout"`
	IdleTimeout       time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout" json:"idle_timeout"`
}

// AIConfig configures the OpenAI-compatible chat completion endpoint
// used for AI thread conversations.
type AIConfig struct {
	// APIKey for the completion endpoint
	APIKey string `yaml:"api_key" mapstructure:"api_key" json:"api_key" log:"[redacted]"`

	// BaseURL of an OpenAI-compatible API
	BaseURL string `yaml:"base_url" mapstructure:"base_url" json:"base_url" binding:"omitempty,url"`

	// Model name passed with each completion request
	Model string `yaml:"model" mapstructure:"model" json:"model" binding:"required"`

	// MemoryTurns bounds how many past turns per thread are kept and
	// sent back as context. Oldest turns are dropped first.
	MemoryTurns int `yaml:"memory_turns" mapstructure:"memory_turns" json:"memory_turns" binding:"min=1"`

	// RequestsPerMinute limits completion calls across all threads
	RequestsPerMinute int `yaml:"requests_per_minute" mapstructure:"requests_per_minute" json:"requests_per_minute" binding:"min=1"`

	// Timeout per completion request
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout" json:"timeout"`

	LogLevel *slog.LevelVar `yaml:"log_level" mapstructure:"log_level" json:"log_level"`
}

// APIConfig configures the admin API server
type APIConfig struct {
	// The address and port on which the server should listen (e.g., "127.0.0.1:5000").
	Listen string `yaml:"listen" mapstructure:"listen" json:"listen" binding:"required"`

	// The network type for listening (e.g., "tcp", "tcp4", "tcp6", "unix").
	ListenNetwork string `yaml:"listen_network" mapstructure:"listen_network" json:"listen_network" binding:"oneof=tcp tcp4 tcp6 unix"`

	// Secret used for signing cookies
	Secret string `yaml:"secret" mapstructure:"secret" json:"secret" log:"[redacted]"`

	// Configuration for SSL/TLS. Served without TLS when no cert is set.
	SSL SSLConfig `yaml:"ssl" mapstructure:"ssl" json:"ssl"`

	// The logging level for the API server.
	LogLevel *slog.LevelVar `yaml:"log_level" mapstructure:"log_level" json:"log_level"`

	// Cross-origin configuration
	CORS CORSConfig `yaml:"cors" mapstructure:"cors" json:"cors"`

	ReadTimeout       time.Duration `yaml:"read_timeout" mapstructure:"read_timeout" json:"read_timeout" binding:"min=1s"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout" mapstructure:"read_header_timeout" json:"read_header_timeout"  binding:"min=1s"`
	WriteTimeout      time.Duration `yaml:"write_timeout" mapstructure:"write_timeout" json:"write_timeout"  binding:"min=1s"`
	IdleTimeout       time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout" json:"idle_timeout"  binding:"min=1s"`

	// Max age for session cookies
	SessionMaxAge time.Duration `yaml:"session_max_age" mapstructure:"session_max_age" json:"session_max_age"  binding:"min=10m,max=24h"`
}

// SSLConfig specifies cert paths and the TLS version to use
type SSLConfig struct {
	// Path to an SSL certificate
	Cert string `yaml:"cert" mapstructure:"cert" json:"cert"`

	// Path to an SSL cert key
	Key string `yaml:"key" mapstructure:"key" json:"key"`

	// Minimum TLS version
	TLSMinVersion uint16 `yaml:"tls_min_version" mapstructure:"tls_min_version" json:"tls_min_version"`
}

// CORSConfig specifies cross-origin resource sharing settings
type CORSConfig struct {
	AllowOrigins     []string      `yaml:"allow_origins" mapstructure:"allow_origins" json:"allow_origins"`
	AllowMethods     []string      `yaml:"allow_methods" mapstructure:"allow_methods" json:"allow_methods"`
	AllowHeaders     []string      `yaml:"allow_headers" mapstructure:"allow_headers" json:"allow_headers"`
	ExposeHeaders    []string      `yaml:"expose_headers" mapstructure:"expose_headers" json:"expose_headers"`
	AllowCredentials bool          `yaml:"allow_credentials" mapstructure:"allow_credentials" json:"allow_credentials"`
	MaxAge           time.Duration `yaml:"max_age" mapstructure:"max_age" json:"max_age"`
}

func (c CORSConfig) GINConfig() cors.Config {
	return cors.Config{
		AllowOrigins:     c.AllowOrigins,
		AllowMethods:     c.AllowMethods,
		AllowHeaders:     c.AllowHeaders,
		MaxAge:           c.MaxAge,
		ExposeHeaders:    c.ExposeHeaders,
		AllowCredentials: c.AllowCredentials,
	}
}

func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		AllowOrigins:     []string{},
		AllowMethods:     append([]string(nil), DefaultCORSAllowMethods...),
		AllowHeaders:     append([]string(nil), DefaultCORSAllowHeaders...),
		ExposeHeaders:    append([]string(nil), DefaultCORSExposeHeaders...),
		MaxAge:           DefaultCORSMaxAge,
		AllowCredentials: DefaultAPICORSAllowCredentials,
	}
}

func validateStoreConfig(field reflect.Value) any {
	if value, ok := field.Interface().(StoreConfig); ok {
		switch value.Backend {
		case storeBackendFile, storeBackendDatabase:
		case storeBackendRedis:
			if value.RedisAddr == "" {
				return "redis_addr is required for the redis backend"
			}
		default:
			return "backend must be one of: file, database, redis"
		}
	}
	return nil
}

func newLevelVar(level slog.Level) *slog.LevelVar {
	lvl := &slog.LevelVar{}
	lvl.Set(level)
	return lvl
}

// DefaultConfig returns a Config with all default settings populated
func DefaultConfig() *Config {
	return &Config{
		DatabaseType:          DefaultDatabaseType,
		Database:              DefaultDatabase,
		DatabaseLogLevel:      newLevelVar(DefaultDatabaseLogLevel),
		DatabaseSlowThreshold: DefaultDatabaseSlowThreshold,
		DataDir:               DefaultDataDir,
		LogLevel:              newLevelVar(DefaultLogLevel),
		Timezone:              DefaultTimezone,
		PolicyFile:            DefaultPolicyFile,
		ResponsesFile:         DefaultResponsesFile,
		PersonaFile:           DefaultPersonaFile,
		ImagesDir:             DefaultImagesDir,
		AutoResponseChance:    DefaultAutoResponseChance,
		StartupTimeout:        DefaultStartupTimeout,
		ShutdownTimeout:       DefaultShutdownTimeout,
		Store: &StoreConfig{
			Backend:        DefaultStoreBackend,
			RedisAddr:      DefaultRedisAddr,
			RedisKeyPrefix: DefaultRedisKeyPrefix,
		},
		Guild: &GuildConfig{
			SelfIntroEmoji: DefaultSelfIntroEmoji,
		},
		AI: &AIConfig{
			BaseURL:           DefaultAIBaseURL,
			Model:             DefaultAIModel,
			MemoryTurns:       DefaultAIMemoryTurns,
			RequestsPerMinute: DefaultAIRequestsPerMinute,
			Timeout:           DefaultAITimeout,
			LogLevel:          newLevelVar(DefaultAILogLevel),
		},
		Discord: &DiscordConfig{
			WebhookServer: DiscordWebhookServerConfig{
				Enabled: false,
				Listen:  DefaultDiscordWebhookServerListen,
				SSL: SSLConfig{
					TLSMinVersion: DefaultDiscordWebhookServerTLSminVersion,
				},
				LogLevel:          newLevelVar(DefaultDiscordWebhookLogLevel),
				ReadHeaderTimeout: DefaultReadHeaderTimeout,
				ReadTimeout:       DefaultReadTimeout,
				WriteTimeout:      DefaultWriteTimeout,
				IdleTimeout:       DefaultIdleTimeout,
			},
			GatewayIntents:    DefaultDiscordGatewayIntent,
			LogLevel:          newLevelVar(DefaultDiscordLogLevel),
			DiscordGoLogLevel: newLevelVar(DefaultDiscordgoLogLevel),
		},
		API: &APIConfig{
			Listen:        DefaultAPIListen,
			ListenNetwork: defaultListenNetwork,
			SSL: SSLConfig{
				TLSMinVersion: DefaultAPITLSMinVersion,
			},
			LogLevel:          newLevelVar(DefaultAPILogLevel),
			ReadHeaderTimeout: DefaultReadHeaderTimeout,
			ReadTimeout:       DefaultReadTimeout,
			WriteTimeout:      DefaultWriteTimeout,
			IdleTimeout:       DefaultIdleTimeout,
			SessionMaxAge:     DefaultAPISessionMaxAge,
			CORS:              DefaultCORSConfig(),
		},
	}
}
