package cmd

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"reflect"
	"strings"
	"syscall"

	"github.com/cheerawab/cherry0324/cherry"
	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfg        = cherry.DefaultConfig()
	configFile string

	// closes the log file opened for cfg.LogFile, if any
	closeLogFile = func() error { return nil }
)

// legacyEnv maps config keys to the unprefixed environment variables
// older deployments set. The prefixed variable still takes precedence.
var legacyEnv = map[string]string{
	"discord.token":               "DISCORD_TOKEN",
	"guild.restricted_channel_id": "ALLOWED_CHANNEL_ID",
	"guild.support_role_ids":      "SUPPORT_ROLE_ID",
	"guild.archive_channel_id":    "ARCHIVE_CHANNEL_ID",
	"guild.self_intro_channel_id": "SELFINTRODUCTIONCHANNEL",
	"guild.self_intro_emoji":      "SELFINTRODUCTION_EMOJI",
	"ai.api_key":                  "GEMINI_API_KEY",
}

// levelKeys are the config keys holding a *slog.LevelVar
var levelKeys = []string{
	"log_level",
	"database_log_level",
	"discord.log_level",
	"discord.discordgo_log_level",
	"discord.webhook_server.log_level",
	"ai.log_level",
	"api.log_level",
}

// stringSliceKeys accept whitespace or comma separated lists from the
// environment
var stringSliceKeys = []string{
	"guild.support_role_ids",
	"api.cors.allow_origins",
	"api.cors.allow_methods",
	"api.cors.allow_headers",
	"api.cors.expose_headers",
}

var rootCmd = &cobra.Command{
	Use:   "cherry [flags]",
	Short: "Discord community bot with tickets, moderation and AI chat",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		err := viper.Unmarshal(
			cfg,
			viper.DecodeHook(
				mapstructure.ComposeDecodeHookFunc(
					mapstructure.StringToTimeDurationHookFunc(),
					mapstructure.StringToSliceHookFunc(","),
					LevelToStringHookFunc(),
				),
			),
		)
		if err != nil {
			log.Fatalln(err)
		}

		w, closer, err := cherry.OpenLogWriter(cfg.LogFile)
		if err != nil {
			log.Printf("error opening log file %q: %v", cfg.LogFile, err)
		}
		closeLogFile = closer
		cherry.SetLogWriter(w)
		log.SetOutput(w)
	},
}

func getLogLevel(level string) (slog.Level, error) {
	switch strings.ToUpper(level) {
	case slog.LevelDebug.String():
		return slog.LevelDebug, nil
	case slog.LevelInfo.String():
		return slog.LevelInfo, nil
	case slog.LevelWarn.String():
		return slog.LevelWarn, nil
	case slog.LevelError.String():
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level: %s", level)
	}
}

// LevelToStringHookFunc decodes level names ("DEBUG", "info", ...)
// into *slog.LevelVar fields
func LevelToStringHookFunc() mapstructure.DecodeHookFuncType {
	return func(
		f reflect.Type,
		t reflect.Type,
		data any,
	) (any, error) {
		if f.Kind() != reflect.String {
			return data, nil
		}
		if t.Kind() != reflect.Ptr {
			return data, nil
		}
		if t.Elem() != reflect.TypeOf(slog.LevelVar{}) {
			return data, nil
		}
		lvl, err := getLogLevel(data.(string))
		if err != nil {
			return nil, err
		}
		lvlVar := &slog.LevelVar{}
		lvlVar.Set(lvl)
		return lvlVar, nil
	}
}

// Execute runs the root command, canceling its context on SIGINT,
// SIGTERM or SIGHUP. A panic escaping a command is appended to the
// crash log in the data directory before exiting.
func Execute() {
	ctx, cancel := context.WithCancel(context.Background())
	rootCmd.SetContext(ctx)
	signals := make(chan os.Signal, 1)
	signal.Notify(
		signals,
		os.Interrupt,
		syscall.SIGHUP,
		syscall.SIGTERM,
		syscall.SIGINT,
	)
	defer func() {
		signal.Stop(signals)
		cancel()
		_ = closeLogFile()
	}()
	defer func() {
		if r := recover(); r != nil {
			path, err := cherry.WriteCrashReport(cfg.DataDir, r)
			if err != nil {
				log.Printf("panic: %v (error writing crash report: %v)", r, err)
			} else {
				log.Printf("panic: %v (crash report written to %s)", r, path)
			}
			os.Exit(2)
		}
	}()
	go func() {
		select {
		case <-signals:
			cancel()
		case <-ctx.Done():
			//
		}
	}()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func initConfig() {
	// drops overrides from a previous execution of rootCmd
	viper.Reset()

	if configFile == "" {
		if err := godotenv.Load(); err != nil {
			log.Println("No .env file found")
		}
	} else {
		log.Println("loading env from file", configFile)
		if err := godotenv.Load(configFile); err != nil {
			log.Printf("error loading %s: %v", configFile, err)
		}
	}

	viper.SetDefault("database", cherry.DefaultDatabase)
	viper.SetDefault("database_type", cherry.DefaultDatabaseType)
	viper.SetDefault("database_slow_threshold", cherry.DefaultDatabaseSlowThreshold)
	viper.SetDefault("database_log_level", cherry.DefaultDatabaseLogLevel.String())
	viper.SetDefault("data_dir", cherry.DefaultDataDir)
	viper.SetDefault("development", false)
	viper.SetDefault("log_level", cherry.DefaultLogLevel.String())
	viper.SetDefault("log_file", "")
	viper.SetDefault("timezone", cherry.DefaultTimezone)
	viper.SetDefault("startup_timeout", cherry.DefaultStartupTimeout)
	viper.SetDefault("shutdown_timeout", cherry.DefaultShutdownTimeout)

	// Configuration files
	viper.SetDefault("policy_file", cherry.DefaultPolicyFile)
	viper.SetDefault("responses_file", cherry.DefaultResponsesFile)
	viper.SetDefault("persona_file", cherry.DefaultPersonaFile)
	viper.SetDefault("images_dir", cherry.DefaultImagesDir)
	viper.SetDefault("auto_response_chance", cherry.DefaultAutoResponseChance)

	// Document store
	viper.SetDefault("store.backend", cherry.DefaultStoreBackend)
	viper.SetDefault("store.redis_addr", cherry.DefaultRedisAddr)
	viper.SetDefault("store.redis_password", "")
	viper.SetDefault("store.redis_db", 0)
	viper.SetDefault("store.redis_key_prefix", cherry.DefaultRedisKeyPrefix)

	// Guild channels and roles
	viper.SetDefault("guild.restricted_channel_id", "")
	viper.SetDefault("guild.support_role_ids", []string{})
	viper.SetDefault("guild.archive_channel_id", "")
	viper.SetDefault("guild.archive_html", false)
	viper.SetDefault("guild.archive_compress", false)
	viper.SetDefault("guild.ticket_parent_id", "")
	viper.SetDefault("guild.self_intro_channel_id", "")
	viper.SetDefault("guild.self_intro_emoji", cherry.DefaultSelfIntroEmoji)

	// AI chat
	viper.SetDefault("ai.api_key", "")
	viper.SetDefault("ai.base_url", cherry.DefaultAIBaseURL)
	viper.SetDefault("ai.model", cherry.DefaultAIModel)
	viper.SetDefault("ai.memory_turns", cherry.DefaultAIMemoryTurns)
	viper.SetDefault("ai.requests_per_minute", cherry.DefaultAIRequestsPerMinute)
	viper.SetDefault("ai.timeout", cherry.DefaultAITimeout)
	viper.SetDefault("ai.log_level", cherry.DefaultAILogLevel.String())

	// Discord config
	viper.SetDefault("discord.token", "")
	viper.SetDefault("discord.application_id", "")
	viper.SetDefault("discord.guild_id", "")
	viper.SetDefault("discord.register_commands", false)
	viper.SetDefault("discord.log_level", cherry.DefaultDiscordLogLevel.String())
	viper.SetDefault("discord.discordgo_log_level", cherry.DefaultDiscordgoLogLevel.String())
	viper.SetDefault("discord.gateway_intents", cherry.DefaultDiscordGatewayIntent)

	// Discord: Webhook server
	viper.SetDefault("discord.webhook_server.enabled", false)
	viper.SetDefault("discord.webhook_server.listen", cherry.DefaultDiscordWebhookServerListen)
	viper.SetDefault("discord.webhook_server.public_key", "")
	viper.SetDefault("discord.webhook_server.read_timeout", cherry.DefaultReadTimeout)
	viper.SetDefault("discord.webhook_server.read_header_timeout", cherry.DefaultReadHeaderTimeout)
	viper.SetDefault("discord.webhook_server.write_timeout", cherry.DefaultWriteTimeout)
	viper.SetDefault("discord.webhook_server.idle_timeout", cherry.DefaultIdleTimeout)
	viper.SetDefault("discord.webhook_server.log_level", cherry.DefaultDiscordWebhookLogLevel.String())
	viper.SetDefault(
		"discord.webhook_server.ssl.tls_min_version",
		cherry.DefaultDiscordWebhookServerTLSminVersion,
	)

	fatalErr := func(err error) {
		if err != nil {
			log.Fatalf("error: %v", err)
		}
	}

	fatalErr(viper.BindEnv("discord.webhook_server.ssl.cert"))
	fatalErr(viper.BindEnv("discord.webhook_server.ssl.key"))

	// API config
	viper.SetDefault("api.listen", cherry.DefaultAPIListen)
	viper.SetDefault("api.listen_network", "tcp")
	viper.SetDefault("api.secret", "")
	viper.SetDefault("api.session_max_age", cherry.DefaultAPISessionMaxAge)
	viper.SetDefault("api.read_timeout", cherry.DefaultReadTimeout)
	viper.SetDefault("api.read_header_timeout", cherry.DefaultReadHeaderTimeout)
	viper.SetDefault("api.write_timeout", cherry.DefaultWriteTimeout)
	viper.SetDefault("api.idle_timeout", cherry.DefaultIdleTimeout)
	viper.SetDefault("api.log_level", cherry.DefaultAPILogLevel.String())
	viper.SetDefault("api.ssl.tls_min_version", cherry.DefaultAPITLSMinVersion)

	fatalErr(viper.BindEnv("api.ssl.cert"))
	fatalErr(viper.BindEnv("api.ssl.key"))

	// API: CORS config
	viper.SetDefault("api.cors.allow_headers", cherry.DefaultCORSAllowHeaders)
	viper.SetDefault("api.cors.allow_methods", cherry.DefaultCORSAllowMethods)
	viper.SetDefault("api.cors.expose_headers", cherry.DefaultCORSExposeHeaders)
	viper.SetDefault("api.cors.allow_origins", []string{})
	viper.SetDefault("api.cors.max_age", cherry.DefaultCORSMaxAge)
	viper.SetDefault("api.cors.allow_credentials", cherry.DefaultAPICORSAllowCredentials)

	envPrefix := os.Getenv(cherry.EnvvarSetEnvPrefix)
	if envPrefix == "" {
		envPrefix = cherry.DefaultEnvPrefix
	}
	viper.SetEnvPrefix(envPrefix)

	replacer := strings.NewReplacer(".", "_")
	viper.SetEnvKeyReplacer(replacer)
	viper.AutomaticEnv()

	for key, legacy := range legacyEnv {
		prefixed := envPrefix + "_" + strings.ToUpper(replacer.Replace(key))
		fatalErr(viper.BindEnv(key, prefixed, legacy))
	}

	// Convert values to correct types
	for _, key := range stringSliceKeys {
		viper.Set(key, splitList(viper.GetStringSlice(key)))
	}

	for _, key := range levelKeys {
		logLevelVar, err := levelStringToLevelVar(viper.GetString(key))
		if err != nil {
			log.Fatalf("error parsing %s: %v", key, err)
		}
		viper.Set(key, logLevelVar)
	}
}

func splitList(values []string) []string {
	rv := make([]string, 0, len(values))
	for _, v := range values {
		for _, item := range strings.Split(v, ",") {
			if item = strings.TrimSpace(item); item != "" {
				rv = append(rv, item)
			}
		}
	}
	return rv
}

func levelStringToLevelVar(lvl string) (*slog.LevelVar, error) {
	level := &slog.LevelVar{}
	err := level.UnmarshalText([]byte(lvl))
	return level, err
}

//goland:noinspection GoLinter,GoLinter
func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(
		&configFile,
		"config",
		"",
		"Env file to load before reading the environment",
	)
}
