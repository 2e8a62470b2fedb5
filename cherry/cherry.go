package cherry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"os"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

var (
	// When building, set these like:
	// -ldflags "-X github.com/cheerawab/cherry0324/cherry.Version=$$(date +'%Y%m%d')"

	Version   = "dev"
	CommitSHA = "unknown"
	BuildTime = "unknown"
)

var (
	defaultLogWriter io.Writer = os.Stdout

	// setupCheckInterval is how often Run checks whether admin
	// credentials have been set, while setup is pending
	setupCheckInterval = 5 * time.Second

	shutdownAnnouncementInterval = 10 * time.Second
)

// SetLogWriter sets the writer all component loggers write to. It must
// be called before New.
func SetLogWriter(w io.Writer) {
	defaultLogWriter = w
}

// Cherry is the bot. It owns the discord session, the admin API, the
// database and document store, and every feature component built on them.
type Cherry struct {
	config *Config

	// gorm connection wrapper. Writes are serialized for SQLite.
	db DBI

	// backend for persisted documents (schedules, warnings, ...)
	store KeyValueStore

	logger *slog.Logger

	discord *Discord
	api     *API

	// only set when interactions are received by webhook
	discordWebhookServer *DiscordWebhookServer

	router        *InteractionRouter
	scheduler     *Scheduler
	deletions     *DeletionSchedule
	automod       *AutoModerationGate
	warnings      *WarningStore
	tickets       *TicketLifecycle
	ticketStore   *TicketStore
	queue         *ConversationQueue
	ai            *AIChat
	autoResponder *AutoResponder
	signIns       *SignInBook
	emoji         *EmojiFetcher

	// policy and persona are replaced wholesale by Reload
	policy  atomic.Pointer[ChannelPolicy]
	persona atomic.Pointer[Persona]

	rand RandSource

	// signalStop enables an explicit stop signal to be sent to the bot,
	// such as by the `/api/quit` endpoint
	signalStop chan struct{}

	// signalReady receives a value once Run has finished starting up
	signalReady chan struct{}

	// eventShutdown receives a value when shutdown finishes
	eventShutdown chan struct{}

	// prevents Run from executing concurrently
	runMu sync.Mutex

	// set while admin credentials haven't been configured. Run holds
	// after starting the API until they are.
	pendingSetup atomic.Bool

	// getInteractionHandlerFunc returns the InteractionHandler for an
	// incoming interaction, so command handling is the same for the
	// gateway and webhook
	getInteractionHandlerFunc func(
		ctx context.Context,
		i *discordgo.InteractionCreate,
	) InteractionHandler

	runtimeConfig *RuntimeConfig
	cfgMu         sync.RWMutex
}

// lockedRand uses the math/rand/v2 top-level functions, which are safe
// for concurrent use
type lockedRand struct{}

func (lockedRand) Float64() float64 { return rand.Float64() }
func (lockedRand) IntN(n int) int   { return rand.IntN(n) }

// New creates a Cherry from config. Nothing is opened or connected
// until Run.
func New(config *Config) (*Cherry, error) {
	var errs []error

	switch config.DatabaseType {
	case dbTypeSQLite, dbTypePostgres:
	default:
		errs = append(
			errs,
			errors.New("invalid database type (must be 'sqlite' or 'postgres')"),
		)
	}
	fillConfigDefaults(config)

	if config.HTTPClient == nil {
		config.HTTPClient = http.DefaultClient
	}

	c := &Cherry{
		config:        config,
		signalStop:    make(chan struct{}, 1),
		signalReady:   make(chan struct{}, 1),
		eventShutdown: make(chan struct{}, 1),
		rand:          lockedRand{},
	}
	// held until initRun has loaded the runtime config
	c.pendingSetup.Store(true)

	c.logger = slog.New(
		tint.NewHandler(
			defaultLogWriter, &tint.Options{
				Level:     config.LogLevel,
				AddSource: true,
			},
		),
	)
	slog.SetDefault(c.logger)

	config.Discord.httpClient = config.HTTPClient
	disc, err := newDiscord(config.Discord)
	if err != nil {
		errs = append(errs, err)
		disc = &Discord{config: config.Discord}
	}

	discordgo.Logger = discordgoLoggerFunc(
		context.Background(),
		tint.NewHandler(
			defaultLogWriter, &tint.Options{
				Level:     config.Discord.DiscordGoLogLevel,
				AddSource: true,
			},
		).WithAttrs([]slog.Attr{slog.String(loggerNameKey, "discordgo")}),
	)
	disc.logger = slog.New(
		tint.NewHandler(
			defaultLogWriter, &tint.Options{
				Level:     config.Discord.LogLevel,
				AddSource: true,
			},
		),
	).With(loggerNameKey, "discord")
	disc.c = c
	c.discord = disc

	scheduler, err := NewScheduler(config.Location(), c.logger)
	errs = append(errs, err)
	c.scheduler = scheduler
	c.queue = NewConversationQueue(c.logger)
	c.emoji = NewEmojiFetcher(config.HTTPClient)
	c.autoResponder = NewAutoResponder(config.ResponsesFile, config.AutoResponseChance, c.rand)
	c.policy.Store(NewChannelPolicy(nil, config.Guild.RestrictedChannelID))
	persona := DefaultPersona()
	c.persona.Store(&persona)

	api, err := newAPI(c, config.API)
	errs = append(errs, err)
	c.api = api

	return c, errors.Join(errs...)
}

// fillConfigDefaults replaces nil sections and level vars with defaults
func fillConfigDefaults(config *Config) {
	defaults := DefaultConfig()
	if config.Store == nil {
		config.Store = defaults.Store
	}
	if config.Guild == nil {
		config.Guild = defaults.Guild
	}
	if config.AI == nil {
		config.AI = defaults.AI
	}
	if config.Discord == nil {
		config.Discord = defaults.Discord
	}
	if config.API == nil {
		config.API = defaults.API
	}
	for _, lv := range []struct {
		target **slog.LevelVar
		def    *slog.LevelVar
	}{
		{&config.LogLevel, defaults.LogLevel},
		{&config.DatabaseLogLevel, defaults.DatabaseLogLevel},
		{&config.AI.LogLevel, defaults.AI.LogLevel},
		{&config.API.LogLevel, defaults.API.LogLevel},
		{&config.Discord.LogLevel, defaults.Discord.LogLevel},
		{&config.Discord.DiscordGoLogLevel, defaults.Discord.DiscordGoLogLevel},
		{&config.Discord.WebhookServer.LogLevel, defaults.Discord.WebhookServer.LogLevel},
	} {
		if *lv.target == nil {
			*lv.target = lv.def
		}
	}
}

func (c *Cherry) ValidateConfig() error {
	return structValidator.Struct(c.config)
}

// RuntimeConfig returns a copy of the current runtime configuration
func (c *Cherry) RuntimeConfig() RuntimeConfig {
	c.cfgMu.RLock()
	defer c.cfgMu.RUnlock()
	if c.runtimeConfig == nil {
		return DefaultRuntimeConfig()
	}
	return *c.runtimeConfig
}

// Policy returns the channel policy currently in effect
func (c *Cherry) Policy() *ChannelPolicy {
	return c.policy.Load()
}

// Persona returns the AI chat persona currently in effect
func (c *Cherry) Persona() Persona {
	if p := c.persona.Load(); p != nil {
		return *p
	}
	return DefaultPersona()
}

// Reload re-reads the channel policy, auto-responses and persona. A file
// that fails to load leaves its previous version in effect.
func (c *Cherry) Reload(ctx context.Context) error {
	var errs []error

	policy, err := LoadChannelPolicy(c.config.PolicyFile, c.config.Guild.RestrictedChannelID)
	if err != nil {
		errs = append(errs, err)
	} else {
		c.policy.Store(policy)
	}

	if err = c.autoResponder.Reload(); err != nil {
		errs = append(errs, err)
	}

	persona, err := LoadPersona(c.config.PersonaFile)
	if err != nil {
		errs = append(errs, err)
	} else {
		c.persona.Store(&persona)
	}

	c.logger.InfoContext(
		ctx,
		"reloaded configuration files",
		"policy_entries", c.Policy().Len(),
		"auto_response_rules", len(c.autoResponder.Rules()),
		"persona", c.Persona().Name,
		"errors", len(errs),
	)
	return errors.Join(errs...)
}

// RegisterSlashCommands overwrites the bot's slash commands with the
// command table
func (c *Cherry) RegisterSlashCommands(options ...discordgo.RequestOption) (
	[]*discordgo.ApplicationCommand,
	error,
) {
	if err := c.ensureSession(); err != nil {
		return nil, err
	}
	return c.discord.registerCommands(c.ApplicationCommands(), options...)
}

func (c *Cherry) ensureSession() error {
	if c.discord.session != nil {
		return nil
	}
	session, err := c.discord.newSession()
	if err != nil {
		return fmt.Errorf("error creating discord session: %w", err)
	}
	c.discord.session = session
	return nil
}

// Run starts the bot, blocking until ctx is canceled or a stop signal is
// received, then shuts down gracefully.
func (c *Cherry) Run(ctx context.Context) error {
	c.runMu.Lock()
	defer c.runMu.Unlock()

	logger := c.logger
	if err := c.ValidateConfig(); err != nil {
		logger.Error("invalid config", tint.Err(err))
		return err
	}

	ctx = WithLogger(ctx, logger)
	runtimeWG := &sync.WaitGroup{}

	logger.LogAttrs(ctx, slog.LevelInfo, "starting", slog.Any("config", c.config))

	// the 'runtime' context, which triggers a graceful shutdown when
	// canceled
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		select {
		case <-c.signalStop:
			logger.Warn("got stop signal, canceling")
			cancel()
		case <-ctx.Done():
		}
	}()

	go func() {
		httpErr := c.api.Serve(ctx)
		if httpErr != nil && !errors.Is(httpErr, http.ErrServerClosed) {
			logger.ErrorContext(ctx, "error serving api HTTP", tint.Err(httpErr))
		}
	}()

	startCtx, startCancel := context.WithTimeout(ctx, c.config.StartupTimeout)
	defer startCancel()

	initErr := make(chan error, 1)
	go func() {
		logger.Debug("initializing run...")
		initErr <- c.initRun(startCtx)
	}()

	select {
	case <-startCtx.Done():
		return errors.New("startup cancelled or timed out")
	case err := <-initErr:
		if err != nil {
			logger.ErrorContext(ctx, "init error", tint.Err(err))
			_ = c.api.httpServer.Close()
			return err
		}
		logger.InfoContext(ctx, "init complete")
	}

	if setupErr := c.waitOnSetup(ctx, logger, runtimeWG); setupErr != nil {
		return setupErr
	}
	if ctx.Err() != nil {
		return c.shutdown(ctx, runtimeWG)
	}

	if c.config.Discord.WebhookServer.Enabled {
		if err := c.startWebhookServer(ctx, runtimeWG); err != nil {
			return err
		}
	}

	if err := c.initDiscordSession(ctx, runtimeWG); err != nil {
		logger.ErrorContext(ctx, "error creating discord session", tint.Err(err))
		return err
	}

	logger.InfoContext(ctx, "connecting to discord")
	if err := c.discord.session.Open(); err != nil {
		logger.ErrorContext(ctx, "error connecting to discord!", tint.Err(err))
		return fmt.Errorf("%w: error connecting to discord: %w", ErrExternalService, err)
	}

	if c.config.Discord.RegisterCommands {
		if created, err := c.RegisterSlashCommands(); err != nil {
			logger.ErrorContext(ctx, "error registering commands", tint.Err(err))
		} else {
			logger.InfoContext(ctx, "registered commands", "count", len(created))
		}
	}

	c.deletions.Start(ctx)

	select {
	case c.signalReady <- struct{}{}:
	default:
	}
	logger.InfoContext(ctx, "ready")

	<-ctx.Done()
	return c.shutdown(ctx, runtimeWG)
}

// waitOnSetup blocks while admin credentials haven't been set
func (c *Cherry) waitOnSetup(
	ctx context.Context,
	logger *slog.Logger,
	runtimeWG *sync.WaitGroup,
) error {
	if !c.pendingSetup.Load() {
		return nil
	}

	logger.WarnContext(
		ctx,
		fmt.Sprintf("pending initial setup at: %s%s", c.config.API.Listen, apiPathSetup),
	)

	ticker := time.NewTicker(setupCheckInterval)
	defer ticker.Stop()
	for c.pendingSetup.Load() {
		select {
		case <-ctx.Done():
			logger.WarnContext(ctx, "context cancelled waiting on setup, exiting")
			return c.shutdown(ctx, runtimeWG)
		case <-ticker.C:
		}
	}
	logger.InfoContext(ctx, "admin credentials set, continuing startup")
	return nil
}

func (c *Cherry) startWebhookServer(ctx context.Context, runtimeWG *sync.WaitGroup) error {
	server, err := newWebhookServer(ctx, c, c.config.Discord.WebhookServer)
	if err != nil {
		return err
	}
	c.discordWebhookServer = server

	runtimeWG.Add(1)
	go func() {
		defer runtimeWG.Done()
		httpErr := server.Serve(ctx)
		if httpErr != nil && !errors.Is(httpErr, http.ErrServerClosed) {
			c.logger.ErrorContext(ctx, "error serving webhook HTTP", tint.Err(httpErr))
		}
	}()
	return nil
}

// initRun opens the database, loads (or creates) the runtime config and
// builds every component that depends on them
func (c *Cherry) initRun(ctx context.Context) error {
	if err := c.initDB(ctx); err != nil {
		return fmt.Errorf("error initializing database: %w", err)
	}

	var rc RuntimeConfig
	err := c.db.DB().WithContext(ctx).Last(&rc).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		rc = DefaultRuntimeConfig()
		if _, err = c.db.Create(ctx, &rc); err != nil {
			return fmt.Errorf("error creating config: %w", err)
		}
	case err != nil:
		return fmt.Errorf("error getting config: %w", err)
	}
	if err = structValidator.Struct(rc); err != nil {
		return fmt.Errorf("invalid runtime config: %w", err)
	}

	c.cfgMu.Lock()
	c.runtimeConfig = &rc
	c.cfgMu.Unlock()
	c.setRuntimeLevels(rc)
	c.pendingSetup.Store(rc.AdminUsername == "" || rc.AdminPassword == "")

	return c.initComponents(ctx)
}

// initComponents builds the document store and the features persisted
// in it, then loads their state concurrently
func (c *Cherry) initComponents(ctx context.Context) error {
	store, err := NewStore(c.config, c.db)
	if err != nil {
		return fmt.Errorf("error creating store: %w", err)
	}
	if pinger, ok := store.(interface{ Ping(ctx context.Context) error }); ok {
		if err = pinger.Ping(ctx); err != nil {
			return fmt.Errorf("%w: store unreachable: %w", ErrPersistence, err)
		}
	}
	c.store = store

	if err = c.ensureSession(); err != nil {
		return err
	}
	session := c.discord.session
	loc := c.config.Location()

	aiLogger := slog.New(
		tint.NewHandler(
			defaultLogWriter, &tint.Options{
				Level:     c.config.AI.LogLevel,
				AddSource: true,
			},
		),
	)

	c.automod = NewAutoModerationGate(store, session, c.logger)
	c.warnings = NewWarningStore(store, c.logger)
	c.deletions = NewDeletionSchedule(
		store,
		c.scheduler,
		func(_ context.Context, channelID string) error {
			_, e := session.ChannelDelete(channelID)
			if isDiscordNotFound(e) {
				return fmt.Errorf("%w: %w", ErrNotFound, e)
			}
			return e
		},
		loc,
		c.logger,
	)
	c.ai = newAIChat(c.config.AI, store, c.Persona, c.config.HTTPClient, aiLogger)
	c.signIns = NewSignInBook(store, c.config.ImagesDir, loc, c.rand, c.logger)
	c.ticketStore = NewTicketStore(c.db)
	c.tickets = NewTicketLifecycle(
		session,
		c.ticketStore,
		c.config.Guild,
		NewTranscriptRenderer(c.config.Guild.ArchiveHTML, c.config.Guild.ArchiveCompress),
		c.discord.BotUserID,
		c.logger,
	)
	c.router = NewInteractionRouter(c.commands(), c.Policy, c.logger)
	c.router.HandleComponentPrefix(ticketCustomIDPrefix, c.tickets.HandleComponent)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(
		func() error {
			c.automod.Load(gctx)
			return nil
		},
	)
	g.Go(
		func() error {
			c.ai.Load(gctx)
			return nil
		},
	)
	g.Go(
		func() error {
			if e := c.signIns.LoadImages(); e != nil {
				c.logger.WarnContext(gctx, "error loading sign-in images", tint.Err(e))
			}
			return nil
		},
	)
	g.Go(
		func() error {
			if e := c.Reload(gctx); e != nil {
				c.logger.WarnContext(gctx, "error loading configuration files", tint.Err(e))
			}
			return nil
		},
	)
	return g.Wait()
}

func (c *Cherry) initDB(ctx context.Context) error {
	handler := tint.NewHandler(
		defaultLogWriter, &tint.Options{
			Level:     c.config.DatabaseLogLevel,
			AddSource: true,
		},
	)
	gormLogger := newGORMLogger(handler, c.config.DatabaseSlowThreshold)
	db, err := getDB(c.config.DatabaseType, c.config.Database, gormLogger)
	if err != nil {
		return fmt.Errorf("error opening database: %w", err)
	}

	if c.config.DatabaseType == dbTypeSQLite {
		if err = configureSQLite(ctx, db); err != nil {
			return err
		}
	}

	c.logger.DebugContext(ctx, "migrating database...")
	if err = migrate(ctx, db); err != nil {
		c.logger.ErrorContext(ctx, "error migrating database", tint.Err(err))
		return fmt.Errorf("error migrating database: %w", err)
	}
	c.db = NewDatabase(db, c.logger, c.config.DatabaseType == dbTypePostgres)
	return nil
}

// initDiscordSession adds the gateway event handlers and sets the
// identify payload (intents and presence)
func (c *Cherry) initDiscordSession(ctx context.Context, runtimeWG *sync.WaitGroup) error {
	if err := c.ensureSession(); err != nil {
		return err
	}
	logger := c.discord.logger.With(loggerNameKey, "discord_session")
	ctx = WithLogger(ctx, logger)

	for _, h := range c.discord.discordgoRemoveHandlerFuncs {
		h()
	}

	rc := c.RuntimeConfig()
	status := presence(rc)
	c.discord.session.SetIdentify(
		discordgo.Identify{
			Intents: c.config.Discord.GatewayIntents,
			Presence: discordgo.GatewayStatusUpdate{
				Status: status.Status,
				Game:   firstActivity(status.Activities),
			},
		},
	)

	c.discord.discordgoRemoveHandlerFuncs = []func(){
		c.discord.session.AddHandler(c.discord.handlerConnect()),
		c.discord.session.AddHandler(c.discord.handlerDisconnect()),
		c.discord.session.AddHandler(c.discord.handlerReady()),
		c.discord.session.AddHandler(
			func(_ *discordgo.Session, i *discordgo.InteractionCreate) {
				handler := c.getInteractionHandlerFunc(ctx, i)
				runtimeWG.Add(1)
				go func() {
					defer runtimeWG.Done()
					c.handleInteraction(ctx, handler)
				}()
			},
		),
		c.discord.session.AddHandler(
			func(_ *discordgo.Session, m *discordgo.MessageCreate) {
				runtimeWG.Add(1)
				go func() {
					defer runtimeWG.Done()
					defer func() {
						if rc := recover(); rc != nil {
							c.handleRecover(ctx, rc)
						}
					}()
					c.handleDiscordMessage(ctx, m)
				}()
			},
		),
	}

	if c.getInteractionHandlerFunc == nil {
		c.getInteractionHandlerFunc = func(
			_ context.Context,
			i *discordgo.InteractionCreate,
		) InteractionHandler {
			return GatewayHandler{
				session:     c.discord.session,
				interaction: i,
				logger: c.discord.logger.With(
					slog.Group("interaction", interactionLogAttrs(*i)...),
				),
			}
		}
	}
	return nil
}

func firstActivity(activities []*discordgo.Activity) discordgo.Activity {
	if len(activities) == 0 || activities[0] == nil {
		return discordgo.Activity{}
	}
	return *activities[0]
}

// handleInteraction records the interaction and routes it. Interactions
// from bots are ignored.
func (c *Cherry) handleInteraction(ctx context.Context, handler InteractionHandler) {
	i := handler.GetInteraction()
	logger := handler.Logger()
	if logger == nil {
		logger = c.logger
	}
	ctx = WithLogger(ctx, logger)
	defer func() {
		if rc := recover(); rc != nil {
			c.handleRecover(ctx, rc)
		}
	}()

	wg := &sync.WaitGroup{}
	defer wg.Wait()
	if interactionLog, err := newInteractionLog(i, handler.InteractionReceiveMethod()); err != nil {
		logger.ErrorContext(ctx, "error marshaling interaction", tint.Err(err))
	} else if c.db != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, createErr := c.db.Create(context.WithoutCancel(ctx), interactionLog); createErr != nil {
				logger.ErrorContext(ctx, "error logging interaction", tint.Err(createErr))
			}
		}()
	}

	if i.Type != discordgo.InteractionPing {
		user := getDiscordUser(i)
		if user == nil {
			logger.WarnContext(ctx, "no user found in interaction")
			return
		}
		if user.Bot {
			logger.WarnContext(ctx, "user is bot, ignoring", "user_id", user.ID)
			return
		}
	}
	c.router.Route(ctx, handler)
}

func (*Cherry) handleRecover(ctx context.Context, rc any) {
	logger, ok := ContextLogger(ctx)
	if logger == nil || !ok {
		logger = slog.Default()
	}
	stackTrace := string(debug.Stack())
	if err, isErr := rc.(error); isErr {
		logger.ErrorContext(ctx, "recovered from panic", tint.Err(err), "stack_trace", stackTrace)
		return
	}
	logger.ErrorContext(ctx, "recovered from panic", "panic_arg", rc, "stack_trace", stackTrace)
}

// setRuntimeLevels applies the log levels from the runtime config
func (c *Cherry) setRuntimeLevels(state RuntimeConfig) {
	for _, lv := range []struct {
		v     *slog.LevelVar
		level DBLogLevel
	}{
		{c.config.LogLevel, state.LogLevel},
		{c.config.Discord.LogLevel, state.DiscordLogLevel},
		{c.config.AI.LogLevel, state.AILogLevel},
		{c.config.API.LogLevel, state.APILogLevel},
	} {
		if lv.v != nil && lv.level != "" {
			lv.v.Set(lv.level.Level())
		}
	}
}

// shutdown stops the servers, timers and discord session, waiting up
// to the shutdown timeout for in-flight handlers
func (c *Cherry) shutdown(ctx context.Context, runtimeWG *sync.WaitGroup) error {
	c.logger.WarnContext(ctx, "shutting down")
	defer func() {
		select {
		case c.eventShutdown <- struct{}{}:
		default:
		}
	}()

	shutdownStart := time.Now()
	shutdownTimeout := c.config.ShutdownTimeout
	if shutdownTimeout <= 0 {
		c.logger.Warn("immediate shutdown")
		c.forceClose()
		return nil
	}
	shutdownDeadline := shutdownStart.Add(shutdownTimeout)

	announcementTicker := time.NewTicker(shutdownAnnouncementInterval)
	defer announcementTicker.Stop()

	c.logger.InfoContext(
		ctx,
		"exiting!",
		"shutdown_timeout", shutdownTimeout,
		"shutdown_deadline", shutdownDeadline,
	)

	closeCtx, closeCancel := context.WithDeadline(context.Background(), shutdownDeadline)
	defer closeCancel()

	if c.deletions != nil {
		c.deletions.Stop()
	}
	c.scheduler.Stop()

	gracefulShutdownCh := make(chan struct{}, 1)
	go func() {
		runtimeWG.Wait()
		c.queue.Wait()
		c.logger.InfoContext(
			ctx,
			"finished handling in-flight events",
			"runtime_stop_duration", time.Since(shutdownStart),
		)

		stopWG := &sync.WaitGroup{}
		stopWG.Add(1)
		go func() {
			defer stopWG.Done()
			_ = c.api.httpServer.Shutdown(closeCtx)
			c.logger.InfoContext(ctx, "http server stopped")
		}()

		if c.discordWebhookServer != nil {
			stopWG.Add(1)
			go func() {
				defer stopWG.Done()
				_ = c.discordWebhookServer.httpServer.Shutdown(closeCtx)
				c.logger.InfoContext(ctx, "webhook http server stopped")
			}()
		}

		if c.discord.session != nil {
			stopWG.Add(1)
			go func() {
				defer stopWG.Done()
				_ = c.discord.session.Close()
				for _, h := range c.discord.discordgoRemoveHandlerFuncs {
					h()
				}
				c.discord.discordgoRemoveHandlerFuncs = nil
				c.logger.InfoContext(ctx, "discord session closed")
			}()
		}
		stopWG.Wait()
		gracefulShutdownCh <- struct{}{}
	}()

	for {
		select {
		case <-gracefulShutdownCh:
			c.logger.InfoContext(
				ctx,
				"shutdown complete",
				"shutdown_duration", time.Since(shutdownStart),
			)
			return nil
		case <-announcementTicker.C:
			c.logger.Warn(fmt.Sprintf("time until hard shutdown: %s", time.Until(shutdownDeadline)))
		case <-closeCtx.Done():
			c.logger.Warn("in-flight handlers did not stop in time, forcing close")
			c.forceClose()
			return errors.New("shutdown timed out")
		}
	}
}

func (c *Cherry) forceClose() {
	_ = c.api.httpServer.Close()
	if c.discordWebhookServer != nil {
		_ = c.discordWebhookServer.httpServer.Close()
	}
	if c.discord.session != nil {
		_ = c.discord.session.Close()
	}
}
