package cherry

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"reflect"
	"time"

	"github.com/gin-contrib/cors"
	ginPprof "github.com/gin-contrib/pprof"
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/securecookie"
	gsessions "github.com/gorilla/sessions"
	"github.com/lmittmann/tint"
	"golang.org/x/time/rate"
	"gorm.io/gorm"
)

const (
	pprofPrefix             = "/debug"
	apiPrefix               = "/api"
	apiPathQuit             = "/quit"
	apiPathLogin            = "/login"
	apiPathLogout           = "/logout"
	apiPathRegisterCommands = "/discord/register_commands"
	apiPathLoggedIn         = "/logged_in"
	apiHealthCheck          = "/healthz"
	apiPathConfig           = "/config"
	apiPathReload           = "/reload"
	apiPathSchedule         = "/schedule"
	apiPathScheduleChannel  = "/schedule/:channel_id"
	apiPathTickets          = "/tickets"
	apiPathUserWarnings     = "/warnings/:user_id"
	apiPathSetup            = "/setup"
	apiPathSetupStatus      = "/setup/status"
)

const (
	xRequestIDHeader = "X-Request-ID"
	sessionVarName   = "user"
	sessionVarField  = "username"
)

var structValidator = validator.New()

// API is the admin HTTP server. Everything under /api requires a
// logged-in session, and is unavailable until admin credentials exist.
type API struct {
	config              *APIConfig
	development         bool
	httpServer          *http.Server
	listener            net.Listener
	engine              *gin.Engine
	store               CookieStore
	loginRequestLimiter *rate.Limiter
	logger              *slog.Logger

	handlers *APIHandlers
}

func newAPI(c *Cherry, config *APIConfig) (*API, error) {
	logger := slog.New(
		tint.NewHandler(
			defaultLogWriter, &tint.Options{
				Level:     config.LogLevel,
				AddSource: true,
			},
		),
	).With(loggerNameKey, "api")

	if c.config.Development {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	api := &API{
		config:              config,
		development:         c.config.Development,
		engine:              r,
		loginRequestLimiter: rate.NewLimiter(rate.Limit(1), 1),
		logger:              logger,
	}
	handlers := NewAPIHandlers(c, config, logger)
	api.handlers = handlers
	api.store = handlers.store

	httpServer := &http.Server{
		Addr:              config.Listen,
		Handler:           r,
		WriteTimeout:      config.WriteTimeout,
		IdleTimeout:       config.IdleTimeout,
		ReadTimeout:       config.ReadTimeout,
		ReadHeaderTimeout: config.ReadHeaderTimeout,
	}
	if config.SSL.Cert != "" {
		tlsCfg, err := tlsConfig(config.SSL.Cert, config.SSL.Key, config.SSL.TLSMinVersion)
		if err != nil {
			return nil, fmt.Errorf("error loading SSL certs: %w", err)
		}
		httpServer.TLSConfig = tlsCfg
	}
	api.httpServer = httpServer

	corsConfig := config.CORS.GINConfig()
	if len(corsConfig.AllowOrigins) == 0 {
		if c.config.Development {
			corsConfig.AllowOrigins = []string{"*"}
			corsConfig.AllowCredentials = false
		} else {
			corsConfig.AllowOrigins = []string{"http://" + config.Listen}
		}
	}

	if !c.config.Development {
		r.Use(gin.Recovery())
	}
	r.Use(
		requestIDMiddleware(),
		ginLoggingMiddleware(),
		cors.New(corsConfig),
		sessions.Sessions(sessionVarName, handlers.store),
	)

	r.POST(apiPathLogin, handlers.loginHandler(api.loginRequestLimiter))
	r.GET(apiHealthCheck, handlers.healthCheck)
	r.POST(apiPathLogout, handlers.logoutHandler)
	r.POST(apiPathSetup, handlers.adminSetup)
	r.GET(apiPathSetupStatus, handlers.setupStatus)

	if c.config.Development {
		ginPprof.Register(r, pprofPrefix)
	}

	protected := r.Group(apiPrefix)
	protected.Use(authMiddleware(c, handlers.store))

	protected.GET(apiPathLoggedIn, handlers.loggedIn)
	protected.GET(apiPathConfig, handlers.getConfig)
	protected.PATCH(apiPathConfig, handlers.updateRuntimeConfig)
	protected.POST(apiPathReload, handlers.reload)
	protected.GET(apiPathSchedule, handlers.getSchedule)
	protected.DELETE(apiPathScheduleChannel, handlers.cancelSchedule)
	protected.GET(apiPathTickets, handlers.getTickets)
	protected.GET(apiPathUserWarnings, handlers.getWarnings)
	protected.POST(apiPathRegisterCommands, handlers.discordRegisterCommands)
	protected.POST(apiPathQuit, handlers.botQuit)

	return api, nil
}

// Serve listens on the configured address until the server is shut down.
// TLS is used when a certificate is configured.
func (a *API) Serve(ctx context.Context) error {
	if a.listener == nil {
		listenCfg := &net.ListenConfig{}
		ln, err := listenCfg.Listen(ctx, a.config.ListenNetwork, a.config.Listen)
		if err != nil {
			return fmt.Errorf("error listening on %s: %w", a.config.Listen, err)
		}
		if a.httpServer.TLSConfig != nil {
			ln = tls.NewListener(ln, a.httpServer.TLSConfig)
		} else {
			a.logger.WarnContext(ctx, "starting api server without TLS")
		}
		a.listener = ln
	}
	return a.httpServer.Serve(a.listener)
}

type CookieStore interface {
	sessions.Store
}

func NewCookieStore(keyPairs ...[]byte) CookieStore {
	return &cookieStore{gsessions.NewCookieStore(keyPairs...)}
}

type cookieStore struct {
	*gsessions.CookieStore
}

func (c *cookieStore) Options(options sessions.Options) {
	c.CookieStore.Options = options.ToGorillaOptions()
}

// APIHandlers contains the handlers for the admin API endpoints
type APIHandlers struct {
	c           *Cherry
	logger      *slog.Logger
	store       CookieStore
	cookieOpts  sessions.Options
	development bool
}

// NewAPIHandlers sets up the cookie session store. Without a configured
// secret, a random key is generated, so sessions end on restart.
func NewAPIHandlers(c *Cherry, config *APIConfig, logger *slog.Logger) *APIHandlers {
	var secretKey []byte
	switch sk := config.Secret; {
	case sk == "":
		logger.Warn(
			"api secret not set, generating random secret " +
				"(sessions will not persist across restarts)",
		)
		secretKey = securecookie.GenerateRandomKey(64)
	default:
		secretKey = derive64ByteKey(sk)
	}

	sameSite := http.SameSiteStrictMode
	if c.config.Development {
		sameSite = http.SameSiteLaxMode
	}
	opts := sessions.Options{
		Path:     "/",
		HttpOnly: true,
		Secure:   config.SSL.Cert != "",
		MaxAge:   int(config.SessionMaxAge.Seconds()),
		SameSite: sameSite,
	}
	store := NewCookieStore(secretKey)
	store.Options(opts)
	return &APIHandlers{
		c:           c,
		logger:      logger,
		store:       store,
		cookieOpts:  opts,
		development: c.config.Development,
	}
}

func (h *APIHandlers) setupStatus(c *gin.Context) {
	c.JSON(http.StatusOK, setupResponse{Required: h.c.pendingSetup.Load()})
}

// adminSetup sets the admin credentials. Only allowed while setup is
// pending.
func (h *APIHandlers) adminSetup(c *gin.Context) {
	h.c.cfgMu.Lock()
	defer h.c.cfgMu.Unlock()

	if !h.c.pendingSetup.Load() {
		c.JSON(http.StatusForbidden, httpError{Error: "Forbidden"})
		return
	}
	if h.c.runtimeConfig == nil || h.c.db == nil {
		c.JSON(http.StatusServiceUnavailable, httpError{Error: "still starting up, try again shortly"})
		return
	}

	logger := ginContextLogger(c)
	logger.Info("first time admin setup")

	var payload adminSetupPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		logger.Error("bad payload", tint.Err(err))
		c.JSON(http.StatusBadRequest, httpError{Error: err.Error()})
		return
	}

	password, err := HashPassword(payload.Password)
	if err != nil {
		logger.Error("error hashing password", tint.Err(err))
		ginReplyError(c, "error setting admin credentials")
		return
	}

	current := h.c.runtimeConfig
	if _, err = h.c.db.Updates(
		c,
		current,
		map[string]any{
			columnRuntimeConfigAdminUsername: payload.Username,
			columnRuntimeConfigAdminPassword: password,
		},
	); err != nil {
		logger.Error("error updating admin credentials", tint.Err(err))
		ginReplyError(c, "error updating admin credentials")
		return
	}
	current.AdminUsername = payload.Username
	current.AdminPassword = password
	h.c.pendingSetup.Store(false)
	c.JSON(http.StatusCreated, httpReply{Message: "admin credentials set"})
}

// loginHandler checks the credentials against the stored admin
// credentials and starts a session. Attempts are rate limited.
func (h *APIHandlers) loginHandler(limiter *rate.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		logger := ginContextLogger(c)
		if !limiter.Allow() {
			logger.Warn("login rate limited")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, httpError{Error: "too many requests"})
			return
		}

		var login userLogin
		if err := c.ShouldBindJSON(&login); err != nil {
			c.JSON(http.StatusBadRequest, httpError{Error: err.Error()})
			return
		}

		rc := h.c.RuntimeConfig()
		if rc.AdminUsername == "" || rc.AdminPassword == "" {
			logger.Warn("admin username and password not set")
			c.JSON(http.StatusUnauthorized, httpError{Error: "unauthorized"})
			return
		}
		if login.Username != rc.AdminUsername {
			logger.Warn("admin username incorrect")
			c.JSON(http.StatusUnauthorized, httpError{Error: "unauthorized"})
			return
		}
		valid, err := VerifyPassword(rc.AdminPassword, login.Password)
		if err != nil {
			logger.Error("error verifying password", tint.Err(err))
			ginReplyError(c, "internal server error")
			return
		}
		if !valid {
			logger.Warn("invalid login attempt", "username", login.Username)
			c.JSON(http.StatusUnauthorized, httpError{Error: "unauthorized"})
			return
		}

		session := sessions.Default(c)
		session.Options(h.cookieOpts)
		session.Set(sessionVarField, login.Username)
		if err = session.Save(); err != nil {
			logger.Error("error saving session", tint.Err(err))
			ginReplyError(c, "internal server error")
			return
		}
		logger.Info("saved user session", "username", login.Username)
		c.JSON(http.StatusOK, loggedInResponse{Username: login.Username})
	}
}

func (h *APIHandlers) healthCheck(c *gin.Context) {
	resp := healthCheckResponse{PendingSetup: h.c.pendingSetup.Load()}
	if h.c.discord != nil {
		resp.DiscordGatewayConnected = h.c.discord.connected.Load()
	}
	if h.c.scheduler != nil {
		resp.ScheduledJobs = h.c.scheduler.Pending()
	}
	c.JSON(http.StatusOK, resp)
}

func (h *APIHandlers) logoutHandler(c *gin.Context) {
	session := sessions.Default(c)
	session.Clear()
	session.Options(sessions.Options{Path: "/", MaxAge: -1})
	if err := session.Save(); err != nil {
		ginContextLogger(c).Error("error saving cookie", tint.Err(err))
	}
	ginReplyMessage(c, "logged out")
}

func (h *APIHandlers) loggedIn(c *gin.Context) {
	username, ok := sessions.Default(c).Get(sessionVarField).(string)
	if !ok || username == "" {
		c.JSON(http.StatusUnauthorized, httpError{Error: "unauthorized"})
		return
	}
	c.JSON(http.StatusOK, loggedInResponse{Username: username})
}

// getConfig returns the runtime config, without the password hash
func (h *APIHandlers) getConfig(c *gin.Context) {
	rc := h.c.RuntimeConfig()
	rc.AdminPassword = ""
	c.JSON(http.StatusOK, rc)
}

// updateRuntimeConfig applies a partial update in a transaction. The
// in-memory config is rolled back if the update fails or the result
// doesn't validate.
func (h *APIHandlers) updateRuntimeConfig(c *gin.Context) {
	h.c.cfgMu.Lock()
	defer h.c.cfgMu.Unlock()

	logger := ginContextLogger(c)

	var req RuntimeConfigUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Error("bad payload", tint.Err(err))
		c.JSON(http.StatusBadRequest, httpError{Error: err.Error()})
		return
	}
	if msg, ok := validateRuntimeConfigUpdate(reflect.ValueOf(req)).(string); ok {
		c.JSON(http.StatusBadRequest, httpError{Error: msg})
		return
	}
	updates, err := req.updates()
	if err != nil {
		logger.ErrorContext(c, "error reading update request", tint.Err(err))
		ginReplyError(c, "error reading update request")
		return
	}
	if len(updates) == 0 {
		c.JSON(http.StatusBadRequest, httpError{Error: "no updates given"})
		return
	}
	logger.InfoContext(c, "applying updates", "updates", updates)

	existing := h.c.runtimeConfig
	rollback := *existing
	statusCode := http.StatusInternalServerError
	updateErr := h.c.db.Transaction(
		c,
		func(tx *gorm.DB) error {
			if e := tx.Model(existing).Updates(updates).Error; e != nil {
				return e
			}
			if e := structValidator.Struct(existing); e != nil {
				statusCode = http.StatusBadRequest
				return e
			}
			return nil
		},
	)
	if updateErr != nil {
		*existing = rollback
		logger.ErrorContext(c, "error updating config", tint.Err(updateErr))
		c.JSON(statusCode, httpError{Error: "error updating config"})
		return
	}

	h.c.setRuntimeLevels(*existing)
	if req.presenceChanged(rollback) && h.c.discord.session != nil {
		if e := h.c.discord.session.UpdateStatusComplex(presence(*existing)); e != nil {
			logger.ErrorContext(c, "error updating discord presence", tint.Err(e))
		}
	}

	rv := *existing
	rv.AdminPassword = ""
	c.JSON(http.StatusOK, rv)
}

// reload re-reads the policy, auto-response and persona files
func (h *APIHandlers) reload(c *gin.Context) {
	if err := h.c.Reload(c); err != nil {
		ginContextLogger(c).ErrorContext(c, "reload failed", tint.Err(err))
		c.JSON(http.StatusUnprocessableEntity, httpError{Error: err.Error()})
		return
	}
	ginReplyMessage(c, "reloaded")
}

func (h *APIHandlers) getSchedule(c *gin.Context) {
	c.JSON(http.StatusOK, h.c.deletions.List(c))
}

func (h *APIHandlers) cancelSchedule(c *gin.Context) {
	channelID := c.Param("channel_id")
	err := h.c.deletions.Cancel(c, channelID)
	switch {
	case errors.Is(err, ErrNotFound):
		c.JSON(http.StatusNotFound, httpError{Error: "no deletion scheduled"})
	case err != nil:
		ginContextLogger(c).ErrorContext(c, "error canceling deletion", tint.Err(err))
		ginReplyError(c, "error canceling deletion")
	default:
		ginReplyMessage(c, "canceled")
	}
}

type getTicketsQuery struct {
	State TicketState `form:"state" binding:"omitempty,oneof=open closed deleted"`
}

func (h *APIHandlers) getTickets(c *gin.Context) {
	var q getTicketsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, httpError{Error: err.Error()})
		return
	}
	tickets, err := h.c.ticketStore.List(c, q.State)
	if err != nil {
		ginContextLogger(c).ErrorContext(c, "error listing tickets", tint.Err(err))
		ginReplyError(c, "error listing tickets")
		return
	}
	c.JSON(http.StatusOK, tickets)
}

func (h *APIHandlers) getWarnings(c *gin.Context) {
	c.JSON(http.StatusOK, h.c.warnings.List(c, c.Param("user_id")))
}

func (h *APIHandlers) discordRegisterCommands(c *gin.Context) {
	logger := ginContextLogger(c)
	logger.Info("registering commands")

	created, err := h.c.RegisterSlashCommands()
	if err != nil {
		logger.Error("error registering commands", tint.Err(err))
		ginReplyError(c, "error registering commands")
		return
	}
	c.JSON(http.StatusCreated, created)
}

// botQuit signals the bot to shut down
func (h *APIHandlers) botQuit(c *gin.Context) {
	ginContextLogger(c).Warn("sending stop signal")
	select {
	case h.c.signalStop <- struct{}{}:
		ginReplyMessage(c, "quitting")
	case <-time.After(5 * time.Second):
		c.JSON(http.StatusGatewayTimeout, httpError{Error: "timeout sending stop signal"})
	}
}

type loggedInResponse struct {
	Username string `json:"username"`
}

type healthCheckResponse struct {
	DiscordGatewayConnected bool `json:"discord_gateway_connected"`
	PendingSetup            bool `json:"pending_setup"`
	ScheduledJobs           int  `json:"scheduled_jobs"`
}

type httpReply struct {
	Message string `json:"message"`
}

type httpError struct {
	Error string `json:"error"`
}

type userLogin struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type adminSetupPayload struct {
	Username        string `json:"username" binding:"required"`
	Password        string `json:"password" binding:"required,eqfield=ConfirmPassword"`
	ConfirmPassword string `json:"confirm_password" binding:"required"`
}

// setupResponse tells the client whether admin credentials still need
// to be set
type setupResponse struct {
	Required bool `json:"required"`
}

// authMiddleware rejects requests without a logged-in session, and
// everything while admin setup is pending
func authMiddleware(c *Cherry, store CookieStore) gin.HandlerFunc {
	return func(gc *gin.Context) {
		logger := ginContextLogger(gc)
		if c.pendingSetup.Load() {
			logger.Warn("admin username and password not set")
			gc.AbortWithStatusJSON(http.StatusUnauthorized, httpError{Error: "unauthorized"})
			return
		}

		session, err := store.Get(gc.Request, sessionVarName)
		if err != nil || session == nil {
			logger.Warn("error getting session", tint.Err(err))
			gc.AbortWithStatusJSON(http.StatusUnauthorized, httpError{Error: "unauthorized"})
			return
		}
		username, ok := session.Values[sessionVarField].(string)
		if !ok || username == "" {
			logger.Warn("username not found in session")
			gc.AbortWithStatusJSON(http.StatusUnauthorized, httpError{Error: "unauthorized"})
			return
		}
		logger.Debug("got session", sessionVarField, username)
		gc.Next()
	}
}

// requestIDMiddleware assigns a unique ID to each request, and echoes it
// back in the X-Request-ID header
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := uuid.NewString()
		c.Set(xRequestIDHeader, id)
		c.Header(xRequestIDHeader, id)
		c.Next()
	}
}

// ginContextLogger returns the request's logger, creating it (with
// request details attached) on first use
func ginContextLogger(c *gin.Context) *slog.Logger {
	if logger, ok := c.Get(string(loggerContextKey)); ok {
		if requestLogger, isLogger := logger.(*slog.Logger); isLogger {
			return requestLogger
		}
	}
	requestID, _ := c.Get(xRequestIDHeader)
	path := c.Request.URL.Path
	if raw := c.Request.URL.RawQuery; raw != "" {
		path = path + "?" + raw
	}
	requestLogger := slog.Default().With(
		slog.Group(
			"request",
			"method", c.Request.Method,
			"path", path,
			"remote_ip", c.RemoteIP(),
			"user_agent", c.Request.UserAgent(),
		),
		slog.Any(xRequestIDHeader, requestID),
	)
	c.Set(string(loggerContextKey), requestLogger)
	return requestLogger
}

func ginLoggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		requestLogger := ginContextLogger(c)
		c.Next()
		latency := time.Since(start)

		response := slog.Group(
			"response",
			"status_code", c.Writer.Status(),
			"body_size", c.Writer.Size(),
		)
		if errs := c.Errors.ByType(gin.ErrorTypePrivate); len(errs) > 0 {
			requestLogger.Error(
				fmt.Sprintf("%s %s finished with errors", c.Request.Method, c.Request.URL),
				"duration", latency,
				"errors", errs.Errors(),
				response,
			)
			return
		}
		requestLogger.Info(
			fmt.Sprintf("%s %s finished", c.Request.Method, c.Request.URL),
			"duration", latency,
			response,
		)
	}
}

func ginReplyMessage(c *gin.Context, message string) {
	c.JSON(http.StatusOK, httpReply{Message: message})
}

func ginReplyError(c *gin.Context, err string) {
	c.AbortWithStatusJSON(http.StatusInternalServerError, httpError{Error: err})
}

//nolint:gochecknoinits // gotta register the validators
func init() {
	structValidator.SetTagName("binding")
	structValidator.RegisterCustomTypeFunc(validateStoreConfig, StoreConfig{})
	structValidator.RegisterCustomTypeFunc(validateRuntimeConfigUpdate, RuntimeConfigUpdate{})
}
