package cherry

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/bwmarrin/discordgo"
	"github.com/gin-gonic/gin"
	"github.com/lmittmann/tint"
)

const apiDiscordInteractions = "/discord/interactions"

// DiscordWebhookServer receives interactions delivered by HTTP POST
// rather than over the gateway
type DiscordWebhookServer struct {
	config     DiscordWebhookServerConfig
	httpServer *http.Server
	engine     *gin.Engine
	logger     *slog.Logger
}

func (d *DiscordWebhookServer) Serve(_ context.Context) error {
	if d.httpServer.TLSConfig == nil {
		d.logger.Warn("starting webhook server without TLS")
		return d.httpServer.ListenAndServe()
	}
	return d.httpServer.ListenAndServeTLS("", "")
}

// newWebhookServer creates a [DiscordWebhookServer] which verifies
// request signatures against the application's public key before
// handing interactions to the router
func newWebhookServer(
	ctx context.Context,
	c *Cherry,
	config DiscordWebhookServerConfig,
) (*DiscordWebhookServer, error) {
	logger := slog.New(
		tint.NewHandler(
			defaultLogWriter, &tint.Options{
				Level:     config.LogLevel,
				AddSource: true,
			},
		),
	).With(loggerNameKey, "discord_webhook")

	r := gin.New()
	server := &DiscordWebhookServer{config: config, engine: r, logger: logger}

	httpServer := &http.Server{
		Addr:              config.Listen,
		Handler:           r,
		ReadTimeout:       config.ReadTimeout,
		ReadHeaderTimeout: config.ReadHeaderTimeout,
		WriteTimeout:      config.WriteTimeout,
		IdleTimeout:       config.IdleTimeout,
	}
	if config.SSL.Cert != "" {
		tlsCfg, err := tlsConfig(config.SSL.Cert, config.SSL.Key, config.SSL.TLSMinVersion)
		if err != nil {
			return nil, fmt.Errorf("error loading webhook SSL certs: %w", err)
		}
		httpServer.TLSConfig = tlsCfg
	}
	server.httpServer = httpServer

	if !c.config.Development {
		r.Use(gin.Recovery())
	}
	r.Use(
		requestIDMiddleware(),
		ginLoggingMiddleware(),
		discordRequestAuthenticationMiddleware(c.discord.publicKey),
	)
	r.POST(apiDiscordInteractions, webhookReceiveHandler(ctx, c))
	return server, nil
}

// WebhookHandler is an [InteractionHandler] for interactions received via
// webhook. The initial response is written as the HTTP response body;
// everything after that goes through the REST API like the gateway.
// See: https://discord.com/developers/docs/interactions/overview#setting-up-an-endpoint-validating-security-request-headers
//
//nolint:lll  // can't split link
type WebhookHandler struct {
	ginContext *gin.Context
	InteractionHandler
}

func (WebhookHandler) InteractionReceiveMethod() DiscordInteractionReceiveMethod {
	return discordInteractionReceiveMethodWebhook
}

func (w WebhookHandler) Respond(
	_ context.Context,
	response *discordgo.InteractionResponse,
) error {
	w.ginContext.JSON(http.StatusOK, response)
	// flush so discord has the initial response before any edit/follow-up
	w.ginContext.Writer.Flush()
	return nil
}

func webhookReceiveHandler(ctx context.Context, c *Cherry) gin.HandlerFunc {
	return func(gc *gin.Context) {
		requestID, _ := gc.Get(xRequestIDHeader)
		logger := ginContextLogger(gc).With(
			slog.Group(
				"webhook_request",
				"remote_ip", gc.RemoteIP(),
				xRequestIDHeader, requestID,
			),
		)
		runCtx := WithLogger(ctx, logger)

		defer func() {
			_ = gc.Request.Body.Close()
		}()
		body, err := io.ReadAll(gc.Request.Body)
		if err != nil {
			logger.ErrorContext(runCtx, "error reading body", tint.Err(err))
			gc.JSON(http.StatusInternalServerError, httpError{Error: "error reading body"})
			return
		}

		var interaction discordgo.InteractionCreate
		if err = json.Unmarshal(body, &interaction); err != nil {
			logger.ErrorContext(runCtx, "error unmarshalling body", tint.Err(err))
			gc.JSON(http.StatusBadRequest, httpError{Error: "error unmarshalling body"})
			return
		}
		i := &interaction
		handler := WebhookHandler{
			ginContext:         gc,
			InteractionHandler: c.getInteractionHandlerFunc(runCtx, i),
		}
		c.handleInteraction(runCtx, handler)
	}
}

// discordRequestAuthenticationMiddleware rejects requests without a valid
// discord signature
func discordRequestAuthenticationMiddleware(publicKey ed25519.PublicKey) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !verifyRequest(c.Request, publicKey) {
			ginContextLogger(c).WarnContext(c, "invalid signature")
			c.AbortWithStatusJSON(http.StatusUnauthorized, httpError{Error: "invalid signature"})
			return
		}
		c.Next()
	}
}

// verifyRequest checks the ed25519 signature of timestamp+body. The body
// is restored on the request so it can be read again.
func verifyRequest(r *http.Request, key ed25519.PublicKey) bool {
	if len(key) != ed25519.PublicKeySize {
		return false
	}
	signature := r.Header.Get("X-Signature-Ed25519")
	if signature == "" {
		return false
	}
	sig, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	if len(sig) != ed25519.SignatureSize || sig[63]&224 != 0 {
		return false
	}

	timestamp := r.Header.Get("X-Signature-Timestamp")
	if timestamp == "" {
		return false
	}

	var msg bytes.Buffer
	msg.WriteString(timestamp)

	var body bytes.Buffer
	defer func() {
		_ = r.Body.Close()
		r.Body = io.NopCloser(&body)
	}()
	if _, err = io.Copy(&msg, io.TeeReader(r.Body, &body)); err != nil {
		return false
	}
	return ed25519.Verify(key, msg.Bytes(), sig)
}
