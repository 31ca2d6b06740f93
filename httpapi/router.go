// Package httpapi exposes the webhook pipeline and checkout endpoints over gin.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-payhooks/core"
)

type Config struct {
	ProviderID     string
	AllowedOrigins []string
	MaxBodyBytes   int64
	Logger         core.Logger
}

// NewRouter mounts:
//
//	POST /webhooks/paystack
//	POST /initialize-payment
//	POST /verify-payment
//	GET  /fulfillments/:reference
//	GET  /health
func NewRouter(cfg Config, webhooks WebhookHandler, checkout Checkout) (*gin.Engine, error) {
	if webhooks == nil {
		return nil, fmt.Errorf("httpapi: webhook handler is required")
	}
	if checkout == nil {
		return nil, fmt.Errorf("httpapi: checkout service is required")
	}
	h := &handlers{
		webhooks:     webhooks,
		checkout:     checkout,
		providerID:   strings.TrimSpace(cfg.ProviderID),
		maxBodyBytes: cfg.MaxBodyBytes,
	}
	if h.providerID == "" {
		h.providerID = "paystack"
	}
	if h.maxBodyBytes <= 0 {
		h.maxBodyBytes = DefaultMaxBodyBytes
	}

	router := gin.New()
	router.Use(
		gin.Recovery(),
		RequestID(),
		AccessLog(glog.Ensure(cfg.Logger)),
		CORS(cfg.AllowedOrigins),
	)

	router.GET("/health", h.health)
	router.POST("/webhooks/paystack", h.paystackWebhook)
	router.POST("/initialize-payment", h.initializePayment)
	router.POST("/verify-payment", h.verifyPayment)
	router.GET("/fulfillments/:reference", h.listFulfillments)
	return router, nil
}

// Server wraps http.Server with the configured shutdown grace.
type Server struct {
	server *http.Server
	grace  time.Duration
}

func NewServer(address string, handler http.Handler, grace time.Duration) *Server {
	if strings.TrimSpace(address) == "" {
		address = ":3000"
	}
	return &Server{
		server: &http.Server{
			Addr:              address,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
		grace: grace,
	}
}

func (s *Server) Addr() string {
	return s.server.Addr
}

// ListenAndServe blocks until the server stops. A graceful shutdown is not
// reported as an error.
func (s *Server) ListenAndServe() error {
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.grace > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.grace)
		defer cancel()
	}
	return s.server.Shutdown(ctx)
}
