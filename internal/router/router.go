package router

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/textileio/go-durablevote/internal/durablevote"
	"github.com/textileio/go-durablevote/internal/router/controllers"
	"github.com/textileio/go-durablevote/internal/router/middlewares"
)

// Config configures the HTTP API.
type Config struct {
	MaxRPI          uint64
	RateLimInterval time.Duration

	// MaxNonceRPI limits nonce creation, which spends authority funds.
	MaxNonceRPI          uint64
	NonceRateLimInterval time.Duration
}

// ConfiguredRouter returns a fully configured Router that can be used as an http handler.
func ConfiguredRouter(dv durablevote.DurableVote, cfg Config) (*Router, error) {
	ctrl := controllers.NewController(dv)

	// General router configuration.
	router := NewRouter()
	router.Use(middlewares.CORS, middlewares.TraceID)

	rlCfg := middlewares.RateLimiterConfig{
		Default: middlewares.RateLimiterRouteConfig{
			MaxRPI:   cfg.MaxRPI,
			Interval: cfg.RateLimInterval,
		},
	}
	if cfg.MaxNonceRPI > 0 {
		rlCfg.RouteLimits = map[string]middlewares.RateLimiterRouteConfig{
			"/nonces": {
				MaxRPI:   cfg.MaxNonceRPI,
				Interval: cfg.NonceRateLimInterval,
			},
		}
	}
	rateLim, err := middlewares.RateLimitController(rlCfg)
	if err != nil {
		return nil, fmt.Errorf("creating rate limit controller middleware: %s", err)
	}

	// Polls.
	router.Post("/polls", ctrl.CreatePoll, middlewares.WithLogging, middlewares.OtelHTTP("CreatePoll"), rateLim)
	router.Get("/polls/{poll}", ctrl.GetPoll, middlewares.WithLogging, middlewares.OtelHTTP("GetPoll"), rateLim)

	// Nonce pool.
	router.Post("/nonces", ctrl.CreateNonces, middlewares.WithLogging, middlewares.OtelHTTP("CreateNonces"), rateLim)
	router.Get("/nonces", ctrl.GetNonces, middlewares.WithLogging, middlewares.OtelHTTP("GetNonces"), rateLim)

	// Votes.
	router.Post("/polls/{poll}/votes/prepare", ctrl.PrepareVote, middlewares.WithLogging, middlewares.OtelHTTP("PrepareVote"), rateLim)             // nolint
	router.Post("/polls/{poll}/votes", ctrl.CommitVote, middlewares.WithLogging, middlewares.OtelHTTP("CommitVote"), rateLim)                       // nolint
	router.Get("/polls/{poll}/votes", ctrl.ListVotes, middlewares.WithLogging, middlewares.OtelHTTP("ListVotes"), rateLim)                          // nolint
	router.Delete("/polls/{poll}/votes/reservations/{id}", ctrl.AbortVote, middlewares.WithLogging, middlewares.OtelHTTP("AbortVote"), rateLim)     // nolint
	router.Post("/polls/{poll}/votes/requeue", ctrl.RequeueFailed, middlewares.WithLogging, middlewares.OtelHTTP("RequeueFailed"), rateLim)         // nolint
	router.Post("/polls/{poll}/count", ctrl.CountVotes, middlewares.WithLogging, middlewares.OtelHTTP("CountVotes"), rateLim)                       // nolint

	router.Get("/version", ctrl.Version, middlewares.WithLogging, middlewares.OtelHTTP("Version"), rateLim)

	// Health endpoint configuration.
	router.Get("/healthz", healthHandler)
	router.Get("/health", healthHandler)

	return router, nil
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// Router provides a nice api around mux.Router.
type Router struct {
	r *mux.Router
}

// NewRouter is a Mux HTTP router constructor.
func NewRouter() *Router {
	r := mux.NewRouter()
	r.PathPrefix("/").Methods(http.MethodOptions) // accept OPTIONS on all routes and do nothing
	return &Router{r: r}
}

// Get creates a subroute on the specified URI that only accepts GET. You can provide specific middlewares.
func (r *Router) Get(uri string, f func(http.ResponseWriter, *http.Request), mid ...mux.MiddlewareFunc) {
	sub := r.r.Path(uri).Subrouter()
	sub.HandleFunc("", f).Methods(http.MethodGet)
	sub.Use(mid...)
}

// Post creates a subroute on the specified URI that only accepts POST. You can provide specific middlewares.
func (r *Router) Post(uri string, f func(http.ResponseWriter, *http.Request), mid ...mux.MiddlewareFunc) {
	sub := r.r.Path(uri).Subrouter()
	sub.HandleFunc("", f).Methods(http.MethodPost)
	sub.Use(mid...)
}

// Delete creates a subroute on the specified URI that only accepts DELETE. You can provide specific middlewares.
func (r *Router) Delete(uri string, f func(http.ResponseWriter, *http.Request), mid ...mux.MiddlewareFunc) {
	sub := r.r.Path(uri).Subrouter()
	sub.HandleFunc("", f).Methods(http.MethodDelete)
	sub.Use(mid...)
}

// Use adds middlewares to all routes. Should be used when a middleware should be execute all all routes (e.g. CORS).
func (r *Router) Use(mid ...mux.MiddlewareFunc) {
	r.r.Use(mid...)
}

// Handler returns the configured router http handler.
func (r *Router) Handler() http.Handler {
	return r.r
}
