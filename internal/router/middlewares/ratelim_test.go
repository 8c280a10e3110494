package middlewares

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/require"
)

func TestLimit1IP(t *testing.T) {
	t.Parallel()

	type testCase struct {
		name         string
		callRPS      int
		limitRPS     int
		forwardedFor bool
	}

	tests := []testCase{
		{name: "forwarded-success", callRPS: 100, limitRPS: 500, forwardedFor: true},
		{name: "forwarded-block-me", callRPS: 1000, limitRPS: 500, forwardedFor: true},

		{name: "success", callRPS: 100, limitRPS: 500, forwardedFor: false},
		{name: "block-me", callRPS: 1000, limitRPS: 500, forwardedFor: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(tc testCase) func(t *testing.T) {
			return func(t *testing.T) {
				t.Parallel()

				cfg := RateLimiterConfig{
					Default: RateLimiterRouteConfig{
						MaxRPI:   uint64(tc.limitRPS),
						Interval: time.Second,
					},
				}
				rlcm, err := RateLimitController(cfg)
				require.NoError(t, err)
				rlc := rlcm(dummyHandler{})

				r, err := http.NewRequestWithContext(context.Background(), "", "", nil)
				require.NoError(t, err)

				if tc.forwardedFor {
					r.Header.Set("X-Forwarded-For", uuid.NewString())
				} else {
					r.RemoteAddr = uuid.NewString() + ":1234"
				}

				res := httptest.NewRecorder()

				// Verify that after some seconds making requests with the configured
				// callRPS with the limitRPS, we are getting the expected output:
				// - If callRPS < limitRPS, we never get a 429.
				// - If callRPS > limitRPS, we eventually should see a 429.
				assertFunc := require.Eventually
				if tc.callRPS < tc.limitRPS {
					assertFunc = require.Never
				}
				assertFunc(t, func() bool {
					rlc.ServeHTTP(res, r)
					return res.Code == 429
				}, time.Second*5, time.Second/time.Duration(tc.callRPS))
			}
		}(tc))
	}
}

func TestRouteLimits(t *testing.T) {
	t.Parallel()

	cfg := RateLimiterConfig{
		Default: RateLimiterRouteConfig{
			MaxRPI:   10000,
			Interval: time.Second,
		},
		RouteLimits: map[string]RateLimiterRouteConfig{
			"/nonces": {
				MaxRPI:   10,
				Interval: time.Minute,
			},
		},
	}
	rlcm, err := RateLimitController(cfg)
	require.NoError(t, err)

	router := mux.NewRouter()
	router.Handle("/nonces", rlcm(dummyHandler{}))
	router.Handle("/polls/{poll}", rlcm(dummyHandler{}))

	call := func(path string) int {
		r := httptest.NewRequest(http.MethodGet, path, nil)
		r.RemoteAddr = "10.0.0.1:1234"
		res := httptest.NewRecorder()
		router.ServeHTTP(res, r)
		return res.Code
	}

	for i := 0; i < 10; i++ {
		require.Equal(t, http.StatusOK, call("/nonces"))
	}
	require.Equal(t, http.StatusTooManyRequests, call("/nonces"))

	// other routes use the default limit
	for i := 0; i < 100; i++ {
		require.Equal(t, http.StatusOK, call("/polls/abc"))
	}
}

func TestRateLim10IPs(t *testing.T) {
	t.Parallel()

	cfg := RateLimiterConfig{
		Default: RateLimiterRouteConfig{
			MaxRPI:   100,
			Interval: time.Second,
		},
	}
	rlcm, err := RateLimitController(cfg)
	require.NoError(t, err)
	rlc := rlcm(dummyHandler{})

	// Do 1000 requests as fast as we can with *different IPs*, and see that
	// we never get a 429 status response.
	for i := 0; i < 1000; i++ {
		r, err := http.NewRequestWithContext(context.Background(), "", "", nil)
		require.NoError(t, err)
		r.Header.Set("X-Forwarded-For", uuid.NewString())

		res := httptest.NewRecorder()

		rlc.ServeHTTP(res, r)
		require.Equal(t, 200, res.Code)
	}
}

func TestUnknownClient(t *testing.T) {
	t.Parallel()

	rlcm, err := RateLimitController(RateLimiterConfig{
		Default: RateLimiterRouteConfig{MaxRPI: 10, Interval: time.Second},
	})
	require.NoError(t, err)

	r, err := http.NewRequestWithContext(context.Background(), "", "", nil)
	require.NoError(t, err)
	r.RemoteAddr = "no-port"
	res := httptest.NewRecorder()
	rlcm(dummyHandler{}).ServeHTTP(res, r)
	require.Equal(t, http.StatusBadRequest, res.Code)
}

type dummyHandler struct{}

func (dh dummyHandler) ServeHTTP(_ http.ResponseWriter, _ *http.Request) {
}
