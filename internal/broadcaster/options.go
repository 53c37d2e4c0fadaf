package broadcaster

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/luciancaetano/scenecast/internal/config"
	"github.com/luciancaetano/scenecast/internal/transport"
)

// AllowOrigins returns a CheckOriginFn accepting the listed origins, compared
// case-insensitively against the Origin header. "*" accepts any origin.
// Requests without an Origin header come from non-browser clients and are
// accepted.
func AllowOrigins(origins ...string) CheckOriginFn {
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		allowed[strings.ToLower(strings.TrimSuffix(o, "/"))] = struct{}{}
	}

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil || u.Host == "" {
			return false
		}
		_, ok := allowed[strings.ToLower(u.Scheme+"://"+u.Host)]
		return ok
	}
}

// ConfigFrom builds a server configuration from a loaded config file.
func ConfigFrom(cfg *config.Config, log *zap.Logger, reg *prometheus.Registry) *ServerConfig {
	var checkOrigin CheckOriginFn
	if len(cfg.Server.AllowedOrigins) > 0 {
		checkOrigin = AllowOrigins(cfg.Server.AllowedOrigins...)
	}

	rl := NoRateLimit()
	if cfg.RateLimit.Enabled {
		rl = &RateLimitConfig{
			MessagesPerSecond: rate.Limit(cfg.RateLimit.MessagesPerSecond),
			Burst:             cfg.RateLimit.Burst,
			Enabled:           true,
		}
	}

	return &ServerConfig{
		TCPAddr:         cfg.Server.TCPAddress,
		HTTPAddr:        cfg.Server.HTTPAddress,
		RateLimitConfig: rl,
		CheckOrigin:     checkOrigin,
		Policy: transport.Policy{
			PollTimeout: cfg.Transport.PollTimeout,
			ReadTimeout: cfg.Transport.ReadTimeout,
			SendTimeout: cfg.Transport.SendTimeout,
			MaxPayload:  cfg.Transport.MaxPayload,
		},
		SendQueueSize:  cfg.Server.SendQueueSize,
		KeepEmptyRooms: cfg.Rooms.KeepEmpty,
		Logger:         log,
		Registry:       reg,
	}
}
