// Package broadcast is the public entry point for running a scene broadcaster.
package broadcast

import (
	"net/http"

	"github.com/luciancaetano/scenecast"
	"github.com/luciancaetano/scenecast/internal/broadcaster"
)

type RateLimitConfig = broadcaster.RateLimitConfig
type CheckOriginFn = broadcaster.CheckOriginFn
type OnConnectFn = broadcaster.OnConnectFn
type OnDisconnectFn = broadcaster.OnClientDisconnectFn
type ServerConfig = *broadcaster.ServerConfig

// New creates a broadcaster with rate limiting and connection callbacks.
//
// Example:
//
//	server := broadcast.New(broadcast.NewConfig(":12800", ":12801",
//	    broadcast.DefaultRateLimitConfig(), broadcast.AllOrigins(),
//	    func(client scenecast.Client) {
//	        log.Printf("Client connected: %s", client.ID())
//	    }, nil))
func New(cfg ServerConfig) scenecast.Server {
	return broadcaster.New(cfg)
}

// NewConfig builds a server configuration. Either address may be empty to
// disable that listener; the HTTP address serves WebSocket clients and metrics.
func NewConfig(tcpAddr, httpAddr string, rateLimitConfig *RateLimitConfig, checkOrigin CheckOriginFn, onConnect OnConnectFn, onDisconnect OnDisconnectFn) ServerConfig {
	return &broadcaster.ServerConfig{
		TCPAddr:            tcpAddr,
		HTTPAddr:           httpAddr,
		RateLimitConfig:    rateLimitConfig,
		CheckOrigin:        checkOrigin,
		OnConnect:          onConnect,
		OnClientDisconnect: onDisconnect,
	}
}

// AllOrigins returns a checkOrigin function that allows all origins
func AllOrigins() CheckOriginFn {
	return func(r *http.Request) bool {
		return true
	}
}

// AllowOrigins returns a checkOrigin function that allows only the listed origins
func AllowOrigins(origins ...string) CheckOriginFn {
	return broadcaster.AllowOrigins(origins...)
}

// DefaultRateLimitConfig returns the default rate limit configuration
func DefaultRateLimitConfig() *RateLimitConfig {
	return broadcaster.DefaultRateLimitConfig()
}

// NoRateLimit returns a configuration with rate limiting disabled
func NoRateLimit() *RateLimitConfig {
	return broadcaster.NoRateLimit()
}
