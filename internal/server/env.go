package server

import (
	"net/http"
	"os"
	"strconv"
	"strings"

	"golang.org/x/time/rate"
)

// NewConfigFromEnv builds a ServerConfig from environment variables, falling
// back to defaults for anything unset or invalid:
//
//	CHAT_ADDR             TCP listen address (default "0.0.0.0:9999")
//	CHAT_HTTP_ADDR        WebSocket/HTTP listen address (default disabled)
//	CHAT_MAX_BODY_SIZE    maximum frame body in bytes
//	CHAT_SEND_QUEUE       outbound queue length per session
//	CHAT_RATE_LIMIT       frames per second per session, 0 disables
//	CHAT_RATE_BURST       rate limiter burst
//	CHAT_ALLOWED_ORIGINS  comma separated WebSocket origins, "*" for any
func NewConfigFromEnv() *ServerConfig {
	cfg := &ServerConfig{
		Addr:            "0.0.0.0:9999",
		RateLimitConfig: DefaultRateLimitConfig(),
	}

	if addr := os.Getenv("CHAT_ADDR"); addr != "" {
		cfg.Addr = addr
	}

	cfg.HTTPAddr = strings.TrimSpace(os.Getenv("CHAT_HTTP_ADDR"))

	if size := os.Getenv("CHAT_MAX_BODY_SIZE"); size != "" {
		if parsed, err := strconv.ParseUint(size, 10, 32); err == nil && parsed > 0 {
			cfg.MaxBodySize = uint32(parsed)
		}
	}

	if queue := os.Getenv("CHAT_SEND_QUEUE"); queue != "" {
		cfg.SendQueueSize = parseIntValue(queue, defaultSendQueueSize)
	}

	if limit := os.Getenv("CHAT_RATE_LIMIT"); limit != "" {
		if parsed, err := strconv.ParseFloat(limit, 64); err == nil {
			if parsed <= 0 {
				cfg.RateLimitConfig = NoRateLimit()
			} else {
				cfg.RateLimitConfig.MessagesPerSecond = rate.Limit(parsed)
			}
		}
	}

	if burst := os.Getenv("CHAT_RATE_BURST"); burst != "" && cfg.RateLimitConfig.Enabled {
		cfg.RateLimitConfig.Burst = parseIntValue(burst, cfg.RateLimitConfig.Burst)
	}

	cfg.CheckOrigin = originChecker(os.Getenv("CHAT_ALLOWED_ORIGINS"))

	return cfg
}

func parseIntValue(value string, defaultValue int) int {
	if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
		return parsed
	}
	return defaultValue
}

// originChecker returns nil (gorilla's same-origin default) for an empty list.
func originChecker(list string) CheckOriginFn {
	if strings.TrimSpace(list) == "" {
		return nil
	}

	allowed := make(map[string]struct{})
	for _, origin := range strings.Split(list, ",") {
		origin = strings.TrimSpace(origin)
		if origin == "*" {
			return AllOrigins()
		}
		if origin != "" {
			allowed[strings.ToLower(origin)] = struct{}{}
		}
	}

	return func(r *http.Request) bool {
		_, ok := allowed[strings.ToLower(r.Header.Get("Origin"))]
		return ok
	}
}
