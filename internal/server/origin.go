package server

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/Tyrowin/chatrelay/internal/logging"
)

// originPolicy decides which browser origins may open the channel and call
// the API cross-origin.
type originPolicy struct {
	allowAll bool
	allowed  map[string]struct{}
	list     []string
	logger   logging.Logger
}

func newOriginPolicy(origins []string, logger logging.Logger) *originPolicy {
	p := &originPolicy{allowed: make(map[string]struct{}), logger: logger}

	for _, origin := range origins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}

		if trimmed == "*" {
			p.allowAll = true
			continue
		}

		normalizedOrigin, ok := normalizeOrigin(trimmed)
		if !ok {
			logger.Warn(context.Background(), "ignoring invalid origin in configuration", "origin", origin)
			continue
		}

		if _, dup := p.allowed[normalizedOrigin]; !dup {
			p.allowed[normalizedOrigin] = struct{}{}
			p.list = append(p.list, normalizedOrigin)
		}
	}

	return p
}

func normalizeOrigin(origin string) (string, bool) {
	parsed, err := url.Parse(origin)
	if err != nil {
		return "", false
	}

	if parsed.Scheme == "" || parsed.Host == "" {
		return "", false
	}

	normalized := strings.ToLower(parsed.Scheme) + "://" + strings.ToLower(parsed.Host)
	return normalized, true
}

func (p *originPolicy) allowOrigin(origin string) bool {
	if origin == "" {
		return false
	}

	normalizedOrigin, ok := normalizeOrigin(origin)
	if !ok {
		return false
	}

	if p.allowAll {
		return true
	}

	_, exists := p.allowed[normalizedOrigin]
	return exists
}

// checkOrigin is the upgrader's CheckOrigin. Requests without an Origin
// header are rejected.
func (p *originPolicy) checkOrigin(r *http.Request) bool {
	if p.allowOrigin(r.Header.Get("Origin")) {
		return true
	}

	p.logger.Warn(r.Context(), "blocked websocket connection from disallowed origin", "origin", r.Header.Get("Origin"))
	return false
}
