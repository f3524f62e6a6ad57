package router

import (
	"net/http"
	"strings"

	"github.com/pario-ai/larder/pkg/config"
	"github.com/pario-ai/larder/pkg/models"
)

// Strategy is how the dispatcher answers a request.
type Strategy int

const (
	// NetworkFirst tries the network and falls back to the dynamic cache.
	NetworkFirst Strategy = iota
	// CacheFirst answers from cache and only fetches on a miss.
	CacheFirst
	// Write sends the request and queues it when offline.
	Write
	// Passthrough goes to the network untouched.
	Passthrough
)

func (s Strategy) String() string {
	switch s {
	case CacheFirst:
		return "cache-first"
	case NetworkFirst:
		return "network-first"
	case Write:
		return "write"
	case Passthrough:
		return "passthrough"
	default:
		return "unknown"
	}
}

// Router classifies intercepted requests against the static asset list and
// the dynamic API prefix table.
type Router struct {
	static   map[string]struct{}
	prefixes []string
}

// New creates a Router from the given configuration.
func New(cfg *config.Config) *Router {
	static := make(map[string]struct{}, len(cfg.StaticAssets))
	for _, p := range cfg.StaticAssets {
		static[p] = struct{}{}
	}
	return &Router{
		static:   static,
		prefixes: append([]string(nil), cfg.APIPrefixes...),
	}
}

// Classify picks the strategy for a request. It depends only on method,
// path and destination.
func (r *Router) Classify(method, path, destination string) Strategy {
	switch method {
	case http.MethodGet:
	case http.MethodPost:
		return Write
	default:
		return Passthrough
	}

	if _, ok := r.static[path]; ok {
		return CacheFirst
	}
	for _, prefix := range r.prefixes {
		if strings.HasPrefix(path, prefix) {
			return NetworkFirst
		}
	}
	if destination == models.DestinationImage {
		return CacheFirst
	}
	return NetworkFirst
}
