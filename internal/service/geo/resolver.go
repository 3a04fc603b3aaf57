// Package geo resolves client IPs to a country/city pair for analytics.
// Lookups go through a TTL-bounded process-local cache; the primary resolver
// calls an external HTTP provider under a short deadline, with a static local
// table as fallback and "Unknown" as the final answer.
package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"log/slog"
)

// Location is a resolved {country, city} pair.
type Location struct {
	Country string
	City    string
}

// Fixed answers that never hit the network.
var (
	localLocation   = Location{Country: "Local", City: "Development"}
	unknownLocation = Location{Country: "Unknown"}
)

type cacheEntry struct {
	location  Location
	expiresAt time.Time
}

// Resolver caches geo lookups per IP with a TTL.
type Resolver struct {
	endpoint string
	client   *http.Client
	ttl      time.Duration
	logger   *slog.Logger
	now      func() time.Time

	mu    sync.Mutex
	cache map[string]cacheEntry

	stop chan struct{}
	once sync.Once
}

// NewResolver builds a resolver backed by an ip-api style JSON endpoint. The
// timeout bounds each provider call.
func NewResolver(endpoint string, timeout, ttl time.Duration, logger *slog.Logger) *Resolver {
	return &Resolver{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
		ttl:      ttl,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
		cache:    make(map[string]cacheEntry),
		stop:     make(chan struct{}),
	}
}

// Resolve maps one client IP to a location. It never returns an error; each
// fallback tier degrades the answer instead.
func (r *Resolver) Resolve(ctx context.Context, ip string) Location {
	if isLocalAddress(ip) {
		return localLocation
	}

	now := r.now()
	r.mu.Lock()
	if entry, ok := r.cache[ip]; ok && now.Before(entry.expiresAt) {
		r.mu.Unlock()
		return entry.location
	}
	r.mu.Unlock()

	location, err := r.lookupPrimary(ctx, ip)
	if err != nil {
		r.logger.Warn("primary geo lookup failed", "ip", ip, "error", err)
		location = lookupStatic(ip)
	}

	r.mu.Lock()
	r.cache[ip] = cacheEntry{location: location, expiresAt: now.Add(r.ttl)}
	r.mu.Unlock()
	return location
}

// StartPurging removes expired cache entries on the given interval until
// Stop is called.
func (r *Resolver) StartPurging(interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				r.purge()
			case <-r.stop:
				return
			}
		}
	}()
}

// Stop ends the purge loop.
func (r *Resolver) Stop() {
	r.once.Do(func() { close(r.stop) })
}

func (r *Resolver) purge() {
	now := r.now()
	r.mu.Lock()
	for ip, entry := range r.cache {
		if !now.Before(entry.expiresAt) {
			delete(r.cache, ip)
		}
	}
	r.mu.Unlock()
}

type providerResponse struct {
	Status  string `json:"status"`
	Country string `json:"country"`
	City    string `json:"city"`
}

func (r *Resolver) lookupPrimary(ctx context.Context, ip string) (Location, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/%s", strings.TrimRight(r.endpoint, "/"), ip), nil)
	if err != nil {
		return Location{}, err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return Location{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Location{}, fmt.Errorf("geo provider returned %d", resp.StatusCode)
	}
	var body providerResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Location{}, err
	}
	if body.Status != "success" || body.Country == "" {
		return Location{}, fmt.Errorf("geo provider could not resolve %s", ip)
	}
	return Location{Country: body.Country, City: body.City}, nil
}

// Private-range prefixes mapped by the local fallback tier.
var privateRanges = map[string]Location{
	"10.":      {Country: "Private Network"},
	"192.168.": {Country: "Private Network"},
	"172.16.":  {Country: "Private Network"},
	"172.17.":  {Country: "Private Network"},
}

// lookupStatic is the secondary resolver: a static table covering the address
// ranges a self-hosted deployment actually sees. Anything else is Unknown.
func lookupStatic(ip string) Location {
	for prefix, location := range privateRanges {
		if strings.HasPrefix(ip, prefix) {
			return location
		}
	}
	return unknownLocation
}

func isLocalAddress(ip string) bool {
	if ip == "" || ip == "localhost" {
		return true
	}
	parsed := net.ParseIP(ip)
	return parsed != nil && (parsed.IsLoopback() || parsed.IsUnspecified())
}
