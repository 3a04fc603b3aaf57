// Package analytics records per-request access data from the artifact router
// and aggregates it on demand for the query API.
package analytics

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"log/slog"

	"github.com/hangarhq/hangar/internal/domain"
	"github.com/hangarhq/hangar/internal/repository"
)

// Path substrings that indicate automated probing rather than real traffic.
var suspiciousMarkers = []string{
	"/admin",
	"/.env",
	"/wp-login",
	"/wp-admin",
	"/phpmyadmin",
	"/.git",
	"/xmlrpc.php",
}

const topN = 5

// Service wraps the analytics store with recording and aggregation.
type Service struct {
	records repository.AnalyticsRepository
	logger  *slog.Logger
	timeout time.Duration
	now     func() time.Time
}

// NewService wires the analytics service. The timeout bounds the detached
// record writes so a slow store cannot pile up goroutines.
func NewService(records repository.AnalyticsRepository, timeout time.Duration, logger *slog.Logger) *Service {
	return &Service{
		records: records,
		logger:  logger,
		timeout: timeout,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Record writes one access record asynchronously. The write is best-effort:
// failures are logged and dropped, never surfaced to the request path.
func (s *Service) Record(record domain.AnalyticsRecord) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		if err := s.records.InsertAnalyticsRecord(ctx, record); err != nil {
			s.logger.Warn("analytics record dropped",
				"subdomain", record.Subdomain, "error", err)
		}
	}()
}

// Aggregate computes the dashboard summary over the last `days` days of
// records for one subdomain.
func (s *Service) Aggregate(ctx context.Context, subdomain string, days int) (*domain.AnalyticsSummary, error) {
	if days <= 0 {
		days = 7
	}
	to := s.now()
	from := to.AddDate(0, 0, -days)

	records, err := s.records.ListAnalyticsRecords(ctx, subdomain, from, to)
	if err != nil {
		return nil, fmt.Errorf("list analytics records: %w", err)
	}

	summary := &domain.AnalyticsSummary{
		Subdomain:      subdomain,
		WindowDays:     days,
		TotalRequests:  len(records),
		RequestsPerDay: make(map[string]int),
	}

	ips := make(map[string]struct{})
	countries := make(map[string]int)
	paths := make(map[string]int)
	errorPages := make(map[string]int)
	suspicious := make(map[string]int)
	var totalResponseMs int64

	for _, r := range records {
		ips[r.ClientIP] = struct{}{}
		totalResponseMs += r.ResponseTimeMs
		summary.RequestsPerDay[r.Timestamp.UTC().Format("2006-01-02")]++
		if r.Country != "" {
			countries[r.Country]++
		}
		paths[r.Path]++
		if r.StatusCode >= 400 {
			errorPages[r.Path]++
		}
		if isSuspicious(r.Path) {
			suspicious[r.Path]++
		}
	}

	summary.UniqueVisitors = len(ips)
	if len(records) > 0 {
		summary.AvgResponseMs = float64(totalResponseMs) / float64(len(records))
	}
	summary.TopCountries = topCounts(countries, topN)
	summary.TopPaths = topCounts(paths, topN)
	summary.TopErrorPages = topCounts(errorPages, topN)
	summary.SuspiciousPaths = topCounts(suspicious, topN)

	growth, err := s.growth(ctx, subdomain, from, to, len(records))
	if err != nil {
		return nil, err
	}
	summary.GrowthPercent = growth

	return summary, nil
}

// growth compares the current window's count to the equally sized preceding
// window. An empty preceding window reports zero rather than dividing by it.
func (s *Service) growth(ctx context.Context, subdomain string, from, to time.Time, current int) (float64, error) {
	previousFrom := from.Add(-to.Sub(from))
	previous, err := s.records.CountAnalyticsRecords(ctx, subdomain, previousFrom, from)
	if err != nil {
		return 0, fmt.Errorf("count preceding window: %w", err)
	}
	if previous == 0 {
		return 0, nil
	}
	return float64(current-previous) / float64(previous) * 100, nil
}

func isSuspicious(path string) bool {
	lower := strings.ToLower(path)
	for _, marker := range suspiciousMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// topCounts returns the n highest-count labels, ties broken alphabetically so
// the output is stable.
func topCounts(counts map[string]int, n int) []domain.CountItem {
	items := make([]domain.CountItem, 0, len(counts))
	for label, count := range counts {
		items = append(items, domain.CountItem{Label: label, Count: count})
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].Count != items[j].Count {
			return items[i].Count > items[j].Count
		}
		return items[i].Label < items[j].Label
	})
	if len(items) > n {
		items = items[:n]
	}
	return items
}
