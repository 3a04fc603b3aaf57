package domain

import "time"

// AnalyticsRecord captures one proxied request through the artifact router.
// Created once, never mutated.
type AnalyticsRecord struct {
	Subdomain      string    `json:"subdomain"`
	Path           string    `json:"path"`
	StatusCode     int       `json:"status_code"`
	ResponseTimeMs int64     `json:"response_time_ms"`
	ClientIP       string    `json:"client_ip"`
	Country        string    `json:"country"`
	City           string    `json:"city,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// CountItem is a label with an occurrence count, used for top-N listings.
type CountItem struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// AnalyticsSummary is the on-demand aggregate served to the dashboard.
type AnalyticsSummary struct {
	Subdomain       string         `json:"subdomain"`
	WindowDays      int            `json:"window_days"`
	TotalRequests   int            `json:"total_requests"`
	UniqueVisitors  int            `json:"unique_visitors"`
	AvgResponseMs   float64        `json:"avg_response_ms"`
	RequestsPerDay  map[string]int `json:"requests_per_day"`
	TopCountries    []CountItem    `json:"top_countries"`
	TopPaths        []CountItem    `json:"top_paths"`
	TopErrorPages   []CountItem    `json:"top_error_pages"`
	SuspiciousPaths []CountItem    `json:"suspicious_paths"`
	GrowthPercent   float64        `json:"growth_percent"`
}
