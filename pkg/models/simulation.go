package models

import "time"

// Simulation is a saved calculation together with the wizard selection
type Simulation struct {
	ID         string         `json:"id"`
	UserID     string         `json:"user_id"`
	CreatedAt  time.Time      `json:"created_at"`
	Date       string         `json:"date"`
	Department string         `json:"department"`
	Sector     string         `json:"sector"`
	Typology   string         `json:"typology"`
	FicheCode  string         `json:"fiche_code"`
	Parameters map[string]any `json:"parameters"`
	Cumacs     float64        `json:"cumacs"`
	Euros      float64        `json:"euros"`
	Success    bool           `json:"success"`
	Error      string         `json:"error,omitempty"`
}

// HistoryQuery filters, sorts and paginates a user's simulations
type HistoryQuery struct {
	FicheCode   string
	Sector      string
	Department  string
	SuccessOnly bool
	SortBy      string // created_at, cumacs, euros, fiche_code
	Desc        bool
	Page        int // 1-based
	PageSize    int
}

// HistoryPage is one page of a history listing
type HistoryPage struct {
	Items    []Simulation `json:"items"`
	Total    int          `json:"total"`
	Page     int          `json:"page"`
	PageSize int          `json:"page_size"`
}

// HistoryTotals sums a user's successful simulations
type HistoryTotals struct {
	Count  int     `json:"count"`
	Cumacs float64 `json:"cumacs"`
	Euros  float64 `json:"euros"`
}

// LogEntry records one calculation attempt
type LogEntry struct {
	ID         int64
	SessionID  string
	FicheCode  string
	Status     string
	Error      string
	DurationMs int64
	CreatedAt  time.Time
}
