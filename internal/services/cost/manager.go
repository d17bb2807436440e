package cost

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/khulnasoft/pr-insight/internal/logger"
)

// ActivityRecord is one model call in the usage history.
type ActivityRecord struct {
	Timestamp    time.Time `json:"timestamp"`
	Command      string    `json:"command"`
	Provider     string    `json:"provider"`
	Model        string    `json:"model"`
	PRURL        string    `json:"pr_url,omitempty"`
	TokensInput  int       `json:"tokens_input"`
	TokensOutput int       `json:"tokens_output"`
	CostUSD      float64   `json:"cost_usd"`
	DurationMs   int64     `json:"duration_ms"`
	CacheHit     bool      `json:"cache_hit"`
	Hash         string    `json:"hash"`
}

type BudgetStatus struct {
	IsExceeded   bool
	PercentUsed  float64
	TodayTotal   float64
	Estimated    float64
	Limit        float64
	IsWarning    bool
	WarningLevel int // 50, 75, 90
}

// Manager keeps the usage history file and enforces the daily budget.
type Manager struct {
	mu          sync.Mutex
	historyPath string
	budgetDaily float64
	now         func() time.Time
}

// NewManager stores history in ~/.pr-insight/history.json.
func NewManager(budgetDaily float64) (*Manager, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolving home directory: %w", err)
	}
	return NewManagerAt(filepath.Join(home, ".pr-insight", "history.json"), budgetDaily)
}

func NewManagerAt(historyPath string, budgetDaily float64) (*Manager, error) {
	if err := os.MkdirAll(filepath.Dir(historyPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating history directory: %w", err)
	}
	return &Manager{historyPath: historyPath, budgetDaily: budgetDaily, now: time.Now}, nil
}

// SaveActivity appends record to the history.
func (m *Manager) SaveActivity(ctx context.Context, record ActivityRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	logger.Debug(ctx, "saving activity record",
		"command", record.Command,
		"provider", record.Provider,
		"model", record.Model,
		"tokens_input", record.TokensInput,
		"tokens_output", record.TokensOutput,
		"cost_usd", record.CostUSD,
		"cache_hit", record.CacheHit)

	records, err := m.loadHistory()
	if err != nil {
		logger.Warn(ctx, "discarding unreadable activity history", "path", m.historyPath, "error", err)
		records = nil
	}
	records = append(records, record)

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding history: %w", err)
	}
	if err := os.WriteFile(m.historyPath, data, 0o644); err != nil {
		logger.Error(ctx, "failed to write activity history", err, "path", m.historyPath)
		return fmt.Errorf("writing history: %w", err)
	}
	return nil
}

// CheckBudget reports whether spending estimatedCost now would go over the
// daily budget. A budget of zero disables the check.
func (m *Manager) CheckBudget(ctx context.Context, estimatedCost float64) (*BudgetStatus, error) {
	if m.budgetDaily <= 0 {
		return &BudgetStatus{}, nil
	}

	todayTotal, err := m.GetDailyTotal()
	if err != nil {
		return nil, err
	}

	percentUsed := todayTotal / m.budgetDaily * 100
	status := &BudgetStatus{
		IsExceeded:  (todayTotal+estimatedCost)/m.budgetDaily*100 > 100,
		PercentUsed: percentUsed,
		TodayTotal:  todayTotal,
		Estimated:   estimatedCost,
		Limit:       m.budgetDaily,
	}
	switch {
	case percentUsed >= 90:
		status.IsWarning, status.WarningLevel = true, 90
	case percentUsed >= 75:
		status.IsWarning, status.WarningLevel = true, 75
	case percentUsed >= 50:
		status.IsWarning, status.WarningLevel = true, 50
	}

	logger.Debug(ctx, "budget check completed",
		"today_total", todayTotal,
		"estimated_cost", estimatedCost,
		"percent_used", percentUsed,
		"is_exceeded", status.IsExceeded)
	return status, nil
}

// GetDailyTotal sums today's spending.
func (m *Manager) GetDailyTotal() (float64, error) {
	return m.totalSince("2006-01-02")
}

// GetMonthlyTotal sums this month's spending.
func (m *Manager) GetMonthlyTotal() (float64, error) {
	return m.totalSince("2006-01")
}

func (m *Manager) GetHistory() ([]ActivityRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loadHistory()
}

func (m *Manager) totalSince(layout string) (float64, error) {
	records, err := m.GetHistory()
	if err != nil {
		return 0, err
	}
	period := m.now().Format(layout)
	var total float64
	for _, r := range records {
		if r.Timestamp.Format(layout) == period {
			total += r.CostUSD
		}
	}
	return total, nil
}

func (m *Manager) loadHistory() ([]ActivityRecord, error) {
	data, err := os.ReadFile(m.historyPath)
	if err != nil {
		if os.IsNotExist(err) {
			return []ActivityRecord{}, nil
		}
		return nil, fmt.Errorf("reading history: %w", err)
	}
	var records []ActivityRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decoding history: %w", err)
	}
	return records, nil
}
