// Package budget monitors cumulative token usage for a run.
//
// Crossing a threshold produces a warning. Budgets never stop a run; the
// only termination conditions of the iteration loop are success, a pending
// batch job and the round budget.
package budget

import (
	"sync"

	"github.com/Iron-Ham/agentlab/internal/config"
	"github.com/Iron-Ham/agentlab/internal/event"
	"github.com/Iron-Ham/agentlab/internal/logging"
)

// Callbacks defines callbacks for budget events. Each fires at most once
// per Manager.
type Callbacks struct {
	// OnBudgetWarning is called when the warning threshold is reached.
	OnBudgetWarning func(tokens int64)
	// OnBudgetLimit is called when the token limit is reached.
	OnBudgetLimit func(tokens int64)
}

// Config holds budget configuration. A zero value disables the check.
type Config struct {
	TokenWarningThreshold int64
	TokenLimit            int64
}

// Manager tracks token totals reported by the gateway.
type Manager struct {
	mu        sync.Mutex
	config    Config
	bus       *event.Bus
	callbacks Callbacks
	logger    *logging.Logger

	tokens  int64
	warned  bool
	limited bool
}

// NewManager creates a new budget manager.
func NewManager(cfg Config, bus *event.Bus, callbacks Callbacks, logger *logging.Logger) *Manager {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Manager{
		config:    cfg,
		bus:       bus,
		callbacks: callbacks,
		logger:    logger,
	}
}

// NewManagerFromConfig creates a budget manager from application config.
func NewManagerFromConfig(appCfg *config.Config, bus *event.Bus, callbacks Callbacks, logger *logging.Logger) *Manager {
	cfg := Config{}
	if appCfg != nil {
		cfg.TokenWarningThreshold = appCfg.Resources.TokenWarningThreshold
		cfg.TokenLimit = appCfg.Resources.TokenLimit
	}
	return NewManager(cfg, bus, callbacks, logger)
}

// Observe records the cumulative token total and checks it against the
// thresholds. Its signature matches the gateway's token hook.
func (m *Manager) Observe(total int64) {
	m.CheckLimits(total)
}

// CheckLimits records total and reports whether the token limit has been
// reached. Warnings and callbacks fire only on the first crossing.
func (m *Manager) CheckLimits(total int64) bool {
	m.mu.Lock()
	m.tokens = total
	var fireWarning, fireLimit bool
	if m.config.TokenWarningThreshold > 0 && total >= m.config.TokenWarningThreshold && !m.warned {
		m.warned = true
		fireWarning = true
	}
	if m.config.TokenLimit > 0 && total >= m.config.TokenLimit && !m.limited {
		m.limited = true
		fireLimit = true
	}
	limited := m.limited
	m.mu.Unlock()

	// Callbacks run outside the lock so they may query the manager.
	if fireWarning {
		m.logger.Warn("token warning threshold reached",
			"total_tokens", total,
			"warning_threshold", m.config.TokenWarningThreshold,
		)
		m.bus.Publish(event.NewBudgetWarningEvent(total, m.config.TokenWarningThreshold, false))
		if m.callbacks.OnBudgetWarning != nil {
			m.callbacks.OnBudgetWarning(total)
		}
	}
	if fireLimit {
		m.logger.Warn("token limit exceeded",
			"total_tokens", total,
			"token_limit", m.config.TokenLimit,
		)
		m.bus.Publish(event.NewBudgetWarningEvent(total, m.config.TokenLimit, true))
		if m.callbacks.OnBudgetLimit != nil {
			m.callbacks.OnBudgetLimit(total)
		}
	}
	return limited
}

// Tokens returns the last observed total.
func (m *Manager) Tokens() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tokens
}

// Exceeded reports whether the token limit has been reached.
func (m *Manager) Exceeded() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.limited
}
