package budget

import (
	"sync"
	"testing"

	"github.com/Iron-Ham/agentlab/internal/config"
	"github.com/Iron-Ham/agentlab/internal/event"
)

func TestNewManager(t *testing.T) {
	cfg := Config{TokenWarningThreshold: 500, TokenLimit: 1000}

	mgr := NewManager(cfg, nil, Callbacks{}, nil)
	if mgr == nil {
		t.Fatal("NewManager returned nil")
	}
	if mgr.config.TokenLimit != 1000 {
		t.Errorf("TokenLimit = %v, want 1000", mgr.config.TokenLimit)
	}
	if mgr.logger == nil {
		t.Error("logger should default to a no-op logger")
	}
}

func TestNewManagerFromConfig(t *testing.T) {
	appCfg := &config.Config{
		Resources: config.ResourceConfig{
			TokenWarningThreshold: 800,
			TokenLimit:            2000,
		},
	}

	mgr := NewManagerFromConfig(appCfg, nil, Callbacks{}, nil)
	if mgr.config.TokenWarningThreshold != 800 {
		t.Errorf("TokenWarningThreshold = %v, want 800", mgr.config.TokenWarningThreshold)
	}
	if mgr.config.TokenLimit != 2000 {
		t.Errorf("TokenLimit = %v, want 2000", mgr.config.TokenLimit)
	}

	mgr = NewManagerFromConfig(nil, nil, Callbacks{}, nil)
	if mgr.config != (Config{}) {
		t.Errorf("nil config should give zero Config, got %+v", mgr.config)
	}
}

func TestCheckLimits(t *testing.T) {
	tests := []struct {
		name        string
		cfg         Config
		totals      []int64
		wantWarn    int
		wantLimit   int
		wantReached bool
	}{
		{
			name:   "disabled",
			cfg:    Config{},
			totals: []int64{1 << 40},
		},
		{
			name:   "below thresholds",
			cfg:    Config{TokenWarningThreshold: 100, TokenLimit: 200},
			totals: []int64{10, 50, 99},
		},
		{
			name:     "warning fires once",
			cfg:      Config{TokenWarningThreshold: 100, TokenLimit: 200},
			totals:   []int64{100, 150, 199},
			wantWarn: 1,
		},
		{
			name:        "limit fires once",
			cfg:         Config{TokenWarningThreshold: 100, TokenLimit: 200},
			totals:      []int64{50, 250, 300},
			wantWarn:    1,
			wantLimit:   1,
			wantReached: true,
		},
		{
			name:        "limit only",
			cfg:         Config{TokenLimit: 10},
			totals:      []int64{11},
			wantLimit:   1,
			wantReached: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var warns, limits int
			mgr := NewManager(tt.cfg, nil, Callbacks{
				OnBudgetWarning: func(int64) { warns++ },
				OnBudgetLimit:   func(int64) { limits++ },
			}, nil)

			var reached bool
			for _, total := range tt.totals {
				reached = mgr.CheckLimits(total)
			}
			if warns != tt.wantWarn {
				t.Errorf("warning callbacks = %d, want %d", warns, tt.wantWarn)
			}
			if limits != tt.wantLimit {
				t.Errorf("limit callbacks = %d, want %d", limits, tt.wantLimit)
			}
			if reached != tt.wantReached || mgr.Exceeded() != tt.wantReached {
				t.Errorf("reached = %v, Exceeded() = %v, want %v", reached, mgr.Exceeded(), tt.wantReached)
			}
			if got := mgr.Tokens(); got != tt.totals[len(tt.totals)-1] {
				t.Errorf("Tokens() = %d, want %d", got, tt.totals[len(tt.totals)-1])
			}
		})
	}
}

func TestObservePublishesEvents(t *testing.T) {
	bus := event.NewBus()
	var got []event.BudgetWarningEvent
	bus.Subscribe(event.TypeBudgetWarning, func(e event.Event) {
		got = append(got, e.(event.BudgetWarningEvent))
	})

	mgr := NewManager(Config{TokenWarningThreshold: 10, TokenLimit: 20}, bus, Callbacks{}, nil)
	mgr.Observe(5)
	mgr.Observe(25)
	mgr.Observe(30)

	if len(got) != 2 {
		t.Fatalf("got %d events, want 2", len(got))
	}
	if got[0].Limit || got[0].Threshold != 10 || got[0].Tokens != 25 {
		t.Errorf("first event = %+v, want soft warning at 10", got[0])
	}
	if !got[1].Limit || got[1].Threshold != 20 {
		t.Errorf("second event = %+v, want hard limit at 20", got[1])
	}
}

func TestCallbackMayQueryManager(t *testing.T) {
	var mgr *Manager
	var seen int64
	mgr = NewManager(Config{TokenWarningThreshold: 1}, nil, Callbacks{
		OnBudgetWarning: func(int64) { seen = mgr.Tokens() },
	}, nil)
	mgr.Observe(3)
	if seen != 3 {
		t.Errorf("callback saw %d tokens, want 3", seen)
	}
}

func TestConcurrentObserve(t *testing.T) {
	var mu sync.Mutex
	warns := 0
	mgr := NewManager(Config{TokenWarningThreshold: 50}, nil, Callbacks{
		OnBudgetWarning: func(int64) {
			mu.Lock()
			warns++
			mu.Unlock()
		},
	}, nil)

	var wg sync.WaitGroup
	for i := int64(0); i < 100; i++ {
		wg.Add(1)
		go func(n int64) {
			defer wg.Done()
			mgr.Observe(n)
		}(i)
	}
	wg.Wait()

	if warns != 1 {
		t.Errorf("warning fired %d times, want 1", warns)
	}
}
