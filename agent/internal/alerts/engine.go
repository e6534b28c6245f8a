package alerts

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/linkscope/linkscope/agent/internal/config"
	"github.com/linkscope/linkscope/pkg/types"
)

const (
	defaultCooldown = 15 * time.Minute
	maxHistoryLen   = 200
	recentWindow    = time.Hour
)

// Alert states.
const (
	StateFiring   = "firing"
	StateResolved = "resolved"
)

// Alert represents a single alert event produced by the rule engine.
type Alert struct {
	ID        string `json:"id"`
	RuleName  string `json:"rule_name"`
	Condition string `json:"condition"`
	Severity  string `json:"severity"`
	Message   string `json:"message"`
	// Value is the tested field's value when the rule fired; ClearedValue
	// is its value when it resolved.
	Value        float64      `json:"value"`
	ClearedValue *float64     `json:"cleared_value,omitempty"`
	Status       types.Status `json:"status"`
	FiredAt      time.Time    `json:"fired_at"`
	ResolvedAt   *time.Time   `json:"resolved_at,omitempty"`
	State        string       `json:"state"`
}

// Engine evaluates alert rules against network snapshots and delivers
// webhook notifications when rules fire or resolve.
//
// Engine is safe for concurrent use.
type Engine struct {
	mu       sync.Mutex
	rules    []config.AlertRule
	webhooks []config.WebhookConfig
	active   map[string]*Alert    // key: rule name
	lastFire map[string]time.Time // cooldown bookkeeping per rule
	history  []*Alert             // recently resolved alerts

	client *http.Client
	now    func() time.Time
	wg     sync.WaitGroup
}

// New creates an Engine from the alert configuration.
// An Engine with empty rules is valid; Evaluate becomes a no-op.
func New(cfg config.AlertsConfig) *Engine {
	return &Engine{
		rules:    slices.Clone(cfg.Rules),
		webhooks: slices.Clone(cfg.Webhooks),
		active:   make(map[string]*Alert),
		lastFire: make(map[string]time.Time),
		client:   &http.Client{Timeout: 10 * time.Second},
		now:      time.Now,
	}
}

// SetRules swaps in a reloaded configuration. Active alerts whose rule no
// longer exists are dropped without a resolve notification.
func (e *Engine) SetRules(cfg config.AlertsConfig) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.rules = slices.Clone(cfg.Rules)
	e.webhooks = slices.Clone(cfg.Webhooks)

	keep := make(map[string]bool, len(e.rules))
	for _, r := range e.rules {
		keep[r.Name] = true
	}
	for name := range e.active {
		if !keep[name] {
			delete(e.active, name)
			delete(e.lastFire, name)
		}
	}
}

// Evaluate tests all configured rules against snap.
// Alerts that fire are stored and webhook delivery is triggered asynchronously.
// Alerts that were firing but whose condition is now false are resolved.
// Snapshots that have never been measured are ignored.
func (e *Engine) Evaluate(snap types.NetworkSnapshot) {
	if snap.LastUpdated == nil {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	for _, rule := range e.rules {
		key := rule.Name
		fires, value := evalCondition(rule.Condition, &snap)

		if fires {
			cooldown := rule.Cooldown
			if cooldown <= 0 {
				cooldown = defaultCooldown
			}
			if _, firing := e.active[key]; firing {
				continue
			}
			if last, ok := e.lastFire[key]; ok && now.Sub(last) <= cooldown {
				continue
			}
			sev := rule.Severity
			if sev == "" {
				sev = "warning"
			}
			a := &Alert{
				ID:        fmt.Sprintf("%s:%d", rule.Name, now.UnixNano()),
				RuleName:  rule.Name,
				Condition: rule.Condition,
				Severity:  sev,
				Value:     value,
				Status:    snap.Status,
				Message: fmt.Sprintf("[%s] %s fired: %s (value %.2f, status %s)",
					sev, rule.Name, rule.Condition, value, snap.Status),
				FiredAt: now,
				State:   StateFiring,
			}
			e.active[key] = a
			e.lastFire[key] = now

			slog.Warn("alerts: fired",
				"rule", rule.Name,
				"value", value,
				"severity", sev,
			)
			e.dispatch(*a)
			continue
		}

		if a, ok := e.active[key]; ok {
			resolved, cleared := now, value
			a.State = StateResolved
			a.ResolvedAt = &resolved
			a.ClearedValue = &cleared
			a.Status = snap.Status
			delete(e.active, key)

			e.history = append(e.history, a)
			if len(e.history) > maxHistoryLen {
				e.history = e.history[len(e.history)-maxHistoryLen:]
			}

			slog.Info("alerts: resolved", "rule", rule.Name)
			e.dispatch(*a)
		}
	}
}

// Run evaluates every snapshot received on updates until ctx is cancelled
// or updates is closed.
func (e *Engine) Run(ctx context.Context, updates <-chan types.NetworkSnapshot) {
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-updates:
			if !ok {
				return
			}
			e.Evaluate(snap)
		}
	}
}

// Active returns copies of all currently firing alerts plus any alerts
// resolved within the past hour, newest first.
func (e *Engine) Active() []Alert {
	e.mu.Lock()
	defer e.mu.Unlock()

	cutoff := e.now().Add(-recentWindow)
	out := make([]Alert, 0, len(e.active))
	for _, a := range e.active {
		out = append(out, *a)
	}
	for _, a := range e.history {
		if a.ResolvedAt != nil && a.ResolvedAt.After(cutoff) {
			out = append(out, *a)
		}
	}
	slices.SortFunc(out, func(a, b Alert) int { return b.FiredAt.Compare(a.FiredAt) })
	return out
}

// Wait blocks until every in-flight webhook delivery has finished.
func (e *Engine) Wait() { e.wg.Wait() }

// dispatch starts delivery of a to the current webhooks. Callers hold e.mu.
func (e *Engine) dispatch(a Alert) {
	hooks := slices.Clone(e.webhooks)
	if len(hooks) == 0 {
		return
	}
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.deliver(hooks, &a)
	}()
}
