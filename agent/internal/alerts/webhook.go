package alerts

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/linkscope/linkscope/agent/internal/config"
)

// notification is the body posted to generic HTTP webhooks.
type notification struct {
	Source string `json:"source"`
	Alert  Alert  `json:"alert"`
	Metric string `json:"metric"`
	Text   string `json:"text"`
}

// deliver posts a to every hook with a resolvable URL. Failures are logged
// and never reach the caller.
func (e *Engine) deliver(hooks []config.WebhookConfig, a *Alert) {
	text := summary(a)
	for _, wh := range hooks {
		url := wh.URL()
		if url == "" {
			slog.Debug("alerts: webhook url unset, skipping", "type", wh.Type, "url_env", wh.URLEnv)
			continue
		}

		var body any
		switch wh.Type {
		case "slack":
			body = slackBody(a, text)
		case "teams":
			body = teamsBody(a, text)
		case "http":
			body = notification{Source: "linkscope", Alert: *a, Metric: metricOf(a), Text: text}
		default:
			slog.Warn("alerts: unknown webhook type, skipping", "type", wh.Type)
			continue
		}

		if err := e.postJSON(url, body); err != nil {
			slog.Error("alerts: webhook delivery failed", "type", wh.Type, "rule", a.RuleName, "err", err)
			continue
		}
		slog.Debug("alerts: webhook delivered", "type", wh.Type, "rule", a.RuleName, "state", a.State)
	}
}

// summary renders a one-line description of the network condition, e.g.
// "latency_ms is 250.00 (rule slow: latency_ms > 200), status poor".
func summary(a *Alert) string {
	if a.State == StateResolved {
		v := a.Value
		if a.ClearedValue != nil {
			v = *a.ClearedValue
		}
		return fmt.Sprintf("%s recovered to %.2f (rule %s: %s), status %s, down for %s",
			metricOf(a), v, a.RuleName, a.Condition, a.Status, downtime(a))
	}
	return fmt.Sprintf("%s is %.2f (rule %s: %s), status %s",
		metricOf(a), a.Value, a.RuleName, a.Condition, a.Status)
}

func slackBody(a *Alert, text string) map[string]string {
	prefix := severityLabel(a.Severity)
	if a.State == StateResolved {
		prefix = "[RESOLVED]"
	}
	return map[string]string{"text": fmt.Sprintf("*%s* linkscope: %s", prefix, text)}
}

func teamsBody(a *Alert, text string) map[string]any {
	facts := []map[string]string{
		{"name": "Status", "value": string(a.Status)},
		{"name": "Condition", "value": a.Condition},
		{"name": "Value", "value": fmt.Sprintf("%.2f", a.Value)},
		{"name": "Fired", "value": a.FiredAt.UTC().Format(time.RFC3339)},
	}
	if a.ResolvedAt != nil {
		facts = append(facts, map[string]string{"name": "Resolved", "value": a.ResolvedAt.UTC().Format(time.RFC3339)})
	}
	return map[string]any{
		"@type":      "MessageCard",
		"@context":   "http://schema.org/extensions",
		"themeColor": severityColor(a.Severity, a.State),
		"summary":    text,
		"title":      fmt.Sprintf("linkscope: %s %s", a.RuleName, a.State),
		"sections":   []map[string]any{{"text": text, "facts": facts}},
	}
}

func (e *Engine) postJSON(url string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned HTTP %d", resp.StatusCode)
	}
	return nil
}

// metricOf is the snapshot field a rule tests.
func metricOf(a *Alert) string {
	if f := strings.Fields(a.Condition); len(f) > 0 {
		return f[0]
	}
	return ""
}

func downtime(a *Alert) time.Duration {
	if a.ResolvedAt == nil {
		return 0
	}
	return a.ResolvedAt.Sub(a.FiredAt).Round(time.Second)
}

func severityLabel(s string) string {
	switch s {
	case "critical":
		return "[CRITICAL]"
	case "warning":
		return "[WARNING]"
	default:
		return "[INFO]"
	}
}

// severityColor picks the card accent; resolved alerts are always green.
func severityColor(severity, state string) string {
	if state == StateResolved {
		return "2EB67D"
	}
	switch severity {
	case "critical":
		return "FF4F6A"
	case "warning":
		return "FFAB40"
	default:
		return "00D4FF"
	}
}
