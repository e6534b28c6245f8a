// Package alerts evaluates threshold rules against the live network snapshot
// and delivers webhook notifications (Slack, Teams, generic HTTP) when a rule
// starts or stops firing.
package alerts
