// Package config loads and watches the agent configuration file (config.yaml).
//
// Top-level types:
//   - Config{LogLevel, Monitor, Probes, History, Server, Alerts}: full tree
//     parsed from YAML
//   - MonitorConfig: background interval, per-phase timeout, autostart and the
//     cron schedule for unattended full tests
//   - ProbesConfig: real | simulated probe set and every probe target;
//     Options() maps it onto probe.Options
//   - HistoryConfig: JSON file path and retention cap for saved results
//   - AlertsConfig: threshold rules over the live snapshot and webhook
//     targets; WebhookConfig.URL() resolves from the environment
//
// Load(path) reads the YAML file, applies defaults (30s interval, 20s phase
// timeout, ports 8080/50051), then validates levels, enums and the cron spec.
//
// Watch(ctx, path, onChange) uses fsnotify to detect file changes and calls
// onChange with the newly parsed Config. It handles the rename→create pattern
// used by atomic-save editors (vim, VS Code) by re-adding the watch after
// each reload.
package config
