// Package monitor drives the probe set and folds the results into the store.
//
// A Monitor is constructed once per session and handed to whatever drives
// it (the HTTP API, the cron scheduler, main). It offers:
//
//   - RunFullTest: the user-triggered sequence, connectivity → latency →
//     bandwidth → packet loss → analysis, reporting progress at 10, 20, 40,
//     60, 80 and 100 percent.
//   - RunDiagnostics, RunDNSTest, RunRouteAnalysis: the DNS and route probes
//     on their own.
//   - InitialAssessment: a one-off refresh scored with the quick heuristic.
//   - StartMonitoring / StopMonitoring: the background cycle, one pass
//     immediately and then one per interval until stopped.
//
// Every foreground operation raises the loading flag first and clears it on
// the way out, panics included. Individual probe failures never abort a
// sequence; the previous snapshot value is kept instead.
package monitor
