// Package compute maps raw network measurements to a health rating and a
// local-vs-ISP issue classification.
//
// score.go holds the two status strategies:
//
//   - ComputeStatus, the authoritative post-test score: four bands (download,
//     upload, latency, packet loss) worth up to 25 points each, summed to
//     0–100 and mapped to Excellent ≥90, Good ≥70, Fair ≥50, Poor ≥30,
//     otherwise Offline.
//   - QuickStatus, the threshold heuristic used by the initial assessment.
//
// classify.go holds the two classifiers:
//
//   - ClassifyIssue ("full"): weighted symptoms, confidence is matched
//     weight over evaluated weight.
//   - ClassifyQuick ("quick"): boolean thresholds used by the background
//     cycle, which has no DNS fan-out budget for the full evidence set.
//
// The strategies are calibrated differently on purpose and are not meant to
// agree. advice.go turns a snapshot into troubleshooting steps keyed to the
// same thresholds; stability.go keeps the rolling window of cycle samples.
package compute
