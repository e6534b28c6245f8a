package compute

import "github.com/linkscope/linkscope/pkg/types"

// Symptom thresholds shared by the classifiers and the troubleshooting
// advice. Changing one changes what the advice says.
const (
	HighLatencyMs      = 200.0
	HighPacketLossPct  = 5.0
	SlowDownloadMbps   = 10.0
	SlowUploadMbps     = 5.0
	MaxDNSFailures     = 1
	symptomWeight      = 2
	confidenceDecision = 50.0
)

// ClassifyIssue is the full classifier used after a one-shot test.
//
// Each matched symptom adds a fixed weight to its axis and to the evaluated
// total. An axis is flagged when its share of the total exceeds 50%. With no
// symptoms the total is zero and both axes report zero confidence.
func ClassifyIssue(downloadMbps, uploadMbps, latencyMs, packetLossPct float64, dns []types.DNSProbeResult) types.ClassificationResult {
	var local, isp, total int

	if latencyMs > HighLatencyMs {
		local += symptomWeight
		total += symptomWeight
	}
	if packetLossPct > HighPacketLossPct {
		local += symptomWeight
		total += symptomWeight
	}
	if dnsFailures(dns) > MaxDNSFailures {
		isp += symptomWeight
		total += symptomWeight
	}
	if downloadMbps < SlowDownloadMbps && uploadMbps < SlowUploadMbps {
		isp += symptomWeight
		total += symptomWeight
	}

	if total == 0 {
		return types.ClassificationResult{}
	}
	localConf := float64(local) / float64(total) * 100
	ispConf := float64(isp) / float64(total) * 100
	return types.ClassificationResult{
		IsLocalIssue:  localConf > confidenceDecision,
		IsISPIssue:    ispConf > confidenceDecision,
		ConfidencePct: max(localConf, ispConf),
	}
}

// ClassifyQuick is the lighter classifier used by the background cycle.
// It carries no confidence; the result is either flagged or not.
func ClassifyQuick(downloadMbps, uploadMbps, latencyMs, packetLossPct float64, dns []types.DNSProbeResult) types.ClassificationResult {
	r := types.ClassificationResult{
		IsLocalIssue: latencyMs > 100 || packetLossPct > 5,
		IsISPIssue:   downloadMbps < 10 || uploadMbps < 1 || dnsFailures(dns) > 0,
	}
	if r.IsLocalIssue || r.IsISPIssue {
		r.ConfidencePct = 100
	}
	return r
}

// dnsFailures counts probes that did not succeed.
func dnsFailures(dns []types.DNSProbeResult) int {
	n := 0
	for _, d := range dns {
		if d.Status != types.ProbeSuccess {
			n++
		}
	}
	return n
}
