// Package costs provides cost calculation for API usage.
package costs

import (
	"os"
	"strconv"
)

// Pricing constants (in cents per unit for precision).
// These can be overridden via environment variables.
var (
	// FishAudioCentsPerMillionBytes is the cost per 1M UTF-8 bytes of text sent to Fish Audio TTS.
	// Default: $15.00/1M bytes = 1500 cents/1M bytes
	FishAudioCentsPerMillionBytes = getEnvFloat("COST_FISH_AUDIO_CENTS_PER_1M_BYTES", 1500.0)

	// GatewayCentsPerGB is the egress cost per GB downloaded from the IPFS gateway.
	// Default: free public gateway
	GatewayCentsPerGB = getEnvFloat("COST_GATEWAY_CENTS_PER_GB", 0.0)
)

// TransferMetrics contains the raw metrics from a voice transfer used for cost calculation.
type TransferMetrics struct {
	TextBytes       int   // UTF-8 bytes sent to synthesis
	DownloadedBytes int64 // Reference audio fetched from the gateway
}

// TransferCosts contains the calculated costs for a voice transfer in thousandths of a cent.
type TransferCosts struct {
	SynthesisMilliCents int
	GatewayMilliCents   int
	TotalMilliCents     int
}

// CalculateTransferCosts computes the costs for a transfer based on usage metrics.
// Single requests cost fractions of a cent, so results are kept in 1/1000 cent.
func CalculateTransferCosts(m TransferMetrics) TransferCosts {
	synthesisCents := (float64(m.TextBytes) / 1_000_000.0) * FishAudioCentsPerMillionBytes
	gatewayCents := (float64(m.DownloadedBytes) / (1 << 30)) * GatewayCentsPerGB

	costs := TransferCosts{
		SynthesisMilliCents: roundToInt(synthesisCents * 1000),
		GatewayMilliCents:   roundToInt(gatewayCents * 1000),
	}
	costs.TotalMilliCents = costs.SynthesisMilliCents + costs.GatewayMilliCents

	return costs
}

// roundToInt rounds a float to the nearest integer.
func roundToInt(f float64) int {
	if f < 0 {
		return int(f - 0.5)
	}
	return int(f + 0.5)
}

// getEnvFloat returns an environment variable as float64, or the default if not set.
func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}
