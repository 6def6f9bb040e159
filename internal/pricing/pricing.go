// Package pricing derives required credit amounts from request size and the
// model-specific price multiplier. The pre-flight quote is used only for the
// admission check; the final debit always uses actual consumption.
package pricing

import (
	"math"

	"vocalize/internal/model"
)

// Per-unit rates in credits.
const (
	// PerMinuteRate is charged per transcribed audio minute.
	PerMinuteRate = 10
	// CloneBasePrice is the flat per-job price for voice cloning.
	CloneBasePrice = 500
)

// Pre-flight transcription estimates are derived from file size: roughly one
// minute of compressed audio per mebibyte, capped at two hours.
const (
	bytesPerEstimatedMinute = 1 << 20
	MaxEstimatedMinutes     = 120
)

// Multiplier returns the price multiplier for a model variant. Turbo variants
// are strictly cheaper.
func Multiplier(m model.Model) float64 {
	switch m {
	case model.ModelTTSTurbo:
		return 0.6
	case model.ModelTranscribeTurbo:
		return 0.5
	case model.ModelCloneTurbo:
		return 0.6
	default:
		return 1.0
	}
}

// Quote is the credit requirement derived for a request. BasisUnits is
// characters for text generation and estimated minutes for transcription.
type Quote struct {
	RequiredCredits int64
	Model           model.Model
	BasisUnits      int64
}

// Estimate computes the pre-flight credit quote for a validated request.
func Estimate(req *model.GenerationRequest) Quote {
	switch req.Kind {
	case model.KindTranscribe:
		minutes := estimatedMinutes(len(req.Audio))
		return Quote{
			RequiredCredits: ceilCredits(float64(minutes)*PerMinuteRate, req.Model),
			Model:           req.Model,
			BasisUnits:      minutes,
		}
	case model.KindVoiceClone:
		return Quote{
			RequiredCredits: ceilCredits(CloneBasePrice, req.Model),
			Model:           req.Model,
			BasisUnits:      1,
		}
	default:
		chars := int64(len([]rune(req.Text)))
		return Quote{
			RequiredCredits: ceilCredits(float64(chars), req.Model),
			Model:           req.Model,
			BasisUnits:      chars,
		}
	}
}

// BilledMinutes converts the duration reported by the prediction service to
// billed minutes, rounding up to the next whole minute. durationSeconds <= 0
// means the service reported nothing and the pre-flight estimate stands.
func BilledMinutes(quote Quote, durationSeconds float64) int64 {
	if durationSeconds <= 0 {
		return quote.BasisUnits
	}
	return int64(math.Ceil(durationSeconds / 60))
}

// Actual recomputes the charge from actual consumption reported by the
// prediction service. For transcription the billed minutes are only known
// after processing; the charge derives from the same BilledMinutes figure
// the caller reports.
func Actual(quote Quote, durationSeconds float64) int64 {
	if quote.Model != model.ModelTranscribe && quote.Model != model.ModelTranscribeTurbo {
		return quote.RequiredCredits
	}
	minutes := BilledMinutes(quote, durationSeconds)
	return ceilCredits(float64(minutes)*PerMinuteRate, quote.Model)
}

func estimatedMinutes(sizeBytes int) int64 {
	minutes := int64(math.Ceil(float64(sizeBytes) / bytesPerEstimatedMinute))
	if minutes < 1 {
		minutes = 1
	}
	if minutes > MaxEstimatedMinutes {
		minutes = MaxEstimatedMinutes
	}
	return minutes
}

func ceilCredits(units float64, m model.Model) int64 {
	credits := int64(math.Ceil(units * Multiplier(m)))
	if credits < 0 {
		credits = 0
	}
	return credits
}
