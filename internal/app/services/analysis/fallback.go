package analysis

import (
	"encoding/json"

	"github.com/caffe-ja/observer-platform/internal/app/domain/analysis"
)

// FallbackResult returns a conservative static result for requests the
// resolver could not serve. The document carries source "fallback" so
// consumers can tell it apart from model output.
func FallbackResult(req analysis.Request) string {
	var doc map[string]any
	switch req.Kind {
	case analysis.KindTrafficPrediction:
		doc = map[string]any{
			"severity":       "moderate",
			"confidence":     0.3,
			"peak_hours":     []string{"07:00-09:00", "16:00-18:00"},
			"recommendation": "Plan for moderate congestion around opening and closing hours.",
			"source":         "fallback",
		}
	case analysis.KindECJSummary:
		doc = map[string]any{
			"summary":    "Automated summary unavailable. Refer to the source material directly.",
			"key_points": []string{},
			"source":     "fallback",
		}
	case analysis.KindIncidentTriage:
		doc = map[string]any{
			"priority":   "medium",
			"category":   "unclassified",
			"next_steps": []string{"Escalate to the parish coordinator for manual review."},
			"source":     "fallback",
		}
	default:
		doc = map[string]any{"source": "fallback"}
	}

	out, _ := json.Marshal(doc)
	return string(out)
}
