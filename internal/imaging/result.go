package imaging

import "math"

// State is the lifecycle position of the analysis pipeline.
type State string

const (
	StateIdle      State = "idle"
	StateAnalyzing State = "analyzing"
	StateCompleted State = "completed"
)

type Finding struct {
	Label      string  `json:"finding"`
	Confidence float64 `json:"confidence"`
	Severity   string  `json:"severity"`
	Percent    int     `json:"percent"`
}

func newFinding(label string, confidence float64, severity string) Finding {
	return Finding{
		Label:      label,
		Confidence: confidence,
		Severity:   severity,
		Percent:    int(math.Round(confidence * 100)),
	}
}

// AnalysisResult is the payload published when a simulated analysis
// completes.
type AnalysisResult struct {
	ImageLabel      string    `json:"imageType"`
	Findings        []Finding `json:"findings"`
	Recommendations []string  `json:"recommendations"`
}

// StaticResult is the canned payload every analysis produces. It does not
// depend on the uploaded bytes.
func StaticResult() AnalysisResult {
	return AnalysisResult{
		ImageLabel: "Chest X-Ray",
		Findings: []Finding{
			newFinding("Normal heart size", 0.92, "Normal"),
			newFinding("Clear lung fields", 0.88, "Normal"),
			newFinding("No acute abnormalities", 0.85, "Normal"),
		},
		Recommendations: []string{
			"Continue regular monitoring",
			"Maintain healthy lifestyle",
			"Follow up in 6 months",
		},
	}
}

func (r AnalysisResult) clone() AnalysisResult {
	r.Findings = append([]Finding(nil), r.Findings...)
	r.Recommendations = append([]string(nil), r.Recommendations...)
	return r
}
