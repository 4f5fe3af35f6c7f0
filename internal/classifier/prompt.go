package classifier

import (
	"fmt"
	"strings"
)

// analysisSchema constrains the engine to the risk-analysis contract.
const analysisSchema = `{
  "type": "OBJECT",
  "properties": {
    "hazardType": {"type": "STRING"},
    "riskLevel": {"type": "STRING", "enum": ["CRITICAL", "HIGH", "MODERATE", "LOW", "NEGLIGIBLE"]},
    "confidenceScore": {"type": "NUMBER"},
    "impactSeverity": {"type": "NUMBER"},
    "impactRadius": {"type": "STRING"},
    "urgencyLevel": {"type": "STRING", "enum": ["IMMEDIATE", "HIGH", "ROUTINE"]},
    "safetyRecommendation": {"type": "ARRAY", "items": {"type": "STRING"}},
    "humanReadableExplanation": {"type": "STRING"},
    "riskFactors": {"type": "ARRAY", "items": {"type": "STRING"}},
    "detectedObjects": {"type": "ARRAY", "items": {"type": "STRING"}},
    "misconductPatterns": {"type": "ARRAY", "items": {"type": "STRING"}},
    "sentimentScore": {"type": "NUMBER"}
  },
  "required": ["hazardType", "riskLevel", "confidenceScore", "impactSeverity",
    "impactRadius", "urgencyLevel", "safetyRecommendation",
    "humanReadableExplanation", "riskFactors"]
}`

// classifyPrompt selects the video- or image-specific instruction set based
// on the evidence MIME type.
func classifyPrompt(mimeType string) string {
	isVideo := strings.Contains(mimeType, "video")

	medium := "imagery"
	focus := "structural damage"
	if isVideo {
		medium = "video sequence"
		focus = "official misconduct/corruption indicators"
	}

	var b strings.Builder
	fmt.Fprintf(&b, `You are the DisasterLens X CivicGuard Autonomous Evidence Engine.
Analyze this %s for structural hazards, civic issues, or %s.

DETECTABLE CLASSES:
- Civic Hazards (Potholes, Road collapse, Drainage overflow, Debris, Leaning poles)
- Structural Risks (Bridge cracks, Building facade fracture, Sinkholes)
- Misconduct/Corruption (Bribery, Officer abuse, Harassment, Extortion, Negligence, Fraudulent works)
`, medium, focus)

	if isVideo {
		b.WriteString("\nExtract motion anomalies, detected objects, and stress intensity.\n")
	}

	b.WriteString(`
Return JSON only.
Assign RiskLevel: CRITICAL, HIGH, MODERATE, LOW.
Assign UrgencyLevel: IMMEDIATE, HIGH, ROUTINE.
Impact Radius: e.g. "50m".
ConfidenceScore: 0.0 to 1.0.

Field details for misconduct: misconductPatterns, sentimentScore (-1 to 1), detectedObjects.`)
	return b.String()
}

func recommendPrompt(caseSummary string) string {
	return fmt.Sprintf(`Review the following incident summary and provide a tactical response strategy for city administrators:
%q
Focus on: Deployment logistics, evacuation needs, and technical stabilization steps. If misconduct is suspected, suggest investigation procedures.`, caseSummary)
}
