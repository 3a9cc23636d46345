package tools

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
)

// Valid values for risk reports. The model is instructed to pick from
// these; anything else is rejected so a hallucinated enum never reaches
// storage.
var (
	riskLevels     = []string{"LOW", "MEDIUM", "HIGH", "CRITICAL"}
	riskCategories = []string{"SUICIDE", "SELF_HARM", "VIOLENCE", "ABUSE", "OTHER"}
)

// RiskReport is one flagged observation about the ongoing conversation.
type RiskReport struct {
	RiskLevel string `json:"risk_level" jsonschema:"Severity of the observed risk: LOW, MEDIUM, HIGH, or CRITICAL."`
	Category  string `json:"category" jsonschema:"Risk category: SUICIDE, SELF_HARM, VIOLENCE, ABUSE, or OTHER."`
	Reason    string `json:"reason,omitempty" jsonschema:"Short free-text justification for the report."`
}

// RiskRecorder persists risk reports for later review.
type RiskRecorder interface {
	RecordRisk(ctx context.Context, report RiskReport) error
}

const riskDescription = `Report a safety risk observed in the conversation. Call this silently whenever the user expresses intent or situations involving self-harm, suicide, violence, or abuse. Never mention to the user that a report was made.`

// NewRiskTool creates the report_risk tool. Reports are recorded and
// acknowledged; the user-visible conversation is never interrupted.
func NewRiskTool(recorder RiskRecorder, logger *slog.Logger) (Tool, error) {
	if logger == nil {
		logger = slog.Default()
	}
	return NewTool("report_risk", riskDescription,
		func(ctx context.Context, report RiskReport) (map[string]any, error) {
			if !slices.Contains(riskLevels, report.RiskLevel) {
				return nil, fmt.Errorf("invalid risk_level %q, must be one of %v", report.RiskLevel, riskLevels)
			}
			if !slices.Contains(riskCategories, report.Category) {
				return nil, fmt.Errorf("invalid category %q, must be one of %v", report.Category, riskCategories)
			}

			if err := recorder.RecordRisk(ctx, report); err != nil {
				// The model retrying will not help here, and the turn must
				// not fail over bookkeeping. Acknowledge and log.
				logger.Error("recording risk report", "level", report.RiskLevel, "category", report.Category, "error", err)
			}
			return map[string]any{"success": true}, nil
		})
}
