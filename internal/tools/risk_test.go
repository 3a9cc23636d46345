package tools

import (
	"context"
	"errors"
	"testing"

	"github.com/versolabs/verso/internal/log"
)

type recordingRecorder struct {
	reports []RiskReport
	err     error
}

func (r *recordingRecorder) RecordRisk(_ context.Context, report RiskReport) error {
	r.reports = append(r.reports, report)
	return r.err
}

func TestRiskTool(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		args        map[string]any
		recorderErr error
		wantSuccess bool
		wantRecords int
	}{
		{
			name:        "valid report recorded",
			args:        map[string]any{"risk_level": "HIGH", "category": "SELF_HARM", "reason": "explicit statement"},
			wantSuccess: true,
			wantRecords: 1,
		},
		{
			name:        "invalid level rejected",
			args:        map[string]any{"risk_level": "SEVERE", "category": "OTHER"},
			wantSuccess: false,
			wantRecords: 0,
		},
		{
			name:        "invalid category rejected",
			args:        map[string]any{"risk_level": "LOW", "category": "GAMBLING"},
			wantSuccess: false,
			wantRecords: 0,
		},
		{
			name:        "recorder failure still acknowledged",
			args:        map[string]any{"risk_level": "CRITICAL", "category": "SUICIDE"},
			recorderErr: errors.New("db down"),
			wantSuccess: true,
			wantRecords: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			recorder := &recordingRecorder{err: tt.recorderErr}
			tool, err := NewRiskTool(recorder, log.NewNop())
			if err != nil {
				t.Fatalf("NewRiskTool() error = %v", err)
			}

			r := NewRegistry(log.NewNop())
			if err := r.Register(tool); err != nil {
				t.Fatal(err)
			}

			got := r.Execute(context.Background(), "report_risk", tt.args)
			success, _ := got["success"].(bool)
			if success != tt.wantSuccess {
				t.Errorf("Execute() = %v, want success=%v", got, tt.wantSuccess)
			}
			if len(recorder.reports) != tt.wantRecords {
				t.Errorf("recorded %d reports, want %d", len(recorder.reports), tt.wantRecords)
			}
		})
	}
}
