package main

import (
	"bytes"
	"strings"
	"testing"

	"mailmind_server/core/domain"
)

func TestRunErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  domain.RunStatus
		errs    []string
		wantErr string
	}{
		{"completed", domain.StatusCompleted, nil, ""},
		{"no changes", domain.StatusNoChanges, []string{"ignored"}, ""},
		{"failed with message", domain.StatusFailed, []string{"reply not found", "other"}, "run failed: reply not found"},
		{"failed without message", domain.StatusFailed, nil, "run failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := runErrors(tt.status, tt.errs)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("expected no error, got %v", err)
				}
				return
			}
			if err == nil || err.Error() != tt.wantErr {
				t.Errorf("expected %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestPrintProgress(t *testing.T) {
	var buf bytes.Buffer
	printProgress(&buf)(2, 5, "analyzing refunds")

	if got := strings.TrimSpace(buf.String()); got != "[2/5] analyzing refunds" {
		t.Errorf("expected progress line, got %q", got)
	}
}

func TestCommandsRegistered(t *testing.T) {
	want := []string{"export", "import", "categories", "match", "evolve", "learn"}
	for _, name := range want {
		cmd, _, err := rootCmd.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Errorf("expected command %s, got %v (%v)", name, cmd, err)
		}
	}
}
