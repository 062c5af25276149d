package cmd

import (
	"strings"
	"testing"

	"github.com/prvlabs/prva/internal/rag"
)

func TestParseRateBurst(t *testing.T) {
	tests := []struct {
		name string
		env  string
		want int
	}{
		{"unset", "", 0},
		{"valid", "120", 120},
		{"not a number", "sixty", 0},
		{"negative", "-5", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("PRVA_RATE_BURST", tt.env)
			if got := parseRateBurst(); got != tt.want {
				t.Errorf("parseRateBurst() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestPrintReports(t *testing.T) {
	ok := rag.DocumentReport{SourceID: "a.txt", Status: rag.StatusComplete, Chunks: 3}
	skipped := rag.DocumentReport{SourceID: "b.txt", Status: rag.StatusSkipped, Detail: "empty document"}
	failed := rag.DocumentReport{SourceID: "c.txt", Status: rag.StatusFailed, Detail: "embedder down"}

	if err := printReports([]rag.DocumentReport{ok, skipped}); err != nil {
		t.Errorf("printReports() without failures error: %v", err)
	}

	err := printReports([]rag.DocumentReport{ok, failed, failed})
	if err == nil {
		t.Fatal("printReports() with failures expected error")
	}
	if !strings.Contains(err.Error(), "2 of 3") {
		t.Errorf("error = %v, want failure count", err)
	}
}
