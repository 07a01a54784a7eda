package connectors

import "testing"

func TestTranslateStatus(t *testing.T) {
	tests := []struct {
		status string
		want   int
	}{
		{"0", 0},
		{" 0 ", 0},
		{"1", 1},
		{"-3", -3},
		{"", -1},
		{"OK", -1},
		{"0x1", -1},
	}

	for _, tt := range tests {
		if got := TranslateStatus(tt.status); got != tt.want {
			t.Errorf("TranslateStatus(%q) = %d, want %d", tt.status, got, tt.want)
		}
	}
}

func TestMESResultOK(t *testing.T) {
	if !(MESResult{Status: "0"}).OK() {
		t.Error("Expected status 0 to be OK")
	}
	if (MESResult{}).OK() {
		t.Error("Expected empty status to fail")
	}
	if (MESResult{Status: "12", Description: "duplicate"}).OK() {
		t.Error("Expected non-zero status to fail")
	}
}
