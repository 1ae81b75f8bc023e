package api

import (
	"net/http/httptest"
	"testing"
)

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
		ok     bool
	}{
		{"Bearer abc.def.ghi", "abc.def.ghi", true},
		{"Bearer   padded  ", "padded", true},
		{"Bearer ", "", false},
		{"Bearer", "", false},
		{"bearer abc", "", false},
		{"Basic abc", "", false},
		{"Bearer two tokens", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			got, ok := bearerToken(tt.header)
			if got != tt.want || ok != tt.ok {
				t.Errorf("bearerToken(%q) = %q, %v, want %q, %v", tt.header, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestPeriodID(t *testing.T) {
	tests := []struct {
		query string
		want  int64
		ok    bool
	}{
		{"period_id=42", 42, true},
		{"dot_id=42", 42, true},
		{"period_id=7&dot_id=42", 7, true},
		{"period_id=%2042%20", 42, true},
		{"period_id=abc", 0, false},
		{"period_id=0", 0, false},
		{"period_id=-1", 0, false},
		{"period_id=99999999999999999999", 0, false},
		{"", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/aggregated?"+tt.query, nil)
			got, ok := periodID(r)
			if got != tt.want || ok != tt.ok {
				t.Errorf("periodID(%q) = %d, %v, want %d, %v", tt.query, got, ok, tt.want, tt.ok)
			}
		})
	}
}
