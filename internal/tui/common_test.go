package tui

import (
	"testing"
	"time"
)

func TestFormatters(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"short id", ShortID("0123456789abcdef"), "01234567"},
		{"short id untouched", ShortID("abc"), "abc"},
		{"date", FormatDate(time.Date(2026, 3, 9, 23, 0, 0, 0, time.UTC)), "2026-03-09"},
		{"zero date", FormatDate(time.Time{}), "-"},
		{"money", FormatMoney(1250), "$1250.00"},
		{"money cents", FormatMoney(9.5), "$9.50"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %q, want %q", tt.name, tt.got, tt.want)
		}
	}
}
