package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSplitCSV(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", []string{}},
		{"a", []string{"a"}},
		{" a , b ,, c,", []string{"a", "b", "c"}},
		{" , ", []string{}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SplitCSV(tt.in), "input %q", tt.in)
	}
}

func TestTruncateString(t *testing.T) {
	assert.Equal(t, "short", TruncateString("short", 10))
	assert.Equal(t, "abcdefg...", TruncateString("abcdefghijklmnop", 10))
	assert.Equal(t, "ab", TruncateString("abcdef", 2))
	assert.Equal(t, "héllo w...", TruncateString("héllo wörld again", 10))
}

func TestFormatOptionalTimestamp(t *testing.T) {
	assert.Nil(t, FormatOptionalTimestamp(nil))

	ts := time.Date(2024, 1, 15, 16, 0, 0, 500, time.FixedZone("IST", 19800))
	got := FormatOptionalTimestamp(&ts)
	if assert.NotNil(t, got) {
		assert.Equal(t, "2024-01-15T10:30:00.0000005Z", *got)
	}
}
