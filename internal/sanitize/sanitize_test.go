package sanitize

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInput_SizeLimit(t *testing.T) {
	tests := []struct {
		name      string
		inputSize int
		wantErr   bool
	}{
		{"Under Limit", DefaultMaxInputSize - 1, false},
		{"Exact Limit", DefaultMaxInputSize, false},
		{"Over Limit", DefaultMaxInputSize + 1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Input(strings.Repeat("a", tt.inputSize))
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInputTooLarge)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestInput_EnvOverride(t *testing.T) {
	t.Setenv(EnvMaxInputSize, "10")
	_, err := Input("cancel the harbor loop")
	assert.ErrorIs(t, err, ErrInputTooLarge)

	t.Setenv(EnvMaxInputSize, "nope")
	_, err = Input("cancel the harbor loop")
	assert.NoError(t, err, "invalid override falls back to the default")
}

func TestInput_Cleaning(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"Normal Text", "cancel trip 101", "cancel trip 101"},
		{"Whitespace Collapsed", "  cancel\n the\tHarbor   Loop \r\n", "cancel the Harbor Loop"},
		{"ANSI Code", "\x1b[31mRed\x1b[0m", "Red"},
		{"Lone Escape", "Bus\x1b 7", "Bus 7"},
		{"Null Byte", "Null\x00Byte", "NullByte"},
		{"Bell", "Ding\x07", "Ding"},
		{"Zero Width Space", "Harbor\u200bLoop", "HarborLoop"},
		{"Bidi Override", "Night \u202eOwl", "Night Owl"},
		{"Smart Quotes", "cancel \u201cCity Shuttle\u201d, don\u2019t wait", `cancel "City Shuttle", don't wait`},
		{"Only Whitespace", " \t\n ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Input(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestCommand_ExplicitLimit(t *testing.T) {
	_, err := Command("assign Bus 7", 5)
	assert.ErrorIs(t, err, ErrInputTooLarge)

	got, err := Command("assign Bus 7", 64)
	require.NoError(t, err)
	assert.Equal(t, "assign Bus 7", got)
}

func TestInput_InvalidUTF8(t *testing.T) {
	_, err := Input("bad \xff byte")
	assert.ErrorIs(t, err, ErrInvalidUTF8)
}
