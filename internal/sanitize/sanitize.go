// Package sanitize turns raw operator text into a single-line command before it
// reaches the classifier, the session store, the logs or a terminal.
package sanitize

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	// DefaultMaxInputSize bounds one turn of free text, in bytes.
	DefaultMaxInputSize = 4096
	// EnvMaxInputSize overrides the default.
	EnvMaxInputSize = "DISPATCH_MAX_INPUT_SIZE"
)

var (
	ErrInputTooLarge = errors.New("input exceeds maximum allowed size")
	ErrInvalidUTF8   = errors.New("input contains invalid UTF-8 sequences")
)

// ansiSequence matches CSI escapes such as "\x1b[31m" pasted from a terminal.
var ansiSequence = regexp.MustCompile(`\x1b\[[0-9;?]*[ -/]*[@-~]`)

// typographic maps keyboard punctuation onto what the classifiers match.
var typographic = strings.NewReplacer(
	"\u2018", "'", "\u2019", "'",
	"\u201c", `"`, "\u201d", `"`,
	"\u2013", "-", "\u2014", "-",
)

// Input cleans text with the size limit from the environment or the default.
func Input(text string) (string, error) {
	return Command(text, maxInputSize())
}

// Command rejects text over limit bytes or not valid UTF-8, then drops
// terminal escapes, control and invisible format characters, straightens
// typographic quotes and collapses whitespace runs to one space.
// Oversized text is rejected rather than truncated; a cut command could
// target something else.
func Command(text string, limit int) (string, error) {
	if len(text) > limit {
		return "", fmt.Errorf("%w: size=%d limit=%d", ErrInputTooLarge, len(text), limit)
	}
	if !utf8.ValidString(text) {
		return "", ErrInvalidUTF8
	}

	text = ansiSequence.ReplaceAllString(text, "")
	text = typographic.Replace(text)

	var b strings.Builder
	b.Grow(len(text))
	space := false
	for _, r := range text {
		switch {
		case unicode.IsSpace(r):
			space = b.Len() > 0
			continue
		case unicode.IsControl(r), unicode.Is(unicode.Cf, r):
			continue
		}
		if space {
			b.WriteByte(' ')
			space = false
		}
		b.WriteRune(r)
	}
	return b.String(), nil
}

func maxInputSize() int {
	if val := os.Getenv(EnvMaxInputSize); val != "" {
		if size, err := strconv.Atoi(val); err == nil && size > 0 {
			return size
		}
	}
	return DefaultMaxInputSize
}
