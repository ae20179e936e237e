package diff

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLinesEqualInputs(t *testing.T) {
	assert.Empty(t, Lines("a\nb\n", "a\nb\n"))
}

func TestLinesChangedLine(t *testing.T) {
	lines := Lines("host=web:9999\n", "host=web:8080\n")
	assert.Equal(t, []string{"- host=web:9999", "+ host=web:8080"}, lines)
}

func TestLinesEqualLinesOmitted(t *testing.T) {
	a := "one\ntwo\nthree\n"
	b := "one\nTWO\nthree\n"

	lines := Lines(a, b)
	assert.Equal(t, []string{"- two", "+ TWO"}, lines)
}

func TestLinesInsertOnly(t *testing.T) {
	lines := Lines("one\n", "one\ntwo\n")
	assert.Equal(t, []string{"+ two"}, lines)
}

func TestLinesDeleteOnly(t *testing.T) {
	lines := Lines("one\ntwo\n", "one\n")
	assert.Equal(t, []string{"- two"}, lines)
}

func TestColorizeDisabled(t *testing.T) {
	assert.Equal(t, "- gone", colorize("- gone", false))
	assert.Equal(t, "+ new", colorize("+ new", false))
}
