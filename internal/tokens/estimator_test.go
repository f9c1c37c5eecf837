package tokens

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHeuristicEstimate(t *testing.T) {
	est := Heuristic{}

	assert.Equal(t, 0, est.Estimate(""))
	assert.Equal(t, 1, est.Estimate("x"), "non-empty text costs at least one token")
	assert.Equal(t, 25, est.Estimate(strings.Repeat("a", 100)))
}

func TestCountPrefersExplicit(t *testing.T) {
	assert.Equal(t, 42, Count(42, strings.Repeat("a", 1000), Heuristic{}))
	assert.Equal(t, 25, Count(0, strings.Repeat("a", 100), nil))
}
