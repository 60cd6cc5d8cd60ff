package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEstimateCost(t *testing.T) {
	routers := testRouters()

	assert.Equal(t, 0.01, EstimateCost(routers, []string{"DocsSearch"}, "TinyChat"))
	assert.InDelta(t, 0.03, EstimateCost(routers, []string{"DocsSearch", "WikiSearch"}, "TinyChat"), 1e-9)
	assert.Equal(t, 0.0, EstimateCost(routers, nil, ""))
	assert.Equal(t, 0.0, EstimateCost(routers, []string{"Missing"}, "Missing"))
	// A chat-only router contributes nothing as a data source.
	assert.Equal(t, 0.0, EstimateCost(routers, []string{"TinyChat"}, ""))
}

func TestFormatCost(t *testing.T) {
	tests := map[float64]string{
		0:      "$0.00",
		0.01:   "$0.01",
		0.03:   "$0.03",
		1.5:    "$1.50",
		0.0025: "$0.0025",
		12:     "$12.00",
	}
	for in, want := range tests {
		assert.Equal(t, want, FormatCost(in), "FormatCost(%v)", in)
	}
}
