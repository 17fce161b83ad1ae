package beagle

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPositionLeq(t *testing.T) {
	assert.True(t, Position{Line: 1, Col: 5}.Leq(Position{Line: 1, Col: 5}))
	assert.True(t, Position{Line: 1, Col: 5}.Leq(Position{Line: 1, Col: 6}))
	assert.True(t, Position{Line: 1, Col: 9}.Leq(Position{Line: 2, Col: 0}))
	assert.False(t, Position{Line: 2, Col: 0}.Leq(Position{Line: 1, Col: 9}))
	assert.False(t, Position{Line: 1, Col: 6}.Leq(Position{Line: 1, Col: 5}))
}

func TestNewBiPosDefaultsLineRegionToSpan(t *testing.T) {
	p := NewBiPos(Position{Line: 3, Col: 1}, Position{Line: 5, Col: 8})
	assert.Equal(t, Position{Line: 3, Col: 5}, p.LineRegion)
	assert.True(t, p.Start.Leq(p.End))
}

func TestWithLineRegionClampsToFileStart(t *testing.T) {
	p := NewBiPos(Position{Line: 1, Col: 0}, Position{Line: 1, Col: 4})
	wide := p.withLineRegion(3)
	assert.Equal(t, 1, wide.LineRegion.Line)
	assert.Equal(t, 2, wide.LineRegion.Col)
}

func TestWithLineRegionWidensAroundStart(t *testing.T) {
	p := NewBiPos(Position{Line: 10, Col: 0}, Position{Line: 12, Col: 4})
	wide := p.withLineRegion(2)
	assert.Equal(t, 8, wide.LineRegion.Line)
	assert.Equal(t, 13, wide.LineRegion.Col)
}

func TestPositionAndBiPosStringFormat(t *testing.T) {
	assert.Equal(t, "3:7", Position{Line: 3, Col: 7}.String())
	p := NewBiPos(Position{Line: 1, Col: 0}, Position{Line: 1, Col: 4})
	assert.Equal(t, "{1:0, 1:4}", p.String())
}
