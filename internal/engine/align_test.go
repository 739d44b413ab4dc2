package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntersect(t *testing.T) {
	a := flatBars(5, 0)
	// days 3, 4, 1: out of order
	b := append(flatBars(2, 3), flatBars(1, 1)...)

	dates, index := Intersect(a, b)
	require.Equal(t, []time.Time{day(1), day(3), day(4)}, dates)
	assert.Equal(t, []int{1, 3, 4}, index[0])
	assert.Equal(t, []int{2, 0, 1}, index[1])
}

func TestIntersect_Empty(t *testing.T) {
	dates, index := Intersect()
	assert.Nil(t, dates)
	assert.Nil(t, index)

	dates, _ = Intersect(flatBars(3, 0), flatBars(3, 10))
	assert.Empty(t, dates)
}

func TestAlign(t *testing.T) {
	al, err := Align(3, flatBars(10, 0), flatBars(10, 2))
	require.NoError(t, err)
	assert.Equal(t, 8, al.Len())

	first, last := al.EntryRange()
	assert.Equal(t, 1, first)
	assert.Equal(t, 4, last)

	from, to := al.Window(last)
	assert.Equal(t, 4, from)
	assert.Equal(t, 6, to)
	assert.Less(t, to, al.Len()-1, "the last aligned day is never inside a holding window")
}

func TestAlign_Insufficient(t *testing.T) {
	_, err := Align(3, flatBars(4, 0), flatBars(4, 0))
	assert.ErrorIs(t, err, ErrInsufficientAlignment)

	_, err = Align(3, flatBars(5, 0), flatBars(5, 0))
	assert.NoError(t, err)
}

func TestAlign_InvalidHorizon(t *testing.T) {
	_, err := Align(0, flatBars(5, 0), flatBars(5, 0))
	assert.ErrorIs(t, err, ErrInvalidConfiguration)
}
