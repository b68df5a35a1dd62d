package id

import (
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIsSortable(t *testing.T) {
	t.Parallel()

	ids := make([]string, 100)
	for i := range ids {
		ids[i] = New()
	}
	assert.True(t, sort.StringsAreSorted(ids))
	assert.Len(t, ids[0], 26)
}

func TestGeneratorDeterministic(t *testing.T) {
	t.Parallel()

	at := time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC)
	clock := func() time.Time { return at }

	a := NewGenerator(42, clock)
	b := NewGenerator(42, clock)
	for i := 0; i < 5; i++ {
		assert.Equal(t, a.New(), b.New())
	}

	got, err := Time(a.New())
	require.NoError(t, err)
	assert.True(t, got.Equal(at))

	_, err = Time("not-an-id")
	assert.Error(t, err)
}
