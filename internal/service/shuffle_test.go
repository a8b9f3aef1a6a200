package service

import (
	"testing"

	"turing_arena/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShuffleBuildIsBijection(t *testing.T) {
	b := NewShuffleBuilder(NewSeededSource(42))
	ids := []uint{11, 12, 13, 14}

	for i := 0; i < 50; i++ {
		m, err := b.Build(ids, model.FourChoice)
		require.NoError(t, err)
		require.Len(t, m, 4)

		seen := map[uint]bool{}
		for _, letter := range []string{"A", "B", "C", "D"} {
			id, ok := m[letter]
			require.True(t, ok, "letter %s missing", letter)
			assert.Contains(t, ids, id)
			seen[id] = true
		}
		assert.Len(t, seen, 4)
	}
}

func TestShuffleBuildCoversAllPositions(t *testing.T) {
	b := NewShuffleBuilder(NewSeededSource(7))
	counts := map[string]int{}
	for i := 0; i < 400; i++ {
		m, err := b.Build([]uint{1, 2}, model.TwoChoice)
		require.NoError(t, err)
		letter, ok := m.LetterOf(1)
		require.True(t, ok)
		counts[letter]++
	}
	// 均匀分布下两侧都应明显出现
	assert.Greater(t, counts["A"], 120)
	assert.Greater(t, counts["B"], 120)
}

func TestShuffleBuildRejectsBadInput(t *testing.T) {
	b := NewShuffleBuilder(NewSeededSource(1))

	_, err := b.Build([]uint{1, 2, 3}, model.FourChoice)
	assert.Error(t, err)

	_, err = b.Build([]uint{1, 1}, model.TwoChoice)
	assert.Error(t, err)
}

func TestSampleIDsDistinctAndDoesNotMutate(t *testing.T) {
	rnd := NewSeededSource(3)
	ids := []uint{1, 2, 3, 4, 5, 6}
	orig := append([]uint(nil), ids...)

	got := sampleIDs(rnd, ids, 4)
	require.Len(t, got, 4)
	set := map[uint]bool{}
	for _, id := range got {
		assert.Contains(t, ids, id)
		set[id] = true
	}
	assert.Len(t, set, 4)
	assert.Equal(t, orig, ids)

	assert.Len(t, sampleIDs(rnd, ids, 10), 6)
}
