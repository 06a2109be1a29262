package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMemoryItem(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

	t.Run("valid item", func(t *testing.T) {
		t.Parallel()
		item, err := NewMemoryItem("Title", "Prompt", "Answer", "Book", now)
		require.NoError(t, err)

		assert.NotEmpty(t, item.ID)
		assert.Equal(t, "Title", item.Title)
		assert.Equal(t, 1, item.Strength)
		require.Len(t, item.Reviews, 1)
		assert.Equal(t, now, item.Reviews[0].At)
		assert.Empty(t, item.Reviews[0].Confidence)
		assert.Equal(t, now, item.LastReview())
	})

	t.Run("title falls back to prompt", func(t *testing.T) {
		t.Parallel()
		item, err := NewMemoryItem("  ", "Prompt", "", "", now)
		require.NoError(t, err)
		assert.Equal(t, "Prompt", item.Title)
	})

	t.Run("empty prompt", func(t *testing.T) {
		t.Parallel()
		_, err := NewMemoryItem("Title", " ", "", "", now)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrValidation)
		assert.ErrorIs(t, err, ErrEmptyItemPrompt)
	})
}

func TestMemoryItemIDsSortByCreation(t *testing.T) {
	t.Parallel()
	t0 := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	first, err := NewMemoryItem("", "a", "", "", t0)
	require.NoError(t, err)
	second, err := NewMemoryItem("", "b", "", "", t0.Add(time.Second))
	require.NoError(t, err)

	assert.Less(t, first.ID, second.ID)
}

func TestMemoryItemNormalize(t *testing.T) {
	t.Parallel()
	t0 := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	item := &MemoryItem{
		ID:       "x",
		Prompt:   "p",
		Strength: -2,
		Reviews: []ReviewEvent{
			{At: t0.Add(48 * time.Hour), Confidence: ConfidenceConfident},
			{At: t0},
		},
	}
	item.Normalize()

	assert.Equal(t, 1, item.Strength)
	assert.Equal(t, t0, item.Reviews[0].At)
	assert.Equal(t, t0.Add(48*time.Hour), item.LastReview())
}

func TestMemoryItemClone(t *testing.T) {
	t.Parallel()
	item, err := NewMemoryItem("", "p", "", "", time.Now())
	require.NoError(t, err)

	clone := item.Clone()
	clone.Reviews = append(clone.Reviews, ReviewEvent{At: time.Now()})
	clone.Reviews[0].Answer = "changed"

	assert.Len(t, item.Reviews, 1)
	assert.Empty(t, item.Reviews[0].Answer)
}

func TestParseConfidence(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    Confidence
		wantErr bool
	}{
		{"confident", ConfidenceConfident, false},
		{" Unsure ", ConfidenceUnsure, false},
		{"GUESS", ConfidenceGuess, false},
		{"maybe", "", true},
		{"", "", true},
	}

	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			t.Parallel()
			got, err := ParseConfidence(tc.in)
			if tc.wantErr {
				assert.ErrorIs(t, err, ErrInvalidConfidence)
				assert.ErrorIs(t, err, ErrValidation)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}
