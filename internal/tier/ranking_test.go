package tier

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultDirectionIsHT1Senior(t *testing.T) {
	r := DefaultRanking()

	assert.Equal(t, SeniorFirst, DefaultDirection)
	assert.Equal(t, "HT1", r.Labels()[0])
	assert.Equal(t, "LT5", r.Labels()[len(r.Labels())-1])

	rank, ok := r.Rank("HT1")
	require.True(t, ok)
	assert.Equal(t, 0, rank)
}

func TestHighest(t *testing.T) {
	r := DefaultRanking()

	tests := []struct {
		name   string
		labels []string
		want   string
		wantOK bool
	}{
		{"empty", nil, "", false},
		{"only unknown", []string{"Staff", "Booster"}, "", false},
		{"single", []string{"LT4"}, "LT4", true},
		{"LT3 outranks HT5", []string{"LT3", "HT5"}, "LT3", true},
		{"order independent", []string{"HT5", "LT3"}, "LT3", true},
		{"unknown ignored", []string{"Staff", "LT2", "HT1", "x"}, "HT1", true},
		{"band pairs", []string{"LT1", "HT2"}, "LT1", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := r.Highest(tt.labels)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSeniorLastReversesOrder(t *testing.T) {
	labels := []string{"LT5", "HT5", "LT4", "HT4", "LT3", "HT3", "LT2", "HT2", "LT1", "HT1"}
	r, err := NewRanking(labels, SeniorLast)
	require.NoError(t, err)

	assert.Equal(t, DefaultRanking().Labels(), r.Labels())

	got, ok := r.Highest([]string{"LT3", "HT5"})
	require.True(t, ok)
	assert.Equal(t, "LT3", got)
}

func TestAtLeast(t *testing.T) {
	r := DefaultRanking()

	assert.True(t, r.AtLeast("LT3", "LT3"))
	assert.True(t, r.AtLeast("HT1", "LT3"))
	assert.False(t, r.AtLeast("HT4", "LT3"))
	assert.False(t, r.AtLeast("Staff", "LT3"))
	assert.False(t, r.AtLeast("HT1", "Staff"))
}

func TestNewRankingRejectsBadLadders(t *testing.T) {
	_, err := NewRanking(nil, SeniorFirst)
	assert.Error(t, err)

	_, err = NewRanking([]string{"A", "B", "A"}, SeniorFirst)
	assert.Error(t, err)

	_, err = NewRanking([]string{"A", ""}, SeniorFirst)
	assert.Error(t, err)

	_, err = NewRanking([]string{"A"}, Direction("sideways"))
	assert.Error(t, err)
}

func TestLessSortsUnknownLast(t *testing.T) {
	r := DefaultRanking()

	assert.True(t, r.Less("HT1", "LT1"))
	assert.False(t, r.Less("LT1", "HT1"))
	assert.True(t, r.Less("LT5", "Staff"))
	assert.False(t, r.Less("Staff", "LT5"))
}
