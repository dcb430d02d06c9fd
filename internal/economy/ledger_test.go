package economy

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedgerCreditDebit(t *testing.T) {
	l := NewLedger()
	assert.Zero(t, l.Get(Gold))

	l.Credit(Wood, 12.5)
	l.Credit(Wood, -3)
	l.Credit(Wood, math.NaN())
	assert.Equal(t, 12.5, l.Get(Wood))

	require.NoError(t, l.Debit(Wood, 2.5))
	assert.Equal(t, 10.0, l.Get(Wood))

	err := l.Debit(Wood, 11)
	var ire *InsufficientResourcesError
	require.ErrorAs(t, err, &ire)
	assert.True(t, errors.Is(err, ErrInsufficientResources))
	assert.Equal(t, Wood, ire.Resource)
	assert.Equal(t, 11.0, ire.Required)
	assert.Equal(t, 10.0, ire.Available)
	assert.Equal(t, 1.0, ire.Missing())
	assert.Equal(t, 10.0, l.Get(Wood), "failed debit must not change the balance")

	assert.ErrorIs(t, l.Debit(Wood, -1), ErrInvalidAmount)
}

func TestLedgerDebitAllIsAtomic(t *testing.T) {
	l := Ledger{Food: 100, Wood: 50, Stone: 30}
	before := l.Clone()

	err := l.DebitAll(Ledger{Wood: 40, Stone: 31})
	var ire *InsufficientResourcesError
	require.ErrorAs(t, err, &ire)
	assert.Equal(t, Stone, ire.Resource)
	assert.True(t, l.Equal(before), "no line may be paid when another fails")

	require.NoError(t, l.DebitAll(Ledger{Wood: 40, Stone: 30}))
	assert.Equal(t, 10.0, l.Get(Wood))
	assert.Equal(t, 0.0, l.Get(Stone))
	assert.Equal(t, 100.0, l.Get(Food))
}

func TestLedgerCoversReportsFirstShortfallInOrder(t *testing.T) {
	l := Ledger{}
	err := l.Covers(Ledger{Stone: 1, Food: 1, Wood: 1})
	var ire *InsufficientResourcesError
	require.ErrorAs(t, err, &ire)
	assert.Equal(t, Food, ire.Resource)
}

func TestLedgerDrainAndAdjustClamp(t *testing.T) {
	l := Ledger{Food: 5}
	assert.Equal(t, 5.0, l.Drain(Food, 30))
	assert.Equal(t, 0.0, l.Get(Food))
	assert.Equal(t, 0.0, l.Drain(Food, -1))

	l[Wood] = 10
	assert.Equal(t, -10.0, l.Adjust(Wood, -20))
	assert.Equal(t, 0.0, l.Get(Wood))
	assert.Equal(t, 15.0, l.Adjust(Wood, 15))
	assert.Equal(t, 15.0, l.Get(Wood))
}

func TestLedgerRounded(t *testing.T) {
	l := Ledger{Food: 89.99999999999, Wood: 3.7}
	r := l.Rounded()
	assert.Equal(t, int64(90), r[Food])
	assert.Equal(t, int64(3), r[Wood])
	assert.Equal(t, int64(0), r[Gold])
}

func TestResourceText(t *testing.T) {
	for _, r := range Resources {
		b, err := r.MarshalText()
		require.NoError(t, err)
		var back Resource
		require.NoError(t, back.UnmarshalText(b))
		assert.Equal(t, r, back)
	}
	_, err := ParseResource("mithril")
	assert.Error(t, err)
}
