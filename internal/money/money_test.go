package money

import (
	"errors"
	"testing"

	"go-ops-dashboard/internal/apperr"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	c, err := Parse(" mad ")
	require.NoError(t, err)
	assert.Equal(t, MAD, c)

	_, err = Parse("BTC")
	assert.True(t, errors.Is(err, apperr.ErrInvalidInput))
}

func TestRates_Convert(t *testing.T) {
	rates := NewRates(USD)
	require.NoError(t, rates.Set(MAD, decimal.RequireFromString("0.1")))
	require.NoError(t, rates.Set(EUR, decimal.RequireFromString("1.08")))

	t.Run("base currency converts one to one", func(t *testing.T) {
		got, err := rates.Convert(decimal.NewFromInt(250), USD)
		require.NoError(t, err)
		assert.True(t, got.Equal(decimal.NewFromInt(250)))
	})

	t.Run("empty currency means base", func(t *testing.T) {
		got, err := rates.Convert(decimal.NewFromInt(7), "")
		require.NoError(t, err)
		assert.True(t, got.Equal(decimal.NewFromInt(7)))
	})

	t.Run("foreign currency", func(t *testing.T) {
		got, err := rates.Convert(decimal.NewFromInt(300), MAD)
		require.NoError(t, err)
		assert.True(t, got.Equal(decimal.NewFromInt(30)))

		got, err = rates.Convert(decimal.NewFromInt(100), EUR)
		require.NoError(t, err)
		assert.True(t, got.Equal(decimal.NewFromInt(108)))
	})

	t.Run("missing rate", func(t *testing.T) {
		_, err := rates.Convert(decimal.NewFromInt(1), GBP)
		assert.True(t, errors.Is(err, apperr.ErrInvalidInput))
	})
}

func TestRates_Set(t *testing.T) {
	rates := NewRates(EUR)

	assert.Error(t, rates.Set(USD, decimal.Zero))
	assert.NoError(t, rates.Set(EUR, decimal.NewFromInt(5)))

	rate, ok := rates.Rate(EUR)
	assert.True(t, ok)
	assert.True(t, rate.Equal(decimal.NewFromInt(1)), "base rate cannot be overridden")
}

func TestRound(t *testing.T) {
	assert.Equal(t, "10.13", Round(decimal.RequireFromString("10.125")).String())
	assert.Equal(t, "3.33", Round(decimal.NewFromInt(10).Div(decimal.NewFromInt(3))).String())
}
