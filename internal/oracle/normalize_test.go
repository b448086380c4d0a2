package oracle

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender(t *testing.T) {
	cases := []struct {
		price    float64
		decimals int32
		want     string
	}{
		{1.5, 18, "1500000000000000000"},
		{0, 18, "0"},
		{0.000001, 18, "1000000000000"},
		{123.456, 2, "12345"},
		{0.0000000000000000001, 18, "0"},
		{42, 0, "42"},
		{1e-7, 18, "100000000000"},
	}
	for _, tc := range cases {
		got, err := Render(tc.price, tc.decimals)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, "Render(%v, %d)", tc.price, tc.decimals)
	}
}

func TestRenderTruncates(t *testing.T) {
	got, err := Render(1.999, 2)
	require.NoError(t, err)
	assert.Equal(t, "199", got)
}

func TestRenderRejectsInvalidInput(t *testing.T) {
	_, err := Render(math.NaN(), 18)
	assert.ErrorIs(t, err, ErrInvalidSample)

	_, err = Render(-1, 18)
	assert.ErrorIs(t, err, ErrInvalidSample)

	_, err = Render(1, -1)
	assert.ErrorIs(t, err, ErrInvalidDecimals)
}
