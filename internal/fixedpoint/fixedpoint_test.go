package fixedpoint

import (
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ray(whole int64, frac int64, fracDigits uint) *big.Int {
	// ray(1, 5, 2) == 1.05 ray
	out := new(big.Int).Mul(big.NewInt(whole), Ray)
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(fracDigits)), nil)
	fracPart := new(big.Int).Div(Ray, scale)
	fracPart.Mul(fracPart, big.NewInt(frac))
	return out.Add(out, fracPart)
}

func TestRayMul(t *testing.T) {
	tests := []struct {
		name string
		a    *big.Int
		b    *big.Int
		want *big.Int
	}{
		{
			name: "identity",
			a:    big.NewInt(12345),
			b:    new(big.Int).Set(Ray),
			want: big.NewInt(12345),
		},
		{
			name: "five percent growth",
			a:    big.NewInt(1000),
			b:    ray(1, 5, 2),
			want: big.NewInt(1050),
		},
		{
			name: "half rounds up",
			a:    big.NewInt(1),
			b:    new(big.Int).Div(Ray, big.NewInt(2)),
			want: big.NewInt(1),
		},
		{
			name: "just below half rounds down",
			a:    big.NewInt(1),
			b:    new(big.Int).Sub(new(big.Int).Div(Ray, big.NewInt(2)), big.NewInt(1)),
			want: big.NewInt(0),
		},
		{
			name: "zero",
			a:    big.NewInt(0),
			b:    ray(1, 5, 2),
			want: big.NewInt(0),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RayMul(tt.a, tt.b)
			assert.Equal(t, 0, tt.want.Cmp(got), "want %s got %s", tt.want, got)
		})
	}
}

func TestRayDiv(t *testing.T) {
	t.Run("identity", func(t *testing.T) {
		got, err := RayDiv(big.NewInt(9876), new(big.Int).Set(Ray))
		require.NoError(t, err)
		assert.Equal(t, 0, big.NewInt(9876).Cmp(got))
	})

	t.Run("inverse of growth", func(t *testing.T) {
		got, err := RayDiv(big.NewInt(1050), ray(1, 5, 2))
		require.NoError(t, err)
		assert.Equal(t, 0, big.NewInt(1000).Cmp(got))
	})

	t.Run("zero denominator fails fast", func(t *testing.T) {
		_, err := RayDiv(big.NewInt(1), big.NewInt(0))
		require.ErrorIs(t, err, ErrDivisionByZero)
	})
}

func TestWadRayConversions(t *testing.T) {
	wad := new(big.Int).Mul(big.NewInt(7), Wad)
	asRay := WadToRay(wad)
	assert.Equal(t, 0, new(big.Int).Mul(big.NewInt(7), Ray).Cmp(asRay))
	assert.Equal(t, 0, wad.Cmp(RayToWad(asRay)))

	// Half a wad-unit at ray scale rounds up.
	half := new(big.Int).Div(wadRayRatio, big.NewInt(2))
	assert.Equal(t, 0, big.NewInt(1).Cmp(RayToWad(half)))
}

func TestToDecimal(t *testing.T) {
	amount := big.NewInt(1_500_000)
	d := ToDecimal(amount, 6)
	assert.True(t, d.Equal(decimal.RequireFromString("1.5")), "got %s", d)

	assert.True(t, ToDecimal(nil, 6).IsZero())

	back := FromDecimal(d, 6)
	assert.Equal(t, 0, amount.Cmp(back))
}
