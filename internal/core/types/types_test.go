package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuantity_ParseJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want Quantity
	}{
		{"integer", `10`, Quantity(100_000)},
		{"decimal", `2.5`, Quantity(25_000)},
		{"string", `"3.0001"`, Quantity(30_001)},
		{"negative", `-0.25`, Quantity(-2_500)},
		{"trailing zeros past scale", `2.500000`, Quantity(25_000)},
		{"null", `null`, Quantity(0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var q Quantity
			require.NoError(t, json.Unmarshal([]byte(tt.in), &q))
			assert.Equal(t, tt.want, q)
		})
	}
}

func TestQuantity_RejectsExcessPrecision(t *testing.T) {
	// A fifth significant decimal cannot be represented; dropping it would
	// change the quantity, so parsing fails instead.
	for _, in := range []string{`2.00009`, `"1.00019"`, `-0.123456`} {
		var q Quantity
		err := json.Unmarshal([]byte(in), &q)
		require.Error(t, err, in)
		assert.Contains(t, err.Error(), "decimal places")
	}
}

func TestQuantity_String(t *testing.T) {
	assert.Equal(t, "2.5000", Quantity(25_000).String())
	assert.Equal(t, "-0.2500", Quantity(-2_500).String())
	assert.Equal(t, "0.0000", Quantity(0).String())
}

func TestQuantity_MarshalJSON(t *testing.T) {
	out, err := json.Marshal(Quantity(100_000))
	require.NoError(t, err)
	assert.Equal(t, "10.0000", string(out))
}

func TestQuantity_Arithmetic(t *testing.T) {
	a := NewQuantityFromFloat64(5)
	b := NewQuantityFromFloat64(3)

	assert.Equal(t, NewQuantityFromFloat64(8), a+b)
	assert.Equal(t, NewQuantityFromFloat64(2), a-b)
	assert.Equal(t, b, a.Min(b))
	assert.Equal(t, a, (-a).Abs())
	assert.True(t, (a - a).IsZero())
}
