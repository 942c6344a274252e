package values

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMoney(t *testing.T) {
	tests := []struct {
		name     string
		amount   string
		currency string
		wantErr  bool
	}{
		{"valid VND", "1000000", "VND", false},
		{"valid USD", "10.50", "USD", false},
		{"lowercase currency normalized", "5", "vnd", false},
		{"empty currency", "1", "", true},
		{"bad currency length", "1", "VNDD", true},
		{"unsupported currency", "1", "XXX", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := NewMoneyFromString(tt.amount, tt.currency)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, decimal.RequireFromString(tt.amount).Equal(m.Amount()),
				"got %s", m.Amount())
			assert.Len(t, m.Currency(), 3)
		})
	}
}

func TestMoney_IsMultipleOf(t *testing.T) {
	step := MustNewMoneyFromInt(100_000, VND)

	tests := []struct {
		name   string
		amount int64
		want   bool
	}{
		{"exact multiple", 300_000, true},
		{"zero is a multiple", 0, true},
		{"not a multiple", 250_000, false},
		{"negative is never a multiple", -100_000, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := MustNewMoneyFromInt(tt.amount, VND)
			assert.Equal(t, tt.want, m.IsMultipleOf(step))
		})
	}

	t.Run("currency mismatch", func(t *testing.T) {
		m := MustNewMoneyFromInt(100, USD)
		assert.False(t, m.IsMultipleOf(step))
	})
}

func TestMoney_FloorToStep(t *testing.T) {
	base := MustNewMoneyFromInt(1_000_000, VND)
	step := MustNewMoneyFromInt(100_000, VND)

	tests := []struct {
		name   string
		amount int64
		want   int64
	}{
		{"on grid stays", 1_300_000, 1_300_000},
		{"between steps floors", 1_350_000, 1_300_000},
		{"just above base", 1_010_000, 1_000_000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := MustNewMoneyFromInt(tt.amount, VND)
			got := m.FloorToStep(base, step)
			assert.True(t, got.Equal(MustNewMoneyFromInt(tt.want, VND)), "got %s", got)
		})
	}
}

func TestMoney_Comparisons(t *testing.T) {
	a := MustNewMoneyFromInt(100, VND)
	b := MustNewMoneyFromInt(200, VND)

	assert.True(t, a.LessThan(b))
	assert.True(t, b.GreaterThan(a))
	assert.Equal(t, a, a.Min(b))
	assert.True(t, a.MustAdd(a).Equal(b))
	assert.True(t, b.MustSub(a).Equal(a))

	assert.Panics(t, func() {
		a.Compare(MustNewMoneyFromInt(100, USD))
	})
}

func TestMoney_JSONRoundTrip(t *testing.T) {
	m := MustNewMoney(decimal.RequireFromString("1234567.89"), USD)

	data, err := m.MarshalJSON()
	require.NoError(t, err)

	var out Money
	require.NoError(t, out.UnmarshalJSON(data))
	assert.True(t, m.Equal(out))
}
