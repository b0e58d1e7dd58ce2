package parsers

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"$1,234.56", "1234.56"},
		{"($500.00)", "-500"},
		{"-$5.25", "-5.25"},
		{" $42 ", "42"},
		{"1,000,000", "1000000"},
		{"0.01", "0.01"},
		{"($0.00)", "0"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseAmount(tt.in)
			require.NoError(t, err)
			assert.True(t, decimal.RequireFromString(tt.want).Equal(got), "got %s", got)
		})
	}
}

func TestParseAmount_Invalid(t *testing.T) {
	for _, in := range []string{"", "   ", "N/A", "NaN"} {
		_, err := ParseAmount(in)
		assert.ErrorIs(t, err, ErrEmptyAmount, "input %q", in)
	}
	for _, in := range []string{"abc", "$", "n/a", "12.3.4", "1 2", "(5", "5)", "$5)", "((5)", "()", "(5)(6)"} {
		_, err := ParseAmount(in)
		require.Error(t, err, "input %q", in)
		assert.NotErrorIs(t, err, ErrEmptyAmount, "input %q", in)
	}
}

func TestIsNull(t *testing.T) {
	for _, s := range []string{"", " ", "NA", "N/A", "NaN", "nan", "null", "NULL", "None", "#N/A", "<NA>"} {
		assert.True(t, IsNull(s), "%q", s)
	}
	for _, s := range []string{"AAPL", "0", "n/a", "none"} {
		assert.False(t, IsNull(s), "%q", s)
	}
}
