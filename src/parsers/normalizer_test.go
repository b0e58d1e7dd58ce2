package parsers

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/username/tradeclean/src/models"
)

func readFixture(t *testing.T, name string) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err)
	return data
}

func TestNormalize_ActivityExport(t *testing.T) {
	res, err := Normalize(readFixture(t, "activity.csv"))
	require.NoError(t, err)

	table := res.Table
	assert.Equal(t,
		[]string{"Activity Date", "Instrument", "Description", "Trans Code", "Quantity", "Price", "Amount"},
		table.Schema.Names())

	amountIdx, ok := table.Schema.Index(models.ColAmount)
	require.True(t, ok)
	assert.Equal(t, models.KindAmount, table.Schema[amountIdx].Kind)

	assert.Equal(t, [][]string{
		{"9/3/2024", "AAPL", "AAPL 9/20/2024 Call $150.00", "STO", "1", "$1.00", "100"},
		{"9/5/2024", "AAPL", "AAPL 9/20/2024 Call $150.00", "BTC", "1", "$0.40", "-40"},
		{"9/6/2024", "TSLA", "TSLA 9/27/2024 Put $200.00", "BTO", "2", "$3.10", "-620"},
		{"9/10/2024", "MSFT", "Cash Div: R/D 2024-08-15 P/D 2024-09-12 - 10 shares at 0.83", "CDIV", "", "", "8.3"},
		{"9/13/2024", "SPY", "SPY 9/20/2024 Call $560.00", "STO", "1", "$2.50", ""},
	}, table.Records())

	assert.Equal(t, []AmountWarning{{Row: 4, Raw: "n/a"}}, res.Warnings)
}

func TestNormalize_InstrumentNeverNull(t *testing.T) {
	input := "Instrument,Amount\nAAPL,1\n,2\n  ,3\nNaN,4\nN/A,5\nTSLA,6\nnull,7\n"
	res, err := Normalize([]byte(input))
	require.NoError(t, err)

	require.Equal(t, 2, res.Table.Len())
	for i := 0; i < res.Table.Len(); i++ {
		v, ok := res.Table.Cell(i, models.ColInstrument)
		require.True(t, ok)
		assert.False(t, IsNull(v.Text))
	}
	assert.Equal(t, [][]string{{"AAPL", "1"}, {"TSLA", "6"}}, res.Table.Records())
}

func TestNormalize_DroppedColumnsNeverAppear(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"both present", "Process Date,Instrument,Settle Date\n1,AAPL,2\n", []string{"Instrument"}},
		{"one present", "Instrument,Settle Date\nAAPL,2\n", []string{"Instrument"}},
		{"none present", "Instrument,Activity Date\nAAPL,1\n", []string{"Instrument", "Activity Date"}},
		{"only dropped columns", "Process Date,Settle Date\n1,2\n", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Normalize([]byte(tt.input))
			require.NoError(t, err)
			names := res.Table.Schema.Names()
			assert.Equal(t, tt.want, names)
			assert.NotContains(t, names, models.ColProcessDate)
			assert.NotContains(t, names, models.ColSettleDate)
		})
	}
}

func TestNormalize_OptionalColumns(t *testing.T) {
	t.Run("no instrument column keeps every row", func(t *testing.T) {
		res, err := Normalize([]byte("Description,Amount\n,$1\nx,$2\n"))
		require.NoError(t, err)
		assert.Equal(t, 2, res.Table.Len())
	})

	t.Run("no amount column skips coercion", func(t *testing.T) {
		res, err := Normalize([]byte("Instrument,Price\nAAPL,$1.00\n"))
		require.NoError(t, err)
		assert.Empty(t, res.Warnings)
		assert.Equal(t, [][]string{{"AAPL", "$1.00"}}, res.Table.Records())
		for _, c := range res.Table.Schema {
			assert.Equal(t, models.KindText, c.Kind)
		}
	})

	t.Run("empty amounts are missing without warnings", func(t *testing.T) {
		res, err := Normalize([]byte("Instrument,Amount\nAAPL,\nTSLA,N/A\n"))
		require.NoError(t, err)
		assert.Empty(t, res.Warnings)
		for i := 0; i < res.Table.Len(); i++ {
			v, _ := res.Table.Cell(i, models.ColAmount)
			assert.False(t, v.Amount.Valid)
		}
	})
}

func TestNormalize_EmptyInput(t *testing.T) {
	res, err := Normalize([]byte("Instrument,Description,Trans Code,Amount\n"))
	require.NoError(t, err)
	assert.Equal(t, 0, res.Table.Len())
	assert.Len(t, res.Table.Schema, 4)
}

func TestNormalize_Failure(t *testing.T) {
	for name, input := range map[string]string{
		"no bytes":    "",
		"ragged rows": "Instrument,Amount\nAAPL,1,2\n",
		"binary":      "Instrument\n\x00\xff\xfe\n",
	} {
		t.Run(name, func(t *testing.T) {
			res, err := Normalize([]byte(input))
			require.Error(t, err)
			assert.Nil(t, res)
			assert.ErrorIs(t, err, ErrNormalizationFailed)
			assert.ErrorIs(t, err, ErrSchema)

			var nerr *NormalizationError
			require.True(t, errors.As(err, &nerr))
			assert.ErrorIs(t, nerr.Err, ErrSchema)
		})
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	tests := []struct {
		name string
		raw  []byte
		rows int
	}{
		{"activity export", readFixture(t, "activity.csv"), -1},
		{"single column with empty cell", []byte("Notes,Process Date\n,1/1\nx,1/2\n"), 2},
		{"amount only with unparsable value", []byte("Amount\n$1\nbad\n"), 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			first, err := Normalize(tt.raw)
			require.NoError(t, err)
			if tt.rows >= 0 {
				require.Equal(t, tt.rows, first.Table.Len())
			}

			encoded, err := EncodeTable(first.Table)
			require.NoError(t, err)

			second, err := Normalize(encoded)
			require.NoError(t, err)

			assert.Equal(t, first.Table.Schema, second.Table.Schema)
			assert.Equal(t, first.Table.Records(), second.Table.Records())
			assert.Empty(t, second.Warnings)
		})
	}
}

func TestNormalize_DoesNotShareInputBuffer(t *testing.T) {
	raw := []byte("Instrument,Amount\nAAPL,$1\n")
	res, err := Normalize(raw)
	require.NoError(t, err)

	copy(raw, "XXXXXXXXXX")
	assert.Equal(t, [][]string{{"AAPL", "1"}}, res.Table.Records())
}
