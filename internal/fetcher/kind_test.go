package fetcher

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKind(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Kind
		wantErr bool
	}{
		{"canonical", "price_daily", KindPriceDaily, false},
		{"upper case", "FINANCIAL_STATEMENT", KindFinancialStatement, false},
		{"table alias", "Price_Data", KindPriceIntraday1m, false},
		{"table alias company", "company_info", KindCompanyProfile, false},
		{"padded", "  intraday_ticks ", KindIntradayTicks, false},
		{"unknown", "dividends", "", true},
		{"empty", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseKind(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseKinds(t *testing.T) {
	kinds, err := ParseKinds([]string{"company_profile", "price_daily", "PRICE_DATA_DAILY", "price_intraday_1m"})
	require.NoError(t, err)
	assert.Equal(t, []Kind{KindPriceIntraday1m, KindPriceDaily, KindCompanyProfile}, kinds)
}

func TestParseKinds_Empty(t *testing.T) {
	_, err := ParseKinds(nil)
	assert.ErrorIs(t, err, ErrNoKinds)
}

func TestParseKinds_Invalid(t *testing.T) {
	_, err := ParseKinds([]string{"price_daily", "bogus", "nope"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bogus")
	assert.Contains(t, err.Error(), "nope")
}

func TestKind_Table(t *testing.T) {
	assert.Equal(t, "price_data", KindPriceIntraday1m.Table())
	assert.Equal(t, "price_data_daily_all", KindPriceDailyHistory.Table())
	assert.Equal(t, "finance_data", KindFinancialStatement.Table())
	assert.False(t, Kind("x").Valid())
	assert.Len(t, AllKinds(), 6)
}

func TestResult_Missing(t *testing.T) {
	res := Result{
		KindPriceDaily: Table{{"time": "2024-01-02"}},
		KindIntradayTicks: Table{
			{"id": 1},
			{"id": 2},
		},
	}

	missing := res.Missing([]Kind{KindPriceDaily, KindCompanyProfile})
	assert.Equal(t, []Kind{KindCompanyProfile}, missing)
	assert.Empty(t, res.Missing([]Kind{KindPriceDaily}))
	assert.Equal(t, 3, res.Rows())
	assert.Equal(t, []Kind{KindPriceDaily, KindIntradayTicks}, res.Kinds())
}
