package countries

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type countingRates struct {
	rates StaticRates
	calls map[string]int
}

func (c *countingRates) Rate(ctx context.Context, code string) (decimal.Decimal, error) {
	c.calls[code]++
	return c.rates.Rate(ctx, code)
}

func testRates() *countingRates {
	return &countingRates{
		rates: StaticRates{
			"EUR": decimal.RequireFromString("0.85"),
			"SEK": decimal.RequireFromString("0.074"),
			"USD": decimal.RequireFromString("0.79"),
			"CAD": decimal.RequireFromString("0.58"),
			"AUD": decimal.RequireFromString("0.52"),
			"JPY": decimal.RequireFromString("0.0053"),
			"NOK": decimal.RequireFromString("0.073"),
			"CHF": decimal.RequireFromString("0.89"),
		},
		calls: map[string]int{},
	}
}

func TestLoadDefaultTable(t *testing.T) {
	t.Parallel()

	rates := testRates()
	ref, err := LoadDefault(context.Background(), rates)
	require.NoError(t, err)

	uk, err := ref.Lookup(1)
	require.NoError(t, err)
	require.Equal(t, "United Kingdom", uk.Name)
	require.Equal(t, RegionEurope, uk.Region)
	require.True(t, uk.CurrencyRate.Equal(decimal.NewFromInt(1)))
	require.Zero(t, uk.MinChannelFee)
	require.Empty(t, uk.Services)

	france, err := ref.Lookup(3)
	require.NoError(t, err)
	require.True(t, france.CurrencyRate.Equal(decimal.RequireFromString("0.85")))
	// 0.30 EUR * 0.85 = 0.255 GBP -> 25 pence
	require.Equal(t, 25, france.MinChannelFee)
	svc, err := france.Service("PAK")
	require.NoError(t, err)
	require.Equal(t, Service{ItemPrice: 325, KGPrice: 610}, svc)

	for code, n := range rates.calls {
		require.Equal(t, 1, n, "currency %s resolved more than once", code)
	}
	require.NotContains(t, rates.calls, "GBP")
}

func TestLookupUnknownCountry(t *testing.T) {
	t.Parallel()

	ref, err := LoadDefault(context.Background(), testRates())
	require.NoError(t, err)

	_, err = ref.Lookup(9999)
	require.ErrorIs(t, err, ErrUnknownCountry)
}

func TestMissingServiceIsAnError(t *testing.T) {
	t.Parallel()

	ref, err := LoadDefault(context.Background(), testRates())
	require.NoError(t, err)

	japan, err := ref.Lookup(23)
	require.NoError(t, err)
	_, err = japan.Service("PAP")
	require.ErrorIs(t, err, ErrServiceNotConfigured)
	require.Contains(t, err.Error(), "Japan")
}

func TestLoadRejectsDuplicateIDs(t *testing.T) {
	t.Parallel()

	table := "ID,Country,Region,ISO Code,Currency,Min Channel Fee\n" +
		"1,United Kingdom,EU,GB,GBP,0\n" +
		"1,Also United Kingdom,EU,GB,GBP,0\n"
	_, err := Load(context.Background(), strings.NewReader(table), nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "duplicate country id 1")
}

func TestLoadFailsWhenRateUnavailable(t *testing.T) {
	t.Parallel()

	table := "ID,Country,Region,ISO Code,Currency,Min Channel Fee\n" +
		"3,France,EU,FR,EUR,0.30\n"
	_, err := Load(context.Background(), strings.NewReader(table), StaticRates{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "EUR")
}

func TestLoadNoCurrencyHasNoMinimumFee(t *testing.T) {
	t.Parallel()

	table := "ID,Country,Region,ISO Code,Currency,Min Channel Fee\n" +
		"14,Guernsey,EU,GG,,5\n"
	ref, err := Load(context.Background(), strings.NewReader(table), nil)
	require.NoError(t, err)
	c, err := ref.Lookup(14)
	require.NoError(t, err)
	require.Zero(t, c.MinChannelFee)
}

func TestServiceCalculatePrice(t *testing.T) {
	t.Parallel()

	svc := Service{ItemPrice: 300, KGPrice: 550}
	require.Equal(t, 300, svc.CalculatePrice(0))
	require.Equal(t, 300+275, svc.CalculatePrice(500))
	// 999g * 550 / 1000 = 549.45 -> 549
	require.Equal(t, 300+549, svc.CalculatePrice(999))

	prev := svc.CalculatePrice(0)
	for w := 1; w <= 5000; w += 7 {
		p := svc.CalculatePrice(w)
		require.GreaterOrEqual(t, p, prev, "price decreased at %dg", w)
		prev = p
	}
}

func TestIDsInRegion(t *testing.T) {
	t.Parallel()

	ref, err := LoadDefault(context.Background(), testRates())
	require.NoError(t, err)

	row := ref.IDsInRegion(RegionRestOfWorld)
	require.Equal(t, []int{20, 21, 22, 23, 24, 25}, row)
	for _, id := range ref.IDsInRegion(RegionEurope) {
		require.NotContains(t, row, id)
	}
	require.Len(t, ref.IDs(), len(ref.Countries()))
}

func TestStaticRatesUnknownCurrency(t *testing.T) {
	t.Parallel()

	_, err := StaticRates{}.Rate(context.Background(), "XYZ")
	require.Error(t, err)
	require.False(t, errors.Is(err, ErrUnknownCountry))
}
