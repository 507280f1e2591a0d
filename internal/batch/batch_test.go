package batch

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/julienbonastre/order-profit/internal/ccapi"
	"github.com/julienbonastre/order-profit/internal/countries"
	"github.com/julienbonastre/order-profit/internal/database"
	"github.com/julienbonastre/order-profit/internal/products"
	"github.com/julienbonastre/order-profit/internal/shipping"
)

type fakeSource struct {
	orders   []ccapi.DispatchOrder
	rules    []ccapi.CourierRule
	rulesErr error
	gotType  int
	gotDays  int
}

func (f *fakeSource) OrdersForDispatch(_ context.Context, orderType, days int) ([]ccapi.DispatchOrder, error) {
	f.gotType, f.gotDays = orderType, days
	return f.orders, nil
}

func (f *fakeSource) CourierRules(context.Context) ([]ccapi.CourierRule, error) {
	return f.rules, f.rulesErr
}

type fakeCatalog struct {
	calls map[string]int
}

func (f *fakeCatalog) Product(_ context.Context, id string) (ccapi.Product, error) {
	f.calls[id]++
	switch id {
	case "9":
		return ccapi.Product{ID: "9", RangeID: "4", SKU: "W-1", FullName: "Widget", VATRate: "20"}, nil
	case "10":
		return ccapi.Product{ID: "10", RangeID: "5", SKU: "B-1", FullName: "Book", VATRate: "0"}, nil
	}
	return ccapi.Product{}, errors.New("API error 404: not found")
}

func (f *fakeCatalog) ProductOptions(_ context.Context, id string) ([]ccapi.ProductOption, error) {
	switch id {
	case "9":
		return []ccapi.ProductOption{{Name: "Purchase Price", Value: "10.00"}, {Name: "Department", Value: "Homeware"}}, nil
	case "10":
		return []ccapi.ProductOption{{Name: "Purchase Price", Value: "2.00"}, {Name: "Department", Value: "Books"}}, nil
	}
	return nil, nil
}

func order(id, gross, rule string, lines ...ccapi.OrderLine) ccapi.DispatchOrder {
	return ccapi.DispatchOrder{
		OrderID:             id,
		CustomerID:          "c" + id,
		DeliveryCountryCode: 1,
		TotalGrossGBP:       decimal.RequireFromString(gross),
		DefaultCSRuleName:   rule,
		Products:            lines,
		DispatchDate:        time.Date(2026, 10, 13, 12, 0, 0, 0, time.UTC),
	}
}

var widget = ccapi.OrderLine{SKU: "W-1", ProductID: "9", Quantity: 1, PerItemWeight: 300}
var book = ccapi.OrderLine{SKU: "B-1", ProductID: "10", Quantity: 1, PerItemWeight: 400}

func newTestService(t *testing.T, src *fakeSource, catalog *fakeCatalog, store RunStore, progress ProgressFunc) *Service {
	t.Helper()
	ref, err := countries.NewReference(
		countries.Country{ID: 1, Name: "United Kingdom", Region: countries.RegionEurope, CurrencyCode: "GBP"},
	)
	require.NoError(t, err)
	return NewService(Config{
		Source:    src,
		Catalog:   catalog,
		Countries: ref,
		Rules:     shipping.NewDefaultRegistry(ref),
		Store:     store,
		Retry:     products.Options{Attempts: 2, Delay: time.Millisecond},
		Progress:  progress,
	})
}

func testSource() *fakeSource {
	return &fakeSource{
		rules: []ccapi.CourierRule{
			{ID: 9585, Name: "Royal Mail 24"},
			{ID: 9584, Name: "Royal Mail 48"},
		},
		orders: []ccapi.DispatchOrder{
			order("1", "20.00", "Royal Mail 24 - Tracked", widget),
			order("2", "0.00", "Royal Mail 24", widget),
			order("3", "50.00", "Royal Mail 48", widget, widget),
			order("4", "15.00", "Carrier Pigeon", book),
			order("5", "8.00", "Royal Mail 48", book),
		},
	}
}

func TestRunProcessesAndRanksOrders(t *testing.T) {
	t.Parallel()

	db, err := database.Open(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	src := testSource()
	catalog := &fakeCatalog{calls: map[string]int{}}
	var progress [][2]int
	svc := newTestService(t, src, catalog, db, func(done, total int) {
		progress = append(progress, [2]int{done, total})
	})

	result, err := svc.Run(context.Background(), Options{LookbackDays: 3})
	require.NoError(t, err)
	require.Equal(t, DefaultOrderType, src.gotType)
	require.Equal(t, 3, src.gotDays)

	require.Equal(t, 1, result.Skipped)
	require.Equal(t, 1, result.Errored)
	require.Len(t, result.Orders, 4)
	require.Equal(t, [][2]int{{1, 4}, {2, 4}, {3, 4}, {4, 4}}, progress)

	// order 1: 2000 - 517 - 1000 - 300 = 183, VAT 400 -> -217
	// order 3: 5000 - 215 - 2000 - 750 = 2035, VAT 1000 -> 1035
	// order 5: 800 - 215 - 200 - 120 = 265, VAT 0 -> 265
	var ids []string
	for _, o := range result.Orders {
		ids = append(ids, o.ID)
	}
	require.Equal(t, []string{"1", "5", "3", "4"}, ids)
	require.True(t, result.Orders[3].Errored())

	// each product fetched once for the whole batch
	require.Equal(t, 1, catalog.calls["9"])
	require.Equal(t, 1, catalog.calls["10"])

	run, err := db.GetRun(context.Background(), result.RunID)
	require.NoError(t, err)
	require.Equal(t, database.StatusSuccess, run.Status)
	require.Equal(t, 4, run.OrdersTotal)
	require.Equal(t, 1, run.OrdersErrored)
	require.Equal(t, 1, run.OrdersSkipped)

	stored, err := db.GetOrderProfits(context.Background(), result.RunID)
	require.NoError(t, err)
	require.Len(t, stored, 4)
	require.Equal(t, "1", stored[0].OrderID)
	require.Contains(t, stored[3].Error, "Carrier Pigeon")
}

func TestRunCacheIsScopedToOneRun(t *testing.T) {
	t.Parallel()

	catalog := &fakeCatalog{calls: map[string]int{}}
	svc := newTestService(t, testSource(), catalog, nil, nil)

	for i := 0; i < 2; i++ {
		_, err := svc.Run(context.Background(), Options{})
		require.NoError(t, err)
	}
	require.Equal(t, 2, catalog.calls["9"])
}

func TestRunFailsWhenCourierRulesUnavailable(t *testing.T) {
	t.Parallel()

	db, err := database.Open(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	src := testSource()
	src.rulesErr = errors.New("failed to get courier rules: API error 503")
	svc := newTestService(t, src, &fakeCatalog{calls: map[string]int{}}, db, nil)

	result, err := svc.Run(context.Background(), Options{})
	require.Error(t, err)
	require.Nil(t, result)

	run, err := db.GetLatestRun(context.Background())
	require.NoError(t, err)
	require.Equal(t, database.StatusFailed, run.Status)
	require.Contains(t, run.ErrorMessage, "503")
	require.NotNil(t, run.CompletedAt)
}

func TestRunStopsWhenCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	svc := newTestService(t, testSource(), &fakeCatalog{calls: map[string]int{}}, nil, func(done, total int) {
		if done == 1 {
			cancel()
		}
	})

	_, err := svc.Run(ctx, Options{})
	require.ErrorIs(t, err, context.Canceled)
}

func TestFilterResends(t *testing.T) {
	t.Parallel()

	kept := FilterResends([]ccapi.DispatchOrder{
		order("1", "0.00", ""),
		order("2", "0.01", ""),
		order("3", "-5.00", ""),
		order("4", "12.50", ""),
	})
	require.Len(t, kept, 2)
	require.Equal(t, "2", kept[0].OrderID)
	require.Equal(t, "4", kept[1].OrderID)
}
