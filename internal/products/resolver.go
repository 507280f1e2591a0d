package products

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/julienbonastre/order-profit/internal/ccapi"
)

const (
	DefaultAttempts = 100
	DefaultDelay    = 10 * time.Second

	purchasePriceOption = "Purchase Price"
	departmentOption    = "Department"
)

var (
	ErrProductUnavailable   = errors.New("unable to load product")
	ErrInvalidVATRate       = errors.New("unable to retrieve VAT rate for product")
	ErrMissingPurchasePrice = errors.New("cannot load purchase price for product")
)

// Catalog is the source of inventory product data
type Catalog interface {
	Product(ctx context.Context, id string) (ccapi.Product, error)
	ProductOptions(ctx context.Context, id string) ([]ccapi.ProductOption, error)
}

// Options configures a Resolver
type Options struct {
	// Attempts is how many times each fetch is tried, including the first
	Attempts int
	// Delay is the constant wait between attempts
	Delay  time.Duration
	Logger *zap.Logger
}

// Product is an ordered product with its cost data
type Product struct {
	SKU           string `json:"sku"`
	ProductID     string `json:"productId"`
	RangeID       string `json:"rangeId"`
	Name          string `json:"name"`
	Quantity      int    `json:"quantity"`
	WeightGrams   int    `json:"weightGrams"`   // per item
	PurchasePrice int    `json:"purchasePrice"` // pence per item
	Department    string `json:"department"`
	VATRate       int    `json:"vatRate"`
}

// Line is the structured record of an ordered product
type Line struct {
	SKU       string `json:"sku"`
	ProductID string `json:"product_id"`
	RangeID   string `json:"range_id"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
}

// Record returns the line record for the product
func (p Product) Record() Line {
	return Line{
		SKU:       p.SKU,
		ProductID: p.ProductID,
		RangeID:   p.RangeID,
		Name:      p.Name,
		Quantity:  p.Quantity,
	}
}

type source struct {
	product ccapi.Product
	options []ccapi.ProductOption
}

// Resolver resolves order lines to products. Fetched product data is
// cached for the lifetime of the Resolver, so one Resolver should serve
// exactly one batch. It is not safe for concurrent use.
type Resolver struct {
	catalog Catalog
	opts    Options
	cache   map[string]source
	logger  *zap.Logger
}

// NewResolver creates a Resolver with an empty cache
func NewResolver(catalog Catalog, opts Options) *Resolver {
	if opts.Attempts <= 0 {
		opts.Attempts = DefaultAttempts
	}
	if opts.Delay <= 0 {
		opts.Delay = DefaultDelay
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		catalog: catalog,
		opts:    opts,
		cache:   map[string]source{},
		logger:  logger,
	}
}

// Cached reports whether product data for id has already been fetched
func (r *Resolver) Cached(id string) bool {
	_, ok := r.cache[id]
	return ok
}

// Resolve returns the product for an order line
func (r *Resolver) Resolve(ctx context.Context, line ccapi.OrderLine) (Product, error) {
	src, err := r.load(ctx, line)
	if err != nil {
		return Product{}, err
	}

	purchasePrice, err := sumPurchasePrice(src.options)
	if err != nil {
		return Product{}, fmt.Errorf("%w %s: %w", ErrMissingPurchasePrice, line.SKU, err)
	}

	vatRate, err := strconv.Atoi(strings.TrimSpace(src.product.VATRate))
	if err != nil {
		return Product{}, fmt.Errorf("%w %s", ErrInvalidVATRate, line.SKU)
	}

	return Product{
		SKU:           line.SKU,
		ProductID:     src.product.ID,
		RangeID:       src.product.RangeID,
		Name:          src.product.FullName,
		Quantity:      line.Quantity,
		WeightGrams:   line.PerItemWeight,
		PurchasePrice: purchasePrice,
		Department:    optionValue(src.options, departmentOption),
		VATRate:       vatRate,
	}, nil
}

func (r *Resolver) load(ctx context.Context, line ccapi.OrderLine) (source, error) {
	if src, ok := r.cache[line.ProductID]; ok {
		return src, nil
	}

	var src source
	err := r.withRetry(ctx, "product", line, func(ctx context.Context) (err error) {
		src.product, err = r.catalog.Product(ctx, line.ProductID)
		return err
	})
	if err != nil {
		return source{}, fmt.Errorf("%w %s: %w", ErrProductUnavailable, line.ProductID, err)
	}

	err = r.withRetry(ctx, "product options", line, func(ctx context.Context) (err error) {
		src.options, err = r.catalog.ProductOptions(ctx, line.ProductID)
		return err
	})
	if err != nil {
		return source{}, fmt.Errorf("%w %s: %w", ErrProductUnavailable, line.ProductID, err)
	}

	r.cache[line.ProductID] = src
	return src, nil
}

func (r *Resolver) withRetry(ctx context.Context, what string, line ccapi.OrderLine, fetch func(context.Context) error) error {
	attempt := 0
	b := retry.WithMaxRetries(uint64(r.opts.Attempts-1), retry.NewConstant(r.opts.Delay))
	return retry.Do(ctx, b, func(ctx context.Context) error {
		attempt++
		if err := fetch(ctx); err != nil {
			r.logger.Warn("fetch failed",
				zap.String("resource", what),
				zap.String("product_id", line.ProductID),
				zap.String("sku", line.SKU),
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", r.opts.Attempts),
				zap.Error(err))
			return retry.RetryableError(err)
		}
		return nil
	})
}

// sumPurchasePrice sums every purchase price option, truncating each to pence
func sumPurchasePrice(options []ccapi.ProductOption) (int, error) {
	total := 0
	found := false
	for _, opt := range options {
		if opt.Name != purchasePriceOption {
			continue
		}
		value, err := decimal.NewFromString(strings.TrimSpace(opt.Value))
		if err != nil {
			return 0, fmt.Errorf("invalid value %q", opt.Value)
		}
		total += int(value.Shift(2).IntPart())
		found = true
	}
	if !found {
		return 0, errors.New("no purchase price option")
	}
	return total, nil
}

func optionValue(options []ccapi.ProductOption, name string) string {
	for _, opt := range options {
		if opt.Name == name {
			return opt.Value
		}
	}
	return ""
}
