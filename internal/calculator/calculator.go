package calculator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/julienbonastre/order-profit/internal/ccapi"
	"github.com/julienbonastre/order-profit/internal/countries"
	"github.com/julienbonastre/order-profit/internal/products"
	"github.com/julienbonastre/order-profit/internal/shipping"
)

const (
	// ChannelFeePercent is the selling channel's commission on the gross price
	ChannelFeePercent = 15

	mixedDepartment = "Mixed"
	ruleNameSep     = " - "
)

var ErrNoCourierRule = errors.New("no courier rule found")

// ProductResolver resolves order lines to products
type ProductResolver interface {
	Resolve(ctx context.Context, line ccapi.OrderLine) (products.Product, error)
}

// Deps holds the collaborators a Calculator needs
type Deps struct {
	Countries    *countries.Reference
	Rules        *shipping.Registry
	Products     ProductResolver
	CourierRules []ccapi.CourierRule
	Logger       *zap.Logger
}

// Calculator computes the profit and loss of dispatched orders
type Calculator struct {
	deps   Deps
	logger *zap.Logger
}

// NewCalculator creates a Calculator
func NewCalculator(deps Deps) *Calculator {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Calculator{deps: deps, logger: logger}
}

// Calculate builds the profit and loss breakdown for one order. A
// failure never escapes: it is logged and the order is returned errored.
func (c *Calculator) Calculate(ctx context.Context, raw ccapi.DispatchOrder) Order {
	order := Order{
		ID:           raw.OrderID,
		CustomerID:   raw.CustomerID,
		DateReceived: raw.DateReceived,
		DispatchDate: raw.DispatchDate,
		CountryID:    raw.DeliveryCountryCode,
		Price:        GrossPence(raw.TotalGrossGBP),
	}

	processed, err := c.process(ctx, raw, order)
	if err != nil {
		c.logger.Error("failed to process order",
			zap.String("order_id", raw.OrderID),
			zap.Int("country_id", raw.DeliveryCountryCode),
			zap.String("courier_rule", raw.DefaultCSRuleName),
			zap.Error(err))
		order.Err = err
		if country, lookupErr := c.deps.Countries.Lookup(raw.DeliveryCountryCode); lookupErr == nil {
			order.Country = country
		}
		return order
	}
	return processed
}

func (c *Calculator) process(ctx context.Context, raw ccapi.DispatchOrder, o Order) (Order, error) {
	country, err := c.deps.Countries.Lookup(raw.DeliveryCountryCode)
	if err != nil {
		return Order{}, fmt.Errorf("order %s: %w", raw.OrderID, err)
	}
	o.Country = country

	for _, line := range raw.Products {
		p, err := c.deps.Products.Resolve(ctx, line)
		if err != nil {
			return Order{}, fmt.Errorf("order %s: %w", raw.OrderID, err)
		}
		o.Products = append(o.Products, p)
	}

	o.Department = department(o.Products)
	for _, p := range o.Products {
		o.WeightGrams += p.WeightGrams * p.Quantity
		o.ItemCount += p.Quantity
		o.PurchasePrice += p.PurchasePrice * p.Quantity
	}
	o.VATRate = vatRate(country, o.Products)

	ruleID, err := c.courierRuleID(raw)
	if err != nil {
		return Order{}, err
	}
	rule, err := c.deps.Rules.Resolve(country.ID, ruleID)
	if err != nil {
		return Order{}, fmt.Errorf("order %s: %w", raw.OrderID, err)
	}
	o.Rule = rule

	o.PostagePrice, err = rule.Price(shipping.Shipment{
		OrderID:     raw.OrderID,
		Country:     country,
		WeightGrams: o.WeightGrams,
	})
	if err != nil {
		return Order{}, err
	}

	o.ChannelFee = ChannelFee(o.Price, country.MinChannelFee)
	if rule.IsValidService() {
		o.Profit = o.Price - o.PostagePrice - o.PurchasePrice - o.ChannelFee
	}

	if o.VATRate != nil {
		vat := o.Price * *o.VATRate / 100
		profitAfterVAT := 0
		if rule.IsValidService() {
			profitAfterVAT = o.Profit - vat
		}
		o.VAT = &vat
		o.ProfitAfterVAT = &profitAfterVAT
	}
	return o, nil
}

// courierRuleID maps the order's default courier rule name to its id.
// Only the text before the first " - " names the rule.
func (c *Calculator) courierRuleID(raw ccapi.DispatchOrder) (int, error) {
	name, _, _ := strings.Cut(raw.DefaultCSRuleName, ruleNameSep)
	for _, r := range c.deps.CourierRules {
		if r.Name == name {
			return r.ID, nil
		}
	}
	return 0, fmt.Errorf("%w with name %s for order %s", ErrNoCourierRule, name, raw.OrderID)
}

// GrossPence converts a GBP amount to whole pence, truncating
func GrossPence(gbp decimal.Decimal) int {
	return int(gbp.Shift(2).IntPart())
}

// ChannelFee returns the channel commission on price, never below minFee
func ChannelFee(price, minFee int) int {
	fee := price * ChannelFeePercent / 100
	if fee < minFee {
		return minFee
	}
	return fee
}

// vatRate is 0 outside the EU region. Otherwise it is the single rate
// shared by every product, or nil when the products disagree.
func vatRate(country countries.Country, list []products.Product) *int {
	if country.IsRestOfWorld() {
		zero := 0
		return &zero
	}
	if len(list) == 0 {
		return nil
	}
	rate := list[0].VATRate
	for _, p := range list[1:] {
		if p.VATRate != rate {
			return nil
		}
	}
	return &rate
}

func department(list []products.Product) string {
	seen := map[string]bool{}
	var names []string
	for _, p := range list {
		if !seen[p.Department] {
			seen[p.Department] = true
			names = append(names, p.Department)
		}
	}
	switch len(names) {
	case 0:
		return ""
	case 1:
		return names[0]
	}
	sort.Strings(names)
	return mixedDepartment + ": " + strings.Join(names, ", ")
}
