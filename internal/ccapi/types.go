package ccapi

import (
	"time"

	"github.com/shopspring/decimal"
)

// DispatchOrder is an order returned by the dispatch orders endpoint
type DispatchOrder struct {
	OrderID             string          `json:"order_id"`
	CustomerID          string          `json:"customer_id"`
	DateReceived        time.Time       `json:"date_received"`
	DispatchDate        time.Time       `json:"dispatch_date"`
	DeliveryCountryCode int             `json:"delivery_country_code"`
	TotalGrossGBP       decimal.Decimal `json:"total_gross_gbp"`
	DefaultCSRuleName   string          `json:"default_cs_rule_name"`
	Products            []OrderLine     `json:"products"`
}

// OrderLine is one product on a dispatched order
type OrderLine struct {
	SKU           string `json:"sku"`
	ProductID     string `json:"product_id"`
	Quantity      int    `json:"quantity"`
	PerItemWeight int    `json:"per_item_weight"` // grams
}

// Product is an inventory product
type Product struct {
	ID       string `json:"id"`
	RangeID  string `json:"range_id"`
	SKU      string `json:"sku"`
	FullName string `json:"full_name"`
	VATRate  string `json:"vat_rate"`
}

// ProductOption is a named option value set on a product
type ProductOption struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// CourierRule maps a courier rule name to its platform id
type CourierRule struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type ordersResponse struct {
	Orders []DispatchOrder `json:"orders"`
}

type courierRulesResponse struct {
	Rules []CourierRule `json:"rules"`
}

type optionsResponse struct {
	Options []ProductOption `json:"options"`
}
