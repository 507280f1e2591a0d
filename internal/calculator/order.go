package calculator

import (
	"sort"
	"time"

	"github.com/julienbonastre/order-profit/internal/countries"
	"github.com/julienbonastre/order-profit/internal/products"
	"github.com/julienbonastre/order-profit/internal/shipping"
)

// Order is a dispatched order with its profit and loss breakdown.
// All amounts are GBP pence.
type Order struct {
	ID           string            `json:"orderId"`
	CustomerID   string            `json:"customerId"`
	DateReceived time.Time         `json:"dateReceived"`
	DispatchDate time.Time         `json:"dispatchDate"`
	CountryID    int               `json:"countryId"`
	Country      countries.Country `json:"-"`
	Price        int               `json:"price"`

	Products      []products.Product `json:"products"`
	Department    string             `json:"department"`
	WeightGrams   int                `json:"weightGrams"`
	ItemCount     int                `json:"itemCount"`
	VATRate       *int               `json:"vatRate"`
	PurchasePrice int                `json:"purchasePrice"`

	Rule           shipping.Rule `json:"-"`
	PostagePrice   int           `json:"postagePrice"`
	ChannelFee     int           `json:"channelFee"`
	Profit         int           `json:"profit"`
	VAT            *int          `json:"vat"`
	ProfitAfterVAT *int          `json:"profitAfterVat"`

	Err error `json:"-"`
}

// Errored reports whether the order could not be processed
func (o Order) Errored() bool {
	return o.Err != nil
}

// ErrorMessage returns the processing error text, or "" for a good order
func (o Order) ErrorMessage() string {
	if o.Err == nil {
		return ""
	}
	return o.Err.Error()
}

// RuleName returns the name of the shipping rule used, or ""
func (o Order) RuleName() string {
	if o.Rule == nil {
		return ""
	}
	return o.Rule.Name()
}

// Lines returns the structured record of each ordered product
func (o Order) Lines() []products.Line {
	lines := make([]products.Line, 0, len(o.Products))
	for _, p := range o.Products {
		lines = append(lines, p.Record())
	}
	return lines
}

// Rank sorts orders by ascending profit after VAT. Orders without a
// profit after VAT go last. Equal keys keep their input order.
func Rank(orders []Order) {
	sort.SliceStable(orders, func(i, j int) bool {
		a, b := orders[i].ProfitAfterVAT, orders[j].ProfitAfterVAT
		if a == nil {
			return false
		}
		if b == nil {
			return true
		}
		return *a < *b
	})
}
