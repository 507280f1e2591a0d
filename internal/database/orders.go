package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/julienbonastre/order-profit/internal/calculator"
	"github.com/julienbonastre/order-profit/internal/products"
)

// OrderProfit is a stored order result. Amounts are GBP pence.
type OrderProfit struct {
	RunID          string          `json:"runId"`
	Position       int             `json:"position"` // rank within the run, from 1
	OrderID        string          `json:"orderId"`
	CustomerID     string          `json:"customerId"`
	DispatchDate   *time.Time      `json:"dispatchDate,omitempty"`
	CountryID      int             `json:"countryId"`
	CountryName    string          `json:"countryName"`
	Department     string          `json:"department"`
	ShippingRule   string          `json:"shippingRule"`
	WeightGrams    int             `json:"weightGrams"`
	ItemCount      int             `json:"itemCount"`
	Price          int             `json:"price"`
	PurchasePrice  int             `json:"purchasePrice"`
	PostagePrice   int             `json:"postagePrice"`
	ChannelFee     int             `json:"channelFee"`
	Profit         int             `json:"profit"`
	VATRate        *int            `json:"vatRate"`
	VAT            *int            `json:"vat"`
	ProfitAfterVAT *int            `json:"profitAfterVat"`
	Lines          []products.Line `json:"lines"`
	Error          string          `json:"error,omitempty"`
}

// NewOrderProfit converts a calculated order to its stored form
func NewOrderProfit(runID string, position int, o calculator.Order) OrderProfit {
	op := OrderProfit{
		RunID:          runID,
		Position:       position,
		OrderID:        o.ID,
		CustomerID:     o.CustomerID,
		CountryID:      o.CountryID,
		CountryName:    o.Country.Name,
		Department:     o.Department,
		ShippingRule:   o.RuleName(),
		WeightGrams:    o.WeightGrams,
		ItemCount:      o.ItemCount,
		Price:          o.Price,
		PurchasePrice:  o.PurchasePrice,
		PostagePrice:   o.PostagePrice,
		ChannelFee:     o.ChannelFee,
		Profit:         o.Profit,
		VATRate:        o.VATRate,
		VAT:            o.VAT,
		ProfitAfterVAT: o.ProfitAfterVAT,
		Lines:          o.Lines(),
		Error:          o.ErrorMessage(),
	}
	if !o.DispatchDate.IsZero() {
		d := o.DispatchDate.UTC()
		op.DispatchDate = &d
	}
	return op
}

// CompleteRun stores the ranked orders of a run and updates the run
// record in one transaction
func (db *DB) CompleteRun(ctx context.Context, run *Run, orders []calculator.Order) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO order_profits (run_id, position, order_id, customer_id, dispatch_date, country_id,
			country_name, department, shipping_rule, weight_grams, item_count, price, purchase_price,
			postage_price, channel_fee, profit, vat_rate, vat, profit_after_vat, lines, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, o := range orders {
		op := NewOrderProfit(run.ID, i+1, o)
		lines, err := json.Marshal(op.Lines)
		if err != nil {
			return fmt.Errorf("failed to marshal lines for order %s: %w", op.OrderID, err)
		}
		_, err = stmt.ExecContext(ctx, op.RunID, op.Position, op.OrderID, op.CustomerID, op.DispatchDate,
			op.CountryID, op.CountryName, op.Department, op.ShippingRule, op.WeightGrams, op.ItemCount,
			op.Price, op.PurchasePrice, op.PostagePrice, op.ChannelFee, op.Profit, op.VATRate, op.VAT,
			op.ProfitAfterVAT, string(lines), op.Error)
		if err != nil {
			return fmt.Errorf("failed to save order %s: %w", op.OrderID, err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE runs
		SET status = ?, orders_total = ?, orders_errored = ?, orders_skipped = ?, error_message = ?, completed_at = ?
		WHERE id = ?
	`, run.Status, run.OrdersTotal, run.OrdersErrored, run.OrdersSkipped, run.ErrorMessage, run.CompletedAt, run.ID)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}

	return tx.Commit()
}

// GetOrderProfits returns the stored orders of a run in rank order
func (db *DB) GetOrderProfits(ctx context.Context, runID string) ([]OrderProfit, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT run_id, position, order_id, customer_id, dispatch_date, country_id, country_name,
		       department, shipping_rule, weight_grams, item_count, price, purchase_price,
		       postage_price, channel_fee, profit, vat_rate, vat, profit_after_vat, lines, error
		FROM order_profits
		WHERE run_id = ?
		ORDER BY position
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []OrderProfit
	for rows.Next() {
		var op OrderProfit
		var lines string
		err := rows.Scan(&op.RunID, &op.Position, &op.OrderID, &op.CustomerID, &op.DispatchDate,
			&op.CountryID, &op.CountryName, &op.Department, &op.ShippingRule, &op.WeightGrams,
			&op.ItemCount, &op.Price, &op.PurchasePrice, &op.PostagePrice, &op.ChannelFee, &op.Profit,
			&op.VATRate, &op.VAT, &op.ProfitAfterVAT, &lines, &op.Error)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(lines), &op.Lines); err != nil {
			return nil, fmt.Errorf("failed to decode lines for order %s: %w", op.OrderID, err)
		}
		list = append(list, op)
	}
	return list, rows.Err()
}
