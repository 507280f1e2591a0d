package report

import (
	"fmt"
	"io"
	"text/tabwriter"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/julienbonastre/order-profit/internal/calculator"
)

const notAvailable = "n/a"

// Summary totals a set of orders. Amounts are GBP pence.
type Summary struct {
	Orders         int
	Errored        int
	Price          int
	Profit         int
	ProfitAfterVAT int
	// Undefined counts orders with no profit after VAT
	Undefined int
}

// Summarise totals orders
func Summarise(orders []calculator.Order) Summary {
	var s Summary
	for _, o := range orders {
		s.Orders++
		if o.Errored() {
			s.Errored++
		}
		s.Price += o.Price
		s.Profit += o.Profit
		if o.ProfitAfterVAT == nil {
			s.Undefined++
			continue
		}
		s.ProfitAfterVAT += *o.ProfitAfterVAT
	}
	return s
}

// Writer prints orders as an aligned console table
type Writer struct {
	printer *message.Printer
}

// NewWriter creates a report writer with British currency formatting
func NewWriter() *Writer {
	return &Writer{printer: message.NewPrinter(language.BritishEnglish)}
}

// Money formats pence as a GBP amount
func (w *Writer) Money(pence int) string {
	return w.printer.Sprint(currency.Symbol(currency.GBP.Amount(float64(pence) / 100)))
}

func (w *Writer) optionalMoney(pence *int) string {
	if pence == nil {
		return notAvailable
	}
	return w.Money(*pence)
}

func optionalRate(rate *int) string {
	if rate == nil {
		return notAvailable
	}
	return fmt.Sprintf("%d%%", *rate)
}

// Write prints the ranked orders followed by their totals
func (w *Writer) Write(out io.Writer, orders []calculator.Order) error {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "#\tOrder\tCountry\tDepartment\tShipping\tItems\tPrice\tPurchase\tPostage\tFee\tProfit\tVAT Rate\tVAT\tAfter VAT\t")

	for i, o := range orders {
		if o.Errored() {
			fmt.Fprintf(tw, "%d\t%s\t%s\t\t\t\t%s\t\t\t\t\t\t\t%s\t\n",
				i+1, o.ID, o.Country.Name, w.Money(o.Price), "ERROR")
			continue
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t\n",
			i+1, o.ID, o.Country.Name, o.Department, o.RuleName(), o.ItemCount,
			w.Money(o.Price), w.Money(o.PurchasePrice), w.Money(o.PostagePrice),
			w.Money(o.ChannelFee), w.Money(o.Profit), optionalRate(o.VATRate),
			w.optionalMoney(o.VAT), w.optionalMoney(o.ProfitAfterVAT))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	s := Summarise(orders)
	_, err := fmt.Fprintf(out, "\n%d orders, %d errored, %d without profit after VAT\nGross %s  Profit %s  After VAT %s\n",
		s.Orders, s.Errored, s.Undefined, w.Money(s.Price), w.Money(s.Profit), w.Money(s.ProfitAfterVAT))
	if err != nil {
		return err
	}

	for _, o := range orders {
		if o.Errored() {
			if _, err := fmt.Fprintf(out, "  %s\n", o.ErrorMessage()); err != nil {
				return err
			}
		}
	}
	return nil
}
