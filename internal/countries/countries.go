package countries

import (
	"context"
	_ "embed"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

//go:embed cc_countries.csv
var defaultTable string

const (
	// BaseCurrency is the currency every price in the system is held in.
	BaseCurrency = "GBP"

	RegionEurope      = "EU"
	RegionRestOfWorld = "ROW"
)

// ServiceCodes lists the international services priced per destination
var ServiceCodes = []string{"PAK", "PAT", "PAR", "PAP", "SMIU", "SMIT"}

var (
	ErrUnknownCountry       = errors.New("unknown country")
	ErrServiceNotConfigured = errors.New("shipping service not configured for country")
)

// RateSource resolves the rate converting one unit of a currency to GBP
type RateSource interface {
	Rate(ctx context.Context, currencyCode string) (decimal.Decimal, error)
}

// StaticRates is a fixed RateSource keyed by currency code
type StaticRates map[string]decimal.Decimal

// Rate returns the configured rate for code
func (s StaticRates) Rate(_ context.Context, code string) (decimal.Decimal, error) {
	rate, ok := s[code]
	if !ok {
		return decimal.Zero, fmt.Errorf("no static rate for currency %s", code)
	}
	return rate, nil
}

// Service holds the prices of an international shipping service to one country
type Service struct {
	ItemPrice int `json:"itemPrice"` // pence per item
	KGPrice   int `json:"kgPrice"`   // pence per kilogram
}

// CalculatePrice returns the price in pence to ship weightGrams
func (s Service) CalculatePrice(weightGrams int) int {
	return s.ItemPrice + s.WeightPrice(weightGrams)
}

// WeightPrice returns the per-kilogram component, truncated to whole pence
func (s Service) WeightPrice(weightGrams int) int {
	return weightGrams * s.KGPrice / 1000
}

// Country is a shipping destination
type Country struct {
	ID            int                `json:"id"`
	Name          string             `json:"name"`
	Region        string             `json:"region"`
	ISOCode       string             `json:"isoCode"`
	CurrencyCode  string             `json:"currencyCode,omitempty"`
	CurrencyRate  decimal.Decimal    `json:"currencyRate"`
	MinChannelFee int                `json:"minChannelFee"` // GBP pence
	Services      map[string]Service `json:"services"`
}

// Service returns the named international service for the country
func (c Country) Service(code string) (Service, error) {
	svc, ok := c.Services[code]
	if !ok {
		return Service{}, fmt.Errorf("%w: %s to %s", ErrServiceNotConfigured, code, c.Name)
	}
	return svc, nil
}

// IsRestOfWorld reports whether the country sits outside the EU region
func (c Country) IsRestOfWorld() bool {
	return c.Region == RegionRestOfWorld
}

func (c Country) String() string {
	return c.Name
}

// Reference is the loaded set of countries, keyed by country ID
type Reference struct {
	countries map[int]Country
}

// NewReference builds a Reference from already resolved countries
func NewReference(list ...Country) (*Reference, error) {
	ref := &Reference{countries: make(map[int]Country, len(list))}
	for _, c := range list {
		if _, dup := ref.countries[c.ID]; dup {
			return nil, fmt.Errorf("duplicate country id %d", c.ID)
		}
		ref.countries[c.ID] = c
	}
	return ref, nil
}

// LoadDefault loads the embedded country table
func LoadDefault(ctx context.Context, rates RateSource) (*Reference, error) {
	return Load(ctx, strings.NewReader(defaultTable), rates)
}

// LoadFile loads a country table from path
func LoadFile(ctx context.Context, path string, rates RateSource) (*Reference, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open country table: %w", err)
	}
	defer f.Close()
	return Load(ctx, f, rates)
}

// Load reads a country table and resolves every currency rate once.
// Rates are fixed for the lifetime of the returned Reference.
func Load(ctx context.Context, r io.Reader, rates RateSource) (*Reference, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read country table header: %w", err)
	}
	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[strings.TrimSpace(name)] = i
	}
	for _, required := range []string{"ID", "Country", "Region", "ISO Code", "Currency", "Min Channel Fee"} {
		if _, ok := columns[required]; !ok {
			return nil, fmt.Errorf("country table missing column %q", required)
		}
	}

	resolved := map[string]decimal.Decimal{}
	var list []Country
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("failed to read country table line %d: %w", line, err)
		}
		row := func(col string) string {
			idx, ok := columns[col]
			if !ok || idx >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[idx])
		}

		country, err := parseCountry(row)
		if err != nil {
			return nil, fmt.Errorf("country table line %d: %w", line, err)
		}

		rate, ok := resolved[country.CurrencyCode]
		if !ok {
			rate, err = resolveRate(ctx, rates, country.CurrencyCode)
			if err != nil {
				return nil, fmt.Errorf("country %s: %w", country.Name, err)
			}
			resolved[country.CurrencyCode] = rate
		}
		country.CurrencyRate = rate

		localFee, err := decimal.NewFromString(row("Min Channel Fee"))
		if err != nil {
			return nil, fmt.Errorf("country %s: invalid min channel fee: %w", country.Name, err)
		}
		country.MinChannelFee = minChannelFee(country.CurrencyCode, localFee, rate)

		list = append(list, country)
	}

	return NewReference(list...)
}

func parseCountry(row func(string) string) (Country, error) {
	id, err := strconv.Atoi(row("ID"))
	if err != nil {
		return Country{}, fmt.Errorf("invalid country id %q", row("ID"))
	}
	c := Country{
		ID:           id,
		Name:         row("Country"),
		Region:       row("Region"),
		ISOCode:      row("ISO Code"),
		CurrencyCode: row("Currency"),
		Services:     map[string]Service{},
	}
	if c.Region != RegionEurope && c.Region != RegionRestOfWorld {
		return Country{}, fmt.Errorf("country %s has invalid region %q", c.Name, c.Region)
	}

	for _, code := range ServiceCodes {
		item := row(code + " Item")
		if item == "" {
			continue
		}
		itemPrice, err := strconv.Atoi(item)
		if err != nil {
			return Country{}, fmt.Errorf("country %s: invalid %s item price %q", c.Name, code, item)
		}
		kgPrice := 0
		if kg := row(code + " KG"); kg != "" {
			kgPrice, err = strconv.Atoi(kg)
			if err != nil {
				return Country{}, fmt.Errorf("country %s: invalid %s kg price %q", c.Name, code, kg)
			}
		}
		c.Services[code] = Service{ItemPrice: itemPrice, KGPrice: kgPrice}
	}
	return c, nil
}

func resolveRate(ctx context.Context, rates RateSource, code string) (decimal.Decimal, error) {
	if code == "" || code == BaseCurrency {
		return decimal.NewFromInt(1), nil
	}
	if rates == nil {
		return decimal.Zero, fmt.Errorf("no rate source for currency %s", code)
	}
	rate, err := rates.Rate(ctx, code)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to resolve %s rate: %w", code, err)
	}
	return rate, nil
}

// minChannelFee converts a fee in local major units to GBP pence, rounding down
func minChannelFee(code string, localFee, rate decimal.Decimal) int {
	if code == "" {
		return 0
	}
	return int(localFee.Mul(rate).Shift(2).Floor().IntPart())
}

// Lookup returns the country with the given ID
func (r *Reference) Lookup(id int) (Country, error) {
	c, ok := r.countries[id]
	if !ok {
		return Country{}, fmt.Errorf("%w: %d", ErrUnknownCountry, id)
	}
	return c, nil
}

// Countries returns every country ordered by ID
func (r *Reference) Countries() []Country {
	list := make([]Country, 0, len(r.countries))
	for _, c := range r.countries {
		list = append(list, c)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list
}

// IDs returns every country ID in ascending order
func (r *Reference) IDs() []int {
	ids := make([]int, 0, len(r.countries))
	for id := range r.countries {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// IDsInRegion returns the IDs of countries in region, ascending
func (r *Reference) IDsInRegion(region string) []int {
	var ids []int
	for _, c := range r.Countries() {
		if c.Region == region {
			ids = append(ids, c.ID)
		}
	}
	return ids
}
