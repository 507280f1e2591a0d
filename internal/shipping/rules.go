package shipping

import (
	"fmt"
	"slices"

	"github.com/julienbonastre/order-profit/internal/countries"
)

// Shipment is what a rule needs to price one order
type Shipment struct {
	OrderID     string
	Country     countries.Country
	WeightGrams int
}

// Rule is a shipping method that classifies orders by destination and
// carrier rule id and prices them
type Rule interface {
	Name() string
	Matches(countryID, ruleID int) bool
	Price(s Shipment) (int, error)
	IsValidService() bool
}

// DomesticCountryIDs are the UK postal destinations served by Royal Mail
var DomesticCountryIDs = []int{1, 14, 88, 103, 119}

// springExcludedCountryIDs are the destinations Spring does not ship to
var springExcludedCountryIDs = []int{1}

// ErrorRule marks orders dispatched with the platform's error courier rule
type ErrorRule struct {
	RuleIDs []int
}

func (r ErrorRule) Name() string { return "Error" }
func (r ErrorRule) Matches(_, ruleID int) bool { return slices.Contains(r.RuleIDs, ruleID) }
func (r ErrorRule) Price(Shipment) (int, error) { return 0, nil }
func (r ErrorRule) IsValidService() bool { return false }

// FlatRateRule charges the same price regardless of weight.
// A nil CountryIDs accepts every destination.
type FlatRateRule struct {
	RuleName   string
	RuleIDs    []int
	CountryIDs []int
	ItemPrice  int
}

func (r FlatRateRule) Name() string { return r.RuleName }

func (r FlatRateRule) Matches(countryID, ruleID int) bool {
	if !slices.Contains(r.RuleIDs, ruleID) {
		return false
	}
	return r.CountryIDs == nil || slices.Contains(r.CountryIDs, countryID)
}

func (r FlatRateRule) Price(Shipment) (int, error) { return r.ItemPrice, nil }
func (r FlatRateRule) IsValidService() bool { return true }

// InternationalRule is priced from the destination's service table
type InternationalRule struct {
	RuleName    string
	RuleIDs     []int
	ServiceCode string
}

func (r InternationalRule) Name() string { return r.RuleName }

func (r InternationalRule) Matches(_, ruleID int) bool {
	return slices.Contains(r.RuleIDs, ruleID)
}

func (r InternationalRule) Price(s Shipment) (int, error) {
	return servicePrice(r.ServiceCode, s)
}

func (r InternationalRule) IsValidService() bool { return true }

// NonDomesticRule is an international service that refuses some destinations
type NonDomesticRule struct {
	RuleName           string
	RuleIDs            []int
	ServiceCode        string
	ExcludedCountryIDs []int
}

func (r NonDomesticRule) Name() string { return r.RuleName }

func (r NonDomesticRule) Matches(countryID, ruleID int) bool {
	return slices.Contains(r.RuleIDs, ruleID) && !slices.Contains(r.ExcludedCountryIDs, countryID)
}

func (r NonDomesticRule) Price(s Shipment) (int, error) {
	return servicePrice(r.ServiceCode, s)
}

func (r NonDomesticRule) IsValidService() bool { return true }

// CourierRule is a fixed price courier tier.
// A nil CountryIDs accepts every destination.
type CourierRule struct {
	RuleName   string
	RuleIDs    []int
	CountryIDs []int
	ItemPrice  int
}

func (r CourierRule) Name() string { return r.RuleName }

func (r CourierRule) Matches(countryID, ruleID int) bool {
	if !slices.Contains(r.RuleIDs, ruleID) {
		return false
	}
	return r.CountryIDs == nil || slices.Contains(r.CountryIDs, countryID)
}

func (r CourierRule) Price(Shipment) (int, error) { return r.ItemPrice, nil }
func (r CourierRule) IsValidService() bool { return true }

func servicePrice(code string, s Shipment) (int, error) {
	svc, err := s.Country.Service(code)
	if err != nil {
		return 0, fmt.Errorf("order %s: %w", s.OrderID, err)
	}
	return svc.CalculatePrice(s.WeightGrams), nil
}

// Catalog returns the current set of shipping rules. Courier region
// tiers take their destination lists from ref.
func Catalog(ref *countries.Reference) []Rule {
	return []Rule{
		ErrorRule{RuleIDs: []int{10008}},

		// Secured Mail
		FlatRateRule{RuleName: "Secured Mail Royal Mail Packet", RuleIDs: []int{18777}, ItemPrice: 175},
		FlatRateRule{RuleName: "Secured Mail Royal Mail Large Letter", RuleIDs: []int{18779, 18780}, ItemPrice: 60},
		InternationalRule{RuleName: "Secured Mail International Untracked", RuleIDs: []int{16416, 16417}, ServiceCode: "SMIU"},
		InternationalRule{RuleName: "Secured Mail International Tracked", RuleIDs: []int{16419}, ServiceCode: "SMIT"},

		// Amazon Prime
		FlatRateRule{RuleName: "Prime 48", RuleIDs: []int{15436}, ItemPrice: 312},
		FlatRateRule{RuleName: "Prime 24", RuleIDs: []int{15434, 15435}, ItemPrice: 550},

		// Royal Mail
		FlatRateRule{RuleName: "Royal Mail Untracked 48 Packet", RuleIDs: []int{9584, 18781}, CountryIDs: DomesticCountryIDs, ItemPrice: 215},
		FlatRateRule{RuleName: "Royal Mail Untracked 24", RuleIDs: []int{9583}, CountryIDs: DomesticCountryIDs, ItemPrice: 278},
		FlatRateRule{RuleName: "Royal Mail Tracked 48 Packet", RuleIDs: []int{9586}, CountryIDs: DomesticCountryIDs, ItemPrice: 397},
		FlatRateRule{RuleName: "Royal Mail Tracked 24 Packet", RuleIDs: []int{9585, 10580}, CountryIDs: DomesticCountryIDs, ItemPrice: 517},
		FlatRateRule{RuleName: "Royal Mail 48 Large Letter", RuleIDs: []int{9588}, CountryIDs: DomesticCountryIDs, ItemPrice: 65},
		FlatRateRule{RuleName: "Royal Mail 24 Large Letter", RuleIDs: []int{9587, 10579}, CountryIDs: DomesticCountryIDs, ItemPrice: 113},
		FlatRateRule{RuleName: "Royal Mail Heavy and Large 48", RuleIDs: []int{9814}, CountryIDs: DomesticCountryIDs, ItemPrice: 399},
		FlatRateRule{RuleName: "Royal Mail Heavy and Large 24", RuleIDs: []int{10114}, CountryIDs: DomesticCountryIDs, ItemPrice: 517},

		// Spring
		NonDomesticRule{RuleName: "Spring Untracked (PAK)", RuleIDs: []int{11747, 13771}, ServiceCode: "PAK", ExcludedCountryIDs: springExcludedCountryIDs},
		NonDomesticRule{RuleName: "Spring Parcel (PAR)", RuleIDs: []int{13764, 13769, 13992}, ServiceCode: "PAR", ExcludedCountryIDs: springExcludedCountryIDs},
		NonDomesticRule{RuleName: "Spring Tracked (PAT)", RuleIDs: []int{13451}, ServiceCode: "PAT", ExcludedCountryIDs: springExcludedCountryIDs},
		NonDomesticRule{RuleName: "Spring Signed (PAP)", RuleIDs: []int{13768, 13936}, ServiceCode: "PAP", ExcludedCountryIDs: springExcludedCountryIDs},

		// Courier
		CourierRule{RuleName: "UK Courier", RuleIDs: []int{11422}, ItemPrice: 700},
		CourierRule{RuleName: "EU Courier", RuleIDs: []int{11243, 11245, 16886}, CountryIDs: regionIDs(ref, countries.RegionEurope), ItemPrice: 1800},
		CourierRule{RuleName: "ROW Courier", RuleIDs: []int{10284, 10390}, CountryIDs: regionIDs(ref, countries.RegionRestOfWorld), ItemPrice: 2200},
	}
}

// regionIDs never returns nil so an empty region matches nothing
func regionIDs(ref *countries.Reference, region string) []int {
	if ref == nil {
		return []int{}
	}
	ids := ref.IDsInRegion(region)
	if ids == nil {
		return []int{}
	}
	return ids
}
