package shipping

import (
	"errors"
	"fmt"
	"sort"

	"github.com/julienbonastre/order-profit/internal/countries"
)

// ErrShippingRuleNotFound is matched by every resolution failure
var ErrShippingRuleNotFound = errors.New("shipping rule not found")

// NoShippingRuleError is returned when no rule accepts an order
type NoShippingRuleError struct {
	CountryID int
	RuleID    int
}

func (e *NoShippingRuleError) Error() string {
	return fmt.Sprintf("no shipping rules matching country_id %d and rule_id %d", e.CountryID, e.RuleID)
}

func (e *NoShippingRuleError) Is(target error) bool { return target == ErrShippingRuleNotFound }

// TooManyShippingRulesError is returned when more than one rule accepts an order
type TooManyShippingRulesError struct {
	Count     int
	CountryID int
	RuleID    int
}

func (e *TooManyShippingRulesError) Error() string {
	return fmt.Sprintf("too many shipping rules (%d) found matching country_id %d and rule_id %d", e.Count, e.CountryID, e.RuleID)
}

func (e *TooManyShippingRulesError) Is(target error) bool { return target == ErrShippingRuleNotFound }

// Overlap is a (country, rule id) pair accepted by more than one rule
type Overlap struct {
	CountryID int
	RuleID    int
	Rules     []string
}

// Registry resolves orders to their shipping rule
type Registry struct {
	rules []Rule
}

// NewRegistry creates a registry over rules
func NewRegistry(rules ...Rule) *Registry {
	return &Registry{rules: rules}
}

// NewDefaultRegistry creates a registry over Catalog(ref)
func NewDefaultRegistry(ref *countries.Reference) *Registry {
	return NewRegistry(Catalog(ref)...)
}

// Rules returns the registered rules in catalog order
func (r *Registry) Rules() []Rule {
	return append([]Rule(nil), r.rules...)
}

// Matching returns every rule accepting the pair
func (r *Registry) Matching(countryID, ruleID int) []Rule {
	var matched []Rule
	for _, rule := range r.rules {
		if rule.Matches(countryID, ruleID) {
			matched = append(matched, rule)
		}
	}
	return matched
}

// Resolve returns the single rule accepting the pair
func (r *Registry) Resolve(countryID, ruleID int) (Rule, error) {
	matched := r.Matching(countryID, ruleID)
	switch len(matched) {
	case 0:
		return nil, &NoShippingRuleError{CountryID: countryID, RuleID: ruleID}
	case 1:
		return matched[0], nil
	default:
		return nil, &TooManyShippingRulesError{Count: len(matched), CountryID: countryID, RuleID: ruleID}
	}
}

// RuleIDs returns every rule id known to at least one rule, ascending
func (r *Registry) RuleIDs() []int {
	seen := map[int]bool{}
	var ids []int
	for _, rule := range r.rules {
		for _, id := range ruleIDsOf(rule) {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	sort.Ints(ids)
	return ids
}

// Overlaps lists every pair over countryIDs and the known rule ids that
// resolves to more than one rule
func (r *Registry) Overlaps(countryIDs []int) []Overlap {
	var overlaps []Overlap
	ruleIDs := r.RuleIDs()
	for _, countryID := range countryIDs {
		for _, ruleID := range ruleIDs {
			matched := r.Matching(countryID, ruleID)
			if len(matched) < 2 {
				continue
			}
			o := Overlap{CountryID: countryID, RuleID: ruleID}
			for _, m := range matched {
				o.Rules = append(o.Rules, m.Name())
			}
			overlaps = append(overlaps, o)
		}
	}
	return overlaps
}

func ruleIDsOf(rule Rule) []int {
	switch v := rule.(type) {
	case ErrorRule:
		return v.RuleIDs
	case FlatRateRule:
		return v.RuleIDs
	case InternationalRule:
		return v.RuleIDs
	case NonDomesticRule:
		return v.RuleIDs
	case CourierRule:
		return v.RuleIDs
	}
	return nil
}
