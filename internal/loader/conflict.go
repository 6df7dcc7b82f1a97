package loader

import (
	"fmt"
	"strings"
)

// ConflictRule names one column to overwrite from the incoming row when a
// natural-key collision occurs during merge. Rules are parsed from operator
// input of the form "column: EXCLUDED.column" into this closed shape at the
// boundary; arbitrary update expressions are rejected, not interpreted.
type ConflictRule struct {
	Column string
}

// ParseConflictRules validates operator-supplied "column: EXCLUDED.column"
// pairs. The source value must reference the incoming row's same column;
// anything else is a parse error.
func ParseConflictRules(pairs []string) ([]ConflictRule, error) {
	rules := make([]ConflictRule, 0, len(pairs))
	for _, pair := range pairs {
		column, value, found := strings.Cut(pair, ":")
		if !found {
			return nil, fmt.Errorf("conflict rule %q: expected 'column: EXCLUDED.column'", pair)
		}
		column = strings.TrimSpace(column)
		value = strings.TrimSpace(value)
		if column == "" {
			return nil, fmt.Errorf("conflict rule %q: empty column name", pair)
		}
		if !strings.EqualFold(value, "EXCLUDED."+column) {
			return nil, fmt.Errorf("conflict rule %q: value must be EXCLUDED.%s", pair, column)
		}
		rules = append(rules, ConflictRule{Column: column})
	}
	return rules, nil
}

// RulesFor builds ConflictRules for a plain list of column names.
func RulesFor(columns []string) []ConflictRule {
	rules := make([]ConflictRule, len(columns))
	for i, c := range columns {
		rules[i] = ConflictRule{Column: c}
	}
	return rules
}

// Default ON CONFLICT UPDATE column sets, applied when the operator requests
// conflict updates without naming columns.
var (
	DefaultStatusChangeUpdateColumns = []string{
		"event_type", "event_type_reason", "event_location", "battery_pct", "associated_trip",
	}
	DefaultTripUpdateColumns = []string{
		"trip_duration", "trip_distance", "route", "accuracy_m",
		"start_time", "end_time", "parking_verification_url", "standard_cost", "actual_cost",
	}
)
