package config

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/linkscope/linkscope/pkg/types"
)

// FieldKind is the value type of a condition field.
type FieldKind int

const (
	FieldNumber FieldKind = iota
	FieldBool
	FieldStatus
)

// conditionFields lists every snapshot field an alert rule may test.
var conditionFields = map[string]FieldKind{
	"latency_ms":      FieldNumber,
	"download_mbps":   FieldNumber,
	"upload_mbps":     FieldNumber,
	"packet_loss_pct": FieldNumber,
	"dns_failures":    FieldNumber,
	"status":          FieldStatus,
	"is_online":       FieldBool,
	"is_local_issue":  FieldBool,
	"is_isp_issue":    FieldBool,
}

var (
	numberOps = []string{">", ">=", "<", "<=", "==", "!="}
	equalOps  = []string{"==", "!="}
	statuses  = []types.Status{
		types.StatusExcellent, types.StatusGood, types.StatusFair,
		types.StatusPoor, types.StatusOffline, types.StatusUnknown,
	}
)

// Condition is a parsed "field operator value" alert expression. Only the
// value matching Kind is set.
type Condition struct {
	Field  string
	Kind   FieldKind
	Op     string
	Number float64
	Bool   bool
	Status types.Status
}

// ParseCondition parses an alert condition such as "latency_ms > 200",
// "status == offline" or "is_online == false".
func ParseCondition(s string) (Condition, error) {
	parts := strings.Fields(s)
	if len(parts) != 3 {
		return Condition{}, fmt.Errorf("condition %q: want \"field operator value\"", s)
	}
	field, op, rhs := parts[0], parts[1], parts[2]
	kind, ok := conditionFields[field]
	if !ok {
		return Condition{}, fmt.Errorf("condition %q: unknown field %q", s, field)
	}
	c := Condition{Field: field, Kind: kind, Op: op}

	ops := equalOps
	if kind == FieldNumber {
		ops = numberOps
	}
	if !slices.Contains(ops, op) {
		return Condition{}, fmt.Errorf("condition %q: operator %q not valid for %s", s, op, field)
	}

	switch kind {
	case FieldNumber:
		v, err := strconv.ParseFloat(rhs, 64)
		if err != nil {
			return Condition{}, fmt.Errorf("condition %q: %q is not a number", s, rhs)
		}
		c.Number = v
	case FieldBool:
		v, err := strconv.ParseBool(rhs)
		if err != nil {
			return Condition{}, fmt.Errorf("condition %q: %q is not a boolean", s, rhs)
		}
		c.Bool = v
	case FieldStatus:
		st := types.Status(rhs)
		if !slices.Contains(statuses, st) {
			return Condition{}, fmt.Errorf("condition %q: unknown status %q", s, rhs)
		}
		c.Status = st
	}
	return c, nil
}
