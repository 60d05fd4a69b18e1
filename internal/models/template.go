package models

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// RuleKind selects the decomposition dimension a template rule writes to
type RuleKind int

const (
	KindAllocationClass RuleKind = iota + 1
	KindSectorIndustry
	KindInterestBucket
)

// DefaultTargetCode is stored when a rule leaves a target code empty
const DefaultTargetCode = "0"

var (
	ErrUnknownRuleKind = errors.New("unknown rule kind")
	ErrTemplateTotal   = errors.New("template percentages do not total 100")
)

// Kinds lists every rule kind in storage order
var Kinds = []RuleKind{KindAllocationClass, KindSectorIndustry, KindInterestBucket}

// ParseRuleKind parses the stored code ("alloc", "secind", "inter"), case-insensitively
func ParseRuleKind(s string) (RuleKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "alloc":
		return KindAllocationClass, nil
	case "secind":
		return KindSectorIndustry, nil
	case "inter":
		return KindInterestBucket, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownRuleKind, s)
}

// Code returns the stored code for the kind
func (k RuleKind) Code() string {
	switch k {
	case KindAllocationClass:
		return "alloc"
	case KindSectorIndustry:
		return "secind"
	case KindInterestBucket:
		return "inter"
	}
	return ""
}

func (k RuleKind) String() string {
	switch k {
	case KindAllocationClass:
		return "AllocationClass"
	case KindSectorIndustry:
		return "SectorIndustry"
	case KindInterestBucket:
		return "InterestBucket"
	}
	return fmt.Sprintf("RuleKind(%d)", int(k))
}

// Valid reports whether k is one of the known kinds
func (k RuleKind) Valid() bool {
	return k.Code() != ""
}

// Value implements driver.Valuer
func (k RuleKind) Value() (driver.Value, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownRuleKind, int(k))
	}
	return k.Code(), nil
}

// Scan implements sql.Scanner
func (k *RuleKind) Scan(src interface{}) error {
	var s string
	switch v := src.(type) {
	case string:
		s = v
	case []byte:
		s = string(v)
	default:
		return fmt.Errorf("cannot scan %T into RuleKind", src)
	}
	parsed, err := ParseRuleKind(s)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler
func (k RuleKind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownRuleKind, int(k))
	}
	return []byte(k.Code()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (k *RuleKind) UnmarshalText(b []byte) error {
	parsed, err := ParseRuleKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// TemplateDetail is one fan-out rule of a template
type TemplateDetail struct {
	ID          int             `json:"id"`
	TemplateID  int             `json:"template_id"`
	Kind        RuleKind        `json:"kind"`
	TargetCode1 string          `json:"target_code_1"`
	TargetCode2 string          `json:"target_code_2,omitempty"` // industry, SectorIndustry only
	Percentage  decimal.Decimal `json:"percentage"`
}

// Codes returns the rule's target codes with empty values replaced by DefaultTargetCode.
// The second code is only meaningful for SectorIndustry rules.
func (d TemplateDetail) Codes() (string, string) {
	code1 := strings.TrimSpace(d.TargetCode1)
	if code1 == "" {
		code1 = DefaultTargetCode
	}
	code2 := strings.TrimSpace(d.TargetCode2)
	if code2 == "" || d.Kind != KindSectorIndustry {
		code2 = DefaultTargetCode
	}
	return code1, code2
}

var (
	hundred        = decimal.NewFromInt(100)
	totalTolerance = decimal.RequireFromString("0.01")
)

// ValidateTemplate checks that a set of rules is well formed and totals 100 percent
func ValidateTemplate(details []TemplateDetail) error {
	if len(details) == 0 {
		return fmt.Errorf("%w: template has no rules", ErrTemplateTotal)
	}

	total := decimal.Zero
	for i, d := range details {
		if !d.Kind.Valid() {
			return fmt.Errorf("rule %d: %w", i+1, ErrUnknownRuleKind)
		}
		if strings.TrimSpace(d.TargetCode1) == "" {
			return fmt.Errorf("rule %d: target code is required", i+1)
		}
		if d.Percentage.IsNegative() || d.Percentage.GreaterThan(hundred) {
			return fmt.Errorf("rule %d: percentage %s out of range", i+1, d.Percentage)
		}
		total = total.Add(d.Percentage)
	}

	if total.Sub(hundred).Abs().GreaterThan(totalTolerance) {
		return fmt.Errorf("%w: got %s", ErrTemplateTotal, total.StringFixed(2))
	}
	return nil
}
