package models

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRuleKind(t *testing.T) {
	cases := map[string]RuleKind{
		"alloc":   KindAllocationClass,
		"ALLOC":   KindAllocationClass,
		" secind": KindSectorIndustry,
		"Inter":   KindInterestBucket,
	}
	for in, want := range cases {
		got, err := ParseRuleKind(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseRuleKind("sector")
	assert.ErrorIs(t, err, ErrUnknownRuleKind)
}

func TestRuleKind_ScanAndValue(t *testing.T) {
	for _, k := range Kinds {
		v, err := k.Value()
		require.NoError(t, err)

		var scanned RuleKind
		require.NoError(t, scanned.Scan([]byte(v.(string))))
		assert.Equal(t, k, scanned)
	}

	_, err := RuleKind(0).Value()
	assert.ErrorIs(t, err, ErrUnknownRuleKind)

	var k RuleKind
	assert.Error(t, k.Scan(42))
}

func TestRuleKind_JSON(t *testing.T) {
	d := TemplateDetail{Kind: KindSectorIndustry, TargetCode1: "Technology", TargetCode2: "Software", Percentage: decimal.NewFromInt(100)}
	data, err := json.Marshal(d)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"kind":"secind"`)

	var back TemplateDetail
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, KindSectorIndustry, back.Kind)
}

func TestTemplateDetail_Codes(t *testing.T) {
	c1, c2 := TemplateDetail{Kind: KindSectorIndustry, TargetCode1: "Technology"}.Codes()
	assert.Equal(t, "Technology", c1)
	assert.Equal(t, DefaultTargetCode, c2)

	c1, c2 = TemplateDetail{Kind: KindAllocationClass, TargetCode2: "ignored"}.Codes()
	assert.Equal(t, DefaultTargetCode, c1)
	assert.Equal(t, DefaultTargetCode, c2)
}

func TestValidateTemplate(t *testing.T) {
	pct := decimal.RequireFromString

	t.Run("accepts rules totalling 100", func(t *testing.T) {
		err := ValidateTemplate([]TemplateDetail{
			{Kind: KindAllocationClass, TargetCode1: "Equity", Percentage: pct("80")},
			{Kind: KindAllocationClass, TargetCode1: "Bond", Percentage: pct("20")},
		})
		assert.NoError(t, err)
	})

	t.Run("accepts rounding within one cent of a percent", func(t *testing.T) {
		err := ValidateTemplate([]TemplateDetail{
			{Kind: KindAllocationClass, TargetCode1: "A", Percentage: pct("33.33")},
			{Kind: KindAllocationClass, TargetCode1: "B", Percentage: pct("33.33")},
			{Kind: KindAllocationClass, TargetCode1: "C", Percentage: pct("33.33")},
		})
		assert.NoError(t, err)
	})

	t.Run("rejects a short total", func(t *testing.T) {
		err := ValidateTemplate([]TemplateDetail{
			{Kind: KindAllocationClass, TargetCode1: "Equity", Percentage: pct("80")},
		})
		assert.ErrorIs(t, err, ErrTemplateTotal)
	})

	t.Run("rejects empty templates", func(t *testing.T) {
		assert.ErrorIs(t, ValidateTemplate(nil), ErrTemplateTotal)
	})

	t.Run("rejects unknown kinds and missing codes", func(t *testing.T) {
		err := ValidateTemplate([]TemplateDetail{{TargetCode1: "Equity", Percentage: pct("100")}})
		assert.ErrorIs(t, err, ErrUnknownRuleKind)

		err = ValidateTemplate([]TemplateDetail{{Kind: KindInterestBucket, Percentage: pct("100")}})
		assert.Error(t, err)
	})

	t.Run("rejects out of range percentages", func(t *testing.T) {
		err := ValidateTemplate([]TemplateDetail{
			{Kind: KindAllocationClass, TargetCode1: "Equity", Percentage: pct("120")},
			{Kind: KindAllocationClass, TargetCode1: "Short", Percentage: pct("-20")},
		})
		assert.Error(t, err)
	})
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2024-01-15")
	require.NoError(t, err)
	assert.Equal(t, 2024, d.Year())
	assert.Equal(t, 15, d.Day())

	_, err = ParseDate("01/15/2024")
	assert.Error(t, err)
}
