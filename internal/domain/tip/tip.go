package tip

import (
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Kind enumerates how a tip is expressed.
type Kind string

const (
	KindNone       Kind = "none"
	KindPercentage Kind = "percentage"
	KindCustom     Kind = "custom"
)

// ErrInvalidTip is returned for tips that cannot be applied.
var ErrInvalidTip = errors.New("invalid tip")

var (
	hundred = decimal.NewFromInt(100)
	zero    = decimal.Zero
)

// Presets are the percentages offered on the payment screens.
var Presets = []int64{0, 10, 12, 15, 18, 20}

// Spec is a diner's tip choice.
type Spec struct {
	Kind  Kind            `json:"kind"`
	Value decimal.Decimal `json:"value"`
}

// None is the zero tip.
func None() Spec { return Spec{Kind: KindNone} }

// Percent returns a percentage tip.
func Percent(p int64) Spec {
	return Spec{Kind: KindPercentage, Value: decimal.NewFromInt(p)}
}

// Custom returns an absolute tip amount.
func Custom(amount decimal.Decimal) Spec {
	return Spec{Kind: KindCustom, Value: amount}
}

// Parse reads the short form used in query strings and forms: "" or "none"
// for no tip, "15%" for a percentage and "7" or "7.50" for a custom amount.
// A custom amount that is not a number falls back to no tip.
func Parse(s string) (Spec, error) {
	s = strings.TrimSpace(s)
	switch {
	case s == "" || strings.EqualFold(s, string(KindNone)):
		return None(), nil
	case strings.HasSuffix(s, "%"):
		v, err := decimal.NewFromString(strings.TrimSpace(strings.TrimSuffix(s, "%")))
		if err != nil {
			return Spec{}, errors.Wrapf(ErrInvalidTip, "parse percentage %q", s)
		}
		spec := Spec{Kind: KindPercentage, Value: v}
		if err := spec.Validate(); err != nil {
			return Spec{}, err
		}
		return spec, nil
	default:
		v, err := decimal.NewFromString(s)
		if err != nil {
			return None(), nil
		}
		return Custom(v), nil
	}
}

// Validate rejects unknown kinds and percentages outside 0..100. Custom
// amounts are never rejected; Amount clamps them.
func (s Spec) Validate() error {
	switch s.Kind {
	case KindNone, "", KindCustom:
		return nil
	case KindPercentage:
		if s.Value.IsNegative() || s.Value.GreaterThan(hundred) {
			return errors.Wrapf(ErrInvalidTip, "percentage %s out of range", s.Value)
		}
		return nil
	default:
		return errors.Wrapf(ErrInvalidTip, "unsupported tip kind %q", s.Kind)
	}
}

// Amount computes the tip for subtotal rounded to cents. Negative custom
// amounts are clamped to zero.
func (s Spec) Amount(subtotal decimal.Decimal) (decimal.Decimal, error) {
	if err := s.Validate(); err != nil {
		return zero, err
	}
	switch s.Kind {
	case KindPercentage:
		return floorAtZero(subtotal.Mul(s.Value).Div(hundred)).Round(2), nil
	case KindCustom:
		return floorAtZero(s.Value).Round(2), nil
	default:
		return zero, nil
	}
}

// String renders the spec in the form accepted by Parse.
func (s Spec) String() string {
	switch s.Kind {
	case KindPercentage:
		return s.Value.String() + "%"
	case KindCustom:
		return s.Value.StringFixed(2)
	default:
		return string(KindNone)
	}
}

func floorAtZero(v decimal.Decimal) decimal.Decimal {
	if v.IsNegative() {
		return zero
	}
	return v
}
