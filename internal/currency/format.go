package currency

import (
	"strings"

	"github.com/shopspring/decimal"
	cldr "golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"github.com/atmx/vault-engine/internal/model"
)

// SubtitleSeparator joins the alternative currencies in a subtitle.
const SubtitleSeparator = " / "

// Blank keeps a subtitle line occupied when nothing can be shown.
const Blank = "\u00a0"

// fiatLocale is how a fiat currency is written in its home locale.
type fiatLocale struct {
	unit   cldr.Unit
	symbol string
	group  string
	point  string
}

func newFiatLocale(tag language.Tag, unit cldr.Unit, symbol string) fiatLocale {
	group, point := separators(tag)
	return fiatLocale{unit: unit, symbol: symbol, group: group, point: point}
}

// separators reads the grouping and decimal separators of tag from its
// own rendering of 1234.5.
func separators(tag language.Tag) (group, point string) {
	s := message.NewPrinter(tag).Sprint(number.Decimal(1234.5, number.Scale(1)))
	i := strings.Index(s, "234")
	if i < 1 {
		return ",", "."
	}
	return s[1:i], s[i+3 : len(s)-1]
}

var fiatLocales = map[model.Currency]fiatLocale{
	model.USD: newFiatLocale(language.AmericanEnglish, cldr.USD, "$"),
	model.GBP: newFiatLocale(language.BritishEnglish, cldr.GBP, "£"),
}

// solPlaces is the fixed precision for SOL amounts.
const solPlaces = 4

// Format renders an amount already expressed in c. SOL uses four fixed
// decimals and a unit suffix; fiat uses the currency's own locale. Digits
// come from the decimal itself, so any magnitude keeps exact cents.
func Format(amount decimal.Decimal, c model.Currency) string {
	loc, ok := fiatLocales[c]
	if !ok {
		return amount.StringFixed(solPlaces) + " " + string(model.SOL)
	}

	scale, _ := cldr.Standard.Rounding(loc.unit)
	rounded := amount.Round(int32(scale))

	sign := ""
	if rounded.IsNegative() {
		sign = "-"
	}
	whole, frac, _ := strings.Cut(rounded.Abs().StringFixed(int32(scale)), ".")
	out := sign + loc.symbol + groupDigits(whole, loc.group)
	if frac != "" {
		out += loc.point + frac
	}
	return out
}

// groupDigits inserts sep between every three digits of an unsigned
// integer string, counting from the right.
func groupDigits(digits, sep string) string {
	if len(digits) <= 3 {
		return digits
	}
	var b strings.Builder
	head := len(digits) % 3
	if head > 0 {
		b.WriteString(digits[:head])
	}
	for i := head; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteString(sep)
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}

// AxisLabel renders a chart tick value already expressed in c.
//
// Fiat ticks are always compact (1.5K, 2M). SOL ticks keep 3 decimals
// below 1, 2 decimals below 1000 and switch to compact from 1000 up, since
// SOL balances span many orders of magnitude.
func AxisLabel(value decimal.Decimal, c model.Currency) string {
	if c.IsFiat() {
		return Compact(value, 1)
	}
	switch {
	case value.LessThan(decimal.NewFromInt(1)):
		return value.StringFixed(3)
	case value.LessThan(decimal.NewFromInt(1000)):
		return value.StringFixed(2)
	}
	return Compact(value, 2)
}

var compactSuffixes = []string{"", "K", "M", "B", "T"}

var thousand = decimal.NewFromInt(1000)

// Compact renders v in short compact notation with at most maxFrac
// fraction digits and no trailing zeros.
func Compact(v decimal.Decimal, maxFrac int32) string {
	sign := ""
	if v.IsNegative() {
		sign = "-"
		v = v.Abs()
	}

	tier := 0
	scaled := v
	for tier < len(compactSuffixes)-1 && scaled.GreaterThanOrEqual(thousand) {
		scaled = scaled.Div(thousand)
		tier++
	}
	rounded := scaled.Round(maxFrac)
	// 999.96 rounds up to the next tier.
	if rounded.GreaterThanOrEqual(thousand) && tier < len(compactSuffixes)-1 {
		tier++
		rounded = scaled.Div(thousand).Round(maxFrac)
	}

	if rounded.IsZero() {
		sign = ""
	}
	num := rounded.String()
	if rounded.GreaterThanOrEqual(thousand) {
		num = groupDigits(rounded.Truncate(0).String(), fiatLocales[model.USD].group)
	}
	return sign + num + compactSuffixes[tier]
}

// Subtitle lists the amount in the two currencies other than display,
// skipping any that cannot be converted. If none can, it returns Blank.
func (r Rates) Subtitle(amount decimal.Decimal, display model.Currency) string {
	parts := make([]string, 0, 2)
	for _, c := range model.Currencies {
		if c == display {
			continue
		}
		v, ok := r.Convert(amount, c)
		if !ok {
			continue
		}
		parts = append(parts, Format(v, c))
	}
	if len(parts) == 0 {
		return Blank
	}
	return strings.Join(parts, SubtitleSeparator)
}
