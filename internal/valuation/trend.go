package valuation

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Trend classifies a P/L figure. Zero counts as a gain.
type Trend int

const (
	Gain Trend = iota
	Loss
)

// TrendOf returns Loss for negative pl and Gain otherwise.
func TrendOf(pl decimal.Decimal) Trend {
	if pl.IsNegative() {
		return Loss
	}
	return Gain
}

func (t Trend) String() string {
	if t == Loss {
		return "loss"
	}
	return "gain"
}

// MarshalText implements encoding.TextMarshaler.
func (t Trend) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

// Icon returns the icon shown next to a figure with this trend.
func (t Trend) Icon() Icon {
	if t == Loss {
		return IconTrendingDown
	}
	return IconTrendingUp
}

// Icon is one of the known display icons.
type Icon int

const (
	IconUnknown Icon = iota
	IconTrendingUp
	IconTrendingDown
	IconRefresh
	IconExternalLink
)

var iconNames = [...]string{
	IconUnknown:      "unknown",
	IconTrendingUp:   "trending-up",
	IconTrendingDown: "trending-down",
	IconRefresh:      "refresh",
	IconExternalLink: "external-link",
}

func (i Icon) String() string {
	if i < 0 || int(i) >= len(iconNames) {
		return iconNames[IconUnknown]
	}
	return iconNames[i]
}

// MarshalText implements encoding.TextMarshaler.
func (i Icon) MarshalText() ([]byte, error) { return []byte(i.String()), nil }

// LookupIcon resolves an icon by name, ignoring case and accepting the
// CamelCase spellings ("TrendingUp"). Unknown names give IconUnknown.
func LookupIcon(name string) Icon {
	key := strings.ToLower(strings.TrimSpace(name))
	key = strings.NewReplacer("-", "", "_", "", " ", "").Replace(key)
	for i, n := range iconNames {
		if strings.ReplaceAll(n, "-", "") == key {
			return Icon(i)
		}
	}
	return IconUnknown
}
