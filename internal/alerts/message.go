package alerts

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Alert describes an engine incident worth paging on.
type Alert struct {
	Symbol   string
	Stage    string
	OrderID  string
	Size     decimal.Decimal
	Unhedged decimal.Decimal
	Err      error
}

// Key groups repeated alerts for cooldown purposes.
func (a Alert) Key() string {
	return a.Stage + ":" + a.Symbol
}

func FormatAlert(a Alert) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[spot-hedge] %s %s", strings.ToUpper(a.Symbol), strings.ReplaceAll(a.Stage, "_", " "))
	if a.OrderID != "" {
		fmt.Fprintf(&b, "\norder: %s", a.OrderID)
	}
	if !a.Size.IsZero() {
		fmt.Fprintf(&b, "\nsize: %s", a.Size.String())
	}
	fmt.Fprintf(&b, "\nunhedged: %s", a.Unhedged.String())
	if a.Err != nil {
		fmt.Fprintf(&b, "\nerror: %v", a.Err)
	}
	return b.String()
}
