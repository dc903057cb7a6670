package numerator

import (
	"fmt"
	"time"
)

// Key returns the sequence key that scopes the counter for cfg in period.
func Key(cfg Config, period time.Time) string {
	switch cfg.ResetPeriod {
	case "month":
		return fmt.Sprintf("%s_%s", cfg.Prefix, period.Format("2006_01"))
	case "year":
		return fmt.Sprintf("%s_%s", cfg.Prefix, period.Format("2006"))
	default:
		return cfg.Prefix
	}
}

// Format renders counter value num for cfg in period.
func Format(cfg Config, period time.Time, num int64) string {
	padWidth := cfg.PadWidth
	if padWidth == 0 {
		padWidth = 5
	}

	switch cfg.Layout {
	case LayoutPeriod:
		return fmt.Sprintf("%s-%0*d", period.Format("200601"), padWidth, num)
	default:
		return fmt.Sprintf("%s-%s-%0*d", cfg.Prefix, period.Format("2006"), padWidth, num)
	}
}
