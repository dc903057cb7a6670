// Package numerator provides domain contracts for document auto-numbering.
package numerator

// Strategy defines the numbering generation strategy.
type Strategy int

const (
	// StrategyStrict allocates every number in the caller's transaction.
	// Numbers are gap-free; a rolled back caller returns its number.
	StrategyStrict Strategy = iota

	// StrategyCached allocates ranges of numbers in memory.
	// Faster, but may produce gaps if the process restarts.
	StrategyCached
)

// Options configuration for number generation.
type Options struct {
	Strategy Strategy
	// RangeSize is the number of values reserved at once by StrategyCached.
	// Default is 50.
	RangeSize int64
}

// DefaultOptions returns standard options (Strict).
func DefaultOptions() *Options {
	return &Options{
		Strategy: StrategyStrict,
	}
}

// Layout selects how a number is rendered.
type Layout int

const (
	// LayoutPrefixYear renders PREFIX-YYYY-00001.
	LayoutPrefixYear Layout = iota
	// LayoutPeriod renders YYYYMM-000001 (journal entry numbers).
	LayoutPeriod
)

// Config holds numbering configuration.
type Config struct {
	// Prefix names the sequence (e.g. "FAC", "REG", "JE")
	Prefix string

	Layout Layout

	// PadWidth is the minimum width of the counter (default 5)
	PadWidth int

	// ResetPeriod: "year", "month", "never"
	ResetPeriod string
}

// DefaultConfig returns PREFIX-YYYY-NNNNN numbering reset every year.
func DefaultConfig(prefix string) Config {
	return Config{
		Prefix:      prefix,
		Layout:      LayoutPrefixYear,
		PadWidth:    5,
		ResetPeriod: "year",
	}
}

// JournalEntryConfig numbers journal lines YYYYMM-NNNNNN, reset every month.
func JournalEntryConfig() Config {
	return Config{
		Prefix:      "JE",
		Layout:      LayoutPeriod,
		PadWidth:    6,
		ResetPeriod: "month",
	}
}
