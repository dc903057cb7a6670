package invoice

import "tradeledger/internal/core/numerator"

// NumberConfig returns the numbering sequence of a document kind.
// Invoices and credit notes of each direction have their own sequence;
// proformas share one.
func NumberConfig(direction Direction, docType DocType) numerator.Config {
	switch {
	case docType == TypeProforma:
		return numerator.DefaultConfig("PRO")
	case docType == TypeCreditNote && direction == DirectionPurchase:
		return numerator.DefaultConfig("AVF")
	case docType == TypeCreditNote:
		return numerator.DefaultConfig("AV")
	case direction == DirectionPurchase:
		return numerator.DefaultConfig("FAF")
	default:
		return numerator.DefaultConfig("FAC")
	}
}
