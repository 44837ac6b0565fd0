package service

import (
	"fmt"
	"strings"

	"github.com/pesio-ai/be-p2p-workflow/internal/errors"
	"github.com/pesio-ai/be-p2p-workflow/internal/repository"
)

func validateLineItems(lines []repository.LineItem) error {
	if len(lines) == 0 {
		return errors.InvalidInput("line_items", "at least one line item is required")
	}
	for i, l := range lines {
		field := fmt.Sprintf("line_items[%d]", i)
		if strings.TrimSpace(l.ItemCode) == "" {
			return errors.InvalidInput(field+".item_code", "item code is required")
		}
		if l.Quantity <= 0 {
			return errors.InvalidInput(field+".quantity", "quantity must be positive")
		}
		if l.UnitPrice < 0 {
			return errors.InvalidInput(field+".unit_price", "unit price cannot be negative")
		}
		if l.TaxRate < 0 || l.TaxRate > 1 {
			return errors.InvalidInput(field+".tax_rate", "tax rate must be between 0 and 1")
		}
	}
	return nil
}

// normalizePaymentTerms returns fallback for empty terms and rejects unknown ones.
func normalizePaymentTerms(terms, fallback repository.PaymentTerms) (repository.PaymentTerms, error) {
	switch terms {
	case "":
		return fallback, nil
	case repository.PaymentTermsImmediate,
		repository.PaymentTermsDueOnReceipt,
		repository.PaymentTermsNet30,
		repository.PaymentTermsNet60,
		repository.PaymentTermsNet90:
		return terms, nil
	default:
		return "", errors.InvalidInput("payment_terms", fmt.Sprintf("unknown payment terms '%s'", terms))
	}
}

func requireField(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return errors.InvalidInput(field, field+" is required")
	}
	return nil
}

func requireReason(reason string) error {
	if strings.TrimSpace(reason) == "" {
		return errors.InvalidInput("reason", "a blocking reason is required")
	}
	return nil
}
