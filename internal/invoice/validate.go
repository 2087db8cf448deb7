package invoice

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidInvoice is matched by every ValidationError via errors.Is.
var ErrInvalidInvoice = errors.New("invalid invoice")

// ValidationError carries every problem found on an invoice.
type ValidationError struct {
	Problems []string
}

// Error joins the problems into a single message.
func (e *ValidationError) Error() string {
	if e == nil {
		return ""
	}
	return strings.Join(e.Problems, "; ")
}

// Is lets errors.Is(err, ErrInvalidInvoice) succeed.
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidInvoice
}

// Validator checks structural and semantic correctness of an invoice.
type Validator struct {
	// RequireIdentity demands invoice_id, customer_id and at least one item.
	RequireIdentity bool
	// RejectNegativePrice reports items whose unit price is below zero.
	RejectNegativePrice bool
}

// StrictValidator requires identity fields and leaves prices unchecked.
func StrictValidator() Validator {
	return Validator{RequireIdentity: true}
}

// LenientValidator only inspects items and rejects negative prices.
func LenientValidator() Validator {
	return Validator{RejectNegativePrice: true}
}

// Validate returns every problem found on inv in a stable order. An empty result means inv is valid.
func (v Validator) Validate(inv *Invoice) []string {
	if inv == nil {
		return []string{"Invoice is missing"}
	}

	var problems []string
	if v.RequireIdentity {
		if strings.TrimSpace(inv.InvoiceID) == "" {
			problems = append(problems, "Missing invoice_id")
		}
		if strings.TrimSpace(inv.CustomerID) == "" {
			problems = append(problems, "Missing customer_id")
		}
		if len(inv.Items) == 0 {
			problems = append(problems, "Invoice must contain items")
		}
	}
	for _, it := range inv.Items {
		problems = append(problems, v.validateItem(it)...)
	}
	return problems
}

func (v Validator) validateItem(it LineItem) []string {
	var problems []string
	if v.RejectNegativePrice && it.UnitPrice < 0 {
		problems = append(problems, fmt.Sprintf("Invalid price for %s", it.SKU))
	}
	if it.Qty <= 0 {
		problems = append(problems, fmt.Sprintf("Invalid quantity for %s", it.SKU))
	}
	if !it.Category.Valid() {
		problems = append(problems, fmt.Sprintf("Unknown category for %s", it.SKU))
	}
	return problems
}

// EnsureValid returns a *ValidationError when Validate reports any problem.
func (v Validator) EnsureValid(inv *Invoice) error {
	if problems := v.Validate(inv); len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}
