package portal

import (
	"strings"
	"unicode/utf8"

	"propdesk/internal/core/domain"

	"github.com/gabriel-vasile/mimetype"
	"github.com/shopspring/decimal"
)

// MaxInvoiceBytes is the largest document the portal will send.
const MaxInvoiceBytes = 10 << 20

// invoiceTypes are the accepted document types, sniffed from content.
var invoiceTypes = []string{"application/pdf", "image/jpeg", "image/png"}

// InvoiceForm is what the contractor fills in on the invoice page.
type InvoiceForm struct {
	Amount      decimal.Decimal
	Description string
	Notes       string
	FileName    string
	File        []byte
}

// ParseAmount reads a currency amount typed by the contractor.
func ParseAmount(raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(strings.ReplaceAll(raw, ",", ""))
	if raw == "" {
		return decimal.Zero, domain.NewValidationError("amount", "please enter the invoice amount")
	}
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, domain.NewValidationError("amount", "amount must be a number")
	}
	return amount, nil
}

// Validate checks the form before anything is sent.
func (f *InvoiceForm) Validate() error {
	if f == nil {
		return domain.NewValidationError("file", "please attach your invoice file")
	}
	description := strings.TrimSpace(f.Description)
	switch {
	case description == "":
		return domain.NewValidationError("description", "please describe the work performed")
	case utf8.RuneCountInString(description) > maxNotesLength:
		return domain.NewValidationError("description", "description must be 2000 characters or fewer")
	case !f.Amount.IsPositive():
		return domain.NewValidationError("amount", "amount must be greater than zero")
	case !f.Amount.Equal(f.Amount.Round(2)):
		return domain.NewValidationError("amount", "amount can have at most two decimal places")
	case utf8.RuneCountInString(strings.TrimSpace(f.Notes)) > maxNotesLength:
		return domain.NewValidationError("notes", "notes must be 2000 characters or fewer")
	case len(f.File) == 0:
		return domain.NewValidationError("file", "please attach your invoice file")
	case len(f.File) > MaxInvoiceBytes:
		return domain.NewValidationError("file", "file is too large, the maximum size is 10 MB")
	}

	if !mimetype.EqualsAny(mimetype.Detect(f.File).String(), invoiceTypes...) {
		return domain.NewValidationError("file", "file must be a PDF, JPEG or PNG")
	}
	return nil
}

func (f *InvoiceForm) fileName() string {
	if f.FileName != "" {
		return f.FileName
	}
	return "invoice" + mimetype.Detect(f.File).Extension()
}
