package service

import (
	"encoding/xml"
	"fmt"

	"einvoice-dispatch/internal/core/domain"
)

// UBLPayloadBuilder implements ports.PayloadBuilder. Output is a UBL-style
// invoice body built deterministically from document and organization fields;
// the same inputs always produce the same bytes.
type UBLPayloadBuilder struct{}

// NewUBLPayloadBuilder creates a new payload builder.
func NewUBLPayloadBuilder() *UBLPayloadBuilder {
	return &UBLPayloadBuilder{}
}

type invoiceLineXML struct {
	Name      string `xml:"Name"`
	Quantity  int64  `xml:"Quantity"`
	UnitPrice int64  `xml:"UnitPrice"`
	TaxRate   int64  `xml:"TaxRate"`
}

type invoiceXML struct {
	XMLName      xml.Name         `xml:"Invoice"`
	ID           string           `xml:"ID"`
	UUID         string           `xml:"UUID"`
	ProfileID    string           `xml:"ProfileID"`
	IssueDate    string           `xml:"IssueDate"`
	Supplier     partyXML         `xml:"AccountingSupplierParty"`
	Customer     partyXML         `xml:"AccountingCustomerParty"`
	Lines        []invoiceLineXML `xml:"InvoiceLine"`
	TaxExclusive int64            `xml:"LegalMonetaryTotal>TaxExclusiveAmount"`
	Payable      int64            `xml:"LegalMonetaryTotal>PayableAmount"`
	TaxTotal     int64            `xml:"TaxTotal>TaxAmount"`
	Currency     string           `xml:"DocumentCurrencyCode"`
}

type partyXML struct {
	Name  string `xml:"PartyName"`
	TaxID string `xml:"TaxID,omitempty"`
	Alias string `xml:"Alias,omitempty"`
	Email string `xml:"Email,omitempty"`
}

// Build constructs the outbound provider payload from document fields and the
// owning organization's profile.
func (b *UBLPayloadBuilder) Build(doc *domain.Document, org *domain.Organization) ([]byte, error) {
	if doc.ETTN == "" {
		return nil, fmt.Errorf("document %s has no transfer id", doc.ID)
	}
	if doc.ProviderDocID == "" {
		return nil, fmt.Errorf("document %s has no provider document id", doc.ID)
	}

	inv := invoiceXML{
		ID:        doc.ProviderDocID,
		UUID:      doc.ETTN,
		ProfileID: string(doc.Profile),
		IssueDate: doc.CreatedAt.UTC().Format("2006-01-02"),
		Supplier: partyXML{
			Name:  org.Name,
			TaxID: org.TaxID,
			Alias: org.Alias,
		},
		Customer: partyXML{
			Name:  doc.CustomerName,
			Alias: doc.CustomerAlias,
			Email: doc.CustomerEmail,
		},
		TaxExclusive: doc.TotalExclTax,
		Payable:      doc.TotalInclTax,
		TaxTotal:     doc.TotalTax,
		Currency:     doc.Currency,
	}
	for _, item := range doc.Items {
		inv.Lines = append(inv.Lines, invoiceLineXML{
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			TaxRate:   item.TaxRate,
		})
	}

	out, err := xml.MarshalIndent(inv, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal invoice payload: %w", err)
	}
	return append([]byte(xml.Header), out...), nil
}
