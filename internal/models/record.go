package models

import "time"

// RecordKind discriminates the document categories the extractor understands.
type RecordKind string

const (
	KindInvoice RecordKind = "invoice"
	KindReceipt RecordKind = "receipt"
)

// RecordStatus is the downstream review state of a persisted record. It is
// driven by the approval workflow, not by ingestion.
type RecordStatus string

const (
	StatusDraft    RecordStatus = "Draft"
	StatusPending  RecordStatus = "Pending"
	StatusApproved RecordStatus = "Approved"
	StatusRejected RecordStatus = "Rejected"
)

// LineItem is a single line on an invoice or receipt.
type LineItem struct {
	ID          string  `firestore:"id,omitempty" json:"id"`
	Description string  `firestore:"description,omitempty" json:"description"`
	Quantity    float64 `firestore:"quantity,omitempty" json:"quantity"`
	UnitPrice   float64 `firestore:"unitPrice,omitempty" json:"unitPrice"`
	Total       float64 `firestore:"total,omitempty" json:"total"`
	CostCode    string  `firestore:"costCode,omitempty" json:"costCode,omitempty"`
	IsTaxLine   bool    `firestore:"isTaxLine" json:"isTaxLine"`
}

// InvoiceData holds the fields extracted from an invoice document.
type InvoiceData struct {
	VendorName      string     `firestore:"vendorName,omitempty" json:"vendorName"`
	InvoiceNumber   string     `firestore:"invoiceNumber,omitempty" json:"invoiceNumber"`
	PONumber        string     `firestore:"poNumber,omitempty" json:"poNumber,omitempty"`
	ProjectNumber   string     `firestore:"projectNumber,omitempty" json:"projectNumber,omitempty"`
	InvoiceDate     string     `firestore:"invoiceDate,omitempty" json:"invoiceDate"`
	LineItems       []LineItem `firestore:"lineItems,omitempty" json:"lineItems"`
	Subtotal        float64    `firestore:"subtotal,omitempty" json:"subtotal,omitempty"`
	TaxTotal        float64    `firestore:"taxTotal,omitempty" json:"taxTotal,omitempty"`
	GrandTotal      float64    `firestore:"grandTotal,omitempty" json:"grandTotal"`
	ConfidenceScore float64    `firestore:"confidenceScore,omitempty" json:"confidenceScore,omitempty"`
	RiskFlags       []string   `firestore:"riskFlags,omitempty" json:"riskFlags,omitempty"`
}

// ReceiptData holds the fields extracted from a receipt document.
type ReceiptData struct {
	MerchantName  string     `firestore:"merchantName,omitempty" json:"merchantName"`
	Date          string     `firestore:"date,omitempty" json:"date"`
	TotalAmount   float64    `firestore:"totalAmount,omitempty" json:"totalAmount"`
	TaxAmount     float64    `firestore:"taxAmount,omitempty" json:"taxAmount,omitempty"`
	Description   string     `firestore:"description,omitempty" json:"description"`
	ProjectNumber string     `firestore:"projectNumber,omitempty" json:"projectNumber,omitempty"`
	CostCode      string     `firestore:"costCode,omitempty" json:"costCode,omitempty"`
	LineItems     []LineItem `firestore:"lineItems,omitempty" json:"lineItems"`
	RiskFlags     []string   `firestore:"riskFlags,omitempty" json:"riskFlags,omitempty"`
}

// Record is the persisted result of one extracted document. Exactly one of
// Invoice or Receipt is set, matching Kind.
type Record struct {
	ID        string       `firestore:"id,omitempty" json:"id"`
	Kind      RecordKind   `firestore:"kind,omitempty" json:"kind"`
	FileName  string       `firestore:"fileName,omitempty" json:"fileName"`
	Status    RecordStatus `firestore:"status,omitempty" json:"status"`
	CreatedAt time.Time    `firestore:"createdAt,omitempty" json:"createdAt"`
	MIMEType  string       `firestore:"mimeType,omitempty" json:"mimeType,omitempty"`
	// Preview is the encoded original document, retained best-effort. It is
	// the first thing dropped when the backing store runs out of room.
	Preview []byte       `firestore:"preview,omitempty" json:"preview,omitempty"`
	Invoice *InvoiceData `firestore:"invoice,omitempty" json:"invoice,omitempty"`
	Receipt *ReceiptData `firestore:"receipt,omitempty" json:"receipt,omitempty"`
}

// Clone returns a deep-enough copy for handing records across goroutine
// boundaries. Line item slices are copied; the preview bytes are shared
// because neither side mutates them.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	out := *r
	if r.Invoice != nil {
		inv := *r.Invoice
		inv.LineItems = append([]LineItem(nil), r.Invoice.LineItems...)
		inv.RiskFlags = append([]string(nil), r.Invoice.RiskFlags...)
		out.Invoice = &inv
	}
	if r.Receipt != nil {
		rec := *r.Receipt
		rec.LineItems = append([]LineItem(nil), r.Receipt.LineItems...)
		rec.RiskFlags = append([]string(nil), r.Receipt.RiskFlags...)
		out.Receipt = &rec
	}
	return &out
}
