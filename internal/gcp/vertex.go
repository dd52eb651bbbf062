package gcp

import (
	"context"
	"fmt"

	"cloud.google.com/go/vertexai/genai"
)

// --- Invoice Model Prompt ---
const InvoiceUserPrompt = `You are an expert accounts payable AI.
Analyze this invoice document.

Tasks:
1. Extract header info (Vendor, Invoice #, Date, PO #, Project #).
2. Break down every single line item.
3. Suggest Cost Codes.
4. Identify tax lines.
5. Ensure math is correct.
6. Identify potential anomalies or risks (e.g., unusually high amount, suspicious vendor, missing details).

Return ONLY valid JSON.`

// --- Receipt Model Prompt ---
const ReceiptUserPrompt = `You are an expert expense tracker.
Analyze this receipt image deeply.

MANDATORY REQUIREMENT: You MUST extract individual line items. Do NOT just give the total.

1. **Merchant & Date**: Identify who and when.
2. **Line Item Extraction**:
   - Look at the body of the receipt between the header and the subtotal.
   - Create a separate line item for EVERY product or service listed.
   - Extract the exact price and description.
3. **Tax Handling**:
   - If you see lines like "GST", "PST", "HST", or "Tax", extract them as separate line items but mark 'isTaxLine' as true.
4. **Total**: Verify the sum matches the Grand Total.

If the image is blurry or summarizes multiple items, try your best to separate them.

5. **Risk Detection**:
 - Flag if total > $5000.
 - Flag if "Alcohol", "Beer", "Wine", or "Liquor" is present.
 - Flag if "Entertainment" or "Party" is mentioned.
 - Flag if the date is older than 60 days.

Return valid JSON matching the schema.`

// lineItemSchema is shared by both document schemas.
var lineItemSchema = &genai.Schema{
	Type: genai.TypeArray,
	Items: &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"description": {Type: genai.TypeString},
			"quantity":    {Type: genai.TypeNumber},
			"unitPrice":   {Type: genai.TypeNumber},
			"total":       {Type: genai.TypeNumber},
			"costCode":    {Type: genai.TypeString, Description: "Suggested cost code based on item (e.g., FUEL, EQUIPMENT, MATERIALS)", Nullable: true},
			"isTaxLine":   {Type: genai.TypeBoolean, Description: "True if this line item represents a tax adjustment"},
		},
		Required: []string{"description", "total"},
	},
}

// InvoiceSchema forces the invoice model into a predictable JSON shape.
var InvoiceSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"vendorName":      {Type: genai.TypeString, Description: "Name of the vendor or supplier"},
		"invoiceNumber":   {Type: genai.TypeString, Description: "The invoice identifier"},
		"poNumber":        {Type: genai.TypeString, Description: "Purchase Order number if visible", Nullable: true},
		"projectNumber":   {Type: genai.TypeString, Description: "Project number or reference if visible", Nullable: true},
		"invoiceDate":     {Type: genai.TypeString, Description: "Date of invoice in YYYY-MM-DD format"},
		"subtotal":        {Type: genai.TypeNumber, Description: "Subtotal before tax"},
		"taxTotal":        {Type: genai.TypeNumber, Description: "Total tax amount (GST/PST/HST)"},
		"grandTotal":      {Type: genai.TypeNumber, Description: "Total amount including tax"},
		"confidenceScore": {Type: genai.TypeNumber, Description: "Confidence in extraction (0-100)"},
		"riskFlags": {
			Type:        genai.TypeArray,
			Items:       &genai.Schema{Type: genai.TypeString},
			Description: "List of potential issues (e.g. 'High Amount', 'Alcohol Detected')",
		},
		"lineItems": lineItemSchema,
	},
	Required: []string{"vendorName", "invoiceNumber", "invoiceDate", "lineItems", "grandTotal"},
}

// ReceiptSchema forces the receipt model into a predictable JSON shape.
var ReceiptSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"merchantName":  {Type: genai.TypeString, Description: "Name of the store or merchant"},
		"date":          {Type: genai.TypeString, Description: "Date of transaction YYYY-MM-DD"},
		"totalAmount":   {Type: genai.TypeNumber, Description: "Grand total paid"},
		"taxAmount":     {Type: genai.TypeNumber, Description: "Total tax detected"},
		"description":   {Type: genai.TypeString, Description: "Brief summary of items purchased"},
		"projectNumber": {Type: genai.TypeString, Description: "Project number if mentioned", Nullable: true},
		"costCode":      {Type: genai.TypeString, Description: "Suggested category (e.g. FUEL, MEALS, SUPPLIES)", Nullable: true},
		"riskFlags": {
			Type:        genai.TypeArray,
			Items:       &genai.Schema{Type: genai.TypeString},
			Description: "List of potential issues (e.g. 'High Amount', 'Suspicious Vendor')",
		},
		"lineItems": lineItemSchema,
	},
	Required: []string{"merchantName", "date", "totalAmount", "description", "lineItems"},
}

// VertexClient holds all pre-configured generative models for our app.
type VertexClient struct {
	InvoiceModel *genai.GenerativeModel
	ReceiptModel *genai.GenerativeModel
	baseClient   *genai.Client
}

// NewVertexClient creates a new client holding all necessary models.
func NewVertexClient(ctx context.Context, projectID, region string) (*VertexClient, error) {
	if projectID == "" || region == "" {
		return nil, fmt.Errorf("NewVertexClient: projectID and region cannot be empty")
	}

	baseClient, err := genai.NewClient(ctx, projectID, region)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}

	// Both models force JSON output validated against a response schema.
	// Low temperature for deterministic, structured extraction.
	invoiceModel := baseClient.GenerativeModel("gemini-2.5-flash")
	invoiceModel.GenerationConfig = genai.GenerationConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   InvoiceSchema,
		Temperature:      genai.Ptr[float32](0.1),
	}

	receiptModel := baseClient.GenerativeModel("gemini-2.5-flash")
	receiptModel.GenerationConfig = genai.GenerationConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   ReceiptSchema,
		Temperature:      genai.Ptr[float32](0.1),
	}

	return &VertexClient{
		InvoiceModel: invoiceModel,
		ReceiptModel: receiptModel,
		baseClient:   baseClient,
	}, nil
}

func (c *VertexClient) Close() error {
	if c.baseClient != nil {
		return c.baseClient.Close()
	}
	return nil
}
