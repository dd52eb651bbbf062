package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"cloud.google.com/go/vertexai/genai"
	"github.com/Lllllllleong/expenseflow/internal/gcp"
	"github.com/Lllllllleong/expenseflow/internal/models"
	"github.com/google/uuid"
)

// VertexExtractor implements Extractor on top of the pre-configured Gemini
// models. Each call sends the raw document bytes inline with the prompt and
// decodes the schema-constrained JSON response.
type VertexExtractor struct {
	client *gcp.VertexClient
}

func NewVertexExtractor(client *gcp.VertexClient) *VertexExtractor {
	return &VertexExtractor{client: client}
}

func (e *VertexExtractor) Extract(ctx context.Context, payload []byte, mimeType string, kind models.RecordKind) (*models.Record, error) {
	var model *genai.GenerativeModel
	var prompt string
	switch kind {
	case models.KindInvoice:
		model = e.client.InvoiceModel
		prompt = gcp.InvoiceUserPrompt
	case models.KindReceipt:
		model = e.client.ReceiptModel
		prompt = gcp.ReceiptUserPrompt
	default:
		return nil, fmt.Errorf("unsupported record kind %q", kind)
	}

	filePart := genai.Blob{
		MIMEType: mimeType,
		Data:     payload,
	}

	resp, err := model.GenerateContent(ctx, filePart, genai.Text(prompt))
	if err != nil {
		log.Printf("ERROR calling Vertex AI for %s extraction: %v", kind, err)
		return nil, fmt.Errorf("failed to generate content from gemini: %w", err)
	}

	text := responseText(resp)
	if text == "" {
		return nil, fmt.Errorf("empty response from model for %s extraction", kind)
	}

	record, err := decodeRecord([]byte(text), kind)
	if err != nil {
		log.Printf("ERROR decoding model response for %s extraction: %v", kind, err)
		return nil, err
	}
	return record, nil
}

// responseText concatenates all text parts of the first candidate.
func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			sb.WriteString(string(txt))
		}
	}

	// The schema forces bare JSON, but trim fences anyway in case the model
	// wraps the output.
	text := strings.TrimSpace(sb.String())
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}

// decodeRecord parses the model's JSON output into a Record of the given
// kind, assigning ids and filling line-item defaults the model tends to omit.
func decodeRecord(data []byte, kind models.RecordKind) (*models.Record, error) {
	record := &models.Record{
		ID:   uuid.NewString(),
		Kind: kind,
	}

	switch kind {
	case models.KindInvoice:
		var inv models.InvoiceData
		if err := json.Unmarshal(data, &inv); err != nil {
			return nil, fmt.Errorf("failed to parse invoice response: %w", err)
		}
		if inv.ConfidenceScore == 0 {
			inv.ConfidenceScore = 95
		}
		enrichLineItems(inv.LineItems, "")
		record.Invoice = &inv
	case models.KindReceipt:
		var rec models.ReceiptData
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil, fmt.Errorf("failed to parse receipt response: %w", err)
		}
		enrichLineItems(rec.LineItems, rec.CostCode)
		record.Receipt = &rec
	default:
		return nil, fmt.Errorf("unsupported record kind %q", kind)
	}

	return record, nil
}

// enrichLineItems assigns ids and fills defaults in place. fallbackCostCode
// is the document-level category, used when a line carries none of its own.
func enrichLineItems(items []models.LineItem, fallbackCostCode string) {
	for i := range items {
		item := &items[i]
		item.ID = uuid.NewString()
		if item.Quantity == 0 {
			item.Quantity = 1
		}
		if item.UnitPrice == 0 {
			item.UnitPrice = item.Total
		}
		if item.CostCode == "" {
			item.CostCode = fallbackCostCode
		}
	}
}
