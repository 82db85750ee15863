// Package models contains the GORM persistence models and their mapping to
// domain types.
package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fiscal/backend/internal/domain/fiscal"
)

// SealedDocumentModel is the database representation of a sealed fiscal
// document. Rows are written once when a document is sealed and never
// updated; a correction is a new row with a new number.
type SealedDocumentModel struct {
	ID           string          `gorm:"type:uuid;primaryKey"`
	DocumentType string          `gorm:"size:32;not null;uniqueIndex:idx_sealed_type_number"`
	Number       string          `gorm:"size:64;not null;uniqueIndex:idx_sealed_type_number"`
	SealedAt     string          `gorm:"size:32;not null"`
	TotalUSD     decimal.Decimal `gorm:"type:numeric"`
	TotalBS      decimal.Decimal `gorm:"type:numeric"`
	ExchangeRate decimal.Decimal `gorm:"type:numeric"`
	ContentHash  string          `gorm:"size:64;not null"`
	Signature    string          `gorm:"size:64;not null"`
	Payload      string          `gorm:"type:text;not null"`
	Metadata     string          `gorm:"type:text;not null"`
	CreatedAt    time.Time
}

// TableName returns the table name for SealedDocumentModel
func (SealedDocumentModel) TableName() string {
	return "sealed_documents"
}

// FromDomain maps a sealed document to its persistence model.
func FromDomain(doc *fiscal.Document) (*SealedDocumentModel, error) {
	if doc == nil {
		return nil, fmt.Errorf("nil document")
	}
	meta := doc.Metadata
	if meta.DocumentID == "" {
		return nil, fmt.Errorf("document has no id; seal it first")
	}
	if _, err := uuid.Parse(meta.DocumentID); err != nil {
		return nil, fmt.Errorf("invalid document id %q: %w", meta.DocumentID, err)
	}

	payloadJSON, err := json.Marshal(doc.Payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}

	return &SealedDocumentModel{
		ID:           meta.DocumentID,
		DocumentType: meta.DocumentType.String(),
		Number:       doc.Number(),
		SealedAt:     meta.CreatedAt,
		TotalUSD:     payloadDecimal(doc.Payload, "total_usd"),
		TotalBS:      payloadDecimal(doc.Payload, "total_bs"),
		ExchangeRate: payloadDecimal(doc.Payload, "tasa_bcv"),
		ContentHash:  meta.ContentHash,
		Signature:    meta.Signature,
		Payload:      string(payloadJSON),
		Metadata:     string(metaJSON),
	}, nil
}

// ToDomain maps a persistence model back to the domain document.
func (m *SealedDocumentModel) ToDomain() (*fiscal.Document, error) {
	var payload map[string]any
	if err := json.Unmarshal([]byte(m.Payload), &payload); err != nil {
		return nil, fmt.Errorf("decode payload of %s: %w", m.Number, err)
	}
	var meta fiscal.SecurityMetadata
	if err := json.Unmarshal([]byte(m.Metadata), &meta); err != nil {
		return nil, fmt.Errorf("decode metadata of %s: %w", m.Number, err)
	}
	return &fiscal.Document{Payload: payload, Metadata: meta}, nil
}

// payloadDecimal extracts a numeric payload field for querying; documents
// with absent or malformed values store zero, the payload JSON stays the
// source of truth.
func payloadDecimal(payload map[string]any, key string) decimal.Decimal {
	switch v := payload[key].(type) {
	case float64:
		return decimal.NewFromFloat(v)
	case string:
		if d, err := decimal.NewFromString(v); err == nil {
			return d
		}
	case json.Number:
		if d, err := decimal.NewFromString(v.String()); err == nil {
			return d
		}
	}
	return decimal.Zero
}
