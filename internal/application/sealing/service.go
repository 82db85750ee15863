// Package sealing implements the document sealing facade: the single entry
// point business code uses to finalize a fiscal document. It validates the
// required fields of each document type against a declarative schema and
// delegates to the integrity engine for hashing and signing.
package sealing

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/fiscal/backend/internal/domain/fiscal"
	"github.com/fiscal/backend/internal/infrastructure/integrity"
	"github.com/fiscal/backend/internal/infrastructure/telemetry"
)

// Auditor records the sealing action in the audit log. Satisfied by the
// audit writer.
type Auditor interface {
	Append(event fiscal.AuditEvent)
}

// Service is the document sealing facade.
type Service struct {
	engine  *integrity.Engine
	auditor Auditor
	log     *zap.Logger
}

// NewService creates a sealing service.
func NewService(engine *integrity.Engine, auditor Auditor, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{engine: engine, auditor: auditor, log: log.Named("sealing")}
}

// Validate checks the payload against the required-field schema of the
// document type and returns every problem found, not just the first, so the
// caller can report all of them at once. An empty slice means valid.
func (s *Service) Validate(payload map[string]any, docType fiscal.DocumentType) []fiscal.FieldError {
	rules, ok := documentSchemas[docType]
	if !ok {
		return []fiscal.FieldError{{Field: "tipo_documento", Reason: fmt.Sprintf("Tipo de documento desconocido: %s", docType)}}
	}

	var problems []fiscal.FieldError
	for _, rule := range rules {
		if fieldErr := checkRule(payload, rule, ""); fieldErr != nil {
			problems = append(problems, *fieldErr)
		}
	}

	// The party sub-record is optional enrichment of cliente_id, but when
	// supplied it must be complete.
	if raw, ok := payload[partyField]; ok && raw != nil {
		party, ok := raw.(map[string]any)
		if !ok {
			problems = append(problems, fiscal.FieldError{Field: partyField, Reason: "Datos del cliente inválidos"})
		} else {
			for _, rule := range partyRules {
				if fieldErr := checkRule(party, rule, partyField+"."); fieldErr != nil {
					problems = append(problems, *fieldErr)
				}
			}
		}
	}
	return problems
}

// Seal validates the payload and returns it with a fully populated,
// immutable security metadata block. All validation problems are returned
// together in one ValidationError; crypto failures abort the operation.
func (s *Service) Seal(ctx context.Context, payload map[string]any, docType fiscal.DocumentType, user string) (*fiscal.Document, error) {
	_, span := telemetry.StartServiceSpan(ctx, "sealing", "seal")
	defer span.End()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrDocumentType, docType.String(),
		telemetry.SpanAttrUser, user,
	)

	if problems := s.Validate(payload, docType); len(problems) > 0 {
		err := &fiscal.ValidationError{DocumentType: docType, Fields: problems}
		telemetry.RecordError(span, err)
		return nil, err
	}

	doc, err := s.engine.SealDocument(payload, docType)
	if err != nil {
		telemetry.RecordError(span, err)
		s.log.Error("sealing failed",
			zap.String("document_type", docType.String()),
			zap.Error(err))
		return nil, err
	}

	number := doc.Number()
	telemetry.SetAttributes(span, telemetry.SpanAttrDocumentNumber, number)
	if s.auditor != nil {
		s.auditor.Append(fiscal.AuditEvent{
			User:           user,
			Action:         fiscal.AuditActionDocumentSealed,
			DocumentType:   docType.String(),
			DocumentNumber: number,
			Detail:         fmt.Sprintf("Documento sellado: %s (id: %s)", number, doc.Metadata.DocumentID),
		})
	}
	s.log.Info("document sealed",
		zap.String("document_type", docType.String()),
		zap.String("number", number),
		zap.String("document_id", doc.Metadata.DocumentID))
	return doc, nil
}

// Verify reports whether a sealed document still matches its hash and
// signature. This is the tamper-detection check external auditors rely on.
func (s *Service) Verify(doc *fiscal.Document) bool {
	return s.engine.ValidateSealedDocument(doc)
}
