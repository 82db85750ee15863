package fiscal

import (
	"encoding/json"
	"fmt"
	"time"
)

// DocumentType identifies a kind of fiscal document. The values double as
// numbering series keys and as the document-type tag inside security metadata.
type DocumentType string

const (
	DocumentTypeInvoice    DocumentType = "FACTURA"
	DocumentTypeCreditNote DocumentType = "NOTA_CREDITO"
	DocumentTypeDebitNote  DocumentType = "NOTA_DEBITO"
)

// IsValid checks if the type is a known DocumentType
func (t DocumentType) IsValid() bool {
	switch t {
	case DocumentTypeInvoice, DocumentTypeCreditNote, DocumentTypeDebitNote:
		return true
	}
	return false
}

// String returns the string representation of DocumentType
func (t DocumentType) String() string {
	return string(t)
}

// MetadataKey is the payload key under which the security metadata block is
// stored when a document is serialized for hashing or export.
const MetadataKey = "_metadatos_seguridad"

// TimestampLayout is the millisecond-precision layout used for creation
// timestamps in security metadata and audit log entries. Content hashes are
// anchored to timestamps in this layout, so it must stay stable.
const TimestampLayout = "2006-01-02 15:04:05.000"

// SecurityMetadata is the integrity block attached to a document when it is
// sealed. Hash and signature cover the document's canonical form excluding
// these two fields themselves.
type SecurityMetadata struct {
	DocumentType  DocumentType `json:"tipo_documento"`
	CreatedAt     string       `json:"fecha_creacion"`
	MACAddress    string       `json:"mac_address"`
	Hostname      string       `json:"hostname"`
	SystemVersion string       `json:"version_sistema"`
	Immutable     bool         `json:"inmutable"`
	DocumentID    string       `json:"id_documento"`
	ContentHash   string       `json:"hash_inmutable,omitempty"`
	Signature     string       `json:"firma_digital,omitempty"`
}

// CreatedAtTime parses the creation timestamp.
func (m SecurityMetadata) CreatedAtTime() (time.Time, error) {
	ts, err := time.Parse(TimestampLayout, m.CreatedAt)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid metadata timestamp %q: %w", m.CreatedAt, err)
	}
	return ts, nil
}

// AsMap returns the metadata as a generic map, suitable for embedding in a
// document payload under MetadataKey. Hash and signature are omitted when
// empty, which is exactly the form both are computed over.
func (m SecurityMetadata) AsMap() (map[string]any, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal security metadata: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("unmarshal security metadata: %w", err)
	}
	return out, nil
}

// MetadataFromMap decodes a metadata block out of a generic payload map.
func MetadataFromMap(raw map[string]any) (SecurityMetadata, error) {
	b, err := json.Marshal(raw)
	if err != nil {
		return SecurityMetadata{}, fmt.Errorf("marshal metadata block: %w", err)
	}
	var m SecurityMetadata
	if err := json.Unmarshal(b, &m); err != nil {
		return SecurityMetadata{}, fmt.Errorf("decode metadata block: %w", err)
	}
	return m, nil
}

// Document is a fiscal document after sealing: the business payload plus the
// populated security metadata. It must never be mutated once sealed; a
// correction is a new document with a new number and a cross-reference.
type Document struct {
	Payload  map[string]any
	Metadata SecurityMetadata
}

// Number returns the document number from the business payload, or "" when
// the payload carries none.
func (d *Document) Number() string {
	if d == nil || d.Payload == nil {
		return ""
	}
	n, _ := d.Payload["numero"].(string)
	return n
}

// ExportMap returns the export-surface form of the document: the payload with
// the full metadata block embedded, as external consumers receive it.
func (d *Document) ExportMap() (map[string]any, error) {
	out := ClonePayload(d.Payload)
	meta, err := d.Metadata.AsMap()
	if err != nil {
		return nil, err
	}
	out[MetadataKey] = meta
	return out, nil
}

// DocumentFromExport rebuilds a Document from its export-surface form.
func DocumentFromExport(raw map[string]any) (*Document, error) {
	block, ok := raw[MetadataKey].(map[string]any)
	if !ok {
		return nil, NewDomainError("MISSING_METADATA", "Document has no security metadata block")
	}
	meta, err := MetadataFromMap(block)
	if err != nil {
		return nil, err
	}
	payload := ClonePayload(raw)
	delete(payload, MetadataKey)
	return &Document{Payload: payload, Metadata: meta}, nil
}

// ClonePayload deep-copies a payload map through JSON, normalizing all nested
// values to plain maps, slices, and primitives.
func ClonePayload(payload map[string]any) map[string]any {
	if payload == nil {
		return map[string]any{}
	}
	b, err := json.Marshal(payload)
	if err != nil {
		// Non-serializable payloads are rejected later by the content hasher;
		// a shallow copy keeps Clone total.
		out := make(map[string]any, len(payload))
		for k, v := range payload {
			out[k] = v
		}
		return out
	}
	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		return map[string]any{}
	}
	return out
}
