package fiscal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocumentTypeIsValid(t *testing.T) {
	assert.True(t, DocumentTypeInvoice.IsValid())
	assert.True(t, DocumentTypeCreditNote.IsValid())
	assert.True(t, DocumentTypeDebitNote.IsValid())
	assert.False(t, DocumentType("RECIBO").IsValid())
	assert.False(t, DocumentType("").IsValid())
}

func TestSecurityMetadataAsMap(t *testing.T) {
	meta := SecurityMetadata{
		DocumentType:  DocumentTypeInvoice,
		CreatedAt:     "2024-03-18 14:30:00.123",
		MACAddress:    "aa:bb:cc:dd:ee:ff",
		Hostname:      "caja-01",
		SystemVersion: "1.0.0",
		Immutable:     true,
		DocumentID:    "6d5bd3e6-9a43-4a0e-9f4f-0f8a2f6c1b2d",
	}

	t.Run("empty hash and signature are omitted", func(t *testing.T) {
		m, err := meta.AsMap()
		require.NoError(t, err)
		assert.NotContains(t, m, "hash_inmutable")
		assert.NotContains(t, m, "firma_digital")
		assert.Equal(t, "FACTURA", m["tipo_documento"])
		assert.Equal(t, true, m["inmutable"])
	})

	t.Run("round trip", func(t *testing.T) {
		withHash := meta
		withHash.ContentHash = "abc"
		withHash.Signature = "def"
		m, err := withHash.AsMap()
		require.NoError(t, err)
		restored, err := MetadataFromMap(m)
		require.NoError(t, err)
		assert.Equal(t, withHash, restored)
	})

	t.Run("timestamp parses", func(t *testing.T) {
		ts, err := meta.CreatedAtTime()
		require.NoError(t, err)
		assert.Equal(t, 123000000, ts.Nanosecond())
	})

	t.Run("bad timestamp", func(t *testing.T) {
		broken := meta
		broken.CreatedAt = "ayer"
		_, err := broken.CreatedAtTime()
		assert.Error(t, err)
	})
}

func TestDocumentExport(t *testing.T) {
	doc := &Document{
		Payload: map[string]any{
			"numero":    "FAC-00000001",
			"total_usd": 120.5,
		},
		Metadata: SecurityMetadata{
			DocumentType: DocumentTypeInvoice,
			CreatedAt:    "2024-03-18 14:30:00.123",
			Immutable:    true,
			DocumentID:   "6d5bd3e6-9a43-4a0e-9f4f-0f8a2f6c1b2d",
			ContentHash:  "abc",
			Signature:    "def",
		},
	}

	t.Run("export embeds the metadata block", func(t *testing.T) {
		export, err := doc.ExportMap()
		require.NoError(t, err)
		assert.Equal(t, "FAC-00000001", export["numero"])
		block, ok := export[MetadataKey].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "abc", block["hash_inmutable"])
	})

	t.Run("round trip", func(t *testing.T) {
		export, err := doc.ExportMap()
		require.NoError(t, err)
		restored, err := DocumentFromExport(export)
		require.NoError(t, err)
		assert.Equal(t, doc.Metadata, restored.Metadata)
		assert.Equal(t, "FAC-00000001", restored.Number())
		assert.NotContains(t, restored.Payload, MetadataKey)
	})

	t.Run("missing metadata block", func(t *testing.T) {
		_, err := DocumentFromExport(map[string]any{"numero": "FAC-00000001"})
		assert.Error(t, err)
	})

	t.Run("export does not alias the payload", func(t *testing.T) {
		export, err := doc.ExportMap()
		require.NoError(t, err)
		export["numero"] = "FAC-99999999"
		assert.Equal(t, "FAC-00000001", doc.Number())
	})
}

func TestDocumentNumber(t *testing.T) {
	var nilDoc *Document
	assert.Equal(t, "", nilDoc.Number())
	assert.Equal(t, "", (&Document{}).Number())
	assert.Equal(t, "", (&Document{Payload: map[string]any{"numero": 42}}).Number())
}

func TestClonePayload(t *testing.T) {
	t.Run("deep copies nested values", func(t *testing.T) {
		original := map[string]any{
			"items": []any{map[string]any{"cantidad": 10}},
		}
		clone := ClonePayload(original)
		clone["items"].([]any)[0].(map[string]any)["cantidad"] = 99.0
		assert.Equal(t, 10, original["items"].([]any)[0].(map[string]any)["cantidad"])
	})

	t.Run("nil payload yields empty map", func(t *testing.T) {
		clone := ClonePayload(nil)
		assert.NotNil(t, clone)
		assert.Empty(t, clone)
	})
}
