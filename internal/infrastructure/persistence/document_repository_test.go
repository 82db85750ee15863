package persistence

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fiscal/backend/internal/domain/fiscal"
)

func newTestRepository(t *testing.T) *GormDocumentRepository {
	t.Helper()
	db, err := NewDatabase(filepath.Join(t.TempDir(), "documentos.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewGormDocumentRepository(db.DB)
}

func sealedDocument(docType fiscal.DocumentType, number string) *fiscal.Document {
	return &fiscal.Document{
		Payload: map[string]any{
			"numero":    number,
			"total_usd": 120.5,
			"total_bs":  4340.25,
			"tasa_bcv":  36.02,
		},
		Metadata: fiscal.SecurityMetadata{
			DocumentType:  docType,
			CreatedAt:     "2024-03-18 14:30:00.123",
			MACAddress:    "aa:bb:cc:dd:ee:ff",
			Hostname:      "caja-01",
			SystemVersion: "1.0.0",
			Immutable:     true,
			DocumentID:    uuid.NewString(),
			ContentHash:   "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef",
			Signature:     "fedcba9876543210fedcba9876543210fedcba9876543210fedcba9876543210",
		},
	}
}

func TestSaveAndFindByNumber(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	doc := sealedDocument(fiscal.DocumentTypeInvoice, "FAC-00000001")
	require.NoError(t, repo.Save(ctx, doc))

	found, err := repo.FindByNumber(ctx, fiscal.DocumentTypeInvoice, "FAC-00000001")
	require.NoError(t, err)
	assert.Equal(t, doc.Metadata, found.Metadata)
	assert.Equal(t, "FAC-00000001", found.Number())
	assert.Equal(t, 120.5, found.Payload["total_usd"])
}

func TestSaveRejectsDuplicates(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, sealedDocument(fiscal.DocumentTypeInvoice, "FAC-00000001")))

	t.Run("same type and number", func(t *testing.T) {
		err := repo.Save(ctx, sealedDocument(fiscal.DocumentTypeInvoice, "FAC-00000001"))
		assert.ErrorIs(t, err, fiscal.ErrDuplicateNumber)
	})

	t.Run("same number under another type is allowed", func(t *testing.T) {
		assert.NoError(t, repo.Save(ctx, sealedDocument(fiscal.DocumentTypeCreditNote, "FAC-00000001")))
	})
}

func TestSaveRequiresSealedDocument(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	t.Run("nil document", func(t *testing.T) {
		assert.Error(t, repo.Save(ctx, nil))
	})

	t.Run("unsealed document", func(t *testing.T) {
		doc := sealedDocument(fiscal.DocumentTypeInvoice, "FAC-00000002")
		doc.Metadata.DocumentID = ""
		assert.Error(t, repo.Save(ctx, doc))
	})

	t.Run("malformed document id", func(t *testing.T) {
		doc := sealedDocument(fiscal.DocumentTypeInvoice, "FAC-00000003")
		doc.Metadata.DocumentID = "no-es-un-uuid"
		assert.Error(t, repo.Save(ctx, doc))
	})
}

func TestFindByNumberNotFound(t *testing.T) {
	repo := newTestRepository(t)
	_, err := repo.FindByNumber(context.Background(), fiscal.DocumentTypeInvoice, "FAC-99999999")
	assert.ErrorIs(t, err, fiscal.ErrNotFound)
}

func TestExists(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	exists, err := repo.Exists(ctx, fiscal.DocumentTypeInvoice, "FAC-00000001")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, repo.Save(ctx, sealedDocument(fiscal.DocumentTypeInvoice, "FAC-00000001")))

	exists, err = repo.Exists(ctx, fiscal.DocumentTypeInvoice, "FAC-00000001")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = repo.Exists(ctx, fiscal.DocumentTypeCreditNote, "FAC-00000001")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestCountByType(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, sealedDocument(fiscal.DocumentTypeInvoice, "FAC-00000001")))
	require.NoError(t, repo.Save(ctx, sealedDocument(fiscal.DocumentTypeInvoice, "FAC-00000002")))
	require.NoError(t, repo.Save(ctx, sealedDocument(fiscal.DocumentTypeCreditNote, "NC-00000001")))

	count, err := repo.CountByType(ctx, fiscal.DocumentTypeInvoice)
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)

	count, err = repo.CountByType(ctx, fiscal.DocumentTypeDebitNote)
	require.NoError(t, err)
	assert.EqualValues(t, 0, count)
}
