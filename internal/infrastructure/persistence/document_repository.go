package persistence

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/fiscal/backend/internal/domain/fiscal"
	"github.com/fiscal/backend/internal/infrastructure/persistence/models"
)

// GormDocumentRepository implements fiscal.DocumentRepository using GORM.
type GormDocumentRepository struct {
	db *gorm.DB
}

// NewGormDocumentRepository creates a new GormDocumentRepository
func NewGormDocumentRepository(db *gorm.DB) *GormDocumentRepository {
	return &GormDocumentRepository{db: db}
}

// Save persists a sealed document. Sealed records are insert-only; a second
// document with the same type and number is rejected as a duplicate.
func (r *GormDocumentRepository) Save(ctx context.Context, doc *fiscal.Document) error {
	model, err := models.FromDomain(doc)
	if err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fiscal.ErrDuplicateNumber
		}
		return err
	}
	return nil
}

// FindByNumber loads a sealed document by type and number.
func (r *GormDocumentRepository) FindByNumber(ctx context.Context, docType fiscal.DocumentType, number string) (*fiscal.Document, error) {
	var model models.SealedDocumentModel
	if err := r.db.WithContext(ctx).
		Where("document_type = ? AND number = ?", docType.String(), number).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fiscal.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain()
}

// Exists reports whether a document with the given type and number was
// already persisted. The numbering controller uses this as its
// defense-in-depth uniqueness check.
func (r *GormDocumentRepository) Exists(ctx context.Context, docType fiscal.DocumentType, number string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.SealedDocumentModel{}).
		Where("document_type = ? AND number = ?", docType.String(), number).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// CountByType returns how many sealed documents of the given type exist.
func (r *GormDocumentRepository) CountByType(ctx context.Context, docType fiscal.DocumentType) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.SealedDocumentModel{}).
		Where("document_type = ?", docType.String()).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
