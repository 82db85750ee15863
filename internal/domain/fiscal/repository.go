package fiscal

import "context"

// DocumentLookup answers existence queries against the durable document
// store. The numbering controller uses it as a defense-in-depth check that a
// freshly computed number was never issued before.
type DocumentLookup interface {
	Exists(ctx context.Context, docType DocumentType, number string) (bool, error)
}

// DocumentRepository persists sealed documents. Sealed records are written
// once and never updated.
type DocumentRepository interface {
	DocumentLookup
	Save(ctx context.Context, doc *Document) error
	FindByNumber(ctx context.Context, docType DocumentType, number string) (*Document, error)
	CountByType(ctx context.Context, docType DocumentType) (int64, error)
}
