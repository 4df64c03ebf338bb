package database

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/thereayou/quipe/internal/models"
)

// SaveDocument записывает новую версию документа
func (d *Database) SaveDocument(ctx context.Context, doc *models.Document) error {
	if doc.ID == uuid.Nil {
		doc.ID = uuid.New()
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now()
	}
	return d.db.WithContext(ctx).Create(doc).Error
}

// GetDocumentVersions все версии, старые первыми
func (d *Database) GetDocumentVersions(ctx context.Context, id uuid.UUID) ([]models.Document, error) {
	var docs []models.Document
	err := d.db.WithContext(ctx).
		Where("id = ?", id).
		Order("created_at ASC").
		Find(&docs).Error
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, ErrNotFound
	}
	return docs, nil
}

func (d *Database) GetLatestDocument(ctx context.Context, id uuid.UUID) (*models.Document, error) {
	var doc models.Document
	err := d.db.WithContext(ctx).
		Where("id = ?", id).
		Order("created_at DESC").
		First(&doc).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &doc, nil
}
