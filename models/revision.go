package models

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/warehouse_backend/config"
	"bitbucket.org/mmdatafocus/warehouse_backend/utils"
	"gorm.io/gorm"
)

// DocumentRevision is one entry in a document's append-only history. Before
// and After are full JSON snapshots taken around the mutation; rows are never
// updated or deleted.
type DocumentRevision struct {
	ID             int          `gorm:"primary_key" json:"id"`
	BusinessId     string       `gorm:"index;not null" json:"business_id"`
	DocumentType   DocumentType `gorm:"type:enum('Sale','StockIn');not null;index:idx_revision_document" json:"document_type"`
	DocumentId     int          `gorm:"not null;index:idx_revision_document" json:"document_id"`
	RevisionNumber int          `gorm:"not null" json:"revision_number"`
	Reason         string       `gorm:"type:text" json:"reason"`
	Before         string       `gorm:"type:longtext" json:"before"`
	After          string       `gorm:"type:longtext" json:"after"`
	UserId         int          `json:"user_id"`
	UserName       string       `gorm:"size:255" json:"user_name"`
	CreatedAt      time.Time    `gorm:"autoCreateTime" json:"created_at"`
}

// recordRevision appends a snapshot pair to the document's history inside the
// caller's transaction, so the revision lands or rolls back with the mutation
// it describes. Numbering restarts at 1 per document and is assigned under
// the same tx, so it stays gapless and strictly increasing.
func recordRevision(tx *gorm.DB, documentType DocumentType, documentId int, reason string, before interface{}, after interface{}) error {

	ctx := tx.Statement.Context
	businessId, _ := utils.GetBusinessIdFromContext(ctx)
	if businessId == "" {
		return errors.New("business id is required")
	}

	beforeJson, err := json.Marshal(before)
	if err != nil {
		return err
	}
	afterJson, err := json.Marshal(after)
	if err != nil {
		return err
	}

	var maxNumber int
	err = tx.Model(&DocumentRevision{}).
		Where("business_id = ? AND document_type = ? AND document_id = ?", businessId, documentType, documentId).
		Select("COALESCE(MAX(revision_number), 0)").
		Scan(&maxNumber).Error
	if err != nil {
		return err
	}

	userId, _ := utils.GetUserIdFromContext(ctx)
	userName, _ := utils.GetUserNameFromContext(ctx)

	revision := DocumentRevision{
		BusinessId:     businessId,
		DocumentType:   documentType,
		DocumentId:     documentId,
		RevisionNumber: maxNumber + 1,
		Reason:         reason,
		Before:         string(beforeJson),
		After:          string(afterJson),
		UserId:         userId,
		UserName:       userName,
	}
	return tx.Create(&revision).Error
}

// GetDocumentRevisions returns a document's history, newest first.
func GetDocumentRevisions(ctx context.Context, documentType DocumentType, documentId int) ([]*DocumentRevision, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	var results []*DocumentRevision
	err := db.WithContext(ctx).
		Where("business_id = ? AND document_type = ? AND document_id = ?", businessId, documentType, documentId).
		Order("revision_number DESC").
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}
