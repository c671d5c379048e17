package models

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TransactionNumberSeries hands out per-business document numbers.
type TransactionNumberSeries struct {
	ID         int    `gorm:"primary_key" json:"id"`
	BusinessId string `gorm:"index:idx_series_business_module,unique;not null" json:"business_id"`
	Module     string `gorm:"index:idx_series_business_module,unique;size:50;not null" json:"module"`
	NextNumber int    `gorm:"not null;default:1" json:"next_number"`
}

// nextTransactionNumber reserves the next number for the module inside tx.
// The series row is locked so concurrent documents cannot share a number.
func nextTransactionNumber(tx *gorm.DB, businessId string, module string, prefix string) (string, error) {

	var series TransactionNumberSeries
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("business_id = ? AND module = ?", businessId, module).
		First(&series).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		series = TransactionNumberSeries{BusinessId: businessId, Module: module, NextNumber: 1}
		if err := tx.Create(&series).Error; err != nil {
			return "", err
		}
	} else if err != nil {
		return "", err
	}

	number := series.NextNumber
	if err := tx.Model(&series).Update("next_number", number+1).Error; err != nil {
		return "", err
	}
	return fmt.Sprintf("%s%d", prefix, number), nil
}
