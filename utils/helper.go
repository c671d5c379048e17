package utils

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/warehouse_backend/config"
	"github.com/bsm/redislock"
	"github.com/go-playground/validator/v10"
	"github.com/ttacon/libphonenumber"
	"golang.org/x/crypto/bcrypt"
)

var CountryCode = "VN"

func ValidatePhoneNumber(phoneNumber, countryCode string) error {
	p, err := libphonenumber.Parse(phoneNumber, countryCode)
	if err != nil {
		return err // Phone number is invalid
	}

	if !libphonenumber.IsValidNumber(p) {
		return fmt.Errorf("phone number is not valid")
	}

	return nil // Phone number is valid for the specified country code
}

// ParseValidationErrors maps gin binding errors (validator.ValidationErrors)
// to a field -> failed-tag response body.
func ParseValidationErrors(err error) map[string]string {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return map[string]string{"error": err.Error()}
	}

	errorResponse := make(map[string]string)
	for _, ve := range validationErrors {
		errorResponse[ve.Field()] = ve.Tag()
	}
	return errorResponse
}

func NewTrue() *bool {
	b := true
	return &b
}

func NewFalse() *bool {
	b := false
	return &b
}

func HashPassword(s string) ([]byte, error) {
	return bcrypt.GenerateFromPassword([]byte(s), bcrypt.DefaultCost)
}

func ComparePassword(hashed string, normal string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(normal))
}

func obtainLock(ctx context.Context, lockKey string, moduleName string, functionName string) (*redislock.Lock, error) {
	logger := config.GetLogger()
	locker := config.GetRedisLock()
	if locker == nil {
		// Avoid nil-pointer panics when the Redis lock client isn't initialized yet.
		config.LogError(logger, moduleName, functionName, "Redis lock not initialized", lockKey, errors.New("redis lock is nil"))
		return nil, errors.New("service not ready (redis lock not initialized)")
	}
	lock, err := locker.Obtain(ctx, lockKey, 30*time.Second, nil)
	if err == redislock.ErrNotObtained {
		config.LogError(logger, moduleName, functionName, "Could not obtain lock", lockKey, err)
		return nil, errors.New("operation already in progress, try again")
	} else if err != nil {
		config.LogError(logger, moduleName, functionName, "Error obtaining lock", lockKey, err)
		return nil, err
	}
	return lock, nil
}

// BusinessLock serializes inventory writes per business. The returned release
// func must be deferred by the caller so the lock outlives the enclosing
// transaction, not just this call.
func BusinessLock(ctx context.Context, businessId string, moduleName string, functionName string) (func(), error) {
	lock, err := obtainLock(ctx, fmt.Sprintf("stockLock:%s", businessId), moduleName, functionName)
	if err != nil {
		return nil, err
	}
	return func() { _ = lock.Release(ctx) }, nil
}

// PartnerLock serializes payment allocation per partner so concurrent
// allocations cannot double-pay the same open documents.
func PartnerLock(ctx context.Context, businessId string, partnerKind string, partnerId int, moduleName string, functionName string) (func(), error) {
	lock, err := obtainLock(ctx, fmt.Sprintf("allocLock:%s:%s:%d", businessId, partnerKind, partnerId), moduleName, functionName)
	if err != nil {
		return nil, err
	}
	return func() { _ = lock.Release(ctx) }, nil
}
