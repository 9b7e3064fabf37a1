package utils

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"time"

	"github.com/bsm/redislock"
	"github.com/btpflow/worksite_backend/config"
	"github.com/go-playground/validator/v10"
)

func IsValidEmail(email string) bool {
	// Basic email validation regex pattern
	pattern := `^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`
	regex := regexp.MustCompile(pattern)
	return regex.MatchString(email)
}

func ProcessValidationErrors(err error) map[string]string {

	validationErrors := err.(validator.ValidationErrors)

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

func DereferencePtr[T any](ptr *T, defaults ...T) T {
	if ptr != nil {
		return *ptr
	}
	if len(defaults) > 0 {
		return defaults[0]
	}
	var zero T
	return zero
}

func GetTypeName[T any]() string {
	var v T
	typeOfT := reflect.TypeOf(v)
	return typeOfT.Name()
}

// ReleaseFunc releases an advisory lock. Always safe to call.
type ReleaseFunc func()

// EquipmentLock obtains an advisory redis lock for one equipment unit while
// the consistency engine drives its two-step write sequence. The lock is an
// optimization that shrinks the conflict window; the compare-and-set in
// SetAssignmentState stays the authority under concurrency. When redis is
// not configured the lock degrades to a no-op.
func EquipmentLock(ctx context.Context, equipmentId int, moduleName string, functionName string) (ReleaseFunc, error) {
	locker := config.GetRedisLock()
	if locker == nil {
		return func() {}, nil
	}
	logger := config.GetLogger()
	lockKey := fmt.Sprintf("EquipmentAssign:%d", equipmentId)
	lock, err := locker.Obtain(ctx, lockKey, 30*time.Second, nil)
	if err == redislock.ErrNotObtained {
		config.LogError(logger, moduleName, functionName, "Could not obtain lock for equipment", equipmentId, err)
		return nil, errors.New("could not obtain lock for equipment")
	} else if err != nil {
		config.LogError(logger, moduleName, functionName, "Error obtaining lock for equipment", equipmentId, err)
		return nil, err
	}
	return func() {
		_ = lock.Release(ctx)
	}, nil
}
