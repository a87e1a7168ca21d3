// Package storage holds the transactional heartbeat store and alert ledger.
package storage

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// Error taxonomy shared by the monitoring engine and the HTTP layer
var (
	// ErrValidation reports missing or empty required input
	ErrValidation = errors.New("validation failed")

	// ErrNotFound reports an unknown camera or alert, or an alert that is already resolved
	ErrNotFound = errors.New("not found")

	// ErrConflict reports an attempt to open a second unresolved alert for a camera
	ErrConflict = errors.New("conflict")

	// ErrTransientIO reports that storage was unavailable
	ErrTransientIO = errors.New("storage unavailable")
)

// ioError wraps a storage failure so that it matches ErrTransientIO while
// keeping the driver error in the chain
func ioError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%s: %w: %w", op, ErrConflict, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrTransientIO, err)
}
