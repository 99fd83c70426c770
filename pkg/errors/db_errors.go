// Package errors classifies database errors so repositories can map
// them onto gateway responses (duplicate reference, not found, retry).
package errors

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

// DatabaseErrorType represents the type of database error.
type DatabaseErrorType int

const (
	// ErrorTypeUnknown represents an unknown database error.
	ErrorTypeUnknown DatabaseErrorType = iota
	// ErrorTypeDuplicateKey represents a duplicate key violation (MySQL 1062).
	ErrorTypeDuplicateKey
	// ErrorTypeConstraintViolation represents a foreign key or check constraint violation.
	ErrorTypeConstraintViolation
	// ErrorTypeInvalidJSON represents an invalid JSON column value (MySQL 3140..3143).
	ErrorTypeInvalidJSON
	// ErrorTypeDataTooLong represents a data too long error (MySQL 1406).
	ErrorTypeDataTooLong
	// ErrorTypeNotFound represents a record not found error.
	ErrorTypeNotFound
	// ErrorTypeDeadlock represents a deadlock error (MySQL 1213).
	ErrorTypeDeadlock
	// ErrorTypeConnectionError represents a database connection error.
	ErrorTypeConnectionError
	// ErrorTypeInvalidValue represents an invalid or truncated value.
	ErrorTypeInvalidValue
)

// DatabaseError wraps a database error with classification information.
type DatabaseError struct {
	Type         DatabaseErrorType
	OriginalErr  error
	MySQLErrCode uint16
	Message      string
}

// Error implements the error interface.
func (e *DatabaseError) Error() string {
	if e.MySQLErrCode > 0 {
		return fmt.Sprintf("%s (MySQL error %d): %v", e.Message, e.MySQLErrCode, e.OriginalErr)
	}
	return fmt.Sprintf("%s: %v", e.Message, e.OriginalErr)
}

// Unwrap returns the underlying error for errors.Is and errors.As compatibility.
func (e *DatabaseError) Unwrap() error {
	return e.OriginalErr
}

// mysqlErrorClass maps MySQL server error numbers onto the
// classification the repositories act on. Numbers not listed fall
// through to ErrorTypeUnknown.
var mysqlErrorClass = map[uint16]struct {
	typ DatabaseErrorType
	msg string
}{
	1062: {ErrorTypeDuplicateKey, "duplicate key constraint violation"}, // ER_DUP_ENTRY
	3140: {ErrorTypeInvalidJSON, "invalid JSON data"},
	3141: {ErrorTypeInvalidJSON, "invalid JSON data"},
	3142: {ErrorTypeInvalidJSON, "invalid JSON data"},
	3143: {ErrorTypeInvalidJSON, "invalid JSON data"},
	1406: {ErrorTypeDataTooLong, "data too long for column"}, // ER_DATA_TOO_LONG
	1452: {ErrorTypeConstraintViolation, "foreign key constraint violation"},
	1451: {ErrorTypeConstraintViolation, "cannot delete/update record due to foreign key constraint"},
	1213: {ErrorTypeDeadlock, "deadlock detected"}, // ER_LOCK_DEADLOCK
	1048: {ErrorTypeInvalidValue, "column cannot be null"},
	1265: {ErrorTypeInvalidValue, "invalid or truncated value"},
	1366: {ErrorTypeInvalidValue, "invalid or truncated value"},
}

var connectionKeywords = []string{
	"connection refused",
	"connection reset",
	"broken pipe",
	"no such host",
	"timeout",
	"connection lost",
	"can't connect",
	"dial tcp",
}

// ClassifyDBError classifies a database error into a specific error type.
//
// Typical repository usage:
//
//	if err := r.db.Create(&txn).Error; err != nil {
//	    if pkgerrors.IsDuplicateKeyError(err) {
//	        return ErrDuplicateReference
//	    }
//	    return pkgerrors.ClassifyDBError(err)
//	}
func ClassifyDBError(err error) *DatabaseError {
	if err == nil {
		return nil
	}

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &DatabaseError{
			Type:        ErrorTypeNotFound,
			OriginalErr: err,
			Message:     "record not found",
		}
	}

	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return classifyMySQLError(mysqlErr)
	}

	if isConnectionError(err.Error()) {
		return &DatabaseError{
			Type:        ErrorTypeConnectionError,
			OriginalErr: err,
			Message:     "database connection error",
		}
	}

	return &DatabaseError{
		Type:        ErrorTypeUnknown,
		OriginalErr: err,
		Message:     "unknown database error",
	}
}

func classifyMySQLError(err *mysql.MySQLError) *DatabaseError {
	if class, ok := mysqlErrorClass[err.Number]; ok {
		return &DatabaseError{
			Type:         class.typ,
			OriginalErr:  err,
			MySQLErrCode: err.Number,
			Message:      class.msg,
		}
	}
	return &DatabaseError{
		Type:         ErrorTypeUnknown,
		OriginalErr:  err,
		MySQLErrCode: err.Number,
		Message:      "MySQL error",
	}
}

// isConnectionError checks if the error message indicates a connection problem.
func isConnectionError(errMsg string) bool {
	for _, keyword := range connectionKeywords {
		if contains(errMsg, keyword) {
			return true
		}
	}
	return false
}

// contains checks if a string contains a substring (case-insensitive).
func contains(str, substr string) bool {
	return strings.Contains(strings.ToLower(str), strings.ToLower(substr))
}

// IsDuplicateKeyError checks if the error is a duplicate key constraint violation.
func IsDuplicateKeyError(err error) bool {
	dbErr := ClassifyDBError(err)
	return dbErr != nil && dbErr.Type == ErrorTypeDuplicateKey
}

// IsNotFoundError checks if the error is a record not found error.
func IsNotFoundError(err error) bool {
	dbErr := ClassifyDBError(err)
	return dbErr != nil && dbErr.Type == ErrorTypeNotFound
}

// IsInvalidJSONError checks if the error is an invalid JSON error.
func IsInvalidJSONError(err error) bool {
	dbErr := ClassifyDBError(err)
	return dbErr != nil && dbErr.Type == ErrorTypeInvalidJSON
}

// IsConstraintViolationError checks if the error is a constraint violation.
func IsConstraintViolationError(err error) bool {
	dbErr := ClassifyDBError(err)
	return dbErr != nil && dbErr.Type == ErrorTypeConstraintViolation
}

// IsDeadlockError checks if the error is a deadlock error.
func IsDeadlockError(err error) bool {
	dbErr := ClassifyDBError(err)
	return dbErr != nil && dbErr.Type == ErrorTypeDeadlock
}
