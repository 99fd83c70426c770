package errors

import (
	"errors"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newMySQLErr(number uint16, message string) *mysql.MySQLError {
	return &mysql.MySQLError{Number: number, Message: message}
}

func TestClassifyDBError_RecordNotFound(t *testing.T) {
	dbErr := ClassifyDBError(gorm.ErrRecordNotFound)

	require.NotNil(t, dbErr)
	assert.Equal(t, ErrorTypeNotFound, dbErr.Type)
	assert.Equal(t, "record not found", dbErr.Message)
	assert.True(t, errors.Is(dbErr.OriginalErr, gorm.ErrRecordNotFound))
}

func TestClassifyDBError_DuplicateReference(t *testing.T) {
	// The transactions table carries a unique index on the merchant
	// reference; a replayed initiation surfaces as ER_DUP_ENTRY.
	err := newMySQLErr(1062, "Duplicate entry 'PAY-20260830-001' for key 'transactions.idx_reference'")

	dbErr := ClassifyDBError(err)

	require.NotNil(t, dbErr)
	assert.Equal(t, ErrorTypeDuplicateKey, dbErr.Type)
	assert.Equal(t, uint16(1062), dbErr.MySQLErrCode)
	assert.Equal(t, "duplicate key constraint violation", dbErr.Message)
	assert.Contains(t, dbErr.Error(), "MySQL error 1062")
}

func TestClassifyDBError_MySQLCodes(t *testing.T) {
	tests := []struct {
		name     string
		err      *mysql.MySQLError
		expected DatabaseErrorType
		message  string
	}{
		{
			name:     "invalid metadata JSON (3140)",
			err:      newMySQLErr(3140, "Invalid JSON text in argument 1 to function json_extract: 'metadata'"),
			expected: ErrorTypeInvalidJSON,
			message:  "invalid JSON data",
		},
		{
			name:     "invalid JSON path (3141)",
			err:      newMySQLErr(3141, "Invalid JSON path expression"),
			expected: ErrorTypeInvalidJSON,
			message:  "invalid JSON data",
		},
		{
			name:     "JSON document too large (3142)",
			err:      newMySQLErr(3142, "The JSON document exceeds the maximum depth"),
			expected: ErrorTypeInvalidJSON,
			message:  "invalid JSON data",
		},
		{
			name:     "invalid JSON type (3143)",
			err:      newMySQLErr(3143, "Invalid JSON value for CAST"),
			expected: ErrorTypeInvalidJSON,
			message:  "invalid JSON data",
		},
		{
			name:     "phone number too long (1406)",
			err:      newMySQLErr(1406, "Data too long for column 'phone_number' at row 1"),
			expected: ErrorTypeDataTooLong,
			message:  "data too long for column",
		},
		{
			name:     "audit row without transaction (1452)",
			err:      newMySQLErr(1452, "Cannot add or update a child row: fk_audit_logs_transaction"),
			expected: ErrorTypeConstraintViolation,
			message:  "foreign key constraint violation",
		},
		{
			name:     "transaction with audit rows deleted (1451)",
			err:      newMySQLErr(1451, "Cannot delete or update a parent row: fk_audit_logs_transaction"),
			expected: ErrorTypeConstraintViolation,
			message:  "cannot delete/update record due to foreign key constraint",
		},
		{
			name:     "status update deadlock (1213)",
			err:      newMySQLErr(1213, "Deadlock found when trying to get lock; try restarting transaction"),
			expected: ErrorTypeDeadlock,
			message:  "deadlock detected",
		},
		{
			name:     "null currency (1048)",
			err:      newMySQLErr(1048, "Column 'currency' cannot be null"),
			expected: ErrorTypeInvalidValue,
			message:  "column cannot be null",
		},
		{
			name:     "truncated amount (1265)",
			err:      newMySQLErr(1265, "Data truncated for column 'amount' at row 1"),
			expected: ErrorTypeInvalidValue,
			message:  "invalid or truncated value",
		},
		{
			name:     "wrong value for status enum (1366)",
			err:      newMySQLErr(1366, "Incorrect string value for column 'status'"),
			expected: ErrorTypeInvalidValue,
			message:  "invalid or truncated value",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dbErr := ClassifyDBError(tt.err)

			require.NotNil(t, dbErr)
			assert.Equal(t, tt.expected, dbErr.Type)
			assert.Equal(t, tt.err.Number, dbErr.MySQLErrCode)
			assert.Equal(t, tt.message, dbErr.Message)
		})
	}
}

func TestClassifyDBError_ConnectionError(t *testing.T) {
	tests := []struct {
		name   string
		errMsg string
	}{
		{"connection refused", "dial tcp 10.0.1.12:3306: connection refused"},
		{"connection reset", "read tcp: connection reset by peer"},
		{"broken pipe", "write tcp: broken pipe"},
		{"timeout", "i/o timeout"},
		{"no such host", "dial tcp: lookup payments-db.internal: no such host"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dbErr := ClassifyDBError(errors.New(tt.errMsg))

			require.NotNil(t, dbErr)
			assert.Equal(t, ErrorTypeConnectionError, dbErr.Type)
			assert.Equal(t, "database connection error", dbErr.Message)
		})
	}
}

func TestClassifyDBError_UnknownAndNil(t *testing.T) {
	dbErr := ClassifyDBError(errors.New("unexpected driver failure"))
	require.NotNil(t, dbErr)
	assert.Equal(t, ErrorTypeUnknown, dbErr.Type)
	assert.Equal(t, "unknown database error", dbErr.Message)

	// A MySQL number the table does not map also falls through.
	dbErr = ClassifyDBError(newMySQLErr(1205, "Lock wait timeout exceeded"))
	require.NotNil(t, dbErr)
	assert.Equal(t, ErrorTypeUnknown, dbErr.Type)

	assert.Nil(t, ClassifyDBError(nil))
}

func TestDatabaseError_Error(t *testing.T) {
	withCode := &DatabaseError{
		Type:         ErrorTypeDuplicateKey,
		OriginalErr:  errors.New("Duplicate entry 'PAY-001'"),
		MySQLErrCode: 1062,
		Message:      "duplicate key constraint violation",
	}
	assert.Contains(t, withCode.Error(), "duplicate key constraint violation")
	assert.Contains(t, withCode.Error(), "MySQL error 1062")
	assert.Contains(t, withCode.Error(), "PAY-001")

	withoutCode := &DatabaseError{
		Type:        ErrorTypeNotFound,
		OriginalErr: gorm.ErrRecordNotFound,
		Message:     "record not found",
	}
	assert.Contains(t, withoutCode.Error(), "record not found")
	assert.NotContains(t, withoutCode.Error(), "MySQL error")
}

func TestDatabaseError_Unwrap(t *testing.T) {
	original := errors.New("driver failure")
	dbErr := &DatabaseError{OriginalErr: original}

	assert.True(t, errors.Is(dbErr, original))
	assert.Equal(t, original, dbErr.Unwrap())
}

func TestIsHelpers(t *testing.T) {
	other := errors.New("not a database error")

	assert.True(t, IsDuplicateKeyError(newMySQLErr(1062, "")))
	assert.False(t, IsDuplicateKeyError(other))
	assert.False(t, IsDuplicateKeyError(nil))

	assert.True(t, IsNotFoundError(gorm.ErrRecordNotFound))
	assert.False(t, IsNotFoundError(other))
	assert.False(t, IsNotFoundError(nil))

	assert.True(t, IsInvalidJSONError(newMySQLErr(3140, "")))
	assert.False(t, IsInvalidJSONError(other))

	assert.True(t, IsConstraintViolationError(newMySQLErr(1452, "")))
	assert.False(t, IsConstraintViolationError(other))

	assert.True(t, IsDeadlockError(newMySQLErr(1213, "")))
	assert.False(t, IsDeadlockError(other))
}

func TestContains(t *testing.T) {
	assert.True(t, contains("connection refused", "connection refused"))
	assert.True(t, contains("Connection Refused", "connection refused"))
	assert.True(t, contains("dial tcp: connection refused", "connection refused"))
	assert.False(t, contains("some other error", "connection refused"))
	assert.True(t, contains("anything", ""))
	assert.False(t, contains("", "connection refused"))
}
