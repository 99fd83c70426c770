package data

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"PesaGate/internal/model"
	"PesaGate/pkg/crypto"
	pkgerrors "PesaGate/pkg/errors"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// hotCacheSize bounds the in-process status cache. Redis stays the
// source of truth across instances; this layer only absorbs repeated
// polls for the same transaction within one process.
const (
	hotCacheSize = 1024
	hotCacheTTL  = 15 * time.Second
)

// ErrTransactionNotFound is returned when a transaction does not exist.
var ErrTransactionNotFound = errors.New("transaction not found")

// Transaction is the GORM model for the transactions table. Phone
// numbers are stored AES-256-GCM encrypted; the plaintext never
// touches the database.
type Transaction struct {
	ID             string          `gorm:"primaryKey;column:id;type:char(36)"`
	Reference      string          `gorm:"column:reference;size:100;not null;uniqueIndex"`
	Provider       string          `gorm:"column:provider;size:32;not null;index"`
	ProviderRef    string          `gorm:"column:provider_ref;size:191;index"`
	Amount         decimal.Decimal `gorm:"column:amount;type:decimal(18,2);not null"`
	Currency       string          `gorm:"column:currency;type:char(3);not null"`
	PhoneEncrypted string          `gorm:"column:phone_encrypted;type:text;not null"`
	Status         string          `gorm:"column:status;type:enum('pending','success','failed','cancelled');default:'pending';not null;index"`
	Description    string          `gorm:"column:description;type:text"`
	CallbackURL    string          `gorm:"column:callback_url;size:512"`
	FailureReason  *string         `gorm:"column:failure_reason;type:text"`
	ReceiptURL     *string         `gorm:"column:receipt_url;size:512"`
	Metadata       *string         `gorm:"column:metadata;type:json"`
	CreatedAt      time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName specifies the table name for GORM.
func (Transaction) TableName() string {
	return "transactions"
}

// TransactionRepo persists payment transactions in MySQL with a
// two-level status cache (in-process LRU in front of Redis).
type TransactionRepo struct {
	db     *gorm.DB
	cache  CacheClient
	aes    *crypto.AESCrypto
	hot    *expirable.LRU[string, *model.PaymentResponse]
	logger *log.Helper
}

// NewTransactionRepo creates a new transaction repository.
func NewTransactionRepo(db *gorm.DB, cache CacheClient, aes *crypto.AESCrypto, logger log.Logger) *TransactionRepo {
	return &TransactionRepo{
		db:     db,
		cache:  cache,
		aes:    aes,
		hot:    expirable.NewLRU[string, *model.PaymentResponse](hotCacheSize, nil, hotCacheTTL),
		logger: log.NewHelper(logger),
	}
}

// Create persists a new transaction and returns its generated ID.
// A duplicate reference surfaces as a classified duplicate-key error
// so the caller can map it to an idempotency conflict.
func (r *TransactionRepo) Create(ctx context.Context, req *model.PaymentRequest, providerRef string, status model.PaymentStatus) (*model.PaymentResponse, error) {
	encrypted, err := r.aes.Encrypt(req.PhoneNumber)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt phone number: %w", err)
	}

	txn := &Transaction{
		ID:             uuid.NewString(),
		Reference:      req.Reference,
		Provider:       req.Provider,
		ProviderRef:    providerRef,
		Amount:         req.Amount,
		Currency:       req.Currency,
		PhoneEncrypted: encrypted,
		Status:         string(status),
		Description:    req.Description,
		CallbackURL:    req.CallbackURL,
	}

	if len(req.Metadata) > 0 {
		meta, err := marshalMetadata(req.Metadata)
		if err != nil {
			return nil, err
		}
		txn.Metadata = &meta
	}

	if err := r.db.WithContext(ctx).Create(txn).Error; err != nil {
		dbErr := pkgerrors.ClassifyDBError(err)
		if pkgerrors.IsDuplicateKeyError(dbErr) {
			return nil, dbErr
		}
		r.logger.Errorw("failed to create transaction",
			"reference", req.Reference,
			"provider", req.Provider,
			"error", err)
		return nil, dbErr
	}

	resp := r.toResponse(txn)
	r.cacheResponse(ctx, resp)
	return resp, nil
}

// GetByID loads a transaction by its UUID, checking the hot cache and
// Redis before MySQL.
func (r *TransactionRepo) GetByID(ctx context.Context, id string) (*model.PaymentResponse, error) {
	if resp, ok := r.hot.Get(id); ok {
		return resp, nil
	}

	cacheKey := BuildCacheKey(CacheKeyPayment, id)
	var cached model.PaymentResponse
	if err := r.cache.Get(ctx, cacheKey, &cached); err == nil {
		r.hot.Add(id, &cached)
		return &cached, nil
	}

	var txn Transaction
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&txn).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, pkgerrors.ClassifyDBError(err)
	}

	resp := r.toResponse(&txn)
	r.cacheResponse(ctx, resp)
	return resp, nil
}

// GetByReference loads a transaction by its merchant reference.
func (r *TransactionRepo) GetByReference(ctx context.Context, reference string) (*model.PaymentResponse, error) {
	var txn Transaction
	if err := r.db.WithContext(ctx).Where("reference = ?", reference).First(&txn).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, pkgerrors.ClassifyDBError(err)
	}
	return r.toResponse(&txn), nil
}

// GetProviderRef returns the provider-side reference for a transaction.
// Status polling against the provider needs it and the cached response
// deliberately omits it.
func (r *TransactionRepo) GetProviderRef(ctx context.Context, id string) (string, string, error) {
	var txn Transaction
	if err := r.db.WithContext(ctx).Select("provider", "provider_ref").Where("id = ?", id).First(&txn).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", "", ErrTransactionNotFound
		}
		return "", "", pkgerrors.ClassifyDBError(err)
	}
	return txn.Provider, txn.ProviderRef, nil
}

// UpdateStatus transitions a transaction to a new status. Final
// statuses are terminal: an update on an already-final transaction is
// rejected at the SQL level so concurrent webhook and poll results
// cannot overwrite each other.
func (r *TransactionRepo) UpdateStatus(ctx context.Context, id string, status model.PaymentStatus, failureReason, receiptURL string) error {
	updates := map[string]interface{}{
		"status":     string(status),
		"updated_at": time.Now(),
	}
	if failureReason != "" {
		updates["failure_reason"] = failureReason
	}
	if receiptURL != "" {
		updates["receipt_url"] = receiptURL
	}

	result := r.db.WithContext(ctx).
		Model(&Transaction{}).
		Where("id = ? AND status = ?", id, string(model.StatusPending)).
		Updates(updates)
	if result.Error != nil {
		return pkgerrors.ClassifyDBError(result.Error)
	}
	if result.RowsAffected == 0 {
		// Either missing or already final. Distinguish for the caller.
		var count int64
		if err := r.db.WithContext(ctx).Model(&Transaction{}).Where("id = ?", id).Count(&count).Error; err != nil {
			return pkgerrors.ClassifyDBError(err)
		}
		if count == 0 {
			return ErrTransactionNotFound
		}
		r.logger.Debugw("status update skipped, transaction already final", "transaction_id", id, "status", status)
		return nil
	}

	r.invalidate(ctx, id)
	return nil
}

// List returns a filtered, paginated transaction history.
func (r *TransactionRepo) List(ctx context.Context, q *model.TransactionQuery) (*model.TransactionHistory, error) {
	q.Normalize()

	query := r.db.WithContext(ctx).Model(&Transaction{})
	if q.Reference != "" {
		query = query.Where("reference = ?", q.Reference)
	}
	if q.Provider != "" {
		query = query.Where("provider = ?", q.Provider)
	}
	if q.Status != "" {
		query = query.Where("status = ?", string(q.Status))
	}
	if q.StartDate != nil {
		query = query.Where("created_at >= ?", *q.StartDate)
	}
	if q.EndDate != nil {
		query = query.Where("created_at <= ?", *q.EndDate)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, pkgerrors.ClassifyDBError(err)
	}

	var txns []*Transaction
	if err := query.Order("created_at DESC").Limit(q.Limit).Offset(q.Offset).Find(&txns).Error; err != nil {
		return nil, pkgerrors.ClassifyDBError(err)
	}

	history := &model.TransactionHistory{
		Transactions: make([]*model.PaymentResponse, 0, len(txns)),
		Total:        total,
		HasMore:      int64(q.Offset+len(txns)) < total,
	}
	for _, txn := range txns {
		history.Transactions = append(history.Transactions, r.toResponse(txn))
	}
	return history, nil
}

// toResponse converts the GORM model into the API shape, decrypting
// the phone number. A decryption failure is logged and the phone left
// empty rather than failing the whole read.
func (r *TransactionRepo) toResponse(txn *Transaction) *model.PaymentResponse {
	phone, err := r.aes.Decrypt(txn.PhoneEncrypted)
	if err != nil {
		r.logger.Errorw("failed to decrypt phone number",
			"transaction_id", txn.ID,
			"error", err)
		phone = ""
	}

	resp := &model.PaymentResponse{
		TransactionID: txn.ID,
		Status:        model.PaymentStatus(txn.Status),
		Reference:     txn.Reference,
		Amount:        txn.Amount,
		Currency:      txn.Currency,
		PhoneNumber:   phone,
		Provider:      txn.Provider,
		CreatedAt:     txn.CreatedAt,
		UpdatedAt:     txn.UpdatedAt,
	}
	if txn.ReceiptURL != nil {
		resp.ReceiptURL = *txn.ReceiptURL
	}
	if txn.FailureReason != nil {
		resp.FailureReason = *txn.FailureReason
	}
	return resp
}

// cacheResponse writes a response to both cache layers. Final statuses
// get a longer TTL since they cannot change.
func (r *TransactionRepo) cacheResponse(ctx context.Context, resp *model.PaymentResponse) {
	r.hot.Add(resp.TransactionID, resp)

	ttl := TTLPayment
	if resp.Status.IsFinal() {
		ttl = TTLFinalPayment
	}
	key := BuildCacheKey(CacheKeyPayment, resp.TransactionID)
	if err := r.cache.Set(ctx, key, resp, ttl); err != nil {
		r.logger.Warnw("failed to cache transaction", "transaction_id", resp.TransactionID, "error", err)
	}
}

// invalidate drops both cache layers for a transaction.
func (r *TransactionRepo) invalidate(ctx context.Context, id string) {
	r.hot.Remove(id)
	key := BuildCacheKey(CacheKeyPayment, id)
	if err := r.cache.Delete(ctx, key); err != nil {
		r.logger.Warnw("failed to invalidate transaction cache", "transaction_id", id, "error", err)
	}
}

func marshalMetadata(meta map[string]string) (string, error) {
	data, err := json.Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("failed to marshal metadata: %w", err)
	}
	return string(data), nil
}
