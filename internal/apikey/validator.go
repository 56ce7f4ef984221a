// Package apikey проверяет и выпускает API-ключи тенантов.
package apikey

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/tsbuk33/aqlhr-ai-gateway/internal/domain"
	"go.uber.org/zap"
)

// Store - хранилище ключей (Postgres)
type Store interface {
	FindAPIKeysByHash(ctx context.Context, keyHash string) ([]domain.APIKeyRecord, error)
	IncrementAPIKeyUsage(ctx context.Context, keyID string) error
}

const maxKeyLen = 256

type Validator struct {
	store        Store
	now          func() time.Time
	usageTimeout time.Duration
	logger       *zap.Logger

	// незавершенные best-effort инкременты счетчика использования
	pending sync.WaitGroup
}

func NewValidator(store Store, usageTimeout time.Duration, logger *zap.Logger) *Validator {
	if usageTimeout <= 0 {
		usageTimeout = 2 * time.Second
	}
	return &Validator{
		store:        store,
		now:          time.Now,
		usageTimeout: usageTimeout,
		logger:       logger.Named("apikey"),
	}
}

// Validate никогда не возвращает ошибку для неизвестного или битого ключа: только Valid=false.
// Ошибка - это исключительно сбой хранилища (InfrastructureError).
func (v *Validator) Validate(ctx context.Context, rawKey string) (domain.KeyValidation, error) {
	rawKey = strings.TrimSpace(rawKey)
	if rawKey == "" || len(rawKey) > maxKeyLen {
		return domain.KeyValidation{}, nil
	}

	records, err := v.store.FindAPIKeysByHash(ctx, HashKey(rawKey))
	if err != nil {
		return domain.KeyValidation{}, domain.Infra(err)
	}

	switch len(records) {
	case 0:
		return domain.KeyValidation{}, nil
	case 1:
	default:
		// Ключ должен указывать ровно на одного тенанта
		v.logger.Warn("api key hash resolves to multiple records, rejecting", zap.Int("records", len(records)))
		return domain.KeyValidation{}, nil
	}

	rec := records[0]
	if rec.Revoked || rec.Expired(v.now()) || rec.TenantID == "" {
		return domain.KeyValidation{KeyID: rec.ID}, nil
	}

	v.trackUsage(rec.ID)

	scopes := rec.Scopes
	if scopes == nil {
		scopes = []string{}
	}
	return domain.KeyValidation{
		KeyID:    rec.ID,
		TenantID: rec.TenantID,
		Scopes:   scopes,
		Valid:    true,
	}, nil
}

// trackUsage - best-effort: отдельный контекст, чтобы отмена запроса не теряла инкремент,
// а ошибка только логируется и на ответ не влияет.
func (v *Validator) trackUsage(keyID string) {
	v.pending.Add(1)
	go func() {
		defer v.pending.Done()

		ctx, cancel := context.WithTimeout(context.Background(), v.usageTimeout)
		defer cancel()

		if err := v.store.IncrementAPIKeyUsage(ctx, keyID); err != nil {
			v.logger.Warn("usage counter increment failed", zap.String("key_id", keyID), zap.Error(err))
		}
	}()
}

// Close дожидается фоновых инкрементов (graceful shutdown)
func (v *Validator) Close() {
	v.pending.Wait()
}
