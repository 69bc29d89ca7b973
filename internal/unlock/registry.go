// Package unlock issues and consumes the single-use codes that release a
// blocked transfer one step at a time.
package unlock

import (
	"context"
	"crypto/rand"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"usalli/internal/domain"
	"usalli/internal/metrics"
	"usalli/internal/txn"
	"usalli/pkg/errors"
	"usalli/pkg/logger"
)

const (
	codeLength   = 6
	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

type Config struct {
	CodeTTL         time.Duration
	EnforceExpiry   bool
	RevokeOnReissue bool
}

func DefaultConfig() Config {
	return Config{
		CodeTTL:       10 * time.Minute,
		EnforceExpiry: true,
	}
}

type Registry struct {
	store  txn.Store
	cfg    Config
	logger logger.Logger
	now    func() time.Time
}

func NewRegistry(store txn.Store, cfg Config, log logger.Logger) *Registry {
	if cfg.CodeTTL <= 0 {
		cfg.CodeTTL = DefaultConfig().CodeTTL
	}
	return &Registry{
		store:  store,
		cfg:    cfg,
		logger: log,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// IssueCode stores a fresh unused code for the transfer step and returns it.
// Earlier codes for the same step stay valid unless RevokeOnReissue is set.
func (r *Registry) IssueCode(ctx context.Context, transferID uuid.UUID, step int) (*domain.UnlockCode, error) {
	if step < 1 || step > domain.MaxUnlockStep {
		return nil, errors.ErrInvalidStep
	}

	value, err := generateCode()
	if err != nil {
		return nil, errors.Wrap(err, "generate unlock code")
	}

	now := r.now()
	code := &domain.UnlockCode{
		ID:         uuid.New(),
		TransferID: transferID,
		StepNumber: step,
		Code:       value,
		ExpiresAt:  now.Add(r.cfg.CodeTTL),
		CreatedAt:  now,
	}

	err = r.store.WithinTx(ctx, func(ctx context.Context, sc txn.Scope) error {
		if _, err := sc.Transfers().FindByID(ctx, transferID); err != nil {
			return err
		}
		if r.cfg.RevokeOnReissue {
			if _, err := sc.UnlockCodes().RevokeUnused(ctx, transferID, step, now); err != nil {
				return err
			}
		}
		return sc.UnlockCodes().Create(ctx, code)
	})
	if err != nil {
		return nil, errors.Wrap(err, "issue unlock code")
	}

	metrics.UnlockCodesIssued.WithLabelValues(strconv.Itoa(step)).Inc()
	r.logger.Info("Unlock code issued", map[string]interface{}{
		"transfer_id": transferID,
		"step":        step,
		"expires_at":  code.ExpiresAt,
	})

	return code, nil
}

// Consume marks a matching live code as used inside sc. A missing, used or
// expired code reports false without an error.
func (r *Registry) Consume(ctx context.Context, sc txn.Scope, transferID uuid.UUID, step int, code string) (bool, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if step < 1 || step > domain.MaxUnlockStep || code == "" {
		return false, nil
	}
	return sc.UnlockCodes().Consume(ctx, transferID, step, code, r.now(), r.cfg.EnforceExpiry)
}

func generateCode() (string, error) {
	max := big.NewInt(int64(len(codeAlphabet)))
	buf := make([]byte, codeLength)
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		buf[i] = codeAlphabet[n.Int64()]
	}
	return string(buf), nil
}
