// Package settings serves operator-editable settings stored as versioned
// rows, read through the store on every call.
package settings

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"usalli/internal/domain"
	"usalli/internal/txn"
	"usalli/pkg/errors"
	"usalli/pkg/logger"
)

// DefaultBlockMessages are shown for each blocked step until an operator
// stores their own.
var DefaultBlockMessages = []string{
	"For your security, this transfer has been temporarily paused. Please provide the first verification code to proceed.",
	"Thank you. As an additional security measure, a second verification is required. Please provide the next code.",
	"Almost there. We need one final verification to complete your transfer. Please provide the final code.",
	"Final security step pending. The transaction will be processed after this verification.",
}

type BlockMessages struct {
	Messages []string `json:"messages"`
	// Version is 0 while the defaults are in effect.
	Version   int64      `json:"version"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
}

type UpdateBlockMessagesRequest struct {
	Messages []string `json:"messages" validate:"required,len=4,dive,required,max=1000"`
	// Version, when set, must match the stored version.
	Version *int64 `json:"version"`
}

type Service struct {
	store  txn.Store
	logger logger.Logger
}

func NewService(store txn.Store, log logger.Logger) *Service {
	return &Service{
		store:  store,
		logger: log,
	}
}

func (s *Service) BlockMessages(ctx context.Context) (*BlockMessages, error) {
	return s.readBlockMessages(ctx, s.store)
}

// MessageForStep returns the message for a blocked step, or "" when the
// step is out of range.
func (s *Service) MessageForStep(ctx context.Context, step int) (string, error) {
	bm, err := s.BlockMessages(ctx)
	if err != nil {
		return "", err
	}
	if step < 1 || step > len(bm.Messages) {
		return "", nil
	}
	return bm.Messages[step-1], nil
}

// UpdateBlockMessages replaces the four messages. Without an expected
// version the write is checked against the version read in the same
// transaction.
func (s *Service) UpdateBlockMessages(ctx context.Context, req *UpdateBlockMessagesRequest) (*BlockMessages, error) {
	if len(req.Messages) != domain.MaxUnlockStep {
		return nil, errors.ErrInvalidBlockMessages
	}
	messages := make([]string, len(req.Messages))
	for i, m := range req.Messages {
		messages[i] = strings.TrimSpace(m)
		if messages[i] == "" {
			return nil, errors.ErrInvalidBlockMessages
		}
	}

	value, err := json.Marshal(messages)
	if err != nil {
		return nil, errors.Wrap(err, "encode block messages")
	}

	var out *BlockMessages
	err = s.store.WithinTx(ctx, func(ctx context.Context, sc txn.Scope) error {
		current, err := s.readBlockMessages(ctx, sc)
		if err != nil {
			return err
		}
		expected := current.Version
		if req.Version != nil {
			if *req.Version != current.Version {
				return errors.ErrSettingsVersionConflict
			}
			expected = *req.Version
		}

		now := time.Now().UTC()
		ok, err := sc.Settings().Put(ctx, domain.SettingBlockStepMessages, string(value), expected, now)
		if err != nil {
			return err
		}
		if !ok {
			return errors.ErrSettingsVersionConflict
		}
		out = &BlockMessages{Messages: messages, Version: expected + 1, UpdatedAt: &now}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "update block messages")
	}

	s.logger.Info("Block step messages updated", map[string]interface{}{
		"version": out.Version,
	})

	return out, nil
}

func (s *Service) readBlockMessages(ctx context.Context, sc txn.Scope) (*BlockMessages, error) {
	setting, err := sc.Settings().Get(ctx, domain.SettingBlockStepMessages)
	if errors.Is(err, errors.ErrSettingNotFound) {
		defaults := make([]string, len(DefaultBlockMessages))
		copy(defaults, DefaultBlockMessages)
		return &BlockMessages{Messages: defaults}, nil
	}
	if err != nil {
		return nil, err
	}

	var messages []string
	if err := json.Unmarshal([]byte(setting.Value), &messages); err != nil {
		return nil, errors.Wrap(err, "decode block messages")
	}
	updatedAt := setting.UpdatedAt
	return &BlockMessages{Messages: messages, Version: setting.Version, UpdatedAt: &updatedAt}, nil
}
