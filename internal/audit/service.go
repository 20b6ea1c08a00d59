package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"zk-carbon/contract-runner/internal/chain"
)

const writeTimeout = 5 * time.Second

// Service records execute commands as they finish and serves the log
type Service struct {
	repo   Repository
	logger *zap.Logger
}

// NewService creates a new audit service
func NewService(repo Repository, logger *zap.Logger) *Service {
	return &Service{
		repo:   repo,
		logger: logger,
	}
}

// CommandFinished implements chain.Observer. Queries are not recorded.
func (s *Service) CommandFinished(ctx context.Context, outcome chain.Outcome) {
	if !outcome.Command.IsExecute() {
		return
	}

	record := &Record{
		ID:              uuid.New(),
		Kind:            string(outcome.Command.Kind),
		ContractAddress: outcome.Command.ContractAddress,
		FunctionName:    outcome.Command.FunctionName(),
		Message:         datatypes.JSON(outcome.Command.Message),
		Success:         outcome.Err == nil,
		DurationMs:      outcome.Duration.Milliseconds(),
		CreatedAt:       outcome.StartedAt.UTC(),
	}
	if outcome.Err != nil {
		record.Error = outcome.Err.Error()
	}
	if tx, ok := chain.ParseTxResult(outcome.Stdout); ok {
		record.TxHash = tx.TxHash
		record.Code = tx.Code
		// a broadcast can be accepted by the node and still fail in the contract
		if tx.Code != 0 {
			record.Success = false
			record.Error = tx.RawLog
		}
	}

	// the request may already be cancelled; the record is still wanted
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()

	if err := s.repo.Create(writeCtx, record); err != nil {
		s.logger.Error("Failed to record transaction",
			zap.String("function", record.FunctionName),
			zap.String("tx_hash", record.TxHash),
			zap.Error(err))
	}
}

// Get returns one record
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Record, error) {
	return s.repo.Get(ctx, id)
}

// List returns records newest first
func (s *Service) List(ctx context.Context, filter Filter) ([]Record, error) {
	return s.repo.List(ctx, filter)
}
