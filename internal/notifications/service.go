package notifications

import (
	"context"

	"go.uber.org/zap"

	"zk-carbon/contract-runner/internal/chain"
)

// TxNotifier publishes tx.submitted for every successful execute command
type TxNotifier struct {
	publisher Publisher
	logger    *zap.Logger
}

// NewTxNotifier creates an executor observer that publishes to publisher
func NewTxNotifier(publisher Publisher, logger *zap.Logger) *TxNotifier {
	return &TxNotifier{
		publisher: publisher,
		logger:    logger,
	}
}

// CommandFinished implements chain.Observer
func (n *TxNotifier) CommandFinished(_ context.Context, outcome chain.Outcome) {
	if outcome.Err != nil || !outcome.Command.IsExecute() {
		return
	}

	data := map[string]interface{}{
		"contract": outcome.Command.ContractAddress,
		"function": outcome.Command.FunctionName(),
	}
	if tx, ok := chain.ParseTxResult(outcome.Stdout); ok {
		data["txhash"] = tx.TxHash
		data["code"] = tx.Code
	}

	if err := n.publisher.Publish(NewEvent(EventTxSubmitted, data)); err != nil {
		n.logger.Warn("Failed to publish transaction event", zap.Error(err))
	}
}
