package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"zk-carbon/contract-runner/internal/chain"
)

type recordingPublisher struct {
	events []Event
	err    error
}

func (p *recordingPublisher) Publish(event Event) error {
	p.events = append(p.events, event)
	return p.err
}

func command(kind chain.Kind, message string) *chain.Command {
	return &chain.Command{
		Kind:            kind,
		ContractAddress: "inj1nyv7fs5awuuarfgxqua89srt3064ef786zfhjg",
		Message:         json.RawMessage(message),
	}
}

func TestTxNotifierPublishesExecutes(t *testing.T) {
	pub := &recordingPublisher{}
	n := NewTxNotifier(pub, zap.NewNop())

	n.CommandFinished(context.Background(), chain.Outcome{
		Command: command(chain.KindExecute, `{"cast_vote":{"claim_id":1,"vote":"Yes"}}`),
		Stdout:  []byte(`{"height":"0","txhash":"ABC123","code":0}`),
	})

	require.Len(t, pub.events, 1)
	event := pub.events[0]
	assert.Equal(t, EventTxSubmitted, event.Type)
	assert.Equal(t, "cast_vote", event.Data["function"])
	assert.Equal(t, "inj1nyv7fs5awuuarfgxqua89srt3064ef786zfhjg", event.Data["contract"])
	assert.Equal(t, "ABC123", event.Data["txhash"])
	assert.Equal(t, int64(0), event.Data["code"])
}

func TestTxNotifierSkipsQueriesAndFailures(t *testing.T) {
	pub := &recordingPublisher{}
	n := NewTxNotifier(pub, zap.NewNop())

	n.CommandFinished(context.Background(), chain.Outcome{
		Command: command(chain.KindQuery, `{"get_config":{}}`),
		Stdout:  []byte(`{"data":{}}`),
	})
	n.CommandFinished(context.Background(), chain.Outcome{
		Command: command(chain.KindExecute, `{"finalize_voting":{"claim_id":1}}`),
		Err:     errors.New("Command failed: out of gas"),
	})

	assert.Empty(t, pub.events)
}

func TestTxNotifierWithoutTxHash(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broadcast channel full")}
	n := NewTxNotifier(pub, zap.NewNop())

	n.CommandFinished(context.Background(), chain.Outcome{
		Command: command(chain.KindExecute, `{"repay_tokens":{}}`),
		Stdout:  []byte("gas estimate: 1200"),
	})

	require.Len(t, pub.events, 1)
	_, ok := pub.events[0].Data["txhash"]
	assert.False(t, ok)
}
