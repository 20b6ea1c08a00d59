package chain

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// MockRunner is a mock implementation of the Runner interface
type MockRunner struct {
	mock.Mock
}

func (m *MockRunner) Run(ctx context.Context, p Process) (*Result, error) {
	args := m.Called(ctx, p)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Result), args.Error(1)
}

type recordingObserver struct {
	mu       sync.Mutex
	outcomes []Outcome
}

func (r *recordingObserver) CommandFinished(_ context.Context, o Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, o)
}

func buildCommand(t *testing.T, kind Kind, function, params string) *Command {
	t.Helper()
	cmd, err := NewBuilder(testNetwork()).Build(Request{
		Kind:            kind,
		ContractAddress: testContract,
		FunctionName:    function,
		Params:          json.RawMessage(params),
	})
	require.NoError(t, err)
	return cmd
}

func TestExecuteWritesPassphrase(t *testing.T) {
	runner := new(MockRunner)
	exec := NewExecutor(runner, ExecutorConfig{WorkDir: "/srv/contracts", Passphrase: "hunter2"}, zap.NewNop())
	cmd := buildCommand(t, KindExecute, "finalize_voting", `{"claim_id":1}`)

	runner.On("Run", mock.Anything, mock.MatchedBy(func(p Process) bool {
		return p.Path == "injectived" && p.Dir == "/srv/contracts" && string(p.Stdin) == "hunter2\n"
	})).Return(&Result{Stdout: []byte(`{"txhash":"ABC","code":0}`)}, nil)

	out, err := exec.Run(context.Background(), cmd)
	require.NoError(t, err)
	assert.Equal(t, `{"txhash":"ABC","code":0}`, string(out))
	runner.AssertExpectations(t)
}

func TestQueryNeverWritesStdin(t *testing.T) {
	runner := new(MockRunner)
	exec := NewExecutor(runner, ExecutorConfig{Passphrase: "hunter2"}, zap.NewNop())
	cmd := buildCommand(t, KindQuery, "get_claims", `{"limit":10}`)

	runner.On("Run", mock.Anything, mock.MatchedBy(func(p Process) bool {
		return p.Stdin == nil
	})).Return(&Result{Stdout: []byte(`{"data":{"claims":[]}}`)}, nil)

	_, err := exec.Run(context.Background(), cmd)
	require.NoError(t, err)
	runner.AssertExpectations(t)
}

func TestRunReportsProcessFailure(t *testing.T) {
	runner := new(MockRunner)
	exec := NewExecutor(runner, ExecutorConfig{}, zap.NewNop())
	cmd := buildCommand(t, KindQuery, "get_claim", `{"id":9}`)

	runner.On("Run", mock.Anything, mock.Anything).
		Return(&Result{Stderr: []byte("Error: claim not found\n"), ExitCode: 1}, errors.New("exit status 1"))

	_, err := exec.Run(context.Background(), cmd)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCommandFailed)

	var cmdErr *CommandError
	require.True(t, errors.As(err, &cmdErr))
	assert.Equal(t, "Command failed: exit status 1\nError: claim not found", err.Error())
}

func TestRunTreatsStderrAsFailure(t *testing.T) {
	runner := new(MockRunner)
	cmd := buildCommand(t, KindQuery, "get_config", `{}`)
	runner.On("Run", mock.Anything, mock.Anything).
		Return(&Result{Stdout: []byte(`{"data":{}}`), Stderr: []byte("gas estimate: 1234")}, nil)

	_, err := NewExecutor(runner, ExecutorConfig{}, zap.NewNop()).Run(context.Background(), cmd)
	require.Error(t, err)
	assert.Equal(t, "Command failed: gas estimate: 1234", err.Error())

	out, err := NewExecutor(runner, ExecutorConfig{AllowStderr: true}, zap.NewNop()).Run(context.Background(), cmd)
	require.NoError(t, err)
	assert.Equal(t, `{"data":{}}`, string(out))
}

func TestRunJSON(t *testing.T) {
	runner := new(MockRunner)
	exec := NewExecutor(runner, ExecutorConfig{}, zap.NewNop())
	cmd := buildCommand(t, KindQuery, "get_config", `{}`)

	runner.On("Run", mock.Anything, mock.Anything).Return(&Result{Stdout: []byte("  {\"data\":{\"owner\":\"inj1\"}}\n")}, nil).Once()
	raw, err := exec.RunJSON(context.Background(), cmd)
	require.NoError(t, err)
	assert.JSONEq(t, `{"data":{"owner":"inj1"}}`, string(raw))

	runner.On("Run", mock.Anything, mock.Anything).Return(&Result{Stdout: []byte("not json")}, nil).Once()
	_, err = exec.RunJSON(context.Background(), cmd)
	assert.ErrorIs(t, err, ErrParseOutput)
}

func TestObserversSeeEveryOutcome(t *testing.T) {
	runner := new(MockRunner)
	exec := NewExecutor(runner, ExecutorConfig{}, zap.NewNop())
	obs := &recordingObserver{}
	exec.AddObserver(obs)

	runner.On("Run", mock.Anything, mock.Anything).Return(&Result{Stdout: []byte("{}")}, nil).Once()
	runner.On("Run", mock.Anything, mock.Anything).Return(nil, errors.New("exec: \"injectived\": executable file not found in $PATH")).Once()

	_, err := exec.Run(context.Background(), buildCommand(t, KindQuery, "get_config", `{}`))
	require.NoError(t, err)
	_, err = exec.Run(context.Background(), buildCommand(t, KindExecute, "cast_vote", `{"claim_id":1,"vote":"No"}`))
	require.Error(t, err)

	require.Len(t, obs.outcomes, 2)
	assert.NoError(t, obs.outcomes[0].Err)
	assert.Equal(t, "cast_vote", obs.outcomes[1].Command.FunctionName())
	assert.ErrorIs(t, obs.outcomes[1].Err, ErrCommandFailed)
}

func TestMaxConcurrentBoundsProcesses(t *testing.T) {
	runner := new(MockRunner)
	exec := NewExecutor(runner, ExecutorConfig{MaxConcurrent: 1}, zap.NewNop())
	cmd := buildCommand(t, KindQuery, "get_config", `{}`)

	release := make(chan struct{})
	started := make(chan struct{})
	runner.On("Run", mock.Anything, mock.Anything).Run(func(mock.Arguments) {
		close(started)
		<-release
	}).Return(&Result{Stdout: []byte("{}")}, nil).Once()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = exec.Run(context.Background(), cmd)
	}()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := exec.Run(ctx, cmd)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	wg.Wait()
	runner.AssertNumberOfCalls(t, "Run", 1)
}

func TestTimeoutIsAppliedToContext(t *testing.T) {
	runner := new(MockRunner)
	exec := NewExecutor(runner, ExecutorConfig{Timeout: time.Minute}, zap.NewNop())

	runner.On("Run", mock.MatchedBy(func(ctx context.Context) bool {
		_, ok := ctx.Deadline()
		return ok
	}), mock.Anything).Return(&Result{Stdout: []byte("{}")}, nil)

	_, err := exec.Run(context.Background(), buildCommand(t, KindQuery, "get_config", `{}`))
	require.NoError(t, err)
	runner.AssertExpectations(t)
}
