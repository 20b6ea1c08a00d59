package main

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"zk-carbon/contract-runner/internal/chain"
	"zk-carbon/contract-runner/internal/config"
	"zk-carbon/contract-runner/internal/contract"
)

type stubExecutor struct {
	commands []*chain.Command
	output   json.RawMessage
}

func (s *stubExecutor) Run(_ context.Context, cmd *chain.Command) ([]byte, error) {
	s.commands = append(s.commands, cmd)
	return s.output, nil
}

func (s *stubExecutor) RunJSON(_ context.Context, cmd *chain.Command) (json.RawMessage, error) {
	s.commands = append(s.commands, cmd)
	return s.output, nil
}

func execute(t *testing.T, stub *stubExecutor, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	a := newApp(&out, func(*config.Config, *zap.Logger) contract.Executor { return stub })
	root := a.rootCmd()
	root.SetArgs(append([]string{"--config", filepath.Join(t.TempDir(), "missing.yaml")}, args...))
	err := root.Execute()
	return out.String(), err
}

func TestBuildPrintsCommandLine(t *testing.T) {
	stub := &stubExecutor{}

	out, err := execute(t, stub, "build", "--function", "get_claim", "--params", `{"id":3}`)
	require.NoError(t, err)

	assert.Equal(t, "injectived query wasm contract-state smart inj1nyv7fs5awuuarfgxqua89srt3064ef786zfhjg "+
		`'{"get_claim":{"id":3}}' --node=https://k8s.testnet.tm.injective.network:443 --output json`+"\n", out)
	assert.Empty(t, stub.commands)
}

func TestBuildRejectsBadInput(t *testing.T) {
	_, err := execute(t, &stubExecutor{}, "build", "--function", "get_claim", "--params", `{"id":`)
	assert.EqualError(t, err, "--params is not valid JSON")

	_, err = execute(t, &stubExecutor{}, "build", "--type", "migrate", "--function", "get_claim")
	assert.ErrorIs(t, err, chain.ErrInvalidKind)

	_, err = execute(t, &stubExecutor{}, "build")
	assert.Error(t, err)
}

func TestRunPrintsRawOutput(t *testing.T) {
	stub := &stubExecutor{output: json.RawMessage(`{"txhash":"AB"}`)}

	out, err := execute(t, stub, "run", "--type", "execute", "--function", "finalize_voting", "--params", `{"claim_id":1}`)
	require.NoError(t, err)

	assert.Equal(t, `{"txhash":"AB"}`, out)
	require.Len(t, stub.commands, 1)
	assert.True(t, stub.commands[0].IsExecute())
	assert.Equal(t, "finalize_voting", stub.commands[0].FunctionName())
}

func TestClaimsPrintsJSON(t *testing.T) {
	stub := &stubExecutor{output: json.RawMessage(`{"data":{"claims":[{"id":4,"organization":"inj1t0whglsm4hkdngh8ccwlgtrz96ye54jwv8p96s","status":"Active","longitudes":[],"latitudes":[],"ipfs_hashes":[]}]}}`)}

	out, err := execute(t, stub, "claims", "--status", "Active", "--limit", "5")
	require.NoError(t, err)

	var claims []map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &claims))
	require.Len(t, claims, 1)
	assert.Equal(t, float64(4), claims[0]["id"])
	assert.Contains(t, string(stub.commands[0].Message), `"limit":5`)
}
