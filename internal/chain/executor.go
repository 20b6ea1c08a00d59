package chain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"zk-carbon/contract-runner/internal/metrics"
)

var (
	ErrCommandFailed = errors.New("command failed")
	ErrParseOutput   = errors.New("Failed to parse command output")
)

// CommandError carries the message reported by a failed invocation
type CommandError struct {
	Message string
	Err     error
}

func (e *CommandError) Error() string {
	return "Command failed: " + e.Message
}

func (e *CommandError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrCommandFailed}
	}
	return []error{ErrCommandFailed, e.Err}
}

// Outcome describes one finished invocation
type Outcome struct {
	Command   *Command
	Stdout    []byte
	Err       error
	StartedAt time.Time
	Duration  time.Duration
}

// Observer is notified after every invocation, successful or not
type Observer interface {
	CommandFinished(ctx context.Context, outcome Outcome)
}

// ExecutorConfig configures process execution
type ExecutorConfig struct {
	WorkDir       string
	Passphrase    string
	AllowStderr   bool
	Timeout       time.Duration
	MaxConcurrent int
}

// Executor runs built commands as child processes
type Executor struct {
	runner    Runner
	config    ExecutorConfig
	sem       *semaphore.Weighted
	observers []Observer
	logger    *zap.Logger
}

// NewExecutor creates an executor. MaxConcurrent of zero leaves process count unbounded.
func NewExecutor(runner Runner, config ExecutorConfig, logger *zap.Logger) *Executor {
	e := &Executor{
		runner: runner,
		config: config,
		logger: logger,
	}
	if config.MaxConcurrent > 0 {
		e.sem = semaphore.NewWeighted(int64(config.MaxConcurrent))
	}
	return e
}

// AddObserver registers an observer for finished invocations
func (e *Executor) AddObserver(o Observer) {
	e.observers = append(e.observers, o)
}

// Run executes the command and returns its raw stdout
func (e *Executor) Run(ctx context.Context, cmd *Command) ([]byte, error) {
	if e.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.config.Timeout)
		defer cancel()
	}

	if e.sem != nil {
		if err := e.sem.Acquire(ctx, 1); err != nil {
			return nil, &CommandError{Message: err.Error(), Err: err}
		}
		defer e.sem.Release(1)
	}

	proc := Process{
		Path: cmd.Binary,
		Args: cmd.Args,
		Dir:  e.config.WorkDir,
	}
	if cmd.IsExecute() {
		proc.Stdin = []byte(e.config.Passphrase + "\n")
	}

	e.logger.Debug("Executing command", zap.String("command", cmd.String()))

	started := time.Now()
	done := metrics.CommandStarted()
	result, runErr := e.runner.Run(ctx, proc)
	done()
	duration := time.Since(started)

	stdout, err := e.interpret(result, runErr)

	function := cmd.FunctionName()
	metrics.RecordCommand(string(cmd.Kind), function, err == nil, duration)
	if err != nil {
		e.logger.Error("Command failed",
			zap.String("kind", string(cmd.Kind)),
			zap.String("function", function),
			zap.Duration("duration", duration),
			zap.Error(err))
	} else {
		e.logger.Info("Command completed",
			zap.String("kind", string(cmd.Kind)),
			zap.String("function", function),
			zap.Duration("duration", duration))
	}

	outcome := Outcome{
		Command:   cmd,
		Stdout:    stdout,
		Err:       err,
		StartedAt: started,
		Duration:  duration,
	}
	for _, o := range e.observers {
		o.CommandFinished(ctx, outcome)
	}

	return stdout, err
}

// RunJSON executes the command and parses stdout as JSON
func (e *Executor) RunJSON(ctx context.Context, cmd *Command) (json.RawMessage, error) {
	stdout, err := e.Run(ctx, cmd)
	if err != nil {
		return nil, err
	}
	trimmed := []byte(strings.TrimSpace(string(stdout)))
	if !json.Valid(trimmed) {
		e.logger.Error("Error parsing command output", zap.ByteString("stdout", stdout))
		return nil, ErrParseOutput
	}
	return json.RawMessage(trimmed), nil
}

func (e *Executor) interpret(result *Result, runErr error) ([]byte, error) {
	if runErr != nil {
		msg := runErr.Error()
		if result != nil && len(strings.TrimSpace(string(result.Stderr))) > 0 {
			msg = fmt.Sprintf("%s\n%s", msg, strings.TrimSpace(string(result.Stderr)))
		}
		return nil, &CommandError{Message: msg, Err: runErr}
	}
	if !e.config.AllowStderr && len(result.Stderr) > 0 {
		return nil, &CommandError{Message: string(result.Stderr)}
	}
	return result.Stdout, nil
}
