// Package chain builds and runs injectived invocations against a CosmWasm contract.
package chain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Kind selects between state-changing and read-only contract calls
type Kind string

const (
	KindExecute Kind = "execute"
	KindQuery   Kind = "query"
)

var (
	ErrInvalidKind     = errors.New("Invalid command type. Use 'execute' or 'query'.")
	ErrInvalidAddress  = errors.New("invalid contract address")
	ErrInvalidFunction = errors.New("invalid function name")
	ErrInvalidParams   = errors.New("invalid query params")
)

var (
	// bech32 human-readable part, separator and data charset
	addressPattern  = regexp.MustCompile(`^[a-z]{1,83}1[02-9ac-hj-np-z]{6,}$`)
	functionPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)
)

// Network holds the fixed parameters every invocation carries
type Network struct {
	Binary      string
	FromAddress string
	ChainID     string
	NodeURL     string
	Fees        string
	Gas         string
}

// Request describes one contract call
type Request struct {
	Kind            Kind
	ContractAddress string
	FunctionName    string
	Params          json.RawMessage
}

// Command is a fully built invocation. Args are passed to the binary as-is, never through a shell.
type Command struct {
	Kind            Kind
	Binary          string
	ContractAddress string
	Args            []string
	Message         json.RawMessage
}

// Builder turns requests into commands for a fixed network
type Builder struct {
	network Network
}

// NewBuilder creates a builder for the given network
func NewBuilder(network Network) *Builder {
	return &Builder{network: network}
}

// Build validates the request and returns the command that performs it
func (b *Builder) Build(req Request) (*Command, error) {
	if req.Kind != KindExecute && req.Kind != KindQuery {
		return nil, ErrInvalidKind
	}
	if !addressPattern.MatchString(req.ContractAddress) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAddress, req.ContractAddress)
	}
	if !functionPattern.MatchString(req.FunctionName) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidFunction, req.FunctionName)
	}

	msg, err := Message(req.FunctionName, req.Params)
	if err != nil {
		return nil, err
	}

	var args []string
	switch req.Kind {
	case KindExecute:
		args = []string{
			"tx", "wasm", "execute", req.ContractAddress, string(msg),
			"--from=" + b.network.FromAddress,
			"--chain-id=" + b.network.ChainID,
			"--yes",
			"--fees=" + b.network.Fees,
			"--gas=" + b.network.Gas,
			"--node=" + b.network.NodeURL,
			"--output", "json",
		}
	case KindQuery:
		args = []string{
			"query", "wasm", "contract-state", "smart", req.ContractAddress, string(msg),
			"--node=" + b.network.NodeURL,
			"--output", "json",
		}
	}

	return &Command{
		Kind:            req.Kind,
		Binary:          b.network.Binary,
		ContractAddress: req.ContractAddress,
		Args:            args,
		Message:         msg,
	}, nil
}

// Message wraps params as {functionName: params}. Empty or null params become {}.
func Message(functionName string, params json.RawMessage) (json.RawMessage, error) {
	trimmed := strings.TrimSpace(string(params))
	if trimmed == "" || trimmed == "null" {
		params = json.RawMessage("{}")
	} else if !json.Valid(params) {
		return nil, ErrInvalidParams
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(map[string]json.RawMessage{functionName: params}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	return json.RawMessage(bytes.TrimRight(buf.Bytes(), "\n")), nil
}

// ValidAddress reports whether s looks like a bech32 account or contract address
func ValidAddress(s string) bool {
	return addressPattern.MatchString(s)
}

// String renders the command as a shell-quoted line for logs and dry runs
func (c *Command) String() string {
	parts := make([]string, 0, len(c.Args)+1)
	parts = append(parts, shellQuote(c.Binary))
	for _, arg := range c.Args {
		parts = append(parts, shellQuote(arg))
	}
	return strings.Join(parts, " ")
}

// IsExecute reports whether the command changes contract state
func (c *Command) IsExecute() bool {
	return c.Kind == KindExecute
}

// FunctionName returns the top-level key of the contract message
func (c *Command) FunctionName() string {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(c.Message, &m); err != nil {
		return ""
	}
	for k := range m {
		return k
	}
	return ""
}

func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	safe := true
	for _, r := range s {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || strings.ContainsRune("-_=./:@,+", r)) {
			safe = false
			break
		}
	}
	if safe {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
