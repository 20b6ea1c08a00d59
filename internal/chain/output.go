package chain

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
)

// TxResult is the subset of `tx ... --output json` the service cares about
type TxResult struct {
	TxHash string `json:"txhash"`
	Code   int64  `json:"code"`
	Height string `json:"height"`
	RawLog string `json:"raw_log,omitempty"`
}

// ParseTxResult reads the broadcast result of an execute command.
// ok is false when the output does not look like a broadcast response.
func ParseTxResult(stdout []byte) (TxResult, bool) {
	if !gjson.ValidBytes(stdout) {
		return TxResult{}, false
	}
	hash := gjson.GetBytes(stdout, "txhash")
	if !hash.Exists() {
		return TxResult{}, false
	}
	return TxResult{
		TxHash: hash.String(),
		Code:   gjson.GetBytes(stdout, "code").Int(),
		Height: gjson.GetBytes(stdout, "height").String(),
		RawLog: gjson.GetBytes(stdout, "raw_log").String(),
	}, true
}

// Extract returns the JSON value at path (gjson syntax, e.g. "data.claims").
// A missing value is reported as ErrParseOutput.
func Extract(raw json.RawMessage, path string) (json.RawMessage, error) {
	value := gjson.GetBytes(raw, path)
	if !value.Exists() {
		return nil, fmt.Errorf("%w: %s not found", ErrParseOutput, path)
	}
	return json.RawMessage(value.Raw), nil
}

// Decode extracts the value at path and unmarshals it into v
func Decode(raw json.RawMessage, path string, v interface{}) error {
	value, err := Extract(raw, path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(value, v); err != nil {
		return fmt.Errorf("%w: %v", ErrParseOutput, err)
	}
	return nil
}
