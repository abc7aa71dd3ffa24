package eventcatcher

import (
	"bytes"
	"fmt"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cast"

	"arnsmachine/arnsmachine"
	"arnsmachine/consensus/actions"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Line is one entry of the action log as written by clients. Height and timestamp are taken
// loosely: log writers in the wild emit them as numbers or as strings.
type Line struct {
	Kind      string              `json:"actionKind"`
	Caller    arnsmachine.Account `json:"caller"`
	Height    interface{}         `json:"height"`
	Timestamp interface{}         `json:"timestamp"`
	TxID      string              `json:"txId,omitempty"`
	Signature string              `json:"signature,omitempty"`
	Payload   jsoniter.RawMessage `json:"payload"`
}

// Decode parses one log line into an envelope. It returns the line as well so the caller
// can check the signature over the exact payload bytes.
func Decode(b []byte) (actions.Envelope, Line, error) {
	var line Line
	if err := json.Unmarshal(b, &line); err != nil {
		return actions.Envelope{}, line, fmt.Errorf("malformed action line: %w", err)
	}
	env := actions.Envelope{Kind: line.Kind, Caller: line.Caller, TxID: line.TxID}
	var err error
	if env.Height, err = cast.ToInt64E(line.Height); err != nil {
		return env, line, fmt.Errorf("height: %w", err)
	}
	if env.Timestamp, err = cast.ToInt64E(line.Timestamp); err != nil {
		return env, line, fmt.Errorf("timestamp: %w", err)
	}
	action, ok := actions.New(line.Kind)
	if !ok {
		return env, line, arnsmachine.ErrUnknownAction.With("%q", line.Kind)
	}
	if len(line.Payload) > 0 && !bytes.Equal(line.Payload, []byte("null")) {
		if err := json.Unmarshal(line.Payload, action); err != nil {
			return env, line, fmt.Errorf("%s payload: %w", line.Kind, err)
		}
	}
	env.Action = action
	return env, line, nil
}

// SigningMessage is what a caller signs: the kind, caller, height, timestamp and raw payload,
// newline separated.
func SigningMessage(kind string, caller arnsmachine.Account, height, timestamp int64, payload []byte) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%s\n%s\n%d\n%d\n", kind, caller, height, timestamp)
	buf.Write(payload)
	return buf.Bytes()
}

// Encode writes an envelope as a log line, signing it when privateKey is set. The caller
// must then be the key's x-only public key.
func Encode(env actions.Envelope, privateKey string) ([]byte, error) {
	payload, err := json.Marshal(env.Action)
	if err != nil {
		return nil, err
	}
	kind := env.Kind
	if kind == "" && env.Action != nil {
		kind = env.Action.Kind()
	}
	line := Line{
		Kind:      kind,
		Caller:    env.Caller,
		Height:    env.Height,
		Timestamp: env.Timestamp,
		TxID:      env.TxID,
		Payload:   payload,
	}
	if privateKey != "" {
		if line.Signature, err = arnsmachine.Sign(SigningMessage(kind, env.Caller, env.Height, env.Timestamp, payload), privateKey); err != nil {
			return nil, err
		}
	}
	return json.Marshal(line)
}

func verify(env actions.Envelope, line Line) bool {
	if line.Signature == "" {
		return false
	}
	msg := SigningMessage(line.Kind, line.Caller, env.Height, env.Timestamp, line.Payload)
	return arnsmachine.VerifySignature(msg, line.Signature, line.Caller)
}
