package arnsmachine

import (
	"bytes"
)

// Account is a wallet address: either a 43 character base64url id or a 64 character
// hex x-only public key.
type Account = string

type S256Hash = string

type MindLog struct {
	MindName string
	Comment  string
	Message  interface{}
}

type BlockHeader struct {
	Hash   string `json:"Hash"`
	Time   int64  `json:"Time"`
	Height int64  `json:"Height"`
}

// BlockHashSource returns the hash of the block at a given height. Implementations MUST be
// content addressed: the same height returns the same bytes on every replica.
type BlockHashSource interface {
	BlockHash(height int64) ([]byte, error)
}

// ExecutionContext is the ambient metadata an action carries. It is passed explicitly into
// every engine call and is never mutated.
type ExecutionContext struct {
	Height    int64
	Timestamp int64 // unix seconds
	TxID      string
	Caller    Account
	Hashes    BlockHashSource
}

// AtHeight returns a copy of the context positioned at another height. The tick driver uses
// it for intermediate heights, which inherit the triggering action's timestamp.
func (c ExecutionContext) AtHeight(height int64) ExecutionContext {
	c.Height = height
	return c
}

type HashSeq struct {
	Hash      S256Hash
	Sequence  int64
	Mind      string
	Data      bytes.Buffer
	CreatedAt int64
}
