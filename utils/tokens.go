package utils

import (
	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter counts text in exact tokenizer tokens. Chunk size guarantees
// are expressed in these units.
type TokenCounter interface {
	Count(text string) int
}

// TiktokenCounter counts with the cl100k_base BPE, the same scheme the
// embedding models bill against.
type TiktokenCounter struct {
	encoding *tiktoken.Tiktoken
}

// NewTiktokenCounter loads the cl100k_base encoding. Loading can fail when
// the BPE data is not cached and cannot be fetched; callers should fall back
// to ApproxCounter in that case.
func NewTiktokenCounter() (*TiktokenCounter, error) {
	encoding, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, err
	}
	return &TiktokenCounter{encoding: encoding}, nil
}

func (c *TiktokenCounter) Count(text string) int {
	return len(c.encoding.Encode(text, nil, nil))
}

// ApproxCounter estimates 4 characters per token. Coarse, but good enough to
// keep chunk sizes sane when no tokenizer is available.
type ApproxCounter struct{}

func (ApproxCounter) Count(text string) int {
	return ApproxBillableTokens(text)
}

// ApproxBillableTokens is the chars/4 approximation used for embedding cost
// estimates. It is a separate figure from exact tokenizer counts and the two
// must not be conflated: cost accounting always uses this one.
func ApproxBillableTokens(text string) int {
	return len(text) / 4
}
