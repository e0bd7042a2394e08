package types

// EmbeddingItem is one vector tagged with the index of the input text it
// belongs to. Providers may return items in any order.
type EmbeddingItem struct {
	Index  int
	Vector []float32
}

// EmbeddingResult is one provider batch response.
type EmbeddingResult struct {
	Items []EmbeddingItem
	// PromptTokens is the provider-reported token count for the batch. Zero
	// when the provider does not report usage.
	PromptTokens int
}

// EmbeddingUsage keeps the two token figures separate: the provider-reported
// count and the chars/4 approximation the cost estimate is based on. They are
// intentionally not interchangeable.
type EmbeddingUsage struct {
	ProviderTokens       int     `json:"provider_tokens"`
	ApproxBillableTokens int     `json:"approx_billable_tokens"`
	CostUSD              float64 `json:"cost_usd"`
	BatchCount           int     `json:"batch_count"`
}

func (u *EmbeddingUsage) Add(other EmbeddingUsage) {
	u.ProviderTokens += other.ProviderTokens
	u.ApproxBillableTokens += other.ApproxBillableTokens
	u.CostUSD += other.CostUSD
	u.BatchCount += other.BatchCount
}

// CompletionRequest is a role-tagged message list plus sampling parameters.
type CompletionRequest struct {
	System      string
	Messages    []Message
	Temperature float32
	MaxTokens   int
}

// CompletionResult is the full completion text plus provider usage.
type CompletionResult struct {
	Text             string
	PromptTokens     int
	CompletionTokens int
}
