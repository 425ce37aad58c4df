package model

// CallStatus is the terminal status of one (segment, pass) extraction call.
type CallStatus string

const (
	StatusOK           CallStatus = "ok"
	StatusTimeout      CallStatus = "timeout"
	StatusServiceError CallStatus = "service_error"
	StatusMalformed    CallStatus = "malformed"
	StatusSkipped      CallStatus = "skipped"
)

// Failed reports whether the status is a terminal failure. Retries happen
// before a result exists, so every recorded failure is permanent.
func (s CallStatus) Failed() bool {
	return s == StatusTimeout || s == StatusServiceError || s == StatusMalformed
}

// FieldAnswer is one extracted field value with its verbatim source excerpt
// and the service's reported confidence.
type FieldAnswer struct {
	Value      any     `json:"value"`
	Excerpt    string  `json:"excerpt,omitempty"`
	Confidence float64 `json:"confidence"`
}

// ExtractionResult is the immutable outcome of one (segment, pass) call,
// created by the orchestrator when the call returns or permanently fails and
// consumed only by the aggregator.
type ExtractionResult struct {
	SegmentID string                 `json:"segment_id"`
	PassName  string                 `json:"pass_name"`
	Status    CallStatus             `json:"status"`
	Fields    map[string]FieldAnswer `json:"fields,omitempty"`
	Error     string                 `json:"error,omitempty"`
	Attempts  int                    `json:"attempts"`
	Truncated bool                   `json:"truncated,omitempty"`
	Usage     TokenUsage             `json:"usage"`
	ElapsedMS int64                  `json:"elapsed_ms"`
}

// TokenUsage tracks token consumption across calls.
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Add accumulates usage from another counter.
func (u *TokenUsage) Add(other TokenUsage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
}
