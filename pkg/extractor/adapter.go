package extractor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.uber.org/zap"

	"github.com/sells-group/lease-abstract/internal/model"
	"github.com/sells-group/lease-abstract/internal/resilience"
)

// Caller is the narrow interface the orchestrator drives: one bounded
// request per (segment, pass) pair. No retry logic lives behind it.
type Caller interface {
	Call(ctx context.Context, seg model.Segment, pass model.ExtractionPass, priorContext string) (*model.ExtractionResult, error)
}

// CallError is the typed failure of one extraction call. Status is one of
// the terminal call statuses; Usage carries any tokens the failed call still
// consumed (a malformed response is billed like a good one).
type CallError struct {
	Status model.CallStatus
	Usage  model.TokenUsage
	Err    error
}

func (e *CallError) Error() string {
	return fmt.Sprintf("extraction call %s: %v", e.Status, e.Err)
}

func (e *CallError) Unwrap() error {
	return e.Err
}

// StatusOf maps an error from Caller.Call to its terminal call status.
func StatusOf(err error) model.CallStatus {
	var ce *CallError
	if errors.As(err, &ce) {
		return ce.Status
	}
	return model.StatusServiceError
}

// UsageOf extracts any token usage attached to a call error.
func UsageOf(err error) model.TokenUsage {
	var ce *CallError
	if errors.As(err, &ce) {
		return ce.Usage
	}
	return model.TokenUsage{}
}

const systemPrompt = "You are a lease abstraction engine extracting structured data from legal document segments. Return only a valid JSON object matching the requested schema. Report only information present in the provided segment; use the verbatim source text in every excerpt field."

const userPromptTemplate = `%s

%sSegment %s%s:
%s

Return a JSON object of the form {"fields": {"<field_name>": {"value": <value>, "excerpt": "<verbatim source text>", "confidence": <0.0-1.0>}}}. Return {"fields": {}} if the segment contains nothing relevant.`

// Adapter issues one bounded request per (segment, pass) pair: it enforces
// the per-pass timeout, truncates oversized segment text keeping the head,
// and validates the response against the pass's schema. Structurally invalid
// responses become a malformed failure, never parsed data.
type Adapter struct {
	client          Client
	model           string
	maxRequestChars int
	schemas         map[string]*jsonschema.Schema
}

// NewAdapter compiles the response schema of every pass up front so a bad
// schema fails at startup, not mid-run.
func NewAdapter(client Client, modelName string, maxRequestChars int, passes []model.ExtractionPass) (*Adapter, error) {
	schemas := make(map[string]*jsonschema.Schema, len(passes))
	for _, p := range passes {
		if p.Schema == "" {
			continue
		}
		compiled, err := jsonschema.CompileString(p.Name+".schema.json", p.Schema)
		if err != nil {
			return nil, eris.Wrapf(err, "extractor: compile schema for pass %s", p.Name)
		}
		schemas[p.Name] = compiled
	}
	if maxRequestChars <= 0 {
		maxRequestChars = 12000
	}
	return &Adapter{
		client:          client,
		model:           modelName,
		maxRequestChars: maxRequestChars,
		schemas:         schemas,
	}, nil
}

// Call performs one extraction request. The returned result is immutable; a
// nil result with a *CallError means the call failed and may be retried by
// the orchestrator.
func (a *Adapter) Call(ctx context.Context, seg model.Segment, pass model.ExtractionPass, priorContext string) (*model.ExtractionResult, error) {
	start := time.Now()

	text, truncated := TruncateHead(seg.Text, a.maxRequestChars)
	if truncated {
		zap.L().Debug("extractor: segment text truncated",
			zap.String("segment", seg.ID),
			zap.String("pass", pass.Name),
			zap.Int("original_len", len(seg.Text)),
			zap.Int("sent_len", len(text)),
		)
	}

	prompt := buildPrompt(seg, pass, priorContext, text)

	timeout := time.Duration(pass.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := a.client.CreateMessage(cctx, MessageRequest{
		Model:     a.model,
		MaxTokens: pass.MaxTokens,
		System:    systemPrompt,
		Messages:  []Message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		status := model.StatusServiceError
		// Our own deadline expiring is a timeout; anything else from the
		// service is a service error.
		if cctx.Err() != nil && ctx.Err() == nil {
			status = model.StatusTimeout
		}
		return nil, &CallError{Status: status, Err: err}
	}

	usage := model.TokenUsage{
		InputTokens:  int(resp.Usage.InputTokens),
		OutputTokens: int(resp.Usage.OutputTokens),
	}

	fields, err := a.parseResponse(pass, resp.Text)
	if err != nil {
		return nil, &CallError{Status: model.StatusMalformed, Usage: usage, Err: err}
	}

	return &model.ExtractionResult{
		SegmentID: seg.ID,
		PassName:  pass.Name,
		Status:    model.StatusOK,
		Fields:    fields,
		Truncated: truncated,
		Usage:     usage,
		ElapsedMS: time.Since(start).Milliseconds(),
	}, nil
}

func buildPrompt(seg model.Segment, pass model.ExtractionPass, priorContext, text string) string {
	prior := ""
	if priorContext != "" {
		prior = "--- Findings from prior passes ---\n" + priorContext + "\n\n"
	}
	heading := ""
	if seg.Heading != "" {
		heading = fmt.Sprintf(" (%s)", seg.Heading)
	}
	return fmt.Sprintf(userPromptTemplate,
		strings.TrimSpace(pass.Instructions),
		prior,
		seg.ID,
		heading,
		text,
	)
}

// parseResponse extracts the JSON object from the response text and
// validates it against the pass schema.
func (a *Adapter) parseResponse(pass model.ExtractionPass, text string) (map[string]model.FieldAnswer, error) {
	raw, err := extractJSON(text)
	if err != nil {
		return nil, err
	}

	if schema, ok := a.schemas[pass.Name]; ok {
		var doc any
		if err := json.Unmarshal([]byte(raw), &doc); err != nil {
			return nil, eris.Wrap(err, "decode response")
		}
		if err := schema.Validate(doc); err != nil {
			return nil, eris.Wrap(err, "response failed schema validation")
		}
	}

	var parsed struct {
		Fields map[string]model.FieldAnswer `json:"fields"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, eris.Wrap(err, "decode fields")
	}

	// Drop null values: the service reports them for absent information.
	for name, ans := range parsed.Fields {
		if ans.Value == nil {
			delete(parsed.Fields, name)
		}
	}
	return parsed.Fields, nil
}

// extractJSON locates the JSON object in a response that may wrap it in
// code fences or prose.
func extractJSON(text string) (string, error) {
	text = strings.TrimSpace(text)

	if idx := strings.Index(text, "```json"); idx >= 0 {
		rest := text[idx+len("```json"):]
		if end := strings.Index(rest, "```"); end >= 0 {
			text = strings.TrimSpace(rest[:end])
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return "", eris.New("no JSON object in response")
	}
	candidate := text[start : end+1]
	if !json.Valid([]byte(candidate)) {
		return "", eris.New("response JSON does not parse")
	}
	return candidate, nil
}

// TruncateHead bounds text to max characters, keeping the head and cutting
// at the last line boundary before the limit when one is close enough.
func TruncateHead(text string, max int) (string, bool) {
	if max <= 0 || len(text) <= max {
		return text, false
	}
	cut := text[:max]
	if nl := strings.LastIndexByte(cut, '\n'); nl > max*3/4 {
		cut = cut[:nl]
	}
	return cut, true
}

// IsRetryable reports whether a call error should be retried: timeouts,
// transient service errors, and malformed responses all get another attempt;
// a rejected call from an open circuit does not.
func IsRetryable(err error) bool {
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return false
	}
	var ce *CallError
	if !errors.As(err, &ce) {
		return false
	}
	switch ce.Status {
	case model.StatusTimeout, model.StatusMalformed:
		return true
	case model.StatusServiceError:
		return resilience.IsTransient(ce.Err)
	default:
		return false
	}
}
