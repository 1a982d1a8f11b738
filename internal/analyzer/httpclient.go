package analyzer

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"time"

	"golang.org/x/time/rate"

	"github.com/kestrelsoft/screenmemory/internal/session"
)

// maxAttempts is the initial attempt plus N=3 retries on transient
// classes, per spec.md §4.5. The 30s total Deadline is a separate
// backstop in case a server is merely slow rather than erroring.
const maxAttempts = 4

// HTTPAnalyzer calls a vision-capable chat completion endpoint to
// summarize a capture image. It never returns an error from Analyze: any
// failure after retries is converted into a fallback AnalysisResult, per
// spec.md §4.5 and §7.
type HTTPAnalyzer struct {
	Endpoint string
	APIKey   string
	Client   *http.Client

	// limiter paces retries. Each retry waits for progressively more
	// tokens, which — combined with a fixed refill rate — produces
	// exponential backoff without a hand-rolled sleep loop.
	limiter *rate.Limiter
}

// NewHTTP constructs an HTTPAnalyzer against endpoint, authenticating
// with apiKey.
func NewHTTP(endpoint, apiKey string) *HTTPAnalyzer {
	return &HTTPAnalyzer{
		Endpoint: endpoint,
		APIKey:   apiKey,
		Client:   &http.Client{},
		limiter:  rate.NewLimiter(rate.Every(150*time.Millisecond), 1<<maxAttempts),
	}
}

type requestBody struct {
	Model       string `json:"model"`
	Prompt      string `json:"prompt"`
	ImageBase64 string `json:"image_base64"`
}

type responseBody struct {
	Summary string `json:"summary"`
}

func (a *HTTPAnalyzer) Analyze(ctx context.Context, path, model, prompt string) session.AnalysisResult {
	ctx, cancel := context.WithTimeout(ctx, Deadline)
	defer cancel()

	// Start every call from an empty bucket, so each retry really waits for
	// its tokens to refill instead of spending a burst left over from idle time.
	a.limiter.AllowN(time.Now(), int(a.limiter.Tokens()))

	var last *classifiedError
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			backoff := 1 << (attempt - 1)
			jitter := rand.Intn(backoff + 1)
			if err := a.limiter.WaitN(ctx, backoff+jitter); err != nil {
				return fallbackFor(&classifiedError{class: classTimeout, label: "analyzer_timeout"})
			}
		}

		summary, cerr := a.attempt(ctx, path, model, prompt)
		if cerr == nil {
			return session.AnalysisResult{Summary: summary}
		}
		last = cerr
		if cerr.class != classTransient {
			return fallbackFor(cerr)
		}
	}

	if last == nil {
		last = &classifiedError{class: classTransient, label: "exhausted_retries"}
	}
	return fallbackFor(last)
}

func (a *HTTPAnalyzer) attempt(ctx context.Context, path, model, prompt string) (string, *classifiedError) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", &classifiedError{class: classNonRetryable, label: fmt.Sprintf("non_retryable:read_failed:%v", err)}
	}

	body := requestBody{
		Model:       model,
		Prompt:      prompt,
		ImageBase64: base64.StdEncoding.EncodeToString(data),
	}
	encoded, err := json.Marshal(body)
	if err != nil {
		return "", &classifiedError{class: classNonRetryable, label: "non_retryable:encode_failed"}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.Endpoint, bytes.NewReader(encoded))
	if err != nil {
		return "", &classifiedError{class: classNonRetryable, label: "non_retryable:bad_request"}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.APIKey)

	resp, err := a.Client.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", &classifiedError{class: classTimeout, label: "analyzer_timeout"}
		}
		return "", &classifiedError{class: classTransient, label: fmt.Sprintf("transient:%v", err)}
	}
	defer resp.Body.Close()

	respData, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &classifiedError{class: classTransient, label: "transient:read_body_failed"}
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode >= 500:
		return "", &classifiedError{class: classTransient, label: fmt.Sprintf("transient:%d", resp.StatusCode)}
	case resp.StatusCode >= 400:
		return "", &classifiedError{class: classNonRetryable, label: fmt.Sprintf("non_retryable:%d", resp.StatusCode)}
	}

	var parsed responseBody
	if err := json.Unmarshal(respData, &parsed); err != nil || parsed.Summary == "" {
		return "", &classifiedError{class: classMalformed, label: "malformed_payload"}
	}

	return parsed.Summary, nil
}

func fallbackFor(err *classifiedError) session.AnalysisResult {
	return session.AnalysisResult{
		Fallback: true,
		Reason:   err.label,
	}
}
