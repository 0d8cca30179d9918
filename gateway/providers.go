package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// ExplorerRequest is the request_data payload for the etherscan-style
// provider: raw query parameters for the unified explorer endpoint.
type ExplorerRequest struct {
	Params map[string]string `json:"params"`
}

// AIRequest is the request_data payload for the AI provider.
type AIRequest struct {
	Prompt string `json:"prompt"`
}

// permanentError marks failures that must not be retried: 4xx other than
// rate limiting, content filters, structurally unparseable responses.
type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

func permanent(err error) error { return &permanentError{err: err} }

func isPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

// adapter dispatches one provider-specific HTTP call and classifies the
// response into a result string or an error.
type adapter interface {
	do(ctx context.Context, client *http.Client, data json.RawMessage) (string, error)
}

// etherscanAdapter speaks the Etherscan V2 unified API: a GET with
// module/action/chainid query parameters, answering {status,message,result}.
type etherscanAdapter struct {
	base   string
	apiKey string
}

type explorerResponse struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

func (a *etherscanAdapter) do(ctx context.Context, client *http.Client, data json.RawMessage) (string, error) {
	var req ExplorerRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return "", permanent(fmt.Errorf("malformed explorer request: %w", err))
	}
	values := url.Values{}
	for k, v := range req.Params {
		values.Set(k, v)
	}
	values.Set("apikey", a.apiKey)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, a.base+"?"+values.Encode(), nil)
	if err != nil {
		return "", permanent(err)
	}
	resp, err := client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("explorer transport: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("explorer read: %w", err)
	}
	if err := classifyHTTPStatus(resp.StatusCode); err != nil {
		return "", err
	}

	var parsed explorerResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", permanent(fmt.Errorf("unparseable explorer response: %w", err))
	}
	// Failure shapes first: rejections ship as {status:"0",message:"NOTOK"},
	// and "NOTOK" matches any substring test for OK. The message is compared
	// exactly on the success path.
	switch {
	case strings.Contains(string(parsed.Result), "No transactions found") ||
		strings.Contains(parsed.Message, "No transactions found"):
		// The explorer reports an empty history as an error shape.
		return "[]", nil
	case strings.Contains(strings.ToLower(string(parsed.Result)), "rate limit") ||
		strings.Contains(strings.ToLower(parsed.Message), "rate limit"):
		return "", fmt.Errorf("explorer rate limited: %s", string(parsed.Result))
	case parsed.Status == "1" || parsed.Message == "OK":
		return decodeResult(parsed.Result), nil
	default:
		return "", permanent(fmt.Errorf("explorer error: %s %s", parsed.Message, string(parsed.Result)))
	}
}

// decodeResult unwraps a JSON string result, leaving arrays and objects raw.
func decodeResult(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// geminiAdapter posts a prompt to the AI endpoint and extracts the first
// candidate's text.
type geminiAdapter struct {
	base   string
	apiKey string
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

func (a *geminiAdapter) do(ctx context.Context, client *http.Client, data json.RawMessage) (string, error) {
	var req AIRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return "", permanent(fmt.Errorf("malformed ai request: %w", err))
	}
	body, err := json.Marshal(map[string]any{
		"contents": []map[string]any{
			{"parts": []map[string]string{{"text": req.Prompt}}},
		},
	})
	if err != nil {
		return "", permanent(err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.base+"?key="+a.apiKey, strings.NewReader(string(body)))
	if err != nil {
		return "", permanent(err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("ai transport: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("ai read: %w", err)
	}
	if err := classifyHTTPStatus(resp.StatusCode); err != nil {
		return "", err
	}

	var parsed geminiResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", permanent(fmt.Errorf("unparseable ai response: %w", err))
	}
	if parsed.PromptFeedback != nil && parsed.PromptFeedback.BlockReason != "" {
		return "", permanent(fmt.Errorf("ai content filtered: %s", parsed.PromptFeedback.BlockReason))
	}
	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return "", permanent(errors.New("ai response has no candidates"))
	}
	return parsed.Candidates[0].Content.Parts[0].Text, nil
}

// classifyHTTPStatus maps status codes onto the retry taxonomy: 5xx and 429
// are transient, other 4xx are permanent.
func classifyHTTPStatus(code int) error {
	switch {
	case code < 400:
		return nil
	case code == http.StatusTooManyRequests || code >= 500:
		return fmt.Errorf("http status %d", code)
	default:
		return permanent(fmt.Errorf("http status %d", code))
	}
}
