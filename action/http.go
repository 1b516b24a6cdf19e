package action

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// TypeHTTPRequest invokes an HTTP endpoint.
const TypeHTTPRequest = "HTTP_REQUEST"

const defaultHTTPTimeout = 30 * time.Second

// HTTPRequest executes outbound HTTP calls. Responses with status >= 400
// fail with an error kind derived from the status code, so retry policy
// and circuit breaking see real signal instead of parsing messages.
type HTTPRequest struct {
	Client *http.Client
}

// NewHTTPRequest creates the HTTP_REQUEST handler. A nil client uses
// http.DefaultClient with per-call timeouts from the step input.
func NewHTTPRequest(client *http.Client) *HTTPRequest {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPRequest{Client: client}
}

func (h *HTTPRequest) Type() string { return TypeHTTPRequest }

func (h *HTTPRequest) Spec() Spec {
	return Spec{Fields: []Field{
		{Name: "url", Type: FieldString, Required: true, Pattern: `^https?://`},
		{Name: "method", Type: FieldString, Required: true,
			Enum: []string{"GET", "POST", "PUT", "PATCH", "DELETE"}},
		{Name: "headers", Type: FieldObject},
		{Name: "body", Type: FieldObject},
		{Name: "timeout", Type: FieldNumber},
	}}
}

func (h *HTTPRequest) Execute(ctx context.Context, in Input) (map[string]any, error) {
	timeout := defaultHTTPTimeout
	if t, ok := asFloat(in.Params["timeout"]); ok && t > 0 {
		timeout = time.Duration(t) * time.Millisecond
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var body io.Reader
	if b := in.Map("body"); b != nil {
		raw, err := json.Marshal(b)
		if err != nil {
			return nil, Errorf(KindValidation, "INVALID_BODY", "marshal request body: %v", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, in.String("method"), in.String("url"), body)
	if err != nil {
		return nil, Errorf(KindValidation, "INVALID_REQUEST", "build request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range in.Map("headers") {
		if s, ok := v.(string); ok {
			req.Header.Set(k, s)
		}
	}

	resp, err := h.Client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, Errorf(KindTimeout, "REQUEST_TIMEOUT", "%s %s timed out after %s",
				in.String("method"), in.String("url"), timeout)
		}
		return nil, Errorf(KindNetwork, "CONNECTION_FAILED", "%s %s: %v",
			in.String("method"), in.String("url"), err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, Errorf(KindNetwork, "READ_FAILED", "read response body: %v", err)
	}

	if resp.StatusCode >= 400 {
		return nil, statusError(resp.StatusCode)
	}

	headers := make(map[string]any, len(resp.Header))
	for k := range resp.Header {
		headers[k] = resp.Header.Get(k)
	}

	// JSON bodies decode into structured output; anything else stays a string.
	var decoded any = string(raw)
	var parsed any
	if json.Unmarshal(raw, &parsed) == nil {
		decoded = parsed
	}

	return map[string]any{
		"statusCode": resp.StatusCode,
		"body":       decoded,
		"headers":    headers,
	}, nil
}

func statusError(code int) *Error {
	msg := fmt.Sprintf("upstream returned HTTP %d", code)
	switch {
	case code == http.StatusTooManyRequests:
		return &Error{Kind: KindRateLimit, Code: "HTTP_429", Message: msg}
	case code == http.StatusConflict:
		return &Error{Kind: KindConflict, Code: "HTTP_409", Message: msg}
	case code == http.StatusRequestTimeout || code == http.StatusGatewayTimeout:
		return &Error{Kind: KindTimeout, Code: fmt.Sprintf("HTTP_%d", code), Message: msg}
	case code >= 500:
		return &Error{Kind: KindNetwork, Code: fmt.Sprintf("HTTP_%d", code), Message: msg}
	default:
		return &Error{Kind: KindInternal, Code: fmt.Sprintf("HTTP_%d", code), Message: msg}
	}
}
