package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"booking-service/internal/util"
)

const maxResponseBytes = 4 << 20

// send performs one JSON call and returns the status and the raw response body
func send(ctx context.Context, hc *http.Client, provider, operation, method, url string, header http.Header, body []byte) (int, []byte, error) {
	start := time.Now()
	defer func() {
		util.ProviderRequestDuration.WithLabelValues(provider, operation).Observe(time.Since(start).Seconds())
	}()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return 0, nil, &Error{Provider: provider, Message: fmt.Sprintf("build request: %v", err)}
	}
	for k, v := range header {
		req.Header[k] = v
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := hc.Do(req)
	if err != nil {
		util.ProviderErrorsTotal.WithLabelValues(provider, operation).Inc()
		return 0, nil, &Error{Provider: provider, Message: err.Error()}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		util.ProviderErrorsTotal.WithLabelValues(provider, operation).Inc()
		return resp.StatusCode, nil, &Error{Provider: provider, StatusCode: resp.StatusCode, Message: fmt.Sprintf("read response: %v", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		util.ProviderErrorsTotal.WithLabelValues(provider, operation).Inc()
	}
	return resp.StatusCode, respBody, nil
}

// rawJSON keeps body as JSON when it is valid, otherwise wraps it as a string
func rawJSON(body []byte) json.RawMessage {
	if len(body) == 0 {
		return nil
	}
	if json.Valid(body) {
		return json.RawMessage(body)
	}
	quoted, _ := json.Marshal(string(body))
	return quoted
}
