package checkout

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/sumup/checkout/transport"
)

// apiClient performs JSON calls against the checkout backend through the
// configured [transport.Doer].
type apiClient struct {
	doer     transport.Doer
	defaults RequestContext
	logger   *zap.Logger
}

// call sends in as JSON (when non-nil) and decodes a 2xx body into out (when
// non-nil). The raw response is returned even on failure so callers can read
// the backend error payload.
func (c *apiClient) call(ctx context.Context, method, url, clientToken string, in, out any) (*transport.Response, error) {
	var body []byte
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		body = b
	}

	resp, err := c.doer.Do(ctx, transport.Request{
		Method: method,
		URL:    url,
		Header: requestHeaders(ctx, clientToken, c.defaults),
		Body:   body,
	})
	if err != nil {
		return resp, err
	}
	if resp == nil {
		return nil, errors.New("empty response")
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return resp, &transport.Error{Code: transport.CodeHTTPStatus, StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	}
	if out != nil {
		if err := decodeJSON(resp.Body, out); err != nil {
			return resp, fmt.Errorf("decode response: %w", err)
		}
	}
	return resp, nil
}

func decodeJSON(body []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(body))
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("unexpected data after JSON body")
	}
	return nil
}

// backendErrorPayload is the error envelope returned by the checkout backend.
type backendErrorPayload struct {
	Error *struct {
		ErrorID     string `json:"errorId"`
		Description string `json:"description"`
		Message     string `json:"message"`
	} `json:"error"`
}

func decodeBackendMessage(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	var payload backendErrorPayload
	if err := json.Unmarshal(body, &payload); err != nil || payload.Error == nil {
		return ""
	}
	switch {
	case payload.Error.Description != "":
		return payload.Error.Description
	case payload.Error.Message != "":
		return payload.Error.Message
	default:
		return payload.Error.ErrorID
	}
}

func responseBody(resp *transport.Response) []byte {
	if resp == nil {
		return nil
	}
	return resp.Body
}
