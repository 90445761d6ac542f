package owl

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// endpoint resolves a relative API path (e.g. "conversations/") against the
// configured base URL, appending query parameters when present.
func (c *Client) endpoint(path string, query url.Values) (string, error) {
	u, err := url.Parse(c.baseURL + strings.TrimPrefix(path, "/"))
	if err != nil {
		return "", NewInvalidRequestError("invalid backend base URL")
	}
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String(), nil
}

// doJSON issues a request with an optional JSON body and decodes a JSON
// response into out (when out is non-nil). Non-2xx responses are decoded
// into *Error.
func (c *Client) doJSON(ctx context.Context, method, path string, query url.Values, payload, out any) error {
	endpoint, err := c.endpoint(path, query)
	if err != nil {
		return err
	}

	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return NewInvalidRequestError("failed to marshal request body")
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return &TransportError{Op: method, URL: endpoint, Err: err}
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	return c.do(req, path, out)
}

// doMultipart issues a multipart/form-data POST built by the given writer
// callback.
func (c *Client) doMultipart(ctx context.Context, path string, fill func(*multipart.Writer) error, out any) error {
	endpoint, err := c.endpoint(path, nil)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	if err := fill(writer); err != nil {
		return err
	}
	if err := writer.Close(); err != nil {
		return NewInvalidRequestError("failed to finalize multipart body")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &buf)
	if err != nil {
		return &TransportError{Op: http.MethodPost, URL: endpoint, Err: err}
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	return c.do(req, path, out)
}

func (c *Client) do(req *http.Request, spanName string, out any) error {
	ctx := req.Context()

	var finish func(err error)
	if c.tracer != nil {
		spanCtx, span := c.tracer.Start(ctx, req.Method+" "+spanName)
		span.SetAttributes(
			attribute.String("http.method", req.Method),
			attribute.String("http.url", redactURLUserInfo(req.URL.String())),
		)
		req = req.WithContext(spanCtx)
		finish = func(err error) {
			if err != nil {
				span.SetStatus(codes.Error, err.Error())
			}
			span.End()
		}
	} else {
		finish = func(error) {}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		terr := &TransportError{Op: req.Method, URL: req.URL.String(), Err: err}
		finish(terr)
		return terr
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := decodeErrorResponse(resp)
		finish(apiErr)
		return apiErr
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			decodeErr := NewAPIError("failed to decode backend response")
			finish(decodeErr)
			return decodeErr
		}
	} else {
		_, _ = io.Copy(io.Discard, resp.Body)
	}
	finish(nil)
	return nil
}

// decodeErrorResponse maps a non-2xx backend response to a canonical *Error.
// The backend's error body is `{"message": "..."}` when present.
func decodeErrorResponse(resp *http.Response) *Error {
	var body struct {
		Message string `json:"message"`
		Code    string `json:"code"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	_ = json.Unmarshal(raw, &body)

	message := strings.TrimSpace(body.Message)
	if message == "" {
		message = http.StatusText(resp.StatusCode)
	}

	apiErr := &Error{
		Message:   message,
		Code:      body.Code,
		RequestID: resp.Header.Get("X-Request-ID"),
	}
	switch {
	case resp.StatusCode == http.StatusBadRequest:
		apiErr.Type = ErrInvalidRequest
	case resp.StatusCode == http.StatusUnauthorized:
		apiErr.Type = ErrAuthentication
	case resp.StatusCode == http.StatusForbidden:
		apiErr.Type = ErrPermission
	case resp.StatusCode == http.StatusNotFound:
		apiErr.Type = ErrNotFound
	case resp.StatusCode == http.StatusTooManyRequests:
		apiErr.Type = ErrRateLimit
		if after, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil {
			apiErr.RetryAfter = &after
		}
	default:
		apiErr.Type = ErrAPI
	}
	return apiErr
}
