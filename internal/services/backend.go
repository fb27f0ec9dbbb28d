package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Backend is the HTTP client of the document and inquiry API. The bearer token of each call is
// taken from the request context, see ContextWithToken.
type Backend struct {
	baseURL string

	client *http.Client
	tracer trace.Tracer

	logger *zap.Logger
}

// APIError is a non-success response from the backend.
type APIError struct {
	Status int
	// Message is the "message" field of a JSON error body, empty when the body had none.
	Message string
	Body    string
}

type tokenKey struct{}

const tracerName = "github.com/cloudband/ignis-admin/internal/services"

// NewBackend creates a Backend for the API rooted at baseURL. A nil client falls back to a plain
// *http.Client without timeout, since inquiry answers stream for as long as the backend needs.
func NewBackend(baseURL string, client *http.Client, logger *zap.Logger) (Backend, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return Backend{}, fmt.Errorf("invalid api base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return Backend{}, fmt.Errorf("invalid api base url %q: scheme and host are required", baseURL)
	}
	if client == nil {
		client = &http.Client{}
	}

	return Backend{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		tracer:  otel.Tracer(tracerName),
		logger:  logger.With(zap.String("module", "backend")),
	}, nil
}

// ContextWithToken returns a context whose backend calls authenticate with token.
func ContextWithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, token)
}

// TokenFromContext returns the token set by ContextWithToken.
func TokenFromContext(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(tokenKey{}).(string)
	return token, ok && token != ""
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("backend returned %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("backend returned %d", e.Status)
}

// StatusCode returns the HTTP status of the response.
func (e *APIError) StatusCode() int {
	return e.Status
}

// PayloadMessage returns the message extracted from the response body.
func (e *APIError) PayloadMessage() string {
	return e.Message
}

// DisplayMessage returns the backend's message for err when there is one, and fallback otherwise.
func DisplayMessage(err error, fallback string) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return fallback
}

// IsStatus reports whether err is an APIError with the given status.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}

func (b Backend) endpoint(path string, query url.Values) string {
	u := b.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// do sends a request and returns the response when its status is 2xx. The caller closes the body.
func (b Backend) do(ctx context.Context, op, method, path string, query url.Values, body io.Reader,
	contentType string,
) (*http.Response, error) {
	resp, span, err := b.send(ctx, op, method, path, query, body, contentType)
	if err != nil {
		return nil, err
	}
	span.End()
	return resp, nil
}

// send is do with the client span left open on success, for callers that keep reading the body.
// The span is ended on error.
func (b Backend) send(ctx context.Context, op, method, path string, query url.Values, body io.Reader,
	contentType string,
) (*http.Response, trace.Span, error) {
	ctx, span := b.tracer.Start(ctx, "backend."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", method),
			attribute.String("url.path", path),
		))

	req, err := http.NewRequestWithContext(ctx, method, b.endpoint(path, query), body)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.End()
		return nil, nil, fmt.Errorf("error creating request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token, ok := TokenFromContext(ctx); ok {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := b.client.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "request failed")
		b.logger.Error("Request failed",
			zap.String("op", op),
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err))
		span.End()
		return nil, nil, fmt.Errorf("error sending request: %w", err)
	}
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		apiErr := readAPIError(resp)
		span.SetStatus(codes.Error, apiErr.Error())
		b.logger.Warn("Unexpected status",
			zap.String("op", op),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.String("message", apiErr.Message))
		span.End()
		return nil, nil, apiErr
	}

	b.logger.Debug("Request done",
		zap.String("op", op),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode))

	return resp, span, nil
}

// doJSON sends in (when non-nil) as JSON and decodes the response into out (when non-nil).
func (b Backend) doJSON(ctx context.Context, op, method, path string, query url.Values, in, out any) error {
	var body io.Reader
	contentType := ""
	if in != nil {
		jsonBody, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("error marshaling request: %w", err)
		}
		body = bytes.NewReader(jsonBody)
		contentType = "application/json"
	}

	resp, err := b.do(ctx, op, method, path, query, body, contentType)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return decodeBody(resp.Body, out)
}

// decodeBody decodes a JSON body into out. An empty body leaves out untouched.
func decodeBody(r io.Reader, out any) error {
	if out == nil {
		_, _ = io.Copy(io.Discard, r)
		return nil
	}
	if err := json.NewDecoder(r).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("error decoding response: %w", err)
	}
	return nil
}

func readAPIError(resp *http.Response) *APIError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	apiErr := &APIError{
		Status: resp.StatusCode,
		Body:   string(body),
	}

	var payload struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		apiErr.Message = payload.Message
	}
	return apiErr
}
