package services_test

import (
	"context"
	"io"
	"net/http"
	"testing"

	"github.com/cloudband/ignis-admin/internal/models"
	"github.com/cloudband/ignis-admin/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func recordSpans(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()

	rec := tracetest.NewSpanRecorder()
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec)))
	t.Cleanup(func() { otel.SetTracerProvider(prev) })
	return rec
}

func TestInquireSpanCoversStream(t *testing.T) {
	spans := recordSpans(t)
	b, _ := newBackend(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = io.WriteString(w, "answer")
	})

	res, err := b.Inquire(context.Background(), models.InquiryRequest{Query: "hi", DocumentTypes: []string{"faq"}})
	require.NoError(t, err)
	assert.Empty(t, spans.Ended(), "span ended before the body was read")

	for _, err := range res.Chunks {
		require.NoError(t, err)
	}

	ended := spans.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "backend.Inquire", ended[0].Name())
	assert.Equal(t, codes.Unset, ended[0].Status().Code)
}

func TestInquireSpanRecordsReadFailure(t *testing.T) {
	spans := recordSpans(t)
	b, _ := newBackend(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = io.WriteString(w, "partial")
		w.(http.Flusher).Flush()

		conn, _, err := w.(http.Hijacker).Hijack()
		if err != nil {
			return
		}
		_ = conn.Close()
	})

	res, err := b.Inquire(context.Background(), models.InquiryRequest{Query: "hi", DocumentTypes: []string{"faq"}})
	require.NoError(t, err)

	var streamErr error
	for _, err := range res.Chunks {
		if err != nil {
			streamErr = err
		}
	}
	require.Error(t, streamErr)

	ended := spans.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, codes.Error, ended[0].Status().Code)
	require.NotEmpty(t, ended[0].Events())
	assert.Equal(t, "exception", ended[0].Events()[0].Name)
}

func TestRequestSpanEndsWithCall(t *testing.T) {
	spans := recordSpans(t)
	b, _ := newBackend(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "missing"})
	})

	_, err := b.ShowDocument(context.Background(), "1")
	require.True(t, services.IsStatus(err, http.StatusNotFound))

	ended := spans.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "backend.ShowDocument", ended[0].Name())
	assert.Equal(t, codes.Error, ended[0].Status().Code)
}
