package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"

	"github.com/cloudband/ignis-admin/internal/models"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const inquiryReadSize = 4 << 10

// Inquire posts an inquiry. A JSON response is read whole and returned as Body; any other response
// is returned as a chunk sequence over the body, which is closed when the sequence ends or the
// consumer stops ranging over it. The client span of the call stays open until then and carries any
// read failure.
func (b Backend) Inquire(ctx context.Context, req models.InquiryRequest) (models.InquiryResponse, error) {
	b.logger.Debug("Inquiry request",
		zap.String("query", req.Query),
		zap.Strings("documentTypes", req.DocumentTypes),
		zap.Int("k", req.K))

	jsonBody, err := json.Marshal(req)
	if err != nil {
		return models.InquiryResponse{}, fmt.Errorf("error marshaling request: %w", err)
	}

	resp, span, err := b.send(ctx, "Inquire", http.MethodPost, "/inquire", nil, bytes.NewReader(jsonBody),
		"application/json")
	if err != nil {
		return models.InquiryResponse{}, err
	}

	if mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type")); mediaType == "application/json" {
		defer span.End()
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			err = fmt.Errorf("error reading response: %w", err)
			failSpan(span, err)
			return models.InquiryResponse{}, err
		}
		return models.InquiryResponse{Body: body}, nil
	}

	return models.InquiryResponse{
		Chunks: func(yield func([]byte, error) bool) {
			defer span.End()
			defer resp.Body.Close()

			var read int
			buf := make([]byte, inquiryReadSize)
			for {
				n, err := resp.Body.Read(buf)
				if n > 0 {
					read += n
					// The consumer may keep the chunk past this iteration.
					if !yield(bytes.Clone(buf[:n]), nil) {
						span.SetAttributes(attribute.Bool("inquiry.abandoned", true))
						b.logger.Debug("Inquiry stream abandoned")
						return
					}
				}
				if errors.Is(err, io.EOF) {
					span.SetAttributes(attribute.Int("inquiry.bytes_read", read))
					return
				}
				if err != nil {
					err = fmt.Errorf("error reading response: %w", err)
					span.SetAttributes(attribute.Int("inquiry.bytes_read", read))
					failSpan(span, err)
					yield(nil, err)
					return
				}
			}
		},
	}, nil
}

// failSpan records err on span and marks it failed without ending it.
func failSpan(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
