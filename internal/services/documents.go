package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"

	"github.com/cloudband/ignis-admin/internal/models"
)

type documentTypesResponse struct {
	DocumentTypes []string `json:"document_types"`
}

// ListDocuments returns one page of the admin document listing.
func (b Backend) ListDocuments(ctx context.Context, params models.DocumentListParams) (models.DocumentPage, error) {
	return b.listDocuments(ctx, "ListDocuments", "/documents", params)
}

// ListPublicDocuments returns one page of the listing visible to non-admin users.
func (b Backend) ListPublicDocuments(ctx context.Context, params models.DocumentListParams) (models.DocumentPage, error) {
	return b.listDocuments(ctx, "ListPublicDocuments", "/public/documents", params)
}

func (b Backend) listDocuments(ctx context.Context, op, path string,
	params models.DocumentListParams,
) (models.DocumentPage, error) {
	query := url.Values{}
	if params.Page > 0 {
		query.Set("page", strconv.Itoa(params.Page))
	}
	if params.Query != "" {
		query.Set("query", params.Query)
	}

	var page models.DocumentPage
	if err := b.doJSON(ctx, op, http.MethodGet, path, query, nil, &page); err != nil {
		return models.DocumentPage{}, err
	}

	if page.TotalPages < 1 {
		page.TotalPages = 1
	}
	if page.CurrentPage < 1 {
		page.CurrentPage = max(params.Page, 1)
	}
	return page, nil
}

// ShowDocument returns a single document.
func (b Backend) ShowDocument(ctx context.Context, id string) (models.Document, error) {
	var doc models.Document
	if err := b.doJSON(ctx, "ShowDocument", http.MethodGet, documentPath(id), nil, nil, &doc); err != nil {
		return models.Document{}, err
	}
	return doc, nil
}

// ListDocumentTypes returns the types an admin may assign to a document.
func (b Backend) ListDocumentTypes(ctx context.Context) ([]string, error) {
	return b.documentTypes(ctx, "ListDocumentTypes", "/documents/types")
}

// ListPublicDocumentTypes returns the types an inquiry may be scoped to.
func (b Backend) ListPublicDocumentTypes(ctx context.Context) ([]string, error) {
	return b.documentTypes(ctx, "ListPublicDocumentTypes", "/public/document_types")
}

func (b Backend) documentTypes(ctx context.Context, op, path string) ([]string, error) {
	var res documentTypesResponse
	if err := b.doJSON(ctx, op, http.MethodGet, path, nil, nil, &res); err != nil {
		return nil, err
	}
	if res.DocumentTypes == nil {
		return []string{}, nil
	}
	return res.DocumentTypes, nil
}

// CreateDocument uploads a new document.
func (b Backend) CreateDocument(ctx context.Context, form models.DocumentForm) (models.Document, error) {
	return b.sendDocumentForm(ctx, "CreateDocument", http.MethodPost, "/documents", form)
}

// UpdateDocument replaces the fields of a document. The file is only replaced when form carries one.
func (b Backend) UpdateDocument(ctx context.Context, id string, form models.DocumentForm) (models.Document, error) {
	return b.sendDocumentForm(ctx, "UpdateDocument", http.MethodPut, documentPath(id), form)
}

// DeleteDocument removes a document.
func (b Backend) DeleteDocument(ctx context.Context, id string) error {
	return b.doJSON(ctx, "DeleteDocument", http.MethodDelete, documentPath(id), nil, nil, nil)
}

// RetryDocumentEnqueue sends a document back to the embedding queue.
func (b Backend) RetryDocumentEnqueue(ctx context.Context, id string) error {
	return b.doJSON(ctx, "RetryDocumentEnqueue", http.MethodPost, documentPath(id)+"/enqueue", nil, nil, nil)
}

func (b Backend) sendDocumentForm(ctx context.Context, op, method, path string,
	form models.DocumentForm,
) (models.Document, error) {
	body, contentType, err := documentMultipart(form)
	if err != nil {
		return models.Document{}, err
	}

	resp, err := b.do(ctx, op, method, path, nil, body, contentType)
	if err != nil {
		return models.Document{}, err
	}
	defer resp.Body.Close()

	var doc models.Document
	if err := decodeBody(resp.Body, &doc); err != nil {
		return models.Document{}, err
	}
	return doc, nil
}

func documentMultipart(form models.DocumentForm) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	fields := []struct{ name, value string }{
		{"name", form.Name},
		{"description", form.Description},
		{"document_type", form.DocumentType},
	}
	for _, f := range fields {
		if err := w.WriteField(f.name, f.value); err != nil {
			return nil, "", fmt.Errorf("error writing field %s: %w", f.name, err)
		}
	}

	if form.File != nil {
		part, err := w.CreateFormFile("file", form.FileName)
		if err != nil {
			return nil, "", fmt.Errorf("error creating file part: %w", err)
		}
		if _, err := io.Copy(part, form.File); err != nil {
			return nil, "", fmt.Errorf("error copying file: %w", err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("error closing multipart body: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}

func documentPath(id string) string {
	return "/documents/" + url.PathEscape(id)
}
