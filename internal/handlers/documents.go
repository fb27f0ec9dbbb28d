package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/cloudband/ignis-admin/internal/models"
	"github.com/cloudband/ignis-admin/internal/services"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// Messages shown to non-admin users on admin pages.
const (
	DocumentsAdminMessage   = "You need admin access to manage documents."
	EnvironmentAdminMessage = "You need admin access to view system environment settings."
)

const (
	documentFormFallback = "Something went wrong. Please check your input."
	maxUploadMemory      = 32 << 20
)

type documentsPageData struct {
	layoutData
	Documents []models.Document
	Query     string
	Page      int
	Total     int
	PrevPage  int
	NextPage  int
	Error     string
}

type documentPageData struct {
	layoutData
	Document models.Document
	Error    string
}

type documentFormPageData struct {
	layoutData
	Editing    bool
	DocumentID string
	Form       models.DocumentForm
	Types      []string
	TypesError string
	Error      string
}

// formError is a form problem shown to the user as is.
type formError string

func (e formError) Error() string {
	return string(e)
}

// RequireAdmin renders the forbidden page with message for non-admin users.
func (m Main) RequireAdmin(message string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, _ := sessionFromContext(r.Context())
		if !session.User.IsAdmin() {
			data := struct {
				layoutData
				Message string
			}{
				layoutData: m.layout(w, r, "Access denied", ""),
				Message:    message,
			}
			m.render(w, http.StatusForbidden, "forbidden.html", data)
			return
		}
		next(w, r)
	}
}

// HandleDocuments lists documents, one page at a time, optionally filtered by name.
func (m Main) HandleDocuments(w http.ResponseWriter, r *http.Request) {
	page, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil || page < 1 {
		page = 1
	}
	query := strings.TrimSpace(r.URL.Query().Get("query"))

	data := documentsPageData{
		layoutData: m.layout(w, r, "Documents", "documents"),
		Query:      query,
		Page:       page,
		Total:      1,
	}

	res, err := m.backend.ListDocuments(r.Context(), models.DocumentListParams{Page: page, Query: query})
	if err != nil {
		m.logger.Error("Failed to list documents", zap.Int("page", page), zap.Error(err))
		data.Error = services.DisplayMessage(err, "Unable to load documents.")
		m.render(w, http.StatusOK, "documents.html", data)
		return
	}

	data.Documents = res.Records
	data.Page = res.CurrentPage
	data.Total = res.TotalPages
	if data.Page > 1 {
		data.PrevPage = data.Page - 1
	}
	if data.Page < data.Total {
		data.NextPage = data.Page + 1
	}
	m.render(w, http.StatusOK, "documents.html", data)
}

// HandleDocument shows a single document.
func (m Main) HandleDocument(w http.ResponseWriter, r *http.Request) {
	data := documentPageData{
		layoutData: m.layout(w, r, "Document", "documents"),
	}

	doc, err := m.backend.ShowDocument(r.Context(), r.PathValue("id"))
	if err != nil {
		m.logger.Error("Failed to load document", zap.String("id", r.PathValue("id")), zap.Error(err))
		data.Error = services.DisplayMessage(err, "Unable to load document.")
		status := http.StatusBadGateway
		if services.IsStatus(err, http.StatusNotFound) {
			status = http.StatusNotFound
		}
		m.render(w, status, "document.html", data)
		return
	}

	data.Document = doc
	m.render(w, http.StatusOK, "document.html", data)
}

// HandleNewDocument shows the upload form.
func (m Main) HandleNewDocument(w http.ResponseWriter, r *http.Request) {
	data := documentFormPageData{
		layoutData: m.layout(w, r, "New document", "documents"),
	}
	m.withDocumentTypes(r, &data)
	m.render(w, http.StatusOK, "document_form.html", data)
}

// HandleCreateDocument uploads a new document and redirects to it.
func (m Main) HandleCreateDocument(w http.ResponseWriter, r *http.Request) {
	form, closeFile, err := m.readDocumentForm(r, true)
	defer closeFile()
	if err != nil {
		m.renderDocumentForm(w, r, http.StatusUnprocessableEntity, "", form, err.Error())
		return
	}

	doc, err := m.backend.CreateDocument(r.Context(), form)
	if err != nil {
		m.logger.Error("Failed to create document", zap.String("name", form.Name), zap.Error(err))
		m.renderDocumentForm(w, r, formErrorStatus(err), "", form,
			services.DisplayMessage(err, documentFormFallback))
		return
	}

	m.logger.Info("Document created", zap.String("id", doc.ID.String()))
	setFlash(w, flashCookie, "Document created.")
	http.Redirect(w, r, "/documents/"+doc.ID.String(), http.StatusSeeOther)
}

// HandleEditDocument shows the edit form prefilled with the document.
func (m Main) HandleEditDocument(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	data := documentFormPageData{
		layoutData: m.layout(w, r, "Edit document", "documents"),
		Editing:    true,
		DocumentID: id,
	}

	doc, err := m.backend.ShowDocument(r.Context(), id)
	if err != nil {
		m.logger.Error("Failed to load document", zap.String("id", id), zap.Error(err))
		data.Error = services.DisplayMessage(err, "Unable to load document.")
		m.render(w, http.StatusBadGateway, "document_form.html", data)
		return
	}

	data.Form = models.DocumentForm{
		Name:         doc.Name,
		Description:  doc.Description,
		DocumentType: doc.DocumentType,
	}
	m.withDocumentTypes(r, &data)
	m.render(w, http.StatusOK, "document_form.html", data)
}

// HandleUpdateDocument saves the edit form. The file is replaced only when a new one is uploaded.
func (m Main) HandleUpdateDocument(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	form, closeFile, err := m.readDocumentForm(r, false)
	defer closeFile()
	if err != nil {
		m.renderDocumentForm(w, r, http.StatusUnprocessableEntity, id, form, err.Error())
		return
	}

	if _, err := m.backend.UpdateDocument(r.Context(), id, form); err != nil {
		m.logger.Error("Failed to update document", zap.String("id", id), zap.Error(err))
		m.renderDocumentForm(w, r, formErrorStatus(err), id, form,
			services.DisplayMessage(err, documentFormFallback))
		return
	}

	setFlash(w, flashCookie, "Document updated.")
	http.Redirect(w, r, "/documents/"+id, http.StatusSeeOther)
}

// HandleDeleteDocument deletes a document and returns to the listing.
func (m Main) HandleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := m.backend.DeleteDocument(r.Context(), id); err != nil {
		m.logger.Error("Failed to delete document", zap.String("id", id), zap.Error(err))
		setFlash(w, flashErrorCookie, services.DisplayMessage(err, "Unable to delete document."))
		http.Redirect(w, r, "/documents", http.StatusSeeOther)
		return
	}

	m.logger.Info("Document deleted", zap.String("id", id))
	setFlash(w, flashCookie, "Document deleted.")
	http.Redirect(w, r, "/documents", http.StatusSeeOther)
}

// HandleEnqueueDocument sends a document whose embedding failed back to the queue.
func (m Main) HandleEnqueueDocument(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	back := "/documents/" + id

	doc, err := m.backend.ShowDocument(r.Context(), id)
	if err != nil {
		m.logger.Error("Failed to load document", zap.String("id", id), zap.Error(err))
		setFlash(w, flashErrorCookie, services.DisplayMessage(err, "Unable to re-enqueue document."))
		http.Redirect(w, r, back, http.StatusSeeOther)
		return
	}
	if !doc.CanRetry() {
		setFlash(w, flashErrorCookie, "Only documents whose embedding failed can be re-enqueued.")
		http.Redirect(w, r, back, http.StatusSeeOther)
		return
	}

	if err := m.backend.RetryDocumentEnqueue(r.Context(), id); err != nil {
		m.logger.Error("Failed to re-enqueue document", zap.String("id", id), zap.Error(err))
		setFlash(w, flashErrorCookie, services.DisplayMessage(err, "Unable to re-enqueue document."))
		http.Redirect(w, r, back, http.StatusSeeOther)
		return
	}

	setFlash(w, flashCookie, "Document re-enqueued for embedding.")
	http.Redirect(w, r, back, http.StatusSeeOther)
}

// renderDocumentForm shows the document form again after a failed submission. An empty id is the
// create form.
func (m Main) renderDocumentForm(w http.ResponseWriter, r *http.Request, status int, id string,
	form models.DocumentForm, msg string,
) {
	title := "New document"
	if id != "" {
		title = "Edit document"
	}
	data := documentFormPageData{
		layoutData: m.layout(w, r, title, "documents"),
		Editing:    id != "",
		DocumentID: id,
		Form:       form,
		Error:      msg,
	}
	m.withDocumentTypes(r, &data)
	m.render(w, status, "document_form.html", data)
}

func (m Main) withDocumentTypes(r *http.Request, data *documentFormPageData) {
	types, err := m.types.All(r.Context())
	if err != nil {
		m.logger.Error("Failed to load document types", zap.Error(err))
		data.TypesError = services.DisplayMessage(err, "Unable to load document types.")
		return
	}
	data.Types = types
}

// readDocumentForm reads the multipart document form. The returned close func is never nil.
func (m Main) readDocumentForm(r *http.Request, fileRequired bool) (models.DocumentForm, func(), error) {
	noop := func() {}

	if err := r.ParseMultipartForm(maxUploadMemory); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		return models.DocumentForm{}, noop, formError("Unable to read the upload.")
	}

	form := models.DocumentForm{
		Name:         strings.TrimSpace(r.FormValue("name")),
		Description:  strings.TrimSpace(r.FormValue("description")),
		DocumentType: r.FormValue("document_type"),
	}

	closeFile := noop
	file, header, err := r.FormFile("file")
	switch {
	case err == nil:
		form.File = file
		form.FileName = header.Filename
		closeFile = func() { _ = file.Close() }
	case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
		if fileRequired {
			return form, noop, formError("Choose a file to upload.")
		}
	default:
		return form, noop, formError("Unable to read the upload.")
	}

	if err := m.validate.Struct(form); err != nil {
		closeFile()
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 && verrs[0].Field() == "Name" {
			return form, noop, formError("Name is required.")
		}
		return form, noop, formError(documentFormFallback)
	}
	return form, closeFile, nil
}

func formErrorStatus(err error) int {
	var apiErr *services.APIError
	if errors.As(err, &apiErr) && apiErr.Status >= 400 && apiErr.Status < 500 {
		return http.StatusUnprocessableEntity
	}
	return http.StatusBadGateway
}
