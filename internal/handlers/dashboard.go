package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/cloudband/ignis-admin/internal/inquiry"
	"go.uber.org/zap"
)

type dashboardPageData struct {
	layoutData
	Conversation conversationView
	Types        []typeToggleView
	TypesError   string
}

// HandleHome serves the landing page to visitors and the inquiry dashboard to logged-in users.
func (m Main) HandleHome(w http.ResponseWriter, r *http.Request) {
	session, ok := sessionFromContext(r.Context())
	if !ok {
		m.render(w, http.StatusOK, "landing.html", nil)
		return
	}

	data := dashboardPageData{
		layoutData: m.layout(w, r, "Dashboard", "dashboard"),
	}

	conv, err := m.conversation(r.Context(), session.ID)
	if err != nil {
		m.logger.Error("Failed to open conversation",
			zap.String("sessionID", session.ID),
			zap.Error(err))
		data.TypesError = "Unable to load document types."
		m.render(w, http.StatusOK, "dashboard.html", data)
		return
	}

	data.Conversation = m.conversationView(conv.epoch, conv.consumer.Snapshot())
	data.Types = conv.toggles()
	m.render(w, http.StatusOK, "dashboard.html", data)
}

// HandleInquiries submits the query of the form to the session's conversation. The answer is
// delivered through the SSE stream; the response carries the conversation as it is right after
// submission.
//
// It responds 202 when the inquiry was accepted, 409 while another inquiry is in flight and 422
// when the query is empty or no document type is selected.
func (m Main) HandleInquiries(w http.ResponseWriter, r *http.Request) {
	session, _ := sessionFromContext(r.Context())

	conv, err := m.conversation(r.Context(), session.ID)
	if err != nil {
		m.logger.Error("Failed to open conversation",
			zap.String("sessionID", session.ID),
			zap.Error(err))
		http.Error(w, "Unable to load document types.", http.StatusServiceUnavailable)
		return
	}

	// The answer outlives the request; keep the token and trace but not the cancellation.
	ctx := context.WithoutCancel(r.Context())

	_, err = conv.consumer.Submit(ctx, r.FormValue("query"), conv.selected(), 0)
	if err != nil {
		var ierr *inquiry.Error
		switch {
		case errors.As(err, &ierr):
			http.Error(w, ierr.Message, http.StatusUnprocessableEntity)
		case errors.Is(err, inquiry.ErrBusy):
			http.Error(w, "An inquiry is already in progress.", http.StatusConflict)
		default:
			m.logger.Error("Failed to submit inquiry",
				zap.String("sessionID", session.ID),
				zap.Error(err))
			http.Error(w, "Unable to complete inquiry.", http.StatusInternalServerError)
		}
		return
	}

	if !isFragmentRequest(r) {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	m.render(w, http.StatusAccepted, "conversation", m.conversationView(conv.epoch, conv.consumer.Snapshot()))
}

// HandleToggleType flips one document type of the session's selection and responds with the
// updated toggles.
func (m Main) HandleToggleType(w http.ResponseWriter, r *http.Request) {
	session, _ := sessionFromContext(r.Context())

	conv, err := m.conversation(r.Context(), session.ID)
	if err != nil {
		m.logger.Error("Failed to open conversation",
			zap.String("sessionID", session.ID),
			zap.Error(err))
		http.Error(w, "Unable to load document types.", http.StatusServiceUnavailable)
		return
	}

	if !conv.toggle(r.PathValue("type")) {
		http.Error(w, "Unknown document type", http.StatusNotFound)
		return
	}

	if !isFragmentRequest(r) {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	m.render(w, http.StatusOK, "type_toggles", conv.toggles())
}
