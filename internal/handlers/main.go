package handlers

import (
	"context"
	"fmt"
	"html/template"
	"net/http"
	"time"

	ignisadmin "github.com/cloudband/ignis-admin"
	"github.com/cloudband/ignis-admin/internal/inquiry"
	"github.com/cloudband/ignis-admin/internal/models"
	"github.com/go-playground/validator/v10"
	"github.com/patrickmn/go-cache"
	"github.com/tmaxmax/go-sse"
	"github.com/yuin/goldmark"
	"go.uber.org/zap"
)

// Backend is the document and inquiry API the handlers act upon on behalf of the logged-in user.
// The bearer token is carried by the request context.
type Backend interface {
	inquiry.Transport

	ListDocuments(ctx context.Context, params models.DocumentListParams) (models.DocumentPage, error)
	ShowDocument(ctx context.Context, id string) (models.Document, error)
	CreateDocument(ctx context.Context, form models.DocumentForm) (models.Document, error)
	UpdateDocument(ctx context.Context, id string, form models.DocumentForm) (models.Document, error)
	DeleteDocument(ctx context.Context, id string) error
	RetryDocumentEnqueue(ctx context.Context, id string) error

	FetchEnvironment(ctx context.Context) (map[string]string, error)
	UpdateUser(ctx context.Context, id string, change models.PasswordChange) error
}

// Store persists login sessions and the favorite services of each user.
type Store interface {
	Session(ctx context.Context, id string) (models.Session, error)
	SaveSession(ctx context.Context, session models.Session) error
	DeleteSession(ctx context.Context, id string) error

	Favorites(ctx context.Context, userID string) ([]string, error)
	ToggleFavorite(ctx context.Context, userID, serviceID string) ([]string, error)
}

// DocumentTypes lists the document types known to the backend.
type DocumentTypes interface {
	Public(ctx context.Context) ([]string, error)
	All(ctx context.Context) ([]string, error)
}

// Config holds the knobs of the web interface.
type Config struct {
	// SessionCookie is the name of the cookie carrying the session id.
	SessionCookie string
	// SecureCookie marks the session cookie as HTTPS only.
	SecureCookie bool
	// JWTSecret verifies login tokens when set. Without it the claims are read unverified and the
	// backend remains the only authority on the token.
	JWTSecret string
	// InquiryK is the result-count hint sent with every inquiry, zero leaves it to the backend.
	InquiryK int
	// ConversationTTL is how long an idle conversation is kept in memory.
	ConversationTTL time.Duration
}

// Main serves the admin pages. It renders HTML templates, keeps one inquiry conversation per
// session and pushes conversation updates to the browser over server-sent events.
type Main struct {
	sseSrv    *sse.Server
	templates *template.Template
	markdown  goldmark.Markdown
	validate  *validator.Validate

	backend       Backend
	store         Store
	types         DocumentTypes
	conversations *cache.Cache

	cfg    Config
	logger *zap.Logger
}

const (
	defaultSessionCookie   = "ignis_session"
	defaultConversationTTL = time.Hour
)

// NewMain creates a Main. It parses the embedded templates and sets up the SSE server, where each
// session subscribes to the topic of its own conversation.
func NewMain(backend Backend, store Store, types DocumentTypes, cfg Config, logger *zap.Logger) (Main, error) {
	if cfg.SessionCookie == "" {
		cfg.SessionCookie = defaultSessionCookie
	}
	if cfg.ConversationTTL <= 0 {
		cfg.ConversationTTL = defaultConversationTTL
	}

	md := newMarkdown()

	// Layout, pages and partial views live in three directories but share one template set.
	tmpl, err := template.New("").Funcs(templateFuncs()).ParseFS(
		ignisadmin.TemplateFS,
		"templates/layout/*.html",
		"templates/pages/*.html",
		"templates/partials/*.html",
	)
	if err != nil {
		return Main{}, fmt.Errorf("failed to parse templates: %w", err)
	}

	conversations := cache.New(cfg.ConversationTTL, cfg.ConversationTTL/2)
	conversations.OnEvicted(func(_ string, v any) {
		if conv, ok := v.(*conversation); ok {
			conv.consumer.Close()
		}
	})

	m := Main{
		templates:     tmpl,
		markdown:      md,
		validate:      validator.New(validator.WithRequiredStructEnabled()),
		backend:       backend,
		store:         store,
		types:         types,
		conversations: conversations,
		cfg:           cfg,
		logger:        logger.With(zap.String("module", "handlers")),
	}

	m.sseSrv = &sse.Server{
		OnSession: func(s *sse.Session) (sse.Subscription, bool) {
			session, ok := sessionFromContext(s.Req.Context())
			if !ok {
				return sse.Subscription{}, false
			}

			return sse.Subscription{
				Client:      s,
				LastEventID: s.LastEventID,
				Topics:      []string{sse.DefaultTopic, conversationTopic(session.ID)},
			}, true
		},
	}

	return m, nil
}

func conversationTopic(sessionID string) string {
	return fmt.Sprintf("conversation-%s", sessionID)
}

// Shutdown closes every conversation and terminates the SSE server. Connected clients receive a
// close event first; connections still open after 5 seconds are dropped.
func (m Main) Shutdown(ctx context.Context) error {
	for id := range m.conversations.Items() {
		m.conversations.Delete(id)
	}

	e := &sse.Message{Type: closeSSEType}
	// Events without data are discarded by browsers.
	e.AppendData("bye")

	_ = m.sseSrv.Publish(e)

	ctx, cancel := context.WithTimeout(ctx, time.Second*5)
	defer cancel()

	return m.sseSrv.Shutdown(ctx)
}

// HandleSSE streams conversation updates of the current session.
func (m Main) HandleSSE(w http.ResponseWriter, r *http.Request) {
	m.sseSrv.ServeHTTP(w, r)
}
