package handlers

import (
	"bytes"
	"html/template"
	"net/http"
	"net/url"
	"time"

	"github.com/cloudband/ignis-admin/internal/models"
	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting"
	"github.com/yuin/goldmark/extension"
	"go.uber.org/zap"
)

// layoutData is embedded by every logged-in page and feeds the navigation partials.
type layoutData struct {
	Title     string
	Active    string
	User      models.User
	Services  []models.Service
	Favorites []favoriteView

	Flash      string
	FlashError string
}

type favoriteView struct {
	models.Service
	Favorite bool
}

const (
	flashCookie      = "ignis_flash"
	flashErrorCookie = "ignis_flash_error"
)

func newMarkdown() goldmark.Markdown {
	return goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,
			highlighting.NewHighlighting(
				highlighting.WithStyle("github"),
			),
		),
	)
}

func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"formatBytes": models.FormatBytes,
		"typeLabel":   models.DocumentTypeLabel,
		"formatTime": func(t time.Time) string {
			return t.Format("15:04")
		},
	}
}

// renderMarkdown turns an assistant answer into HTML. Raw HTML inside the answer is not rendered.
func (m Main) renderMarkdown(content string) template.HTML {
	var buf bytes.Buffer
	if err := m.markdown.Convert([]byte(content), &buf); err != nil {
		m.logger.Warn("Failed to render markdown", zap.Error(err))
		return template.HTML(template.HTMLEscapeString(content))
	}
	return template.HTML(buf.String())
}

// layout builds the navigation data for the current session. Failing to read favorites only costs
// the favorites bar.
func (m Main) layout(w http.ResponseWriter, r *http.Request, title, active string) layoutData {
	ctx := r.Context()
	session, _ := sessionFromContext(ctx)
	services := models.AllowedServices(models.Services(), session.User)

	favorites, err := m.store.Favorites(ctx, session.User.ID.String())
	if err != nil {
		m.logger.Warn("Failed to load favorites",
			zap.String("userID", session.User.ID.String()),
			zap.Error(err))
	}

	return layoutData{
		Title:      title,
		Active:     active,
		User:       session.User,
		Services:   services,
		Favorites:  favoriteViews(services, favorites),
		Flash:      popFlash(w, r, flashCookie),
		FlashError: popFlash(w, r, flashErrorCookie),
	}
}

func favoriteViews(services []models.Service, favorites []string) []favoriteView {
	favs := models.FavoriteServices(services, favorites)
	views := make([]favoriteView, len(favs))
	for i, s := range favs {
		views[i] = favoriteView{Service: s, Favorite: true}
	}
	return views
}

// render writes the named template with status. Rendering goes to a buffer first so that a
// template error still yields a clean 500.
func (m Main) render(w http.ResponseWriter, status int, name string, data any) {
	var buf bytes.Buffer
	if err := m.templates.ExecuteTemplate(&buf, name, data); err != nil {
		m.logger.Error("Failed to render template", zap.String("template", name), zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

func (m Main) renderString(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := m.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func setFlash(w http.ResponseWriter, name, msg string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    url.QueryEscape(msg),
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func popFlash(w http.ResponseWriter, r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	msg, err := url.QueryUnescape(c.Value)
	if err != nil {
		return ""
	}
	return msg
}

// isFragmentRequest reports whether the request comes from the page script, which expects an HTML
// fragment instead of a redirect.
func isFragmentRequest(r *http.Request) bool {
	return r.Header.Get("X-Requested-With") == "fetch"
}
