package handlers

import (
	"net/http"
	"net/url"
	"slices"
	"strings"

	"github.com/cloudband/ignis-admin/internal/models"
	"go.uber.org/zap"
)

type serviceSearchData struct {
	Query   string
	Results []favoriteView
}

// HandleServiceSearch responds with the services whose label matches the query. An empty query
// yields no results.
func (m Main) HandleServiceSearch(w http.ResponseWriter, r *http.Request) {
	session, _ := sessionFromContext(r.Context())
	query := r.URL.Query().Get("query")

	favorites, err := m.store.Favorites(r.Context(), session.User.ID.String())
	if err != nil {
		m.logger.Warn("Failed to load favorites", zap.Error(err))
	}

	allowed := models.AllowedServices(models.Services(), session.User)
	matches := models.FilterServices(allowed, query)

	data := serviceSearchData{
		Query:   query,
		Results: make([]favoriteView, len(matches)),
	}
	for i, s := range matches {
		data.Results[i] = favoriteView{Service: s, Favorite: slices.Contains(favorites, s.ID)}
	}

	m.render(w, http.StatusOK, "service_search", data)
}

// HandleToggleFavorite stars or unstars a service for the logged-in user.
func (m Main) HandleToggleFavorite(w http.ResponseWriter, r *http.Request) {
	session, _ := sessionFromContext(r.Context())
	serviceID := r.PathValue("service")

	allowed := models.AllowedServices(models.Services(), session.User)
	if !slices.ContainsFunc(allowed, func(s models.Service) bool { return s.ID == serviceID }) {
		http.Error(w, "Unknown service", http.StatusNotFound)
		return
	}

	favorites, err := m.store.ToggleFavorite(r.Context(), session.User.ID.String(), serviceID)
	if err != nil {
		m.logger.Error("Failed to toggle favorite",
			zap.String("service", serviceID),
			zap.Error(err))
		http.Error(w, "Unable to update favorites.", http.StatusInternalServerError)
		return
	}

	if !isFragmentRequest(r) {
		http.Redirect(w, r, localReferer(r), http.StatusSeeOther)
		return
	}
	m.render(w, http.StatusOK, "favorites", favoriteViews(allowed, favorites))
}

// localReferer returns the path of the referring page on this host, or "/".
func localReferer(r *http.Request) string {
	u, err := url.Parse(r.Referer())
	if err != nil || r.Referer() == "" || (u.Host != "" && u.Host != r.Host) || !strings.HasPrefix(u.Path, "/") {
		return "/"
	}
	return u.RequestURI()
}
