package models

import (
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Service is an entry of the navigation catalog.
type Service struct {
	ID        string
	Label     string
	Path      string
	Icon      string
	AdminOnly bool
}

// Services returns the full navigation catalog in display order.
func Services() []Service {
	return []Service{
		{ID: "dashboard", Label: "Dashboard", Path: "/", Icon: "dashboard"},
		{ID: "settings", Label: "Settings", Path: "/settings", Icon: "settings"},
		{ID: "documents", Label: "Documents", Path: "/documents", Icon: "documents"},
		{ID: "environment", Label: "Environment", Path: "/environment", Icon: "settings", AdminOnly: true},
	}
}

// AllowedServices drops the admin-only entries for non-admin users.
func AllowedServices(services []Service, user User) []Service {
	return slices.DeleteFunc(slices.Clone(services), func(s Service) bool {
		return s.AdminOnly && !user.IsAdmin()
	})
}

// FilterServices returns the services whose label contains query, ignoring case. An empty query
// matches nothing.
func FilterServices(services []Service, query string) []Service {
	if query == "" {
		return nil
	}
	lowered := strings.ToLower(query)

	var res []Service
	for _, s := range services {
		if strings.Contains(strings.ToLower(s.Label), lowered) {
			res = append(res, s)
		}
	}
	return res
}

// FavoriteServices keeps the services present in favorites, in catalog order.
func FavoriteServices(services []Service, favorites []string) []Service {
	var res []Service
	for _, s := range services {
		if slices.Contains(favorites, s.ID) {
			res = append(res, s)
		}
	}
	return res
}

// DocumentTypeLabel turns a type identifier such as "user_manual" into "User Manual".
func DocumentTypeLabel(value string) string {
	parts := strings.Split(value, "_")
	for i, part := range parts {
		r, size := utf8.DecodeRuneInString(part)
		if size == 0 {
			continue
		}
		parts[i] = string(unicode.ToUpper(r)) + part[size:]
	}
	return strings.Join(parts, " ")
}
