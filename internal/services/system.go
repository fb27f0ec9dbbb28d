package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/cloudband/ignis-admin/internal/models"
)

// FetchEnvironment returns the backend's environment variables. Admin only. Non-string values are
// rendered as text and null becomes the empty string.
func (b Backend) FetchEnvironment(ctx context.Context) (map[string]string, error) {
	var res struct {
		Env map[string]any `json:"env"`
	}
	if err := b.doJSON(ctx, "FetchEnvironment", http.MethodGet, "/system/env", nil, nil, &res); err != nil {
		return nil, err
	}

	env := make(map[string]string, len(res.Env))
	for k, v := range res.Env {
		env[k] = envValue(v)
	}
	return env, nil
}

func envValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64, bool:
		return fmt.Sprint(val)
	default:
		raw, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(raw)
	}
}

// UpdateUser changes the password of the user with the given id.
func (b Backend) UpdateUser(ctx context.Context, id string, change models.PasswordChange) error {
	return b.doJSON(ctx, "UpdateUser", http.MethodPut, "/users/"+url.PathEscape(id), nil, change, nil)
}
