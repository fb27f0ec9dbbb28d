package handlers

import (
	"errors"
	"net/http"
	"sort"

	"github.com/cloudband/ignis-admin/internal/models"
	"github.com/cloudband/ignis-admin/internal/services"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

type settingsPageData struct {
	layoutData
	Error   string
	Success string
}

type envVar struct {
	Key   string
	Value string
}

type environmentPageData struct {
	layoutData
	Vars  []envVar
	Error string
}

// HandleSettings shows the password change form.
func (m Main) HandleSettings(w http.ResponseWriter, r *http.Request) {
	m.render(w, http.StatusOK, "settings.html", settingsPageData{
		layoutData: m.layout(w, r, "Settings", "settings"),
	})
}

// HandleUpdateSettings changes the password of the logged-in user.
func (m Main) HandleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	session, _ := sessionFromContext(r.Context())
	data := settingsPageData{
		layoutData: m.layout(w, r, "Settings", "settings"),
	}

	change := models.PasswordChange{
		Password:             r.FormValue("password"),
		PasswordConfirmation: r.FormValue("password_confirmation"),
	}
	if err := m.validate.Struct(change); err != nil {
		data.Error = passwordValidationMessage(err)
		m.render(w, http.StatusUnprocessableEntity, "settings.html", data)
		return
	}

	if err := m.backend.UpdateUser(r.Context(), session.User.ID.String(), change); err != nil {
		m.logger.Error("Failed to update password",
			zap.String("userID", session.User.ID.String()),
			zap.Error(err))
		data.Error = services.DisplayMessage(err, "Unable to update password with current permissions.")
		m.render(w, formErrorStatus(err), "settings.html", data)
		return
	}

	data.Success = "Password updated."
	m.render(w, http.StatusOK, "settings.html", data)
}

func passwordValidationMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			if fe.Tag() == "eqfield" {
				return "Passwords do not match."
			}
		}
	}
	return "Please enter and confirm your new password."
}

// HandleEnvironment lists the backend's environment, sorted by key.
func (m Main) HandleEnvironment(w http.ResponseWriter, r *http.Request) {
	data := environmentPageData{
		layoutData: m.layout(w, r, "Environment", "environment"),
	}

	env, err := m.backend.FetchEnvironment(r.Context())
	if err != nil {
		m.logger.Error("Failed to fetch environment", zap.Error(err))
		data.Error = services.DisplayMessage(err, "Unable to load environment variables.")
		m.render(w, http.StatusOK, "environment.html", data)
		return
	}

	data.Vars = make([]envVar, 0, len(env))
	for k, v := range env {
		data.Vars = append(data.Vars, envVar{Key: k, Value: v})
	}
	sort.Slice(data.Vars, func(i, j int) bool {
		return data.Vars[i].Key < data.Vars[j].Key
	})

	m.render(w, http.StatusOK, "environment.html", data)
}
