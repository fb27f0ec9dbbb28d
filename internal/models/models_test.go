package models_test

import (
	"encoding/json"
	"testing"

	"github.com/cloudband/ignis-admin/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatBytes(t *testing.T) {
	size := func(v int64) *int64 { return &v }

	tests := []struct {
		name string
		in   *int64
		want string
	}{
		{name: "unknown", in: nil, want: "-"},
		{name: "zero", in: size(0), want: "0 B"},
		{name: "bytes", in: size(512), want: "512 B"},
		{name: "fractional kilobytes", in: size(1536), want: "1.5 KB"},
		{name: "whole megabytes", in: size(12 * 1024 * 1024), want: "12 MB"},
		{name: "capped at terabytes", in: size(3 * 1024 * 1024 * 1024 * 1024 * 1024), want: "3072 TB"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, models.FormatBytes(tt.in))
		})
	}
}

func TestAllowedServices(t *testing.T) {
	all := models.Services()

	admin := models.AllowedServices(all, models.User{UserType: models.UserTypeAdmin})
	assert.Len(t, admin, len(all))

	member := models.AllowedServices(all, models.User{UserType: "member"})
	for _, s := range member {
		assert.False(t, s.AdminOnly, "service %s should be hidden", s.ID)
	}
	assert.Len(t, member, len(all)-1)
	assert.Len(t, all, 4, "catalog must not be modified")
}

func TestFilterServices(t *testing.T) {
	all := models.Services()

	assert.Empty(t, models.FilterServices(all, ""))

	got := models.FilterServices(all, "DOC")
	if assert.Len(t, got, 1) {
		assert.Equal(t, "documents", got[0].ID)
	}

	got = models.FilterServices(all, "s")
	assert.Len(t, got, 3)
}

func TestFavoriteServices(t *testing.T) {
	got := models.FavoriteServices(models.Services(), []string{"environment", "dashboard", "missing"})
	if assert.Len(t, got, 2) {
		assert.Equal(t, "dashboard", got[0].ID)
		assert.Equal(t, "environment", got[1].ID)
	}
}

func TestDocumentTypeLabel(t *testing.T) {
	assert.Equal(t, "Standard Operating Procedure", models.DocumentTypeLabel("standard_operating_procedure"))
	assert.Equal(t, "Policy", models.DocumentTypeLabel("policy"))
	assert.Equal(t, "A  B", models.DocumentTypeLabel("a__b"))
}

func TestUserLabel(t *testing.T) {
	assert.Equal(t, "Ada", models.User{Name: "Ada", Email: "ada@example.com"}.Label())
	assert.Equal(t, "ada@example.com", models.User{Email: "ada@example.com"}.Label())
	assert.Equal(t, "ada", models.User{Username: "ada"}.Label())
	assert.Equal(t, "User", models.User{}.Label())
}

func TestIDUnmarshal(t *testing.T) {
	tests := []struct {
		in   string
		want models.ID
	}{
		{in: `{"id":42}`, want: "42"},
		{in: `{"id":"a1"}`, want: "a1"},
		{in: `{"id":null}`, want: ""},
		{in: `{}`, want: ""},
	}

	for _, tt := range tests {
		var doc models.Document
		require.NoError(t, json.Unmarshal([]byte(tt.in), &doc), tt.in)
		assert.Equal(t, tt.want, doc.ID, tt.in)
	}

	var doc models.Document
	assert.Error(t, json.Unmarshal([]byte(`{"id":true}`), &doc))
}
