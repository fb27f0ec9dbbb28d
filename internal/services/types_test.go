package services_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cloudband/ignis-admin/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockLister struct {
	public      []string
	admin       []string
	err         error
	publicCalls int
	adminCalls  int
}

func (m *mockLister) ListDocumentTypes(context.Context) ([]string, error) {
	m.adminCalls++
	if m.err != nil {
		return nil, m.err
	}
	return m.admin, nil
}

func (m *mockLister) ListPublicDocumentTypes(context.Context) ([]string, error) {
	m.publicCalls++
	if m.err != nil {
		return nil, m.err
	}
	return m.public, nil
}

func TestDocumentTypesCaches(t *testing.T) {
	lister := &mockLister{public: []string{"faq", "policy"}, admin: []string{"faq", "internal", "policy"}}
	types := services.NewDocumentTypes(lister, time.Minute)
	ctx := context.Background()

	for range 3 {
		got, err := types.Public(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"faq", "policy"}, got)
	}
	assert.Equal(t, 1, lister.publicCalls)
	assert.Equal(t, 0, lister.adminCalls)

	got, err := types.All(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"faq", "internal", "policy"}, got)

	// Callers get their own copy.
	got[0] = "changed"
	got, err = types.All(ctx)
	require.NoError(t, err)
	assert.Equal(t, "faq", got[0])
	assert.Equal(t, 1, lister.adminCalls)

	types.Invalidate()
	_, err = types.Public(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, lister.publicCalls)
}

func TestDocumentTypesErrorsNotCached(t *testing.T) {
	lister := &mockLister{err: errors.New("backend down")}
	types := services.NewDocumentTypes(lister, time.Minute)
	ctx := context.Background()

	_, err := types.Public(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, lister.err)

	lister.err = nil
	lister.public = []string{"faq"}
	got, err := types.Public(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"faq"}, got)
	assert.Equal(t, 2, lister.publicCalls)
}
