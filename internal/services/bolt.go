package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/cloudband/ignis-admin/internal/models"
	bolt "go.etcd.io/bbolt"
)

// BoltDB persists login sessions and per-user favorite services in a bbolt file, so that both
// survive a restart of the admin server.
type BoltDB struct {
	db *bolt.DB
}

var (
	sessionsBucket  = []byte("sessions")
	favoritesBucket = []byte("favorites")
)

// ErrSessionNotFound is returned when no session is stored under the requested id.
var ErrSessionNotFound = errors.New("session not found")

// NewBoltDB opens (creating when needed, with 0600 permissions) the database at path and makes sure
// the required buckets exist.
func NewBoltDB(path string) (BoltDB, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return BoltDB{}, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{sessionsBucket, favoritesBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return BoltDB{}, err
	}

	return BoltDB{db: db}, nil
}

// Close releases the database file.
func (b BoltDB) Close() error {
	return b.db.Close()
}

// Session returns the session stored under id, or ErrSessionNotFound.
func (b BoltDB) Session(_ context.Context, id string) (models.Session, error) {
	var session models.Session
	err := b.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(sessionsBucket).Get([]byte(id))
		if v == nil {
			return ErrSessionNotFound
		}
		if err := json.Unmarshal(v, &session); err != nil {
			return fmt.Errorf("failed to unmarshal session: %w", err)
		}
		return nil
	})
	if err != nil {
		return models.Session{}, err
	}
	return session, nil
}

// SaveSession stores session under its id, replacing any previous value.
func (b BoltDB) SaveSession(_ context.Context, session models.Session) error {
	if session.ID == "" {
		return errors.New("session id is required")
	}

	v, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(sessionsBucket).Put([]byte(session.ID), v)
	})
}

// DeleteSession removes the session stored under id. Deleting a missing session is not an error.
func (b BoltDB) DeleteSession(_ context.Context, id string) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(sessionsBucket).Delete([]byte(id))
	})
}

// Favorites returns the favorite service ids of a user, in the order they were added.
func (b BoltDB) Favorites(_ context.Context, userID string) ([]string, error) {
	var favorites []string
	err := b.db.View(func(tx *bolt.Tx) error {
		var err error
		favorites, err = readFavorites(tx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return favorites, nil
}

// ToggleFavorite adds serviceID to the user's favorites, or removes it when already present, and
// returns the updated list.
func (b BoltDB) ToggleFavorite(_ context.Context, userID, serviceID string) ([]string, error) {
	var favorites []string
	err := b.db.Update(func(tx *bolt.Tx) error {
		var err error
		favorites, err = readFavorites(tx, userID)
		if err != nil {
			return err
		}

		if idx := slices.Index(favorites, serviceID); idx >= 0 {
			favorites = slices.Delete(favorites, idx, idx+1)
		} else {
			favorites = append(favorites, serviceID)
		}

		v, err := json.Marshal(favorites)
		if err != nil {
			return fmt.Errorf("failed to marshal favorites: %w", err)
		}
		return tx.Bucket(favoritesBucket).Put([]byte(userID), v)
	})
	if err != nil {
		return nil, err
	}
	return favorites, nil
}

func readFavorites(tx *bolt.Tx, userID string) ([]string, error) {
	v := tx.Bucket(favoritesBucket).Get([]byte(userID))
	if v == nil {
		return []string{}, nil
	}

	var favorites []string
	if err := json.Unmarshal(v, &favorites); err != nil {
		return nil, fmt.Errorf("failed to unmarshal favorites: %w", err)
	}
	return favorites, nil
}
