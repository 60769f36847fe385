// Package persist stores sessions and keeps slow writes from overwriting
// newer state.
package persist

import (
	"context"
	"errors"
	"fmt"
	"sort"

	jsoniter "github.com/json-iterator/go"

	"pointer/pkg/config"
	"pointer/pkg/transcript"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrNotFound is returned by Load for an unknown session id.
var ErrNotFound = errors.New("persist: session not found")

// Backend is a session store.
type Backend interface {
	Save(ctx context.Context, sess *transcript.Session) error
	Load(ctx context.Context, id string) (*transcript.Session, error)
	// List returns sessions holding more than the system turn, newest first.
	List(ctx context.Context) ([]transcript.Summary, error)
	Close() error
}

// Open creates the backend selected by cfg.
func Open(cfg config.StorageConfig) (Backend, error) {
	switch cfg.Type {
	case "", "file":
		return NewFileStore(cfg.Path)
	case "sqlite":
		return NewSQLiteStore(cfg.Path)
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
}

// listable reports whether a session appears in listings.
func listable(messageCount int) bool {
	return messageCount > 1
}

func sortSummaries(list []transcript.Summary) {
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})
}
