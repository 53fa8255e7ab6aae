// Package store provides the key-value persistence used for application settings,
// sessions and token usage. Values are opaque JSON documents; every Set replaces the
// previous value of its key.
package store

import (
	"context"
	"errors"
)

const (
	KeyAppSettings = "app_settings"
	KeySessions    = "sessions"
	KeyTokenUsage  = "token_usage"
)

var (
	ErrClosed     = errors.New("store closed")
	ErrInvalidKey = errors.New("invalid store key")
)

type Store interface {
	// Get returns the value stored under key. ok is false when the key was never set.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Set(ctx context.Context, key string, value []byte) error
	Close() error
}

func checkKey(key string) error {
	if key == "" {
		return ErrInvalidKey
	}
	return nil
}

func copyBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	ret := make([]byte, len(b))
	copy(ret, b)
	return ret
}
