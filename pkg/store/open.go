package store

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
)

// Open selects a backend from a location string:
//
//	memory:                    in-process only
//	redis://host:6379/0        redis (rediss:// for TLS)
//	sqlite:/path/to/loom.db    sqlite database file
//	/path/to/state.yaml        yaml file (also yaml:/path)
//
// A bare path ending in .db or .sqlite opens sqlite.
func Open(ctx context.Context, location string) (Store, error) {
	location = strings.TrimSpace(location)
	switch {
	case location == "" || location == "memory:" || location == "memory":
		return NewInMemoryStore(), nil
	case strings.HasPrefix(location, "redis://"), strings.HasPrefix(location, "rediss://"):
		return NewRedisStore(ctx, location, "")
	case strings.HasPrefix(location, "sqlite:"):
		return openSQLite(strings.TrimPrefix(location, "sqlite:"))
	case strings.HasPrefix(location, "yaml:"):
		return NewYAMLFileStore(strings.TrimPrefix(location, "yaml:"))
	}

	switch strings.ToLower(filepath.Ext(location)) {
	case ".db", ".sqlite", ".sqlite3":
		return openSQLite(location)
	case ".yaml", ".yml":
		return NewYAMLFileStore(location)
	}
	return nil, fmt.Errorf("unsupported store location %q", location)
}

func openSQLite(path string) (Store, error) {
	dsn, err := SQLiteDSNForFile(path)
	if err != nil {
		return nil, err
	}
	return NewSQLiteStore(dsn)
}
