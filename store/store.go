/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package store persists uploaded session logs.
package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"
)

var (
	ErrNotFound    = errors.New("log not found")
	ErrExists      = errors.New("log already exists")
	ErrUnknownKind = errors.New("unknown store")
)

// maxCollisions bounds how many uploads may share one microsecond.
const maxCollisions = 64

// Store keeps one document per uploaded log.
type Store interface {
	// Save stores body under a name derived from now and returns that name.
	// Saves at the same instant get distinct names.
	Save(ctx context.Context, now time.Time, body []byte) (string, error)
	Load(ctx context.Context, name string) ([]byte, error)
	List(ctx context.Context) ([]string, error)
	Close() error
}

// Name derives a log name from the upload time in microseconds, which
// clients cannot influence.
func Name(now time.Time) string {
	return strconv.FormatInt(now.UnixMicro(), 10) + ".json"
}

// collisionName is the n-th alternative to Name(now). The "_n" suffix sorts
// after Name(now) and before the next microsecond.
func collisionName(now time.Time, n int) string {
	if n == 0 {
		return Name(now)
	}
	return strconv.FormatInt(now.UnixMicro(), 10) + "_" + strconv.Itoa(n) + ".json"
}

// saveUnique calls put with successive names for now until one is not
// taken (put returns ErrExists).
func saveUnique(now time.Time, put func(name string) error) (string, error) {
	for n := range maxCollisions {
		name := collisionName(now, n)
		err := put(name)
		if errors.Is(err, ErrExists) {
			continue
		}
		if err != nil {
			return "", err
		}
		return name, nil
	}
	return "", fmt.Errorf("%w: %d logs at %s", ErrExists, maxCollisions, Name(now))
}

type Options struct {
	Kind        string
	DataDir     string
	BoltPath    string
	DatabaseURL string
}

// Open builds the store named by opts.Kind: "file", "bolt" or "postgres".
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Kind {
	case "", "file":
		return NewFileStore(opts.DataDir), nil
	case "bolt":
		return OpenBolt(opts.BoltPath)
	case "postgres":
		return OpenPostgres(ctx, opts.DatabaseURL)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, opts.Kind)
	}
}
