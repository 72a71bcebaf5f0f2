// Package archive copies finished run artifacts to a blob sink.
package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"demosim/internal/stats"
)

type Driver string

const (
	DriverNone       Driver = ""
	DriverFilesystem Driver = "fs"
	DriverS3         Driver = "s3"
	DriverMemory     Driver = "memory"
)

// Sink stores artifact blobs under slash-separated keys. Put overwrites.
type Sink interface {
	Driver() Driver
	Put(ctx context.Context, key string, r io.Reader) error
}

type Config struct {
	Driver Driver
	// Root is the target directory of the fs driver.
	Root string
	S3   S3Config
}

// NewSink builds the sink selected by cfg. DriverNone returns a nil Sink.
func NewSink(ctx context.Context, cfg Config) (Sink, error) {
	switch Driver(strings.ToLower(string(cfg.Driver))) {
	case DriverNone, "none":
		return nil, nil
	case DriverFilesystem:
		fs, err := NewFilesystem(cfg.Root)
		if err != nil {
			return nil, err
		}
		return fs, nil
	case DriverS3:
		s, err := NewS3(ctx, cfg.S3)
		if err != nil {
			return nil, err
		}
		return s, nil
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown archive driver %s", cfg.Driver)
	}
}

// ArchiveRun uploads the artifacts present in runDir. Keys are the artifact
// paths relative to root, so a sweep keeps its directory layout in the sink.
func ArchiveRun(ctx context.Context, sink Sink, root, runDir string) ([]string, error) {
	if sink == nil {
		return nil, errors.New("archive sink is required")
	}
	prefix, err := filepath.Rel(root, runDir)
	if err != nil {
		return nil, fmt.Errorf("archive %s: %w", runDir, err)
	}
	if prefix == ".." || strings.HasPrefix(prefix, ".."+string(filepath.Separator)) {
		return nil, fmt.Errorf("archive %s: run directory is outside %s", runDir, root)
	}

	var keys []string
	for _, name := range stats.RunFiles() {
		key := filepath.ToSlash(filepath.Join(prefix, name))
		uploaded, err := putFile(ctx, sink, key, filepath.Join(runDir, name))
		if err != nil {
			return keys, fmt.Errorf("archive %s: %w", key, err)
		}
		if uploaded {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

func putFile(ctx context.Context, sink Sink, key, path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	defer f.Close()
	if err := sink.Put(ctx, key, f); err != nil {
		return false, err
	}
	return true, nil
}

// sanitizeKey rejects keys that would escape a sink's root.
func sanitizeKey(key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", errors.New("empty key")
	}
	if strings.HasPrefix(key, "/") {
		return "", errors.New("invalid absolute key")
	}
	clean := filepath.ToSlash(filepath.Clean(key))
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return "", errors.New("invalid key traversal")
	}
	return clean, nil
}
