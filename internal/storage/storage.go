// Package storage persists message attachments.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/nextlevelbuilder/messenger/internal/store"
)

// File is an incoming upload.
type File struct {
	Name   string
	Size   int64
	Reader io.Reader
}

// Ext returns the lowercase extension without the dot.
func (f File) Ext() string {
	return strings.ToLower(strings.TrimPrefix(path.Ext(f.Name), "."))
}

// Uploader stores and removes attachment files under a relative directory.
type Uploader interface {
	Upload(ctx context.Context, dir string, f File) (string, error)
	Delete(ctx context.Context, dir, name string) error
	Open(ctx context.Context, dir, name string) (io.ReadCloser, error)
}

// ErrInvalidPath is returned for directories or names escaping the root.
var ErrInvalidPath = errors.New("invalid storage path")

// Disk stores files on the local filesystem below Root.
type Disk struct {
	Root string
}

// NewDisk creates a disk uploader rooted at root.
func NewDisk(root string) *Disk {
	return &Disk{Root: root}
}

func (d *Disk) resolve(dir, name string) (string, error) {
	rel := filepath.Clean(filepath.Join(dir, name))
	if filepath.IsAbs(rel) || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrInvalidPath, path.Join(dir, name))
	}
	return filepath.Join(d.Root, rel), nil
}

// Upload writes f under dir with a generated name and returns that name.
func (d *Disk) Upload(ctx context.Context, dir string, f File) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	name := store.GenNewID().String()
	if ext := f.Ext(); ext != "" {
		name += "." + ext
	}
	full, err := d.resolve(dir, name)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("create storage dir: %w", err)
	}

	out, err := os.OpenFile(full, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("create file: %w", err)
	}
	if _, err := io.Copy(out, f.Reader); err != nil {
		out.Close()
		os.Remove(full)
		return "", fmt.Errorf("write file: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(full)
		return "", fmt.Errorf("close file: %w", err)
	}
	return name, nil
}

// Delete removes a stored file. Missing files are not an error.
func (d *Disk) Delete(_ context.Context, dir, name string) error {
	full, err := d.resolve(dir, name)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Open returns a reader for a stored file.
func (d *Disk) Open(_ context.Context, dir, name string) (io.ReadCloser, error) {
	full, err := d.resolve(dir, name)
	if err != nil {
		return nil, err
	}
	return os.Open(full)
}
