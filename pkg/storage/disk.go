// Package storage stores menu images on a local directory or an S3-compatible
// bucket (AWS S3, MinIO, R2).
//
//	disks, _ := storage.New(ctx, storage.Config{Default: "local", LocalRoot: "storage"})
//	url, err := disks.Default().Put(ctx, "menu/abc.jpg", file, "image/jpeg")
package storage

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/uvci/resto/pkg/logger"
)

// Disk is one storage backend.
type Disk interface {
	// Put writes r to path and returns the public URL of the stored object.
	Put(ctx context.Context, path string, r io.Reader, contentType string) (string, error)
	Get(ctx context.Context, path string) ([]byte, error)
	Exists(ctx context.Context, path string) bool
	// Delete removes path. A missing path is not an error.
	Delete(ctx context.Context, path string) error
	URL(path string) string
}

// Config selects and configures the disks.
type Config struct {
	Default   string
	LocalRoot string
	LocalURL  string
	S3        S3Config
}

type S3Config struct {
	Bucket   string
	Region   string
	Key      string
	Secret   string
	Endpoint string
	URL      string
}

// Manager holds the configured disks.
type Manager struct {
	mu          sync.RWMutex
	disks       map[string]Disk
	defaultDisk string
}

// New always boots the local disk, and the s3 disk when a bucket is set.
func New(ctx context.Context, cfg Config) (*Manager, error) {
	m := &Manager{disks: map[string]Disk{}, defaultDisk: cfg.Default}
	if m.defaultDisk == "" {
		m.defaultDisk = "local"
	}

	local, err := NewLocal(cfg.LocalRoot, cfg.LocalURL)
	if err != nil {
		return nil, err
	}
	m.disks["local"] = local

	if cfg.S3.Bucket != "" {
		d, err := NewS3(ctx, cfg.S3)
		if err != nil {
			logger.Warn("storage: s3 disk disabled", "error", err)
		} else {
			m.disks["s3"] = d
		}
	}

	if _, ok := m.disks[m.defaultDisk]; !ok {
		return nil, fmt.Errorf("storage: default disk %q is not configured", m.defaultDisk)
	}
	return m, nil
}

// Register plugs in a disk under name.
func (m *Manager) Register(name string, d Disk) {
	m.mu.Lock()
	m.disks[name] = d
	m.mu.Unlock()
}

// Use returns the named disk.
func (m *Manager) Use(name string) (Disk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.disks[name]
	if !ok {
		return nil, fmt.Errorf("storage: disk %q is not configured", name)
	}
	return d, nil
}

func (m *Manager) Default() Disk {
	d, _ := m.Use(m.defaultDisk)
	return d
}
