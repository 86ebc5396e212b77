package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bowerhall/chordial/internal/logger"
)

const (
	backupPrefix = "backups/"
	stampFormat  = "20060102T150405Z"

	DefaultKeep = 14
)

// ObjectStore is the part of Client a backup needs
type ObjectStore interface {
	UploadFile(ctx context.Context, key, path, contentType string) error
	List(ctx context.Context, prefix string, recursive bool) ([]FileInfo, error)
	Delete(ctx context.Context, key string) error
}

// FileLister lists extra files to include, such as the prompt logs
type FileLister func() ([]string, error)

// Backup snapshots the database and uploads it with the prompt logs under
// backups/<stamp>/. Only the newest keep backups are retained.
type Backup struct {
	store  ObjectStore
	db     *sql.DB
	extras FileLister
	keep   int
}

func NewBackup(store ObjectStore, db *sql.DB, extras FileLister, keep int) *Backup {
	if keep <= 0 {
		keep = DefaultKeep
	}
	return &Backup{store: store, db: db, extras: extras, keep: keep}
}

// Backup runs one backup and returns the uploaded keys
func (b *Backup) Backup(ctx context.Context, now time.Time) ([]string, error) {
	dir, err := os.MkdirTemp("", "chordial-backup-*")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)

	snapshot := filepath.Join(dir, "chordial.db")
	// VACUUM INTO gives a consistent copy without stopping writers
	if _, err := b.db.ExecContext(ctx, "VACUUM INTO ?", snapshot); err != nil {
		return nil, fmt.Errorf("snapshot database: %w", err)
	}

	prefix := backupPrefix + now.UTC().Format(stampFormat) + "/"
	var keys []string

	key := prefix + "chordial.db"
	if err := b.store.UploadFile(ctx, key, snapshot, "application/vnd.sqlite3"); err != nil {
		return keys, err
	}
	keys = append(keys, key)

	if b.extras != nil {
		files, err := b.extras()
		if err != nil {
			return keys, fmt.Errorf("list prompt logs: %w", err)
		}
		for _, f := range files {
			key := prefix + "prompts/" + filepath.Base(f)
			if err := b.store.UploadFile(ctx, key, f, "text/plain"); err != nil {
				return keys, err
			}
			keys = append(keys, key)
		}
	}

	if err := b.prune(ctx); err != nil {
		// the backup itself succeeded
		logger.Warn("failed to prune old backups", "error", err)
	}

	logger.Info("backup uploaded", "prefix", prefix, "objects", len(keys))
	return keys, nil
}

func (b *Backup) prune(ctx context.Context) error {
	objects, err := b.store.List(ctx, backupPrefix, true)
	if err != nil {
		return err
	}

	byStamp := make(map[string][]string)
	for _, o := range objects {
		rest := strings.TrimPrefix(o.Name, backupPrefix)
		stamp, _, ok := strings.Cut(rest, "/")
		if !ok {
			continue
		}
		byStamp[stamp] = append(byStamp[stamp], o.Name)
	}

	stamps := make([]string, 0, len(byStamp))
	for s := range byStamp {
		stamps = append(stamps, s)
	}
	// the stamp format sorts lexically in time order
	sort.Sort(sort.Reverse(sort.StringSlice(stamps)))

	if len(stamps) <= b.keep {
		return nil
	}

	for _, stamp := range stamps[b.keep:] {
		for _, key := range byStamp[stamp] {
			if err := b.store.Delete(ctx, key); err != nil {
				return err
			}
		}
		logger.Debug("old backup removed", "prefix", path.Join(backupPrefix, stamp))
	}

	return nil
}
