package reliability

import (
	"compress/gzip"
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/folio/internal/database"
)

const (
	backupPrefix    = "folio-backup-"
	backupSuffix    = ".db.gz"
	backupTimestamp = "2006-01-02-150405"
)

// BackupInfo describes one stored snapshot.
type BackupInfo struct {
	Key       string    `json:"key"`
	Timestamp time.Time `json:"timestamp"`
	SizeBytes int64     `json:"size_bytes"`
}

// BackupService snapshots the results database into object storage and
// prunes old snapshots.
type BackupService struct {
	db    *database.DB
	store ObjectStore
	keep  int
	log   zerolog.Logger
}

// NewBackupService creates a backup service. keep is the number of
// snapshots to retain; older ones are pruned after each upload.
func NewBackupService(db *database.DB, store ObjectStore, keep int, log zerolog.Logger) *BackupService {
	if keep < 1 {
		keep = 1
	}
	return &BackupService{
		db:    db,
		store: store,
		keep:  keep,
		log:   log.With().Str("service", "backup").Logger(),
	}
}

// Backup checkpoints the WAL, gzips the database file, uploads it, and
// prunes snapshots beyond the retention count. Returns the object key.
func (s *BackupService) Backup(ctx context.Context) (string, error) {
	s.log.Info().Msg("Starting backup")
	startTime := time.Now()

	// Fold the WAL into the main file so the snapshot is complete.
	if err := s.db.WALCheckpoint("TRUNCATE"); err != nil {
		return "", fmt.Errorf("checkpoint before backup failed: %w", err)
	}

	key := backupPrefix + time.Now().UTC().Format(backupTimestamp) + backupSuffix

	stagingPath := filepath.Join(os.TempDir(), key)
	checksum, size, err := s.compressTo(stagingPath)
	if err != nil {
		return "", err
	}
	defer os.Remove(stagingPath)

	archive, err := os.Open(stagingPath)
	if err != nil {
		return "", fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer archive.Close()

	metadata := map[string]string{"sha256": checksum}
	if err := s.store.Upload(ctx, key, archive, metadata); err != nil {
		return "", fmt.Errorf("snapshot upload failed: %w", err)
	}

	if err := s.prune(ctx); err != nil {
		s.log.Warn().Err(err).Msg("Snapshot pruning failed")
	}

	s.log.Info().
		Str("key", key).
		Int64("size_bytes", size).
		Dur("duration", time.Since(startTime)).
		Msg("Backup completed")

	return key, nil
}

// ListBackups returns stored snapshots, newest first.
func (s *BackupService) ListBackups(ctx context.Context) ([]BackupInfo, error) {
	objects, err := s.store.List(ctx, backupPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}

	backups := make([]BackupInfo, 0, len(objects))
	for _, obj := range objects {
		ts, ok := parseBackupKey(obj.Key)
		if !ok {
			s.log.Warn().Str("key", obj.Key).Msg("Skipping object with unrecognized key")
			continue
		}
		backups = append(backups, BackupInfo{
			Key:       obj.Key,
			Timestamp: ts,
			SizeBytes: obj.Size,
		})
	}

	sort.Slice(backups, func(i, j int) bool {
		return backups[i].Timestamp.After(backups[j].Timestamp)
	})

	return backups, nil
}

// prune deletes snapshots beyond the retention count, oldest first.
func (s *BackupService) prune(ctx context.Context) error {
	backups, err := s.ListBackups(ctx)
	if err != nil {
		return err
	}

	for _, backup := range backups[min(s.keep, len(backups)):] {
		if err := s.store.Delete(ctx, backup.Key); err != nil {
			s.log.Error().Err(err).Str("key", backup.Key).Msg("Failed to delete old snapshot")
			continue
		}
		s.log.Info().Str("key", backup.Key).Msg("Deleted old snapshot")
	}

	return nil
}

// compressTo gzips the database file to dst and returns the checksum of
// the compressed archive and its size.
func (s *BackupService) compressTo(dst string) (string, int64, error) {
	src, err := os.Open(s.db.Path())
	if err != nil {
		return "", 0, fmt.Errorf("failed to open database file: %w", err)
	}
	defer src.Close()

	out, err := os.Create(dst)
	if err != nil {
		return "", 0, fmt.Errorf("failed to create snapshot file: %w", err)
	}
	defer out.Close()

	hash := sha256.New()
	gz := gzip.NewWriter(io.MultiWriter(out, hash))
	if _, err := io.Copy(gz, src); err != nil {
		return "", 0, fmt.Errorf("failed to compress database: %w", err)
	}
	if err := gz.Close(); err != nil {
		return "", 0, fmt.Errorf("failed to finalize snapshot: %w", err)
	}

	info, err := out.Stat()
	if err != nil {
		return "", 0, fmt.Errorf("failed to stat snapshot: %w", err)
	}

	return fmt.Sprintf("%x", hash.Sum(nil)), info.Size(), nil
}

// parseBackupKey extracts the timestamp from a snapshot key.
func parseBackupKey(key string) (time.Time, bool) {
	if !strings.HasPrefix(key, backupPrefix) || !strings.HasSuffix(key, backupSuffix) {
		return time.Time{}, false
	}
	raw := strings.TrimSuffix(strings.TrimPrefix(key, backupPrefix), backupSuffix)
	ts, err := time.Parse(backupTimestamp, raw)
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}
