package kv

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/dchisholm125/kestrel-hq-sub001/config/params"
	bolt "go.etcd.io/bbolt"
	"go.opencensus.io/trace"
)

const backupsDirectoryName = "backups"

// Backup the database to the datadir backup directory.
// Example: $DATADIR/backups/kestrel_intentdb_1700000000.backup
func (s *Store) Backup(ctx context.Context) error {
	_, span := trace.StartSpan(ctx, "intentDB.Backup")
	defer span.End()

	backupsDir := path.Join(filepath.Dir(s.databasePath), backupsDirectoryName)
	if err := os.MkdirAll(backupsDir, params.KestrelIoConfig().ReadWriteExecutePermissions); err != nil {
		return err
	}
	backupPath := path.Join(backupsDir, fmt.Sprintf("kestrel_intentdb_%d.backup", time.Now().Unix()))
	log.WithField("backup", backupPath).Info("Writing backup database")
	return s.db.View(func(tx *bolt.Tx) error {
		return tx.CopyFile(backupPath, params.KestrelIoConfig().ReadWritePermissions)
	})
}
