package s3

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/theapemachine/recall/pkg/errors"
	"github.com/theapemachine/recall/pkg/memory"
)

/*
Snapshots reads and writes full engine snapshots as JSON objects in a
bucket, keyed by timestamp so older backups stay around.
*/
type Snapshots struct {
	conn   *Conn
	bucket string
}

/*
NewSnapshots creates a snapshot store on the given connection and bucket.
*/
func NewSnapshots(conn *Conn, bucket string) *Snapshots {
	return &Snapshots{conn: conn, bucket: bucket}
}

/*
Save exports the whole store and writes it as a timestamped object,
returning the object key.
*/
func (snapshots *Snapshots) Save(ctx context.Context, store *memory.Store) (string, error) {
	snapshot, err := store.Export(ctx)
	if err != nil {
		return "", err
	}

	data, err := json.Marshal(snapshot)
	if err != nil {
		return "", err
	}

	if err := snapshots.conn.EnsureBucket(ctx, snapshots.bucket); err != nil {
		return "", errors.ErrStorageWrite.WithCause(err)
	}

	key := fmt.Sprintf("snapshots/%s.json", time.Now().UTC().Format("20060102T150405Z"))

	if err := snapshots.conn.Put(ctx, snapshots.bucket, key, data); err != nil {
		return "", errors.ErrStorageWrite.WithCause(err)
	}

	log.Info("snapshot saved",
		"key", key,
		"memories", len(snapshot.Memories),
		"relationships", len(snapshot.Relationships))

	return key, nil
}

/*
Restore loads a snapshot object by key and imports it into the store.
*/
func (snapshots *Snapshots) Restore(ctx context.Context, store *memory.Store, key string) error {
	var data []byte

	// Downloading is idempotent, so a flaky connection gets a few attempts.
	err := errors.RetryWithBackoff(errors.DefaultRetryConfig(), func() error {
		var getErr error
		data, getErr = snapshots.conn.Get(ctx, snapshots.bucket, key)
		return getErr
	})
	if err != nil {
		return errors.ErrNotFound.WithMessagef("snapshot not found: %s", key)
	}

	var snapshot memory.Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return fmt.Errorf("corrupt snapshot %s: %w", key, err)
	}

	if err := store.Import(ctx, &snapshot); err != nil {
		return err
	}

	log.Info("snapshot restored",
		"key", key,
		"memories", len(snapshot.Memories),
		"relationships", len(snapshot.Relationships))

	return nil
}

/*
Available lists the snapshot keys in the bucket, oldest first.
*/
func (snapshots *Snapshots) Available(ctx context.Context) ([]string, error) {
	return snapshots.conn.List(ctx, snapshots.bucket, "snapshots/")
}
