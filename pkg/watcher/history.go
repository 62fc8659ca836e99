package watcher

import (
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

const (
	bucketProcessed = "processed"
	bucketFailed    = "failed"
)

// ProcessedInfo records a file that produced a transcript.
type ProcessedInfo struct {
	Hash            string    `json:"hash"`
	Path            string    `json:"path"`
	JobID           string    `json:"job_id"`
	ProcessedAt     time.Time `json:"processed_at"`
	OutputPath      string    `json:"output_path"`
	DurationSeconds float64   `json:"duration_seconds"`
	SizeBytes       int64     `json:"size_bytes"`
}

// FailedInfo records a file whose job ended in failure.
type FailedInfo struct {
	Hash       string    `json:"hash"`
	Path       string    `json:"path"`
	JobID      string    `json:"job_id"`
	FailedAt   time.Time `json:"failed_at"`
	ErrorKind  string    `json:"error_kind"`
	Error      string    `json:"error"`
	RetryCount int       `json:"retry_count"`
}

// History is the persistent record of files the watcher has handled, keyed
// by content hash so renames and re-copies are not re-transcribed.
type History struct {
	db *bolt.DB
}

// OpenHistory opens or creates the BoltDB history database.
func OpenHistory(dbPath string) (*History, error) {
	db, err := bolt.Open(dbPath, 0o600, &bolt.Options{
		Timeout: 1 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(bucketProcessed)); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(bucketFailed)); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create history buckets: %w", err)
	}

	return &History{db: db}, nil
}

// IsProcessed reports whether a file hash already produced a transcript.
func (h *History) IsProcessed(hash string) (bool, error) {
	var exists bool
	err := h.db.View(func(tx *bolt.Tx) error {
		exists = tx.Bucket([]byte(bucketProcessed)).Get([]byte(hash)) != nil
		return nil
	})
	return exists, err
}

// RecordProcessed stores a success and clears any earlier failure for the
// same hash.
func (h *History) RecordProcessed(info *ProcessedInfo) error {
	return h.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(info)
		if err != nil {
			return fmt.Errorf("marshal processed info: %w", err)
		}
		if err := tx.Bucket([]byte(bucketProcessed)).Put([]byte(info.Hash), data); err != nil {
			return fmt.Errorf("store processed info: %w", err)
		}
		return tx.Bucket([]byte(bucketFailed)).Delete([]byte(info.Hash))
	})
}

// RecordFailed stores a failure, incrementing the retry count of an earlier
// failure for the same hash.
func (h *History) RecordFailed(info *FailedInfo) error {
	return h.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketFailed))
		if existing := bucket.Get([]byte(info.Hash)); existing != nil {
			var prev FailedInfo
			if err := json.Unmarshal(existing, &prev); err == nil {
				info.RetryCount = prev.RetryCount + 1
			}
		}
		data, err := json.Marshal(info)
		if err != nil {
			return fmt.Errorf("marshal failed info: %w", err)
		}
		return bucket.Put([]byte(info.Hash), data)
	})
}

// FailedInfoFor returns the failure record for a hash, or nil.
func (h *History) FailedInfoFor(hash string) (*FailedInfo, error) {
	var info *FailedInfo
	err := h.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket([]byte(bucketFailed)).Get([]byte(hash))
		if data == nil {
			return nil
		}
		var fi FailedInfo
		if err := json.Unmarshal(data, &fi); err != nil {
			return fmt.Errorf("unmarshal failed info: %w", err)
		}
		info = &fi
		return nil
	})
	return info, err
}

// Close closes the underlying database.
func (h *History) Close() error {
	return h.db.Close()
}
