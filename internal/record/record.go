// Package record persists JSON records with cross-process safety. Writers
// hold a flock on <file>.lock, write <file>.tmp, fsync and rename it over
// the target, so readers never observe a partial record.
package record

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/iskng/metagent/internal/errors"
)

// TmpSuffix is appended to a record path to name its staging file.
const TmpSuffix = ".tmp"

// Load reads and decodes the record at path. A missing file yields an error
// wrapping os.ErrNotExist; undecodable content yields a corruption error.
// Load never repairs a record.
func Load[T any](path string) (T, error) {
	var v T
	data, err := os.ReadFile(path)
	if err != nil {
		return v, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return v, errors.Corrupt(path, err)
	}
	return v, nil
}

// Save atomically replaces the record at path while holding its lock.
func Save[T any](path string, v T) error {
	return WithLock(path, func() error {
		return WriteJSON(path, v)
	})
}

// Update loads the record, applies fn, and saves the result, all under the
// record's lock. When fn returns an error nothing is written.
func Update[T any](path string, fn func(*T) error) (T, error) {
	var out T
	err := WithLock(path, func() error {
		v, err := Load[T](path)
		if err != nil {
			return err
		}
		if err := fn(&v); err != nil {
			return err
		}
		if err := WriteJSON(path, v); err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

// CreateExclusive writes v to path only if path does not exist yet. The
// returned error satisfies os.IsExist when another writer got there first.
func CreateExclusive[T any](path string, v T) error {
	data, err := Encode(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(path), err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}

// Encode renders v in the indented form every record is stored in.
func Encode(v any) ([]byte, error) {
	return json.MarshalIndent(v, "", "  ")
}

// WriteJSON encodes v and writes it atomically to path. Callers that need
// exclusion must hold the record lock.
func WriteJSON(path string, v any) error {
	data, err := Encode(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	return WriteFileAtomic(path, data)
}

// WriteFileAtomic writes data to path+".tmp", syncs it and renames it over
// path. Callers that need exclusion must hold the record lock.
func WriteFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(path), err)
	}
	tmp := path + TmpSuffix
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", tmp, err)
	}
	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmp)
		}
	}()

	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write %s: %w", tmp, err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to sync %s: %w", tmp, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to rename %s: %w", tmp, err)
	}
	success = true
	return nil
}

// Exists reports whether a record file is present at path.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
