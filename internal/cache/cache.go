// Package cache maps phrases to content-addressed audio files that outlive
// a single call.
package cache

import (
	"context"
	"crypto/md5" //nolint:gosec // content addressing, not security
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/book-expert/logger"
	"github.com/book-expert/picotts/internal/core"
	"github.com/book-expert/picotts/internal/fsutil"
)

// MaxPathLen bounds the length of a cache file path in bytes.
const MaxPathLen = 2048

// voiceSeparator keeps "ab"+"c" and "a"+"bc" from hashing alike.
const voiceSeparator = "\x00"

// Key is the 128-bit fingerprint of a phrase.
type Key [md5.Size]byte

// String renders the key as lowercase hex.
func (k Key) String() string {
	return hex.EncodeToString(k[:])
}

// Fingerprint hashes the phrase text alone.
func Fingerprint(text string) Key {
	return md5.Sum([]byte(text)) //nolint:gosec
}

// FingerprintWithVoice hashes the phrase together with the voice code, so the
// same text in two languages maps to two entries.
func FingerprintWithVoice(text, voiceCode string) Key {
	return md5.Sum([]byte(voiceCode + voiceSeparator + text)) //nolint:gosec
}

// ObjectName is the name under which a key is kept in the shared object store.
func ObjectName(key Key, ext string) string {
	return key.String() + ext
}

// Index resolves fingerprints to files under one cache directory. A remote
// object store, when present, acts as a second tier shared between hosts.
type Index struct {
	dir    string
	ext    string
	remote core.ObjectStore
	log    *logger.Logger
}

// New creates an index over dir whose files carry ext. remote may be nil.
func New(dir, ext string, remote core.ObjectStore, log *logger.Logger) *Index {
	return &Index{
		dir:    dir,
		ext:    ext,
		remote: remote,
		log:    log,
	}
}

// PathFor returns the cache file path for key. ok is false when the path
// would exceed MaxPathLen; callers then skip the cache for this request.
func (i *Index) PathFor(key Key) (string, bool) {
	path := filepath.Join(i.dir, key.String()+i.ext)
	if len(path) > MaxPathLen {
		return "", false
	}

	return path, true
}

// Exists reports whether a usable cache file is present at path.
func (i *Index) Exists(path string) bool {
	return fsutil.FileExists(path)
}

// Promote copies a freshly synthesized artifact into the cache. Upload to the
// remote tier is attempted afterwards and only logged on failure.
func (i *Index) Promote(ctx context.Context, key Key, src, dst string) error {
	err := fsutil.EnsureDir(i.dir)
	if err != nil {
		return fmt.Errorf("failed to prepare cache directory: %w", err)
	}

	err = fsutil.CopyFile(src, dst)
	if err != nil {
		return fmt.Errorf("failed to promote %s: %w", src, err)
	}

	if i.remote == nil {
		return nil
	}

	data, err := os.ReadFile(dst)
	if err != nil {
		i.log.Warn("Failed to read %s for upload: %v", dst, err)

		return nil
	}

	name := ObjectName(key, i.ext)

	err = i.remote.Upload(ctx, name, data)
	if err != nil {
		i.log.Warn("Failed to upload cache entry %s: %v", name, err)
	}

	return nil
}

// Restore fetches key from the remote tier into path. It reports whether a
// usable file is now present.
func (i *Index) Restore(ctx context.Context, key Key, path string) bool {
	if i.remote == nil {
		return false
	}

	name := ObjectName(key, i.ext)

	data, err := i.remote.Download(ctx, name)
	if err != nil {
		if !errors.Is(err, core.ErrObjectNotFound) {
			i.log.Warn("Failed to download cache entry %s: %v", name, err)
		}

		return false
	}

	if len(data) == 0 {
		return false
	}

	err = fsutil.EnsureDir(i.dir)
	if err == nil {
		err = fsutil.WriteFile(path, data)
	}

	if err != nil {
		i.log.Warn("Failed to restore cache entry %s: %v", name, err)

		return false
	}

	i.log.Info("Restored cache entry %s from shared store", name)

	return true
}
