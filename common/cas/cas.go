// Package cas is the content-addressed store of uploaded sources and
// converted outputs. Both directories are keyed by the sha256 of the source
// bytes, so identical uploads share one artifact whatever their filename.
package cas

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"

	"github.com/google/uuid"
	"github.com/lyzr/glbconvert/common/logger"
)

// Key is the lower-case hex sha256 of a source asset
type Key string

var keyPattern = regexp.MustCompile(`^[0-9a-f]{64}$`)

// ComputeKey hashes content
func ComputeKey(content []byte) Key {
	sum := sha256.Sum256(content)
	return Key(hex.EncodeToString(sum[:]))
}

// KeyFromReader hashes a stream and returns its key and length
func KeyFromReader(r io.Reader) (Key, int64, error) {
	h := sha256.New()
	n, err := io.Copy(h, r)
	if err != nil {
		return "", 0, fmt.Errorf("hash content: %w", err)
	}
	return Key(hex.EncodeToString(h.Sum(nil))), n, nil
}

// ParseKey validates a user-supplied digest
func ParseKey(s string) (Key, error) {
	if !keyPattern.MatchString(s) {
		return "", fmt.Errorf("invalid digest %q: want 64 lower-case hex characters", s)
	}
	return Key(s), nil
}

// String implements fmt.Stringer
func (k Key) String() string {
	return string(k)
}

// Short is a log-friendly prefix
func (k Key) Short() string {
	if len(k) < 12 {
		return string(k)
	}
	return string(k[:12])
}

// Entry is a cached converted asset
type Entry struct {
	Key  Key
	Path string
	Size int64
}

// Store lays out <uploads>/<digest>.step and <outputs>/<digest>.glb
type Store struct {
	uploadDir string
	outputDir string
	log       *logger.Logger
}

// NewStore creates the directories if needed
func NewStore(uploadDir, outputDir string, log *logger.Logger) (*Store, error) {
	for _, dir := range []string{uploadDir, outputDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create cache directory %s: %w", dir, err)
		}
	}
	return &Store{
		uploadDir: uploadDir,
		outputDir: outputDir,
		log:       log,
	}, nil
}

// SourcePath is where the uploaded bytes for key live
func (s *Store) SourcePath(key Key) string {
	return filepath.Join(s.uploadDir, string(key)+".step")
}

// OutputPath is where the converted GLB for key lives
func (s *Store) OutputPath(key Key) string {
	return filepath.Join(s.outputDir, string(key)+".glb")
}

// StagingPath returns a unique in-progress path inside the outputs directory.
// Staging files are renamed onto OutputPath once complete.
func (s *Store) StagingPath(key Key) string {
	return filepath.Join(s.outputDir, "."+string(key)+"."+uuid.NewString()+".glb.partial")
}

// Lookup returns the cached output for key, if any
func (s *Store) Lookup(key Key) (*Entry, bool, error) {
	path := s.OutputPath(key)
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("stat cached output: %w", err)
	}
	if !info.Mode().IsRegular() || info.Size() == 0 {
		s.log.Warn("ignoring unusable cache entry", "digest", key.Short(), "size", info.Size())
		return nil, false, nil
	}
	return &Entry{Key: key, Path: path, Size: info.Size()}, true, nil
}

// SaveSource writes the uploaded bytes, skipping the write if already stored
func (s *Store) SaveSource(key Key, content []byte) (string, error) {
	path := s.SourcePath(key)
	if info, err := os.Stat(path); err == nil && info.Size() == int64(len(content)) {
		return path, nil
	}
	if err := writeAtomic(path, content); err != nil {
		return "", fmt.Errorf("save source %s: %w", key.Short(), err)
	}
	return path, nil
}

// Publish moves a finished staging file to the output path for key
func (s *Store) Publish(key Key, staging string) (*Entry, error) {
	path := s.OutputPath(key)
	if err := os.Rename(staging, path); err != nil {
		return nil, fmt.Errorf("publish %s: %w", key.Short(), err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat published output: %w", err)
	}
	return &Entry{Key: key, Path: path, Size: info.Size()}, nil
}

// Discard removes a staging file; errors are logged and swallowed
func (s *Store) Discard(staging string) {
	if err := os.Remove(staging); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.log.Warn("failed to remove staging file", "path", staging, "error", err)
	}
}

func writeAtomic(path string, content []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
