package compress

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"

	"github.com/google/uuid"
	"github.com/lyzr/glbconvert/common/failure"
	"github.com/lyzr/glbconvert/common/logger"
)

// cleanupList holds paths removed on every exit path. Removal errors are
// logged and swallowed: they never affect the primary output.
type cleanupList []string

func (l *cleanupList) add(path string) {
	*l = append(*l, path)
}

func (l *cleanupList) run(log *logger.Logger) {
	for _, path := range *l {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Warn("failed to remove temporary file", "path", path, "error", err)
		}
	}
}

// replaceFile puts the contents of src at dst. The scratch dir may sit on
// another filesystem, so src is first copied next to dst and then renamed over
// it. If the copy fails dst is untouched. Windows refuses to rename onto an
// existing file and gets a delete-then-rename fallback.
func replaceFile(src, dst string) error {
	return replaceFileWith(src, dst, runtime.GOOS == "windows")
}

func replaceFileWith(src, dst string, deleteFirst bool) error {
	staged := filepath.Join(filepath.Dir(dst), "."+filepath.Base(dst)+".swap-"+uuid.NewString())

	if err := copyFile(src, staged); err != nil {
		os.Remove(staged)
		return failure.New(failure.KindIO, failure.StageCompress, "copy compressed output").WithCause(err)
	}

	err := os.Rename(staged, dst)
	if err != nil && deleteFirst {
		_ = os.Remove(dst)
		err = os.Rename(staged, dst)
	}
	if err != nil {
		os.Remove(staged)
		return failure.New(failure.KindIO, failure.StageCompress, "replace original with compressed output").WithCause(err)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copy to %s: %w", dst, err)
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return fmt.Errorf("sync %s: %w", dst, err)
	}
	return out.Close()
}
