package indexer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"

	"github.com/dshills/objindex/internal/fingerprint"
	"github.com/dshills/objindex/internal/logging"
	"github.com/dshills/objindex/pkg/types"
)

// ArchiveLogicVersion identifies the built-in archive indexer. Bump it when
// the archive contents change.
const ArchiveLogicVersion = "objindex-archive/1"

// commandLogicVersion prefixes the logic version of engine driven runs.
const commandLogicVersion = "objindex-command/1"

// Indexer produces the index archive for one job.
type Indexer interface {
	IndexObject(ctx context.Context, job types.Job) error
}

// New returns the CommandIndexer when engine is set and the ArchiveIndexer
// otherwise.
func New(engine []string, fp fingerprint.Func, logger *logging.Logger) Indexer {
	if len(engine) > 0 {
		return NewCommandIndexer(engine, fp, logger)
	}
	return NewArchiveIndexer(fp, logger)
}

// LogicVersion returns the logic version for the given engine argv. An
// empty engine selects the built-in archive indexer.
func LogicVersion(engine []string) (string, error) {
	if len(engine) == 0 {
		return ArchiveLogicVersion, nil
	}

	bin, err := exec.LookPath(engine[0])
	if err != nil {
		return "", fmt.Errorf("failed to locate engine %q: %w", engine[0], err)
	}
	digest, err := fileDigest(bin)
	if err != nil {
		return "", fmt.Errorf("failed to hash engine %q: %w", bin, err)
	}

	return commandLogicVersion + " " + digest + " " + strings.Join(engine, "\x00"), nil
}

// fileDigest returns the hex SHA-256 of the file at path.
func fileDigest(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// writeArchive atomically creates indexedPath. fill adds the content members;
// the fingerprint member is written last.
func writeArchive(indexedPath string, fp types.Fingerprint, fill func(*zip.Writer) error) (err error) {
	dir := filepath.Dir(indexedPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(indexedPath)+".*.partial")
	if err != nil {
		return fmt.Errorf("failed to create temporary archive: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	zw := zip.NewWriter(tmp)
	if err := fill(zw); err != nil {
		return err
	}
	if err := fingerprint.WriteMember(zw, fp); err != nil {
		return err
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to finish archive: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("failed to sync archive: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close archive: %w", err)
	}
	if err := os.Rename(tmp.Name(), indexedPath); err != nil {
		return fmt.Errorf("failed to move archive into place: %w", err)
	}
	committed = true
	return nil
}
