package indexer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"
	"go.uber.org/zap"

	"github.com/dshills/objindex/internal/fingerprint"
	"github.com/dshills/objindex/internal/logging"
	"github.com/dshills/objindex/pkg/types"
)

// Placeholders substituted in engine arguments.
const (
	PlaceholderObject  = "{object}"
	PlaceholderWorkdir = "{workdir}"
)

// maxEngineOutput bounds how much engine output is kept for error messages.
const maxEngineOutput = 4096

// CommandIndexer runs an external engine per object and archives whatever
// the engine writes into its work directory.
type CommandIndexer struct {
	engine      []string
	fingerprint fingerprint.Func
	logger      *logging.Logger
}

// NewCommandIndexer creates a CommandIndexer. fp must be bound to the
// version returned by LogicVersion(engine).
func NewCommandIndexer(engine []string, fp fingerprint.Func, logger *logging.Logger) *CommandIndexer {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &CommandIndexer{engine: engine, fingerprint: fp, logger: logger}
}

// IndexObject runs the engine for job and archives its output.
func (c *CommandIndexer) IndexObject(ctx context.Context, job types.Job) error {
	if len(c.engine) == 0 {
		return fmt.Errorf("no engine command configured")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	fp, err := c.fingerprint(job.ObjectPath)
	if err != nil {
		return fmt.Errorf("failed to fingerprint object: %w", err)
	}

	scratch := os.TempDir()
	if job.Config != nil && job.Config.ScratchDir != "" {
		scratch = job.Config.ScratchDir
	}
	workdir, err := os.MkdirTemp(scratch, "job-*")
	if err != nil {
		return fmt.Errorf("failed to create work directory: %w", err)
	}
	defer func() { _ = os.RemoveAll(workdir) }()

	args := make([]string, len(c.engine))
	for i, a := range c.engine {
		a = strings.ReplaceAll(a, PlaceholderObject, job.ObjectPath)
		a = strings.ReplaceAll(a, PlaceholderWorkdir, workdir)
		args[i] = a
	}

	var output tailBuffer
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Dir = workdir
	cmd.Env = append(os.Environ(),
		"OBJINDEX_OBJECT="+job.ObjectPath,
		"OBJINDEX_WORKDIR="+workdir,
	)
	cmd.Stdout = &output
	cmd.Stderr = &output

	c.logger.Debug(ctx, "running engine", zap.String("object", job.ObjectPath), zap.Strings("argv", args))
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("engine failed: %w: %s", err, strings.TrimSpace(output.String()))
	}

	files, err := listOutputs(workdir)
	if err != nil {
		return fmt.Errorf("failed to collect engine output: %w", err)
	}
	if len(files) == 0 {
		return fmt.Errorf("engine produced no output for %s", job.ObjectPath)
	}

	return writeArchive(job.IndexedPath, fp, func(zw *zip.Writer) error {
		for _, rel := range files {
			if rel == fingerprint.MemberName {
				continue
			}
			if err := addFile(zw, workdir, rel); err != nil {
				return err
			}
		}
		return nil
	})
}

// listOutputs returns the regular files under dir, relative and slash
// separated, in lexical order.
func listOutputs(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	return files, err
}

func addFile(zw *zip.Writer, dir, rel string) error {
	f, err := os.Open(filepath.Join(dir, filepath.FromSlash(rel)))
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	w, err := zw.CreateHeader(&zip.FileHeader{Name: rel, Method: zip.Deflate})
	if err != nil {
		return err
	}
	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("failed to archive %s: %w", rel, err)
	}
	return nil
}

// tailBuffer keeps the last maxEngineOutput bytes written to it.
type tailBuffer struct {
	buf bytes.Buffer
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	n := len(p)
	t.buf.Write(p)
	if over := t.buf.Len() - maxEngineOutput; over > 0 {
		t.buf.Next(over)
	}
	return n, nil
}

func (t *tailBuffer) String() string {
	return t.buf.String()
}
