package fingerprint

import (
	"context"
	"os"

	"go.uber.org/zap"

	"github.com/dshills/objindex/internal/logging"
)

// Oracle decides whether an existing archive is still valid for an object.
type Oracle struct {
	logger *logging.Logger
}

// NewOracle creates an Oracle. A nil logger discards reasons.
func NewOracle(logger *logging.Logger) *Oracle {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Oracle{logger: logger}
}

// IsIndexed reports whether indexedPath holds an archive whose recorded
// fingerprint equals fn(objectPath). Every failure is reported as false.
func (o *Oracle) IsIndexed(objectPath, indexedPath string, fn Func) bool {
	ctx := context.Background()

	info, err := os.Stat(indexedPath)
	if err != nil || !info.Mode().IsRegular() {
		return false
	}

	recorded, err := ReadArchive(indexedPath)
	if err != nil {
		o.logger.Debug(ctx, "existing archive unusable, reindexing",
			zap.String("indexed", indexedPath), zap.Error(err))
		return false
	}

	current, err := fn(objectPath)
	if err != nil {
		o.logger.Debug(ctx, "failed to fingerprint object, reindexing",
			zap.String("object", objectPath), zap.Error(err))
		return false
	}

	if recorded != current {
		o.logger.Debug(ctx, "stale archive, reindexing",
			zap.String("indexed", indexedPath),
			zap.String("recorded", recorded.String()),
			zap.String("current", current.String()))
		return false
	}

	return true
}
