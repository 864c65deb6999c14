// internal/artifacts/artifacts.go
package artifacts

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/flowcheck/api/schemas"
	"github.com/xkilldash9x/flowcheck/internal/browser"
	"github.com/xkilldash9x/flowcheck/internal/config"
	"github.com/xkilldash9x/flowcheck/internal/harness"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	screenshotFile = "screenshot.png"
	domFile        = "dom.html"
	harFile        = "trace.har.json"
	nativeTrace    = "trace.zip"
	videoDir       = "video"
)

// Collector writes the artifacts of scenario attempts according to the
// configured policies. It is safe for concurrent use: every attempt writes
// into its own directory.
type Collector struct {
	cfg     config.ArtifactsConfig
	version string
	logger  *zap.Logger
}

func New(cfg config.ArtifactsConfig, version string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Collector{cfg: cfg, version: version, logger: logger.Named("artifacts")}
}

// Dir returns the directory of one attempt of an instance.
func (c *Collector) Dir(instanceID string, attempt int) string {
	name := harness.Slug(instanceID)
	if attempt > 1 {
		name = fmt.Sprintf("%s-retry%d", name, attempt-1)
	}
	return filepath.Join(c.cfg.Dir, name)
}

// PageOptions asks the driver for the recordings that must run for the
// whole attempt.
func (c *Collector) PageOptions(instanceID string, attempt int) browser.PageOptions {
	opts := browser.PageOptions{ID: instanceID}
	dir := c.Dir(instanceID, attempt)
	if c.cfg.Video != config.PolicyOff {
		opts.VideoDir = filepath.Join(dir, videoDir)
	}
	if c.cfg.Trace != config.PolicyOff {
		opts.TracePath = filepath.Join(dir, nativeTrace)
	}
	return opts
}

// wanted reports whether an end-of-attempt capture is kept.
func wanted(policy string, failed bool) bool {
	switch policy {
	case config.PolicyOn:
		return true
	case config.PolicyOnlyOnFailure, config.PolicyRetainOnFailure:
		return failed
	}
	return false
}

// Capture takes the end-of-attempt snapshots of a page that is still open.
// Drivers without a capability are skipped; other errors are logged and do
// not change the outcome.
func (c *Collector) Capture(ctx context.Context, page browser.Page, instanceID string, attempt int, failed bool) []schemas.ArtifactRef {
	dir := c.Dir(instanceID, attempt)
	logger := c.logger.With(zap.String("scenario", instanceID), zap.Int("attempt", attempt))
	var refs []schemas.ArtifactRef

	if wanted(c.cfg.Screenshot, failed) {
		if data, err := page.Screenshot(ctx); c.usable(logger, "screenshot", err) {
			if ref, ok := c.write(logger, dir, screenshotFile, data, schemas.ArtifactScreenshot, "image/png"); ok {
				refs = append(refs, ref)
			}
		}
	}
	if wanted(c.cfg.DOM, failed) {
		if html, err := page.HTML(ctx); c.usable(logger, "dom", err) {
			if ref, ok := c.write(logger, dir, domFile, []byte(html), schemas.ArtifactDOM, "text/html"); ok {
				refs = append(refs, ref)
			}
		}
	}
	if wanted(c.cfg.Trace, failed) {
		data, err := json.MarshalIndent(page.Responses().HAR(c.version), "", "  ")
		if c.usable(logger, "trace", err) {
			if ref, ok := c.write(logger, dir, harFile, data, schemas.ArtifactTrace, "application/json"); ok {
				refs = append(refs, ref)
			}
		}
	}
	return refs
}

func (c *Collector) usable(logger *zap.Logger, kind string, err error) bool {
	switch {
	case err == nil:
		return true
	case errors.Is(err, browser.ErrUnsupported):
		logger.Debug("Artifact not supported by driver.", zap.String("kind", kind))
	default:
		logger.Warn("Failed to capture artifact.", zap.String("kind", kind), zap.Error(err))
	}
	return false
}

func (c *Collector) write(logger *zap.Logger, dir, name string, data []byte, kind schemas.ArtifactKind, contentType string) (schemas.ArtifactRef, bool) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		logger.Warn("Failed to create artifact directory.", zap.String("dir", dir), zap.Error(err))
		return schemas.ArtifactRef{}, false
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		logger.Warn("Failed to write artifact.", zap.String("path", path), zap.Error(err))
		return schemas.ArtifactRef{}, false
	}
	return schemas.ArtifactRef{Kind: kind, Path: path, ContentType: contentType}, true
}

// Finalize runs after the page is closed. It keeps or discards the
// recordings requested through PageOptions and returns references to the
// kept ones.
func (c *Collector) Finalize(page browser.Page, instanceID string, attempt int, failed bool) []schemas.ArtifactRef {
	opts := c.PageOptions(instanceID, attempt)
	logger := c.logger.With(zap.String("scenario", instanceID), zap.Int("attempt", attempt))
	var refs []schemas.ArtifactRef

	if opts.VideoDir != "" {
		if vs, ok := page.(browser.VideoSource); ok {
			path, err := vs.VideoPath()
			switch {
			case err != nil:
				logger.Debug("No video recorded.", zap.Error(err))
			case wanted(c.cfg.Video, failed):
				refs = append(refs, schemas.ArtifactRef{Kind: schemas.ArtifactVideo, Path: path, ContentType: "video/webm"})
			default:
				_ = os.RemoveAll(opts.VideoDir)
			}
		} else {
			_ = os.RemoveAll(opts.VideoDir)
		}
	}

	if opts.TracePath != "" {
		if _, err := os.Stat(opts.TracePath); err == nil {
			if wanted(c.cfg.Trace, failed) {
				refs = append(refs, schemas.ArtifactRef{Kind: schemas.ArtifactTrace, Path: opts.TracePath, ContentType: "application/zip"})
			} else {
				_ = os.Remove(opts.TracePath)
			}
		}
	}

	c.pruneEmpty(c.Dir(instanceID, attempt))
	return refs
}

// pruneEmpty removes an attempt directory that ended up empty.
func (c *Collector) pruneEmpty(dir string) {
	entries, err := os.ReadDir(dir)
	if err == nil && len(entries) == 0 {
		_ = os.Remove(dir)
	}
}
