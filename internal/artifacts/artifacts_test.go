// internal/artifacts/artifacts_test.go
package artifacts

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/flowcheck/api/schemas"
	"github.com/xkilldash9x/flowcheck/internal/browser"
	"github.com/xkilldash9x/flowcheck/internal/config"
)

// stubPage serves fixed snapshots. Only the capture methods are used.
type stubPage struct {
	browser.Page
	shot      []byte
	shotErr   error
	html      string
	responses *browser.ResponseLog
	video     string
}

func (p *stubPage) Screenshot(context.Context) ([]byte, error) { return p.shot, p.shotErr }
func (p *stubPage) HTML(context.Context) (string, error)       { return p.html, nil }
func (p *stubPage) Responses() *browser.ResponseLog            { return p.responses }

type videoPage struct{ *stubPage }

func (p videoPage) VideoPath() (string, error) {
	if p.video == "" {
		return "", errors.New("no video")
	}
	return p.video, nil
}

func newStub() *stubPage {
	log := browser.NewResponseLog()
	log.Record(schemas.Entry{
		StartedDateTime: time.Now(),
		Request:         schemas.Request{Method: "GET", URL: "http://bank.test/index.htm"},
		Response:        schemas.Response{Status: 200},
	})
	return &stubPage{shot: []byte("\x89PNG"), html: "<html><body>ok</body></html>", responses: log}
}

func policies(dir, p string) config.ArtifactsConfig {
	return config.ArtifactsConfig{Dir: dir, Screenshot: p, DOM: p, Trace: p, Video: p}
}

func kinds(refs []schemas.ArtifactRef) []schemas.ArtifactKind {
	var out []schemas.ArtifactKind
	for _, r := range refs {
		out = append(out, r.Kind)
	}
	return out
}

func TestCapturePolicies(t *testing.T) {
	cases := []struct {
		policy string
		failed bool
		want   int
	}{
		{config.PolicyOff, true, 0},
		{config.PolicyOn, false, 3},
		{config.PolicyOnlyOnFailure, false, 0},
		{config.PolicyOnlyOnFailure, true, 3},
		{config.PolicyRetainOnFailure, false, 0},
		{config.PolicyRetainOnFailure, true, 3},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("%s failed=%v", tc.policy, tc.failed), func(t *testing.T) {
			c := New(policies(t.TempDir(), tc.policy), "test", zaptest.NewLogger(t))
			refs := c.Capture(context.Background(), newStub(), "login/valid#1", 1, tc.failed)
			assert.Len(t, refs, tc.want)
			for _, r := range refs {
				assert.FileExists(t, r.Path)
			}
		})
	}
}

func TestCaptureWritesFiles(t *testing.T) {
	dir := t.TempDir()
	c := New(policies(dir, config.PolicyOn), "1.2.3", zaptest.NewLogger(t))
	refs := c.Capture(context.Background(), newStub(), "Transfer/insufficient funds#2", 2, true)
	require.Equal(t, []schemas.ArtifactKind{schemas.ArtifactScreenshot, schemas.ArtifactDOM, schemas.ArtifactTrace}, kinds(refs))

	attemptDir := filepath.Join(dir, "transfer-insufficient-funds-2-retry1")
	assert.Equal(t, filepath.Join(attemptDir, "screenshot.png"), refs[0].Path)
	assert.Equal(t, "image/png", refs[0].ContentType)

	har, err := os.ReadFile(refs[2].Path)
	require.NoError(t, err)
	assert.Contains(t, string(har), `"version": "1.2.3"`)
	assert.Contains(t, string(har), "http://bank.test/index.htm")
}

func TestUnsupportedScreenshotIsSkipped(t *testing.T) {
	page := newStub()
	page.shotErr = fmt.Errorf("screenshot: %w", browser.ErrUnsupported)
	c := New(policies(t.TempDir(), config.PolicyOn), "test", zaptest.NewLogger(t))

	refs := c.Capture(context.Background(), page, "a#1", 1, true)
	assert.Equal(t, []schemas.ArtifactKind{schemas.ArtifactDOM, schemas.ArtifactTrace}, kinds(refs))
}

func TestFinalizeKeepsVideoOnlyWhenWanted(t *testing.T) {
	dir := t.TempDir()
	c := New(policies(dir, config.PolicyRetainOnFailure), "test", zaptest.NewLogger(t))

	opts := c.PageOptions("a#1", 1)
	require.NoError(t, os.MkdirAll(opts.VideoDir, 0o755))
	video := filepath.Join(opts.VideoDir, "page.webm")
	require.NoError(t, os.WriteFile(video, []byte("webm"), 0o644))
	require.NoError(t, os.WriteFile(opts.TracePath, []byte("zip"), 0o644))

	page := videoPage{newStub()}
	page.video = video

	refs := c.Finalize(page, "a#1", 1, true)
	assert.Equal(t, []schemas.ArtifactKind{schemas.ArtifactVideo, schemas.ArtifactTrace}, kinds(refs))
	assert.FileExists(t, video)

	refs = c.Finalize(page, "a#1", 1, false)
	assert.Empty(t, refs)
	assert.NoFileExists(t, video)
	assert.NoFileExists(t, opts.TracePath)
	assert.NoDirExists(t, c.Dir("a#1", 1), "empty attempt directories are removed")
}

func TestPageOptions(t *testing.T) {
	c := New(config.ArtifactsConfig{Dir: "out", Video: config.PolicyOff, Trace: config.PolicyOn}, "test", nil)
	opts := c.PageOptions("f/s#1", 1)
	assert.Equal(t, "f/s#1", opts.ID)
	assert.Empty(t, opts.VideoDir)
	assert.Equal(t, filepath.Join("out", "f-s-1", "trace.zip"), opts.TracePath)
}
