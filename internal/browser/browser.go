// internal/browser/browser.go
package browser

import (
	"context"
	"errors"
)

// Sentinel errors shared by every driver. Drivers wrap them with the locator
// and the underlying cause.
var (
	ErrNotFound   = errors.New("element not found")
	ErrNotVisible = errors.New("element not visible")
	ErrNotEnabled = errors.New("element not enabled")
	ErrClosed     = errors.New("page closed")
	// ErrUnsupported is returned by drivers that cannot provide a capability,
	// such as screenshots without a rendering engine.
	ErrUnsupported = errors.New("not supported by this driver")
)

// PageOptions configures a single isolated page.
type PageOptions struct {
	// ID names the page in logs and traces.
	ID string
	// VideoDir enables video recording into the directory when the driver supports it.
	VideoDir string
	// TracePath enables a driver native trace written on Close when supported.
	TracePath string
}

// Browser provisions isolated pages. Every page owns its own cookie jar,
// storage and document; nothing is shared between pages.
type Browser interface {
	NewPage(ctx context.Context, opts PageOptions) (Page, error)
	Close(ctx context.Context) error
}

// Page is one isolated browsing context with a single active document.
// Blocking calls honor the deadline of ctx.
type Page interface {
	ID() string

	Goto(ctx context.Context, url string) error
	URL(ctx context.Context) (string, error)

	WaitVisible(ctx context.Context, loc Locator) error
	WaitEnabled(ctx context.Context, loc Locator) error

	// Fill replaces the content of an input, textarea or select. An empty
	// value clears inputs; selects match option value first, then label.
	Fill(ctx context.Context, loc Locator, value string) error
	Click(ctx context.Context, loc Locator) error

	Text(ctx context.Context, loc Locator) (string, error)
	Texts(ctx context.Context, loc Locator) ([]string, error)
	Value(ctx context.Context, loc Locator) (string, error)
	Attribute(ctx context.Context, loc Locator, name string) (string, bool, error)

	Screenshot(ctx context.Context) ([]byte, error)
	HTML(ctx context.Context) (string, error)

	// Responses is the log of every response the page received.
	Responses() *ResponseLog

	Close(ctx context.Context) error
}

// VideoSource is implemented by pages that record video. The path is only
// final after Close.
type VideoSource interface {
	VideoPath() (string, error)
}
