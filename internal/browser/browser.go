// Package browser owns the chromedp session lifecycle and exposes the small
// set of primitives the page objects are built on.
package browser

import (
	"context"
	"errors"
	"time"
)

// ErrElementNotFound is returned when an element wait exhausts its timeout.
var ErrElementNotFound = errors.New("element not found")

// Driver is the capability set consumed by page objects. *Session implements
// it against a live browser; tests substitute scripted fakes.
type Driver interface {
	// Navigate loads the URL and waits for the document to become ready.
	Navigate(ctx context.Context, url string) error
	// Click waits for the element to be visible, then clicks it.
	Click(ctx context.Context, selector string) error
	// Type focuses the element, clears it, and types the text key by key.
	Type(ctx context.Context, selector, text string) error
	// SendEnter presses Enter on the element.
	SendEnter(ctx context.Context, selector string) error
	// Text returns the trimmed text content of the first match, or "" when
	// the element is absent.
	Text(ctx context.Context, selector string) (string, error)
	// Texts returns the trimmed text content of every match.
	Texts(ctx context.Context, selector string) ([]string, error)
	// ClickMatch clicks the first match whose trimmed text equals text.
	// Reports whether such an element existed.
	ClickMatch(ctx context.Context, selector, text string) (bool, error)
	// WaitVisible blocks until the element is visible or the timeout elapses,
	// failing with ErrElementNotFound.
	WaitVisible(ctx context.Context, selector string, timeout time.Duration) error
	// Screenshot captures the current viewport as PNG.
	Screenshot(ctx context.Context) ([]byte, error)
}
