// Package browser defines the page-automation capability the pipeline drives,
// and a Chrome implementation of it.
package browser

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrPageUnavailable means the page was closed or navigated away while in use.
	ErrPageUnavailable = errors.New("page unavailable")
	// ErrNavigationTimeout means the page did not load within its budget.
	ErrNavigationTimeout = errors.New("navigation timeout")
	// ErrNoElement means a selector matched nothing.
	ErrNoElement = errors.New("no matching element")
)

// Page is one browser tab.
type Page interface {
	Navigate(ctx context.Context, url string) error
	// WaitForSelector blocks until selector is present or timeout elapses.
	WaitForSelector(ctx context.Context, selector string, timeout time.Duration) error
	// WaitForLoad blocks until the document finished loading, best effort.
	WaitForLoad(ctx context.Context, timeout time.Duration) error
	// HTML returns a snapshot of the rendered document.
	HTML(ctx context.Context) (string, error)
	URL(ctx context.Context) (string, error)
	// ScrollFeed scrolls the first element matching one of selectors to its
	// bottom and returns its new scroll height. found is false when no
	// selector matched.
	ScrollFeed(ctx context.Context, selectors []string) (height int64, found bool, err error)
	Click(ctx context.Context, selector string) error
	Evaluate(ctx context.Context, script string, out any) error
	Close() error
}

// Browser opens pages. Implementations must allow concurrent NewPage calls.
type Browser interface {
	NewPage(ctx context.Context) (Page, error)
	Close() error
}
