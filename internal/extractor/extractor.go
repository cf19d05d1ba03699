// Package extractor defines the contract with the external, site-specific
// extraction step, and provides a generic HTML page extractor as the
// default implementation.
package extractor

import (
	"context"

	"github.com/jonesrussell/goharvest/internal/domain"
	"github.com/jonesrussell/goharvest/internal/pool"
	"github.com/jonesrussell/goharvest/internal/session"
)

// Extractor turns a navigated page into structured data. Implementations
// must enforce a bounded internal timeout; the execution engine treats any
// non-success outcome uniformly as an attempt failure.
type Extractor interface {
	Extract(ctx context.Context, res *pool.Resource, sess *session.Session, url string) (*domain.RawResult, error)
}
