// Package indexer defines the contract between the command layer and
// the long-running module workers it supervises.
package indexer

import "context"

// IndexerWorker is a long-running module worker. Run blocks until the
// context is cancelled or the worker fails; returning an error stops
// the whole process.
type IndexerWorker interface {
	Run(ctx context.Context) error
}
