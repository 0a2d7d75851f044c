// Package pipeline selects which catalog records a download batch handles
// when they come straight from a crawl instead of a store query.
package pipeline

import (
	"log/slog"

	"github.com/IshaanNene/kitmanual/internal/catalog"
	"github.com/IshaanNene/kitmanual/internal/types"
)

// Middleware processes a record and returns the (possibly modified) record.
// Return nil to drop the record from the pipeline.
type Middleware interface {
	// Name returns the middleware's identifier.
	Name() string

	// Process filters or transforms a record. Return nil to drop it.
	Process(rec *catalog.Record) (*catalog.Record, error)
}

// Pipeline chains middleware processors together.
type Pipeline struct {
	middlewares []Middleware
	logger      *slog.Logger
}

// New creates a new Pipeline.
func New(logger *slog.Logger) *Pipeline {
	return &Pipeline{
		logger: logger.With("component", "pipeline"),
	}
}

// FromQuery builds the chain that applies q's selection to inline records,
// matching what a store List with q would return. Like List, it yields each
// id at most once.
func FromQuery(q catalog.Query, logger *slog.Logger) *Pipeline {
	p := New(logger)
	p.Use(&RequiredFieldsMiddleware{})
	p.Use(NewDedupMiddleware())
	if q.OnlyMissing {
		p.Use(&OnlyMissingMiddleware{})
	}
	if len(q.Grades) > 0 {
		p.Use(NewGradeFilterMiddleware(q.Grades))
	}
	if len(q.IDs) > 0 {
		p.Use(NewIDFilterMiddleware(q.IDs))
	}
	if q.Limit > 0 {
		p.Use(NewLimitMiddleware(q.Limit))
	}
	return p
}

// Use adds a middleware to the pipeline chain.
func (p *Pipeline) Use(mw Middleware) {
	p.middlewares = append(p.middlewares, mw)
	p.logger.Debug("middleware added", "name", mw.Name(), "position", len(p.middlewares))
}

// Process runs the record through all middleware in order.
func (p *Pipeline) Process(rec *catalog.Record) (*catalog.Record, error) {
	current := rec

	for _, mw := range p.middlewares {
		result, err := mw.Process(current)
		if err != nil {
			return nil, &types.PipelineError{
				Stage:    mw.Name(),
				RecordID: current.ID,
				Err:      err,
			}
		}
		if result == nil {
			p.logger.Debug("record dropped", "stage", mw.Name(), "id", rec.ID)
			return nil, nil
		}
		current = result
	}

	return current, nil
}

// Run processes recs in order and returns the survivors.
func (p *Pipeline) Run(recs []catalog.Record) ([]catalog.Record, error) {
	out := make([]catalog.Record, 0, len(recs))
	for i := range recs {
		rec := recs[i]
		result, err := p.Process(&rec)
		if err != nil {
			return out, err
		}
		if result != nil {
			out = append(out, *result)
		}
	}
	return out, nil
}

// Len returns the number of middleware in the chain.
func (p *Pipeline) Len() int {
	return len(p.middlewares)
}
