package extractors

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/dtnitsch/metawarc/models"
	"github.com/dtnitsch/metawarc/pkg/classify"
	"github.com/dtnitsch/metawarc/pkg/metrics"
	"github.com/dtnitsch/metawarc/pkg/warc"
)

// DefaultTimeout bounds a single probe call.
const DefaultTimeout = 30 * time.Second

// Routed is the outcome of routing one record. Result is nil when the probe
// failed; Err then says why.
type Routed struct {
	Family classify.Family
	Table  models.TableType
	Ext    string
	Result *Result
	Err    error
}

// Router sends records to the probe of their family.
type Router struct {
	logger  *slog.Logger
	metrics *metrics.Metrics
	tempDir string
	timeout time.Duration
	probes  map[classify.Family]Probe
}

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithTempDir sets where payload copies are written. Default is os.TempDir.
func WithTempDir(dir string) RouterOption {
	return func(r *Router) { r.tempDir = dir }
}

// WithTimeout sets the per-probe deadline.
func WithTimeout(d time.Duration) RouterOption {
	return func(r *Router) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithMetrics records extraction outcomes.
func WithMetrics(m *metrics.Metrics) RouterOption {
	return func(r *Router) { r.metrics = m }
}

// WithProbe replaces the probe used for a family.
func WithProbe(f classify.Family, p Probe) RouterOption {
	return func(r *Router) { r.probes[f] = p }
}

// NewRouter returns a Router with the default probe for every family.
func NewRouter(logger *slog.Logger, opts ...RouterOption) *Router {
	r := &Router{
		logger:  logger,
		timeout: DefaultTimeout,
		probes: map[classify.Family]Probe{
			classify.FamilyHTML:         LinksProbe{},
			classify.FamilyOfficeXML:    OfficeXMLProbe{},
			classify.FamilyPDF:          PDFProbe{},
			classify.FamilyOfficeLegacy: GenericProbe{},
			classify.FamilyImage:        GenericProbe{},
		},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Route extracts from rec when its family feeds one of the wanted tables.
// It returns nil when nothing is wanted for the record. The payload is
// consumed only when a probe runs.
func (r *Router) Route(ctx context.Context, rec *warc.Record, class classify.Result, wanted map[models.TableType]bool) *Routed {
	table := class.Family.Table()
	if table == "" || !wanted[table] {
		return nil
	}
	probe, ok := r.probes[class.Family]
	if !ok {
		return nil
	}
	out := &Routed{
		Family: class.Family,
		Table:  table,
		Ext:    classify.SuggestedExt(class.ContentType, class.Ext, class.Family),
	}

	start := time.Now()
	res, err := r.extract(ctx, probe, rec, class, out.Ext)
	outcome := metrics.OutcomeOK
	switch {
	case errors.Is(err, ErrTimeout):
		outcome = metrics.OutcomeTimeout
	case errors.Is(err, ErrPanic):
		outcome = metrics.OutcomePanic
	case err != nil:
		outcome = metrics.OutcomeError
	case res == nil || (res.Metadata == nil && len(res.Links) == 0):
		outcome = metrics.OutcomeEmpty
	}
	r.metrics.ObserveExtraction(class.Family.String(), outcome, time.Since(start))

	if err != nil {
		r.logger.Warn("metadata extraction failed",
			"url", rec.TargetURI,
			"offset", rec.Offset,
			"family", class.Family.String(),
			"error", err,
		)
		out.Err = err
		return out
	}
	out.Result = res
	return out
}

func (r *Router) extract(ctx context.Context, probe Probe, rec *warc.Record, class classify.Result, ext string) (*Result, error) {
	payload, err := rec.Payload()
	if err != nil {
		return nil, fmt.Errorf("failed to read payload: %w", err)
	}
	defer payload.Close()

	path, cleanup, err := r.spool(payload, ext)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	return r.run(ctx, probe, Document{
		Path:        path,
		URL:         rec.TargetURI,
		ContentType: class.ContentTypeRaw,
	})
}

// spool copies the payload to a temp file carrying ext so probes that look
// at the name see the right type. cleanup removes it.
func (r *Router) spool(payload io.Reader, ext string) (string, func(), error) {
	pattern := "metawarc-*"
	if ext != "" {
		pattern += "." + ext
	}
	f, err := os.CreateTemp(r.tempDir, pattern)
	if err != nil {
		return "", nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	cleanup := func() { os.Remove(f.Name()) }
	if _, err := io.Copy(f, payload); err != nil {
		f.Close()
		cleanup()
		return "", nil, fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("failed to close temp file: %w", err)
	}
	return f.Name(), cleanup, nil
}

// run calls the probe under the router's deadline. A probe that ignores its
// context is abandoned when the deadline passes.
func (r *Router) run(ctx context.Context, probe Probe, doc Document) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	type result struct {
		res *Result
		err error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- result{err: fmt.Errorf("%w: %v", ErrPanic, p)}
			}
		}()
		res, err := probe.Extract(ctx, doc)
		done <- result{res: res, err: err}
	}()

	select {
	case out := <-done:
		if errors.Is(out.err, context.DeadlineExceeded) {
			return nil, ErrTimeout
		}
		return out.res, out.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, ErrTimeout
		}
		return nil, ctx.Err()
	}
}
