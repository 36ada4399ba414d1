// Package document keeps the traces opened by clients and the analyses
// computed over them.
//
// A document owns its trace, its sample filter and a cache of analysis
// results. Changing the filter drops every cached result of the document.
// Results are optionally summarized into object storage and to a
// publisher once computed.
package document

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/getsentry/hotspot/internal/analysis"
	"github.com/getsentry/hotspot/internal/errorutil"
	"github.com/getsentry/hotspot/internal/pprofconv"
	"github.com/getsentry/hotspot/internal/publish"
	"github.com/getsentry/hotspot/internal/resolver"
	"github.com/getsentry/hotspot/internal/sample"
	"github.com/getsentry/hotspot/internal/samplesource"
	"github.com/getsentry/hotspot/internal/storageutil"
	"github.com/getsentry/hotspot/internal/trace"
)

type (
	// Publisher receives the summary of every computed analysis.
	Publisher interface {
		Publish(ctx context.Context, m publish.AnalysisMessage) error
	}

	Config struct {
		ResolverCacheSize int
		// NumWorkers bounds the number of processes analyzed in parallel.
		NumWorkers int
		Paths      *resolver.PathMap
		// Objects and Publisher are optional.
		Objects   storageutil.ObjectHandler
		Publisher Publisher
	}

	Document struct {
		ID       string
		Path     string
		Trace    *trace.Trace
		Registry *samplesource.Registry

		mu         sync.RWMutex
		filter     sample.Filter
		generation uint64
		analyses   map[analysisKey]*analysis.Result
		resolvers  map[uint64]resolver.Resolver
	}

	analysisKey struct {
		processKey uint64
		selection  string
	}

	Store struct {
		config Config
		cache  *resolver.Cache
		group  singleflight.Group
		// provider returns the sample source of a document under a filter.
		provider func(d *Document, filter sample.Filter) sample.Provider

		mu        sync.RWMutex
		documents map[string]*Document
	}
)

func NewStore(config Config) (*Store, error) {
	cache, err := resolver.NewCache(config.ResolverCacheSize)
	if err != nil {
		return nil, err
	}
	s := &Store{
		config:    config,
		cache:     cache,
		documents: make(map[string]*Document),
	}
	s.provider = s.traceProvider
	return s, nil
}

func (s *Store) traceProvider(d *Document, filter sample.Filter) sample.Provider {
	return trace.NewProvider(d.Trace, s.resolverFunc(d), filter)
}

// Load reads a trace from disk. JSON documents may be lz4 compressed;
// pprof profiles are converted.
func Load(path string) (*trace.Trace, error) {
	var (
		t   *trace.Trace
		err error
	)
	switch {
	case strings.HasSuffix(path, ".json"), strings.HasSuffix(path, ".json.lz4"):
		t, err = trace.ReadFile(path)
	case strings.HasSuffix(path, ".pb.gz"), strings.HasSuffix(path, ".pprof"), strings.HasSuffix(path, ".pb"):
		t, err = pprofconv.ReadFile(path)
	default:
		return nil, fmt.Errorf("document: %w: unsupported file type: %s", errorutil.ErrInvalidRequest, path)
	}
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("document: %w: %s", errorutil.ErrNotFound, path)
	}
	return t, err
}

// Open loads the trace at path and registers it under a new id.
func (s *Store) Open(path string) (*Document, error) {
	t, err := Load(path)
	if err != nil {
		return nil, err
	}
	return s.Add(path, t)
}

// Add registers an already loaded trace.
func (s *Store) Add(path string, t *trace.Trace) (*Document, error) {
	if err := t.Index(); err != nil {
		return nil, err
	}
	registry, err := t.Registry()
	if err != nil {
		return nil, err
	}
	d := &Document{
		ID:        uuid.New().String(),
		Path:      path,
		Trace:     t,
		Registry:  registry,
		analyses:  make(map[analysisKey]*analysis.Result),
		resolvers: make(map[uint64]resolver.Resolver),
	}
	s.mu.Lock()
	s.documents[d.ID] = d
	s.mu.Unlock()
	log.Info().
		Str("document_id", d.ID).
		Str("path", path).
		Int("processes", len(t.Processes)).
		Int("samples", len(t.Samples)).
		Msg("document opened")
	return d, nil
}

func (s *Store) Get(id string) (*Document, error) {
	s.mu.RLock()
	d, ok := s.documents[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("document: %w: %s", errorutil.ErrNotFound, id)
	}
	return d, nil
}

// Close forgets a document and its analyses. Frames cached for it age out
// of the shared resolver cache.
func (s *Store) Close(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.documents[id]; !ok {
		return fmt.Errorf("document: %w: %s", errorutil.ErrNotFound, id)
	}
	delete(s.documents, id)
	return nil
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.documents)
}

// SetFilter replaces the sample filter of a document and drops its cached
// analyses.
func (s *Store) SetFilter(id string, f sample.Filter) error {
	if f.MinTime != nil && f.MaxTime != nil && *f.MinTime > *f.MaxTime {
		return fmt.Errorf("document: %w: min time is after max time", errorutil.ErrInvalidRequest)
	}
	d, err := s.Get(id)
	if err != nil {
		return err
	}
	d.mu.Lock()
	d.filter = f
	d.generation++
	d.analyses = make(map[analysisKey]*analysis.Result)
	d.mu.Unlock()
	return nil
}

func (d *Document) Filter() sample.Filter {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.filter
}

// Analysis returns the analysis of one process, computing it at most once
// per filter. Concurrent requests for the same analysis share one build.
// The shared build does not stop when a caller gives up: canceling ctx only
// ends that caller's wait, and the result is still cached for the others.
func (s *Store) Analysis(ctx context.Context, id string, processKey uint64, sel samplesource.Selection) (*analysis.Result, error) {
	d, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	process, ok := d.Trace.Process(processKey)
	if !ok {
		return nil, fmt.Errorf("document: %w: process %d", errorutil.ErrNotFound, processKey)
	}
	plan, err := d.Registry.Plan(sel)
	if err != nil {
		return nil, err
	}

	key := analysisKey{processKey: processKey, selection: sel.Key()}
	d.mu.RLock()
	r, ok := d.analyses[key]
	generation, filter := d.generation, d.filter
	d.mu.RUnlock()
	if ok {
		return r, nil
	}

	flight := d.ID + "/" + strconv.FormatUint(processKey, 10) + "/" + key.selection + "/" + strconv.FormatUint(generation, 10)
	buildCtx := context.WithoutCancel(ctx)
	ch := s.group.DoChan(flight, func() (interface{}, error) {
		r, err := analysis.Analyze(buildCtx, s.provider(d, filter), process, sel, plan)
		if err != nil {
			return nil, err
		}
		r, stored := d.store(generation, key, r)
		if stored {
			s.summarize(buildCtx, d, r)
		}
		return r, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*analysis.Result), nil
	}
}

// Analyses returns the analyses of every sampled process of a document,
// building the missing ones in parallel.
func (s *Store) Analyses(ctx context.Context, id string, sel samplesource.Selection) ([]*analysis.Result, error) {
	d, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	plan, err := d.Registry.Plan(sel)
	if err != nil {
		return nil, err
	}
	processes := d.Trace.SampledProcesses()
	results := make([]*analysis.Result, len(processes))

	d.mu.RLock()
	generation, filter := d.generation, d.filter
	var missing []trace.Process
	var positions []int
	for i, p := range processes {
		if r, ok := d.analyses[analysisKey{processKey: p.Key, selection: sel.Key()}]; ok {
			results[i] = r
			continue
		}
		missing = append(missing, p)
		positions = append(positions, i)
	}
	d.mu.RUnlock()
	if len(missing) == 0 {
		return results, nil
	}

	built, err := analysis.AnalyzeProcesses(ctx, s.provider(d, filter), missing, sel, plan, s.config.NumWorkers)
	if err != nil {
		return nil, err
	}
	for i, r := range built {
		r, stored := d.store(generation, analysisKey{processKey: r.Process.Key, selection: sel.Key()}, r)
		if stored {
			s.summarize(ctx, d, r)
		}
		results[positions[i]] = r
	}
	return results, nil
}

// store caches r unless the filter changed while it was built. A result
// cached meanwhile by another build wins over r. It reports whether r was
// stored.
func (d *Document) store(generation uint64, key analysisKey, r *analysis.Result) (*analysis.Result, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.generation != generation {
		return r, false
	}
	if existing, ok := d.analyses[key]; ok {
		return existing, false
	}
	d.analyses[key] = r
	return r, true
}

// resolverFunc returns the per-process resolvers of a document, each
// wrapped by the shared cache in its own address space.
func (s *Store) resolverFunc(d *Document) trace.ResolverFunc {
	return func(processKey uint64) (resolver.Resolver, error) {
		d.mu.Lock()
		defer d.mu.Unlock()
		if r, ok := d.resolvers[processKey]; ok {
			return r, nil
		}
		table, err := d.Trace.Resolver(processKey, s.config.Paths)
		if err != nil {
			return nil, err
		}
		r := s.cache.Wrap(AddressSpace(d.ID, processKey), table)
		d.resolvers[processKey] = r
		return r, nil
	}
}

// AddressSpace identifies the resolver cache entries of one process of one
// document.
func AddressSpace(documentID string, processKey uint64) uint64 {
	h := xxhash.New()
	_, _ = h.WriteString(documentID)
	_, _ = h.WriteString("/")
	_, _ = h.WriteString(strconv.FormatUint(processKey, 10))
	return h.Sum64()
}

// ObjectName is the storage path of the summary of an analysis.
func ObjectName(documentID string, processKey uint64, sel samplesource.Selection) string {
	return fmt.Sprintf("analyses/%s/%d/%s", documentID, processKey, sel.Key())
}

// summarize persists and publishes the summary of a fresh result. Failures
// are reported and never fail the analysis.
func (s *Store) summarize(ctx context.Context, d *Document, r *analysis.Result) {
	if s.config.Objects == nil && s.config.Publisher == nil {
		return
	}
	m := publish.BuildAnalysisMessage(d.ID, r)
	if s.config.Objects != nil {
		name := ObjectName(d.ID, r.Process.Key, r.Selection)
		if err := storageutil.CompressedWrite(ctx, s.config.Objects, name, m); err != nil {
			report(ctx, err, "failed to store analysis summary")
		}
	}
	if s.config.Publisher != nil {
		if err := s.config.Publisher.Publish(ctx, m); err != nil {
			report(ctx, err, "failed to publish analysis summary")
		}
	}
}

// Summary reads back the stored summary of an analysis.
func (s *Store) Summary(ctx context.Context, id string, processKey uint64, sel samplesource.Selection) (publish.AnalysisMessage, error) {
	var m publish.AnalysisMessage
	if s.config.Objects == nil {
		return m, fmt.Errorf("document: %w: no object storage configured", errorutil.ErrNotFound)
	}
	err := storageutil.UnmarshalCompressed(ctx, s.config.Objects, ObjectName(id, processKey, sel), &m)
	if errors.Is(err, storageutil.ErrObjectNotFound) {
		return m, fmt.Errorf("document: %w: no summary for process %d of %s", errorutil.ErrNotFound, processKey, id)
	}
	return m, err
}

func report(ctx context.Context, err error, msg string) {
	if hub := sentry.GetHubFromContext(ctx); hub != nil {
		hub.CaptureException(err)
	}
	log.Error().Err(err).Msg(msg)
}
