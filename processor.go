// Copyright © 2026, SAS Institute Inc., Cary, NC, USA.  All Rights Reserved.
// SPDX-License-Identifier: BSD-3-Clause

package xrecover

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sassoftware/viya-pdf-xrecover/logger"
	"golang.org/x/sync/semaphore"
)

// Processor defines the contract for loading the cross-reference data of PDF files.
type Processor interface {
	Recover(ctx context.Context, path string) (*Result, error)
	RecoverAll(ctx context.Context, paths []string) []*Result
}

// Result summarizes the load of one file.
type Result struct {
	Path        string
	Objects     int
	Recovered   bool
	Root        Ref
	HasRoot     bool
	Trailer     string
	Diagnostics []Diagnostic
	Err         error
}

// processor manages loads with concurrency control.
type processor struct {
	cfg   *Config
	sem   *semaphore.Weighted
	cache *lru.Cache[cacheKey, *Result]
}

// cacheKey identifies one version of a file on disk.
type cacheKey struct {
	path    string
	size    int64
	modTime time.Time
}

// NewProcessor validates the config and creates a new processor.
func NewProcessor(cfg *Config) *processor {
	//Validate the config object
	if err := cfg.Validate(); err != nil {
		panic(err)
	}

	//Set the logger function
	if cfg.Logger != nil {
		logger.SetLogger(levelFilter(cfg.Logger, cfg.DebugOn))
	}

	logger.Debug(fmt.Sprintf("Processor initialized: parsing_mode=%v, max_concurrent_pdfs=%d, worker_timeout=%v",
		cfg.ParsingMode, cfg.MaxConcurrentPDFs, cfg.WorkerTimeout), true)

	p := &processor{
		cfg: cfg,
		sem: semaphore.NewWeighted(int64(cfg.MaxConcurrentPDFs)),
	}
	if cfg.ResultCacheSize > 0 {
		cache, err := lru.New[cacheKey, *Result](cfg.ResultCacheSize)
		if err != nil {
			panic(err)
		}
		p.cache = cache
	}
	return p
}

// levelFilter drops debug messages unless debug is on.
func levelFilter(f logger.LogFunc, debug bool) logger.LogFunc {
	if debug {
		return f
	}
	return func(level logger.LogLevel, msg string, keyvals ...interface{}) {
		if level == logger.DebugLevel {
			return
		}
		f(level, msg, keyvals...)
	}
}

// Recover loads one file within the configured WorkerTimeout. A load that
// outlives its budget keeps running in the background and holds its slot
// until it finishes, so at most MaxConcurrentPDFs loads run at any time;
// its result is dropped.
func (p *processor) Recover(ctx context.Context, path string) (*Result, error) {
	return p.run(ctx, path, p.load)
}

func (p *processor) run(ctx context.Context, path string, load func(string) *Result) (*Result, error) {
	logger.Debug(fmt.Sprintf("Starting recovery: path=%s", path), true)

	if err := p.acquireSlot(ctx); err != nil {
		logger.Debug(fmt.Sprintf("Failed to acquire slot: err=%v", err), true)
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, p.cfg.WorkerTimeout)
	defer cancel()

	done := make(chan *Result, 1)
	go func() {
		defer p.sem.Release(1)
		done <- load(path)
	}()

	select {
	case <-ctx.Done():
		logger.Debug(fmt.Sprintf("Recovery abandoned: path=%s err=%v", path, ctx.Err()), true)
		return nil, fmt.Errorf("recover %s: %w", path, ctx.Err())
	case res := <-done:
		logger.Debug(fmt.Sprintf("Recovery completed: path=%s objects=%d recovered=%v", path, res.Objects, res.Recovered), true)
		return res, res.Err
	}
}

func (p *processor) load(path string) *Result {
	key, cacheable := p.key(path)
	if cacheable {
		if res, ok := p.cache.Get(key); ok {
			logger.Debug(fmt.Sprintf("Result cache hit: path=%s", path), true)
			return res.clone()
		}
	}

	res := p.loadFile(path)
	if cacheable && res.Err == nil {
		p.cache.Add(key, res.clone())
	}
	return res
}

// key returns the cache key of path, or false when caching is off or the
// file cannot be stat'ed.
func (p *processor) key(path string) (cacheKey, bool) {
	if p.cache == nil {
		return cacheKey{}, false
	}
	fi, err := os.Stat(path)
	if err != nil {
		return cacheKey{}, false
	}
	return cacheKey{path: path, size: fi.Size(), modTime: fi.ModTime()}, true
}

func (p *processor) loadFile(path string) *Result {
	res := &Result{Path: path}
	m, r, err := OpenConfig(path, p.cfg)
	if err != nil {
		res.Err = err
		return res
	}
	defer m.Close()

	res.Objects = r.Table().Count()
	res.Recovered = r.Recovered()
	res.Root, res.HasRoot = r.Trailer().Root()
	res.Trailer = r.Trailer().String()
	res.Diagnostics = r.Diagnostics()
	return res
}

func (r *Result) clone() *Result {
	c := *r
	c.Diagnostics = append([]Diagnostic(nil), r.Diagnostics...)
	return &c
}

// RecoverAll loads every path, at most MaxConcurrentPDFs at a time, and
// returns the results in the order of paths. Failures are reported through
// Result.Err.
func (p *processor) RecoverAll(ctx context.Context, paths []string) []*Result {
	results := make([]*Result, len(paths))
	var wg sync.WaitGroup
	for i, path := range paths {
		wg.Add(1)
		go func(i int, path string) {
			defer wg.Done()
			res, err := p.Recover(ctx, path)
			if res == nil {
				res = &Result{Path: path, Err: err}
			}
			results[i] = res
		}(i, path)
	}
	wg.Wait()
	logger.Debug(fmt.Sprintf("All recoveries finished: total=%d", len(paths)), true)
	return results
}

func (p *processor) acquireSlot(ctx context.Context) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("acquire slot: %w", err)
	}
	logger.Debug("Slot acquired successfully", true)
	return nil
}
