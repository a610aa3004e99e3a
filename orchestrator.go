package main

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"

	"github.com/sourcegraph/conc/pool"
)

// ============================================================================
// ORCHESTRATOR - scan mode dispatch and bounded-concurrency fan-out
// ============================================================================

// Configuration constants, carried over from the teacher's defaults where
// the domain still calls for them.
const (
	DefaultMaxGoroutines   = 100
	DefaultProcessTimeout  = 30 * 60 // seconds, kept as an int to avoid pulling time into this file's constant block
	MaxSafeMaxGoroutines   = 10000
)

// ScanConfig drives one orchestrator run.
type ScanConfig struct {
	MaxGoroutines   int
	ContinueOnError bool
	CloneCacheRoot  string
	DiscoveryCache  DiscoveryConfig
	Platform        Platform
	PlatformBaseURL string
	Token           string
	Analyzer        AnalyzerConfig
	Extract         ExtractConfig
	Targeting       TargetingOptions
}

func defaultScanConfig() ScanConfig {
	return ScanConfig{
		MaxGoroutines:   DefaultMaxGoroutines,
		ContinueOnError: true,
		DiscoveryCache:  defaultDiscoveryConfig(),
		Analyzer:        defaultAnalyzerConfig(),
	}
}

// ScanResult is the aggregate value returned to the report collaborator,
// per spec §6.
type ScanResult struct {
	Modules  []ModuleRef
	Providers []ProviderRef
	Runtimes []RuntimeRef
	Graph    *Graph
	Analysis AnalysisResult
	Files    []string
	Warnings []ScanWarning
}

// repoScanOutcome is the per-repository result streamed through the
// bounded-concurrency pool before being merged serially.
type repoScanOutcome struct {
	repo    string
	vcsTag  string
	extract ExtractResult
	err     error
}

// scanLocalPaths concatenates per-path extraction results, per spec §4.H.
func scanLocalPaths(ctx context.Context, paths []string, cfg ScanConfig, logger *slog.Logger) (ScanResult, error) {
	outcomes := make([]repoScanOutcome, 0, len(paths))
	for _, p := range paths {
		repo := filepath.Base(p)
		extractCfg := cfg.Extract
		extractCfg.Repository = repo
		extractCfg.ContinueOnError = cfg.ContinueOnError
		res, err := extractDirectory(p, extractCfg)
		outcomes = append(outcomes, repoScanOutcome{repo: repo, extract: res, err: err})
		if err != nil && !cfg.ContinueOnError {
			return ScanResult{}, err
		}
	}
	return mergeOutcomes(outcomes, cfg, logger), nil
}

// scanExplicitURLs obtains a local path per URL via the clone cache and
// then scans as if local, per spec §4.H.
func scanExplicitURLs(ctx context.Context, urls []string, cfg ScanConfig, logger *slog.Logger) (ScanResult, error) {
	cache := newCloneCache(cfg.CloneCacheRoot)
	p := pool.New().WithMaxGoroutines(clampConcurrency(cfg.MaxGoroutines)).WithContext(ctx)
	results := make([]repoScanOutcome, len(urls))

	for i, rawURL := range urls {
		i, rawURL := i, rawURL
		p.Go(func(ctx context.Context) error {
			results[i] = scanOneURL(ctx, rawURL, "", cache, cfg)
			return nil
		})
	}
	_ = p.Wait()

	return mergeOutcomes(results, cfg, logger), nil
}

func scanOneURL(ctx context.Context, rawURL, vcsTag string, cache *CloneCache, cfg ScanConfig) repoScanOutcome {
	cloneResult, err := cache.ensure(ctx, rawURL, "")
	if err != nil {
		return repoScanOutcome{repo: rawURL, vcsTag: vcsTag, err: err}
	}
	repo := filepath.Base(cloneResult.Path)
	extractCfg := cfg.Extract
	extractCfg.Repository = repo
	extractCfg.ContinueOnError = cfg.ContinueOnError
	res, extractErr := extractDirectory(cloneResult.Path, extractCfg)
	return repoScanOutcome{repo: repo, vcsTag: vcsTag, extract: res, err: extractErr}
}

// scanOrganisation drives discovery, filters archived/fork repositories,
// and streams the rest through the per-URL scan path, per spec §4.H.
func scanOrganisation(ctx context.Context, namespace string, cfg ScanConfig, logger *slog.Logger) (ScanResult, error) {
	client, err := newDiscoveryClient(cfg.Platform, cfg.PlatformBaseURL, cfg.DiscoveryCache)
	if err != nil {
		return ScanResult{}, err
	}
	token := tokenFromEnv(cfg.Platform, cfg.Token)
	repos, err := client.ListRepositories(namespace, token)
	if err != nil {
		return ScanResult{}, err
	}
	repos = filterDiscovered(repos)
	repos, err = filterRepositoriesByTargeting(repos, cfg.Targeting)
	if err != nil {
		return ScanResult{}, newDriftError(ErrConfigValue, "scanOrganisation", err)
	}

	cache := newCloneCache(cfg.CloneCacheRoot)
	p := pool.New().WithMaxGoroutines(clampConcurrency(cfg.MaxGoroutines)).WithContext(ctx)
	results := make([]repoScanOutcome, len(repos))

	for i, r := range repos {
		i, r := i, r
		p.Go(func(ctx context.Context) error {
			authed := authenticatedCloneURL(cfg.Platform, r.CloneURL, token)
			vcsTag := fmt.Sprintf("vcs:%s:%s", cfg.Platform, vcsIdentifierComponents(cfg.Platform, r.PlatformID))
			results[i] = scanOneURL(ctx, authed, vcsTag, cache, cfg)
			if logger != nil {
				logger.Debug("scanned repository", "repo", r.Name, "outcome", results[i].err == nil)
			}
			return nil
		})
	}
	_ = p.Wait()

	return mergeOutcomes(results, cfg, logger), nil
}

// mergeOutcomes assembles the final ScanResult and the analysis result,
// applying the partial-failure policy of spec §4.H/§7: a single repository
// failure is recorded as a warning, never aborts the batch.
func mergeOutcomes(outcomes []repoScanOutcome, cfg ScanConfig, logger *slog.Logger) ScanResult {
	var result ScanResult
	g := newGraph()
	var recoverable []error

	for _, o := range outcomes {
		if o.err != nil {
			result.Warnings = append(result.Warnings, ScanWarning{Code: "SCAN_REPO", Message: o.err.Error(), Repository: o.repo})
			recoverable = append(recoverable, o.err)
			continue
		}
		result.Modules = append(result.Modules, o.extract.Modules...)
		result.Providers = append(result.Providers, o.extract.Providers...)
		result.Runtimes = append(result.Runtimes, o.extract.Runtimes...)
		result.Files = append(result.Files, o.extract.Files...)
		result.Warnings = append(result.Warnings, o.extract.Warnings...)

		repoGraph := assembleGraph(o.extract.Modules, o.extract.Providers, o.extract.Runtimes, cfg.Analyzer)
		if o.vcsTag != "" {
			for _, n := range repoGraph.nodesByKind[NodeModule] {
				n.VCS = o.vcsTag
			}
		}
		mergeGraphs(g, repoGraph)
	}

	sort.Slice(result.Warnings, func(i, j int) bool { return result.Warnings[i].String() < result.Warnings[j].String() })

	result.Graph = g
	result.Analysis = analyse(result.Modules, result.Providers, result.Runtimes, cfg.Analyzer)

	if len(recoverable) > 0 && logger != nil {
		logger.Warn("scan completed with recoverable errors", "count", len(recoverable))
	}

	return result
}

func clampConcurrency(n int) int {
	if n <= 0 {
		return DefaultMaxGoroutines
	}
	if n > MaxSafeMaxGoroutines {
		return MaxSafeMaxGoroutines
	}
	return n
}
