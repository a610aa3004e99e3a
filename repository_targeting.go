package main

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/samber/lo"
)

// ============================================================================
// REPOSITORY TARGETING - include/exclude filtering for organisation scans
// ============================================================================

// readTargetReposFromFile reads repository names from a file
func readTargetReposFromFile(filePath string) ([]string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read target repos file %s: %w", filePath, err)
	}
	defer func() {
		_ = file.Close() // Ignore close error for read-only operations
	}()

	var repos []string
	scanner := bufio.NewScanner(file)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		// Skip empty lines and comments
		if line != "" && !strings.HasPrefix(line, "#") {
			repos = append(repos, line)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan target repos file %s: %w", filePath, err)
	}

	return repos, nil
}

// validateRegexPattern validates a regex pattern
func validateRegexPattern(pattern string) error {
	if pattern == "" {
		return nil // Empty pattern is valid
	}

	_, err := regexp.Compile(pattern)
	if err != nil {
		return fmt.Errorf("invalid regex pattern '%s': %w", pattern, err)
	}

	return nil
}

// validateTargetingConfiguration validates repository targeting configuration
func validateTargetingConfiguration(config AppConfig) error {
	// Validate conflicting target options
	if len(config.TargetRepos) > 0 && config.TargetReposFile != "" {
		return fmt.Errorf("cannot specify both --target-repos and --target-repos-file")
	}

	// Validate conflicting match options
	if config.MatchRegex != "" && len(config.MatchPrefix) > 0 {
		return fmt.Errorf("cannot specify both --match-regex and --match-prefix")
	}

	// Validate conflicting exclude options
	if config.ExcludeRegex != "" && len(config.ExcludePrefix) > 0 {
		return fmt.Errorf("cannot specify both --exclude-regex and --exclude-prefix")
	}

	// Validate regex patterns
	if err := validateRegexPattern(config.MatchRegex); err != nil {
		return fmt.Errorf("invalid match regex: %w", err)
	}

	if err := validateRegexPattern(config.ExcludeRegex); err != nil {
		return fmt.Errorf("invalid exclude regex: %w", err)
	}

	return nil
}

// TargetingOptions is the subset of AppConfig that governs which
// discovered repositories make it into the scan batch.
type TargetingOptions struct {
	TargetRepos     []string
	TargetReposFile string
	MatchRegex      string
	MatchPrefix     []string
	ExcludeRegex    string
	ExcludePrefix   []string
}

func targetingOptionsFromConfig(cfg AppConfig) TargetingOptions {
	return TargetingOptions{
		TargetRepos:     cfg.TargetRepos,
		TargetReposFile: cfg.TargetReposFile,
		MatchRegex:      cfg.MatchRegex,
		MatchPrefix:     cfg.MatchPrefix,
		ExcludeRegex:    cfg.ExcludeRegex,
		ExcludePrefix:   cfg.ExcludePrefix,
	}
}

// filterRepositoriesByTargeting applies the resolved target/match/exclude
// options to a discovered repository list; the orchestrator calls it after
// the archived/fork post-filter it runs per spec §4.F.
func filterRepositoriesByTargeting(repos []VcsRepository, cfg TargetingOptions) ([]VcsRepository, error) {
	targets := cfg.TargetRepos
	if cfg.TargetReposFile != "" {
		fromFile, err := readTargetReposFromFile(cfg.TargetReposFile)
		if err != nil {
			return nil, err
		}
		targets = fromFile
	}
	targetSet := lo.SliceToMap(targets, func(t string) (string, bool) { return t, true })

	var matchRe *regexp.Regexp
	if cfg.MatchRegex != "" {
		var err error
		matchRe, err = regexp.Compile(cfg.MatchRegex)
		if err != nil {
			return nil, fmt.Errorf("invalid match regex: %w", err)
		}
	}
	var excludeRe *regexp.Regexp
	if cfg.ExcludeRegex != "" {
		var err error
		excludeRe, err = regexp.Compile(cfg.ExcludeRegex)
		if err != nil {
			return nil, fmt.Errorf("invalid exclude regex: %w", err)
		}
	}

	return lo.Filter(repos, func(r VcsRepository, _ int) bool {
		if len(targetSet) > 0 && !targetSet[r.Name] {
			return false
		}
		if matchRe != nil && !matchRe.MatchString(r.Name) {
			return false
		}
		if len(cfg.MatchPrefix) > 0 && !hasAnyPrefix(r.Name, cfg.MatchPrefix) {
			return false
		}
		if excludeRe != nil && excludeRe.MatchString(r.Name) {
			return false
		}
		if len(cfg.ExcludePrefix) > 0 && hasAnyPrefix(r.Name, cfg.ExcludePrefix) {
			return false
		}
		return true
	}), nil
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}