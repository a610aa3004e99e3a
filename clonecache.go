package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	retry "github.com/avast/retry-go"
)

// CloneOutcome tags which of the three ensure() branches ran, per spec
// §4.G.
type CloneOutcome int

const (
	CloneHit CloneOutcome = iota
	CloneUpdated
	CloneMiss
)

// CloneResult is the value ensure() returns.
type CloneResult struct {
	Outcome CloneOutcome
	Path    string
	OldSHA  string
	SHA     string
}

// cacheMeta is the ".cache-meta" sidecar file adjacent to each entry.
type cacheMeta struct {
	URL          string `json:"url"`
	HeadSHA      string `json:"head_sha"`
	Branch       string `json:"branch,omitempty"`
	LastUpdated  int64  `json:"last_updated"`
	LastAccessed int64  `json:"last_accessed"`
}

// CloneCache is the content-addressable on-disk store of working trees
// described in spec §4.G, shelling out to the local git binary rather than
// wrapping the teacher's ghorg CLI (see DESIGN.md for why ghorg was
// dropped).
type CloneCache struct {
	Root           string
	FreshThreshold time.Duration
	RetryAttempts  uint
}

func newCloneCache(root string) *CloneCache {
	return &CloneCache{Root: root, FreshThreshold: 5 * time.Minute, RetryAttempts: 3}
}

var adoSegmentPattern = regexp.MustCompile(`/_git/`)
var commonSuffixPattern = regexp.MustCompile(`(\.git)$`)

// cacheKey derives a human-readable slug from the URL's last two path
// components, Azure DevOps "_git" segments collapsed, common suffixes
// stripped, concatenated with an 8-hex-digit truncated hash of the full
// URL, per spec §4.G.
func cacheKey(url string) string {
	clean := adoSegmentPattern.ReplaceAllString(url, "/")
	clean = commonSuffixPattern.ReplaceAllString(clean, "")
	clean = strings.TrimRight(clean, "/")
	segs := strings.Split(clean, "/")
	slugParts := segs
	if len(segs) > 2 {
		slugParts = segs[len(segs)-2:]
	}
	slug := strings.Join(slugParts, "-")
	slug = sanitizeSlug(slug)
	sum := sha256.Sum256([]byte(url))
	return fmt.Sprintf("%s-%s", slug, hex.EncodeToString(sum[:])[:8])
}

func sanitizeSlug(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	return b.String()
}

func (c *CloneCache) entryDir(key string) string {
	return filepath.Join(c.Root, key)
}

func (c *CloneCache) metaPath(key string) string {
	return filepath.Join(c.entryDir(key), ".cache-meta")
}

func readMeta(path string) (cacheMeta, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return cacheMeta{}, false
	}
	var m cacheMeta
	if err := json.Unmarshal(data, &m); err != nil {
		return cacheMeta{}, false
	}
	return m, true
}

func writeMeta(path string, m cacheMeta) error {
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// ensure returns a local filesystem path for url, following the three-step
// freshness/fetch/clone policy of spec §4.G.
func (c *CloneCache) ensure(ctx context.Context, url string, branch string) (CloneResult, error) {
	key := cacheKey(url)
	dir := c.entryDir(key)
	metaPath := c.metaPath(key)

	if meta, ok := readMeta(metaPath); ok {
		age := nowFunc().Unix() - meta.LastUpdated
		if time.Duration(age)*time.Second < c.FreshThreshold {
			meta.LastAccessed = nowFunc().Unix()
			_ = writeMeta(metaPath, meta)
			return CloneResult{Outcome: CloneHit, Path: dir, SHA: meta.HeadSHA}, nil
		}
		result, err := c.refresh(ctx, dir, metaPath, meta, branch)
		if err == nil {
			return result, nil
		}
		_ = os.RemoveAll(dir)
	}

	return c.cloneFresh(ctx, dir, metaPath, url, branch)
}

func (c *CloneCache) refresh(ctx context.Context, dir, metaPath string, meta cacheMeta, branch string) (CloneResult, error) {
	fetchArgs := []string{"fetch", "origin", "--depth=1"}
	if branch != "" {
		fetchArgs = append(fetchArgs, branch)
	}
	if err := c.runGitRetry(ctx, dir, fetchArgs...); err != nil {
		return CloneResult{}, err
	}

	resetRef := "origin/HEAD"
	if branch != "" {
		resetRef = "origin/" + branch
	}
	if err := c.runGit(ctx, dir, "reset", "--hard", resetRef); err != nil {
		if err2 := c.runGit(ctx, dir, "reset", "--hard", "FETCH_HEAD"); err2 != nil {
			return CloneResult{}, err2
		}
	}

	sha, err := c.revParseHead(ctx, dir)
	if err != nil {
		return CloneResult{}, err
	}

	now := nowFunc().Unix()
	if sha == meta.HeadSHA {
		meta.LastUpdated = now
		meta.LastAccessed = now
		_ = writeMeta(metaPath, meta)
		return CloneResult{Outcome: CloneHit, Path: dir, SHA: sha}, nil
	}
	old := meta.HeadSHA
	meta.HeadSHA = sha
	meta.LastUpdated = now
	meta.LastAccessed = now
	_ = writeMeta(metaPath, meta)
	return CloneResult{Outcome: CloneUpdated, Path: dir, OldSHA: old, SHA: sha}, nil
}

func (c *CloneCache) cloneFresh(ctx context.Context, dir, metaPath, url, branch string) (CloneResult, error) {
	if err := os.MkdirAll(filepath.Dir(dir), 0o755); err != nil {
		return CloneResult{}, newDriftError(ErrIO, "cloneFresh", err).WithPath(dir)
	}
	args := []string{"clone", "--depth=1"}
	if branch != "" {
		args = append(args, "--branch", branch)
	}
	args = append(args, url, dir)
	if err := c.runGitRetry(ctx, "", args...); err != nil {
		return CloneResult{}, newDriftError(ErrGitClone, "cloneFresh", err).WithPath(url)
	}
	sha, err := c.revParseHead(ctx, dir)
	if err != nil {
		return CloneResult{}, err
	}
	now := nowFunc().Unix()
	meta := cacheMeta{URL: url, HeadSHA: sha, Branch: branch, LastUpdated: now, LastAccessed: now}
	if err := writeMeta(metaPath, meta); err != nil {
		return CloneResult{}, newDriftError(ErrIO, "cloneFresh", err).WithPath(metaPath)
	}
	return CloneResult{Outcome: CloneMiss, Path: dir, SHA: sha}, nil
}

func (c *CloneCache) revParseHead(ctx context.Context, dir string) (string, error) {
	out, err := c.runGitOutput(ctx, dir, "rev-parse", "HEAD")
	if err != nil {
		return "", newDriftError(ErrGit, "revParseHead", err).WithPath(dir)
	}
	return strings.TrimSpace(out), nil
}

func (c *CloneCache) runGit(ctx context.Context, dir string, args ...string) error {
	_, err := c.runGitOutput(ctx, dir, args...)
	return err
}

func (c *CloneCache) runGitOutput(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	if dir != "" {
		cmd.Dir = dir
	}
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, string(out))
	}
	return string(out), nil
}

// runGitRetry wraps fetch/clone invocations with avast/retry-go's
// exponential-backoff retry, matching the retry-with-backoff idiom the
// teacher applies to its own clone operations in cloner.go.
func (c *CloneCache) runGitRetry(ctx context.Context, dir string, args ...string) error {
	return retry.Do(
		func() error { return c.runGit(ctx, dir, args...) },
		retry.Attempts(c.RetryAttempts),
		retry.Context(ctx),
		retry.DelayType(retry.BackOffDelay),
	)
}

// cleanup enumerates entries, orders them by last_accessed ascending, and
// removes the oldest until the count is within maxEntries, per spec §4.G.
func (c *CloneCache) cleanup(maxEntries int) error {
	entries, err := os.ReadDir(c.Root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return newDriftError(ErrIO, "cleanup", err).WithPath(c.Root)
	}
	type candidate struct {
		key          string
		lastAccessed int64
	}
	var candidates []candidate
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		meta, ok := readMeta(c.metaPath(e.Name()))
		if !ok {
			continue
		}
		candidates = append(candidates, candidate{key: e.Name(), lastAccessed: meta.LastAccessed})
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].lastAccessed < candidates[j].lastAccessed })
	if len(candidates) <= maxEntries {
		return nil
	}
	toRemove := candidates[:len(candidates)-maxEntries]
	for _, c2 := range toRemove {
		if err := os.RemoveAll(c.entryDir(c2.key)); err != nil {
			return newDriftError(ErrIO, "cleanup", err).WithPath(c2.key)
		}
	}
	return nil
}
