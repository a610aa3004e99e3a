package main

import (
	"fmt"
	"regexp"
	"strings"
)

// SourceKind tags the ModuleSource variant, per spec §3.2.
type SourceKind int

const (
	SourceRegistry SourceKind = iota
	SourceGit
	SourceLocal
	SourceHTTP
	SourceS3
	SourceGCS
	SourceUnknown
)

// ModuleSource is the tagged union of module source shapes. Only the
// fields relevant to Kind are populated.
type ModuleSource struct {
	Kind SourceKind

	// Registry
	Hostname  string
	Namespace string
	Name      string
	Provider  string

	// Git
	Host   string
	URL    string
	Ref    string
	Subdir string

	// Local
	Path string

	// Http: URL

	// S3
	Bucket string
	Key    string
	Region string

	// Gcs: Bucket, Path is reused

	// Unknown
	Raw string
}

var (
	driveLetterPattern = regexp.MustCompile(`^[A-Za-z]:[\\/]`)

	gitPrefixPattern = regexp.MustCompile(`^git::(.+)$`)
	gitSCPPattern    = regexp.MustCompile(`^git@([^:]+):(.+)$`)
	githubBarePattern = regexp.MustCompile(`^(?:https?://)?github\.com/([^/]+)/([^/?]+?)(\.git)?(?:\?ref=([^/]+))?(?://(.+))?$`)

	s3HTTPPattern = regexp.MustCompile(`^s3::https://s3(?:-([a-z0-9-]+))?\.amazonaws\.com/([^/]+)/(.+)$`)
	s3BarePattern = regexp.MustCompile(`^s3://([^/]+)/(.+)$`)

	gcsPattern = regexp.MustCompile(`^gcs::https://(?:www\.)?googleapis\.com/storage/v1/([^/]+)/(.+)$`)

	registryHostPattern = regexp.MustCompile(`registry`)
)

// normaliseSource classifies a trimmed source string following the
// significant classification order of spec §4.B.
func normaliseSource(text string) (ModuleSource, *DriftError) {
	s := strings.TrimSpace(text)

	if isLocalPath(s) {
		return ModuleSource{Kind: SourceLocal, Path: s}, nil
	}

	if ms, ok := parseGitSource(s); ok {
		return ms, nil
	}

	if m := s3HTTPPattern.FindStringSubmatch(s); m != nil {
		return ModuleSource{Kind: SourceS3, Bucket: m[2], Key: m[3], Region: m[1]}, nil
	}
	if m := s3BarePattern.FindStringSubmatch(s); m != nil {
		return ModuleSource{Kind: SourceS3, Bucket: m[1], Key: m[2]}, nil
	}

	if m := gcsPattern.FindStringSubmatch(s); m != nil {
		return ModuleSource{Kind: SourceGCS, Bucket: m[1], Path: m[2]}, nil
	}

	if strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://") {
		if ms, ok := parseRegistryURL(s); ok {
			return ms, nil
		}
		return ModuleSource{Kind: SourceHTTP, URL: s}, nil
	}

	if ms, ok := parseRegistryShorthand(s); ok {
		return ms, nil
	}

	return ModuleSource{Kind: SourceUnknown, Raw: s},
		newDriftError(ErrSourceParse, "normaliseSource", fmt.Errorf("unrecognised module source %q", s))
}

func isLocalPath(s string) bool {
	if strings.HasPrefix(s, "./") || strings.HasPrefix(s, "../") || strings.HasPrefix(s, "/") || strings.HasPrefix(s, "~") {
		return true
	}
	return driveLetterPattern.MatchString(s)
}

func parseGitSource(s string) (ModuleSource, bool) {
	if m := gitPrefixPattern.FindStringSubmatch(s); m != nil {
		url, ref, subdir := splitRefAndSubdir(m[1])
		return ModuleSource{Kind: SourceGit, Host: "git::" + url, URL: url, Ref: ref, Subdir: subdir}, true
	}
	if m := gitSCPPattern.FindStringSubmatch(s); m != nil {
		host := m[1]
		rest, ref, subdir := splitRefAndSubdir(m[2])
		url := fmt.Sprintf("ssh://git@%s/%s", host, rest)
		return ModuleSource{Kind: SourceGit, Host: host + "/" + ensureGitSuffix(rest), URL: url, Ref: ref, Subdir: subdir}, true
	}
	if m := githubBarePattern.FindStringSubmatch(s); m != nil {
		owner, repo, ref, subdir := m[1], m[2], m[4], m[5]
		host := fmt.Sprintf("github.com/%s/%s.git", owner, repo)
		return ModuleSource{Kind: SourceGit, Host: host, URL: host, Ref: ref, Subdir: subdir}, true
	}
	return ModuleSource{}, false
}

// ensureGitSuffix forces the ".git" suffix the original's canonical Git
// host form always carries, matching source.rs's github-shorthand and
// SCP host construction.
func ensureGitSuffix(path string) string {
	if strings.HasSuffix(path, ".git") {
		return path
	}
	return path + ".git"
}

// splitRefAndSubdir pulls a trailing "?ref=R" and/or "//subdir" off a git
// URL body, in the order the spec's grammar expects (ref before subdir).
// The "//" of a scheme ("https://") is not taken as the subdir separator.
func splitRefAndSubdir(body string) (url, ref, subdir string) {
	url = body
	start := 0
	if idx := strings.Index(url, "://"); idx >= 0 {
		start = idx + len("://")
	}
	if idx := strings.Index(url[start:], "//"); idx >= 0 {
		subdir = url[start+idx+2:]
		url = url[:start+idx]
	}
	if idx := strings.Index(url, "?ref="); idx >= 0 {
		ref = url[idx+len("?ref="):]
		url = url[:idx]
	}
	return url, ref, subdir
}

func parseRegistryURL(s string) (ModuleSource, bool) {
	rest := s
	rest = strings.TrimPrefix(rest, "https://")
	rest = strings.TrimPrefix(rest, "http://")
	slash := strings.Index(rest, "/")
	if slash < 0 {
		return ModuleSource{}, false
	}
	host := rest[:slash]
	path := rest[slash+1:]
	if !registryHostPattern.MatchString(host) && host != "app.terraform.io" {
		return ModuleSource{}, false
	}
	segs := strings.Split(strings.Trim(path, "/"), "/")
	if len(segs) > 0 && segs[0] == "modules" {
		segs = segs[1:]
	}
	if len(segs) < 3 {
		return ModuleSource{}, false
	}
	return ModuleSource{Kind: SourceRegistry, Hostname: host, Namespace: segs[0], Name: segs[1], Provider: segs[2]}, true
}

func parseRegistryShorthand(s string) (ModuleSource, bool) {
	segs := strings.Split(s, "/")
	switch len(segs) {
	case 4:
		return ModuleSource{Kind: SourceRegistry, Hostname: segs[0], Namespace: segs[1], Name: segs[2], Provider: segs[3]}, true
	case 3:
		return ModuleSource{Kind: SourceRegistry, Hostname: "registry.terraform.io", Namespace: segs[0], Name: segs[1], Provider: segs[2]}, true
	default:
		return ModuleSource{}, false
	}
}

// canonicalID derives the deterministic matching key for a ModuleSource,
// per spec §3.2.
func canonicalID(ms ModuleSource) string {
	switch ms.Kind {
	case SourceRegistry:
		return fmt.Sprintf("%s/%s/%s/%s", ms.Hostname, ms.Namespace, ms.Name, ms.Provider)
	case SourceGit:
		id := ms.Host
		if ms.Ref != "" {
			id += "?ref=" + ms.Ref
		}
		if ms.Subdir != "" {
			id += "//" + ms.Subdir
		}
		return id
	case SourceLocal:
		return "local://" + ms.Path
	case SourceHTTP:
		return ms.URL
	case SourceS3:
		return fmt.Sprintf("s3://%s/%s", ms.Bucket, ms.Key)
	case SourceGCS:
		return fmt.Sprintf("gcs://%s/%s", ms.Bucket, ms.Path)
	default:
		return ms.Raw
	}
}

// deprecationKeys emits the set of lookup keys a configured deprecation
// rule may match against, per spec §4.B.
func deprecationKeys(ms ModuleSource) []string {
	switch ms.Kind {
	case SourceGit:
		seen := make(map[string]bool)
		var keys []string
		add := func(k string) {
			if k != "" && !seen[k] {
				seen[k] = true
				keys = append(keys, k)
			}
		}
		suffix := ""
		if ms.Subdir != "" {
			suffix = "//" + ms.Subdir
		}
		add(ms.Host + suffix)
		add(ms.URL + suffix)
		add("git::" + ms.URL + suffix)
		if strings.HasPrefix(ms.URL, "ssh://git@") {
			rest := strings.TrimPrefix(ms.URL, "ssh://git@")
			if idx := strings.Index(rest, "/"); idx >= 0 {
				scp := rest[:idx] + ":" + rest[idx+1:]
				add(scp + suffix)
			}
		}
		return keys
	case SourceRegistry:
		keys := []string{fmt.Sprintf("%s/%s/%s/%s", ms.Hostname, ms.Namespace, ms.Name, ms.Provider)}
		if ms.Hostname == "registry.terraform.io" {
			keys = append(keys, fmt.Sprintf("%s/%s/%s", ms.Namespace, ms.Name, ms.Provider))
		}
		return keys
	default:
		return []string{canonicalID(ms)}
	}
}
