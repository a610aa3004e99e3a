package main

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclparse"
	hcljson "github.com/hashicorp/hcl/v2/json"
	"github.com/zclconf/go-cty/cty"
)

// ModuleRef is one module block reference, per spec §3.3.
type ModuleRef struct {
	Name       string
	Source     ModuleSource
	Constraint *Constraint
	File       string
	Line       int
	Repository string
	Attrs      map[string]string
}

// ProviderRef is one required_providers entry, per spec §3.3.
type ProviderRef struct {
	LocalName       string
	QualifiedSource string
	Constraint      *Constraint
	File            string
	Line            int
	Repository      string
}

// RuntimeRef is a terraform/opentofu required_version reference.
type RuntimeRef struct {
	RuntimeName string
	Constraint  Constraint
	Source      ModuleSource
	File        string
	Line        int
	Repository  string
}

var skipBasenames = map[string]bool{
	".terraform":           true,
	".terragrunt-cache":    true,
	"terraform.tfstate":    true,
}

// ExtractConfig tunes HCL extraction behaviour.
type ExtractConfig struct {
	Repository       string
	ExcludeGlobs     []string
	ContinueOnError  bool
}

// ExtractResult is the accumulated output of a directory-level extraction.
type ExtractResult struct {
	Modules   []ModuleRef
	Providers []ProviderRef
	Runtimes  []RuntimeRef
	Files     []string
	Warnings  []ScanWarning
}

// extractDirectory walks root recursively, following symlinked directories,
// reading every .tf/.tf.json file, per spec §4.C.
func extractDirectory(root string, cfg ExtractConfig) (ExtractResult, error) {
	repo := cfg.Repository
	if repo == "" {
		repo = filepath.Base(root)
	}
	var result ExtractResult

	if walkErr := walkExtract(root, cfg, repo, &result, map[string]bool{}); walkErr != nil {
		return result, newDriftError(ErrIO, "extractDirectory", walkErr).WithPath(root).WithRepo(repo)
	}
	return result, nil
}

// walkExtract recurses dir, dereferencing symlinked entries via os.Stat so
// a symlinked module directory is walked like a real one. visited tracks
// resolved real paths to break symlink cycles.
func walkExtract(dir string, cfg ExtractConfig, repo string, result *ExtractResult, visited map[string]bool) error {
	real, err := filepath.EvalSymlinks(dir)
	if err != nil {
		return err
	}
	if visited[real] {
		return nil
	}
	visited[real] = true

	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		base := entry.Name()
		p := filepath.Join(dir, base)
		info, statErr := os.Stat(p)
		if statErr != nil {
			continue
		}
		if info.IsDir() {
			if shouldSkipDir(base) || matchesAnyGlob(cfg.ExcludeGlobs, base) {
				continue
			}
			if err := walkExtract(p, cfg, repo, result, visited); err != nil {
				return err
			}
			continue
		}
		if !strings.HasSuffix(base, ".tf") && !strings.HasSuffix(base, ".tf.json") {
			continue
		}
		if matchesAnyGlob(cfg.ExcludeGlobs, base) {
			continue
		}
		result.Files = append(result.Files, p)
		if fileErr := extractFile(p, repo, result); fileErr != nil {
			if cfg.ContinueOnError {
				result.Warnings = append(result.Warnings, ScanWarning{
					Code: "EXTRACT_FILE", Message: fileErr.Error(), File: p, Repository: repo,
				})
				continue
			}
			return fileErr
		}
	}
	return nil
}

func matchesAnyGlob(globs []string, base string) bool {
	for _, g := range globs {
		if ok, _ := path.Match(g, base); ok {
			return true
		}
	}
	return false
}

func shouldSkipDir(base string) bool {
	if strings.HasPrefix(base, ".") {
		return true
	}
	return skipBasenames[base]
}

func extractFile(p, repo string, result *ExtractResult) error {
	src, err := os.ReadFile(p)
	if err != nil {
		return newDriftError(ErrIO, "extractFile", err).WithPath(p).WithRepo(repo)
	}

	parser := hclparse.NewParser()
	var (
		file  *hcl.File
		diags hcl.Diagnostics
	)
	if strings.HasSuffix(p, ".tf.json") {
		file, diags = hcljson.Parse(src, p)
	} else {
		file, diags = parser.ParseHCL(src, p)
	}
	if diags.HasErrors() {
		return newDriftError(ErrHCLParse, "extractFile", diags).WithPath(p).WithRepo(repo)
	}

	body := file.Body
	schema := &hcl.BodySchema{
		Blocks: []hcl.BlockHeaderSchema{
			{Type: "module", LabelNames: []string{"name"}},
			{Type: "terraform"},
		},
	}
	content, _, _ := body.PartialContent(schema)

	for _, block := range content.Blocks {
		switch block.Type {
		case "module":
			if ref, warn, err := extractModuleBlock(block, p, repo); err != nil {
				return err
			} else if warn != nil {
				result.Warnings = append(result.Warnings, *warn)
			} else if ref != nil {
				result.Modules = append(result.Modules, *ref)
			}
		case "terraform":
			providers, runtimes, warnings := extractTerraformBlock(block, p, repo)
			result.Providers = append(result.Providers, providers...)
			result.Runtimes = append(result.Runtimes, runtimes...)
			result.Warnings = append(result.Warnings, warnings...)
		}
	}
	return nil
}

func blockLine(block *hcl.Block) int {
	return block.DefRange.Start.Line
}

func extractModuleBlock(block *hcl.Block, file, repo string) (*ModuleRef, *ScanWarning, error) {
	attrs, _ := block.Body.JustAttributes()
	name := ""
	if len(block.Labels) > 0 {
		name = block.Labels[0]
	}
	line := blockLine(block)

	sourceAttr, ok := attrs["source"]
	if !ok {
		return nil, &ScanWarning{
			Code: "MODULE_MISSING_SOURCE", Message: fmt.Sprintf("module %q missing source attribute", name),
			File: file, Line: line, Repository: repo,
		}, nil
	}
	sourceVal, diags := sourceAttr.Expr.Value(nil)
	if diags.HasErrors() || sourceVal.Type() != cty.String {
		return nil, &ScanWarning{
			Code: "MODULE_BAD_SOURCE", Message: fmt.Sprintf("module %q source is not a string literal", name),
			File: file, Line: line, Repository: repo,
		}, nil
	}
	ms, _ := normaliseSource(sourceVal.AsString())
	// An unrecognised source still yields a SourceUnknown value; the
	// extractor does not fail the module block over it.

	ref := &ModuleRef{
		Name: name, Source: ms, File: file, Line: line, Repository: repo,
		Attrs: make(map[string]string),
	}

	if versionAttr, ok := attrs["version"]; ok {
		if v, diags := versionAttr.Expr.Value(nil); !diags.HasErrors() && v.Type() == cty.String {
			c, err := parseConstraint(v.AsString())
			if err != nil {
				return ref, &ScanWarning{
					Code: "VERSION_PARSE", Message: err.Error(), File: file, Line: line, Repository: repo,
				}, nil
			}
			ref.Constraint = &c
		}
	}

	for k, attr := range attrs {
		if k == "source" || k == "version" {
			continue
		}
		if v, diags := attr.Expr.Value(nil); !diags.HasErrors() && v.Type() == cty.String {
			ref.Attrs[k] = v.AsString()
		}
	}

	return ref, nil, nil
}

func extractTerraformBlock(block *hcl.Block, file, repo string) ([]ProviderRef, []RuntimeRef, []ScanWarning) {
	var providers []ProviderRef
	var runtimes []RuntimeRef
	var warnings []ScanWarning

	innerSchema := &hcl.BodySchema{
		Blocks: []hcl.BlockHeaderSchema{{Type: "required_providers"}},
	}
	content, _, _ := block.Body.PartialContent(innerSchema)

	attrs, _ := block.Body.JustAttributes()
	if rv, ok := attrs["required_version"]; ok {
		if v, diags := rv.Expr.Value(nil); !diags.HasErrors() && v.Type() == cty.String {
			c, err := parseConstraint(v.AsString())
			if err != nil {
				warnings = append(warnings, ScanWarning{
					Code: "VERSION_PARSE", Message: err.Error(), File: file, Line: blockLine(block), Repository: repo,
				})
			} else {
				ms, _ := normaliseSource(".")
				runtimes = append(runtimes, RuntimeRef{
					RuntimeName: "terraform", Constraint: c, Source: ms,
					File: file, Line: blockLine(block), Repository: repo,
				})
			}
		}
	}

	for _, rpBlock := range content.Blocks {
		rpAttrs, _ := rpBlock.Body.JustAttributes()
		for name, attr := range rpAttrs {
			line := attr.Range.Start.Line
			val, diags := attr.Expr.Value(nil)
			if diags.HasErrors() {
				continue
			}
			switch {
			case val.Type() == cty.String:
				c, err := parseConstraint(val.AsString())
				pr := ProviderRef{LocalName: name, QualifiedSource: "", File: file, Line: line, Repository: repo}
				if err == nil {
					pr.Constraint = &c
				} else {
					warnings = append(warnings, ScanWarning{Code: "VERSION_PARSE", Message: err.Error(), File: file, Line: line, Repository: repo})
				}
				providers = append(providers, pr)
			case val.Type().IsObjectType() || val.Type().IsMapType():
				pr := ProviderRef{LocalName: name, File: file, Line: line, Repository: repo}
				m := val.AsValueMap()
				if src, ok := m["source"]; ok && src.Type() == cty.String {
					pr.QualifiedSource = src.AsString()
				}
				if ver, ok := m["version"]; ok && ver.Type() == cty.String {
					c, err := parseConstraint(ver.AsString())
					if err == nil {
						pr.Constraint = &c
					} else {
						warnings = append(warnings, ScanWarning{Code: "VERSION_PARSE", Message: err.Error(), File: file, Line: line, Repository: repo})
					}
				}
				providers = append(providers, pr)
			}
		}
	}

	for i := range providers {
		if providers[i].QualifiedSource == "" {
			providers[i].QualifiedSource = "hashicorp/" + providers[i].LocalName
		}
	}

	return providers, runtimes, warnings
}
