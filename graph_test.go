package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func moduleRef(name, source, repo string) ModuleRef {
	ms, _ := normaliseSource(source)
	return ModuleRef{Name: name, Source: ms, File: "main.tf", Line: 1, Repository: repo}
}

func providerRef(localName, qualified, repo string) ProviderRef {
	return ProviderRef{LocalName: localName, QualifiedSource: qualified, File: "main.tf", Line: 1, Repository: repo}
}

func TestAssembleGraphModuleProviderEdge(t *testing.T) {
	modules := []ModuleRef{moduleRef("vpc", "terraform-aws-modules/vpc/aws", "repo-a")}
	providers := []ProviderRef{providerRef("aws", "hashicorp/aws", "repo-a")}

	g := assembleGraph(modules, providers, nil, defaultAnalyzerConfig())

	moduleID := moduleNodeID("repo-a", canonicalID(modules[0].Source), "vpc")
	providerID := providerNodeID("repo-a", "hashicorp/aws")
	_, moduleExists := g.node(moduleID)
	_, providerExists := g.node(providerID)
	require.True(t, moduleExists)
	require.True(t, providerExists)

	found := false
	for _, e := range g.edges {
		if e.From == moduleID && e.To == providerID && e.Type == EdgeModuleRequiresProvider {
			found = true
		}
	}
	assert.True(t, found, "expected a ModuleRequiresProvider edge")
}

func TestAssembleGraphGitProviderInference(t *testing.T) {
	modules := []ModuleRef{moduleRef("vpc", "git::https://github.com/terraform-aws-modules/terraform-aws-vpc.git", "repo-a")}
	providers := []ProviderRef{providerRef("aws", "hashicorp/aws", "repo-a")}

	g := assembleGraph(modules, providers, nil, defaultAnalyzerConfig())
	moduleID := moduleNodeID("repo-a", canonicalID(modules[0].Source), "vpc")
	providerID := providerNodeID("repo-a", "hashicorp/aws")

	found := false
	for _, e := range g.edges {
		if e.From == moduleID && e.To == providerID {
			found = true
		}
	}
	assert.True(t, found)

	cfg := defaultAnalyzerConfig()
	cfg.InferGitProviders = false
	g2 := assembleGraph(modules, providers, nil, cfg)
	assert.Empty(t, g2.edges, "inference disabled must produce no edges")
}

func TestAssembleGraphLocalModuleEdgeIsInexact(t *testing.T) {
	modules := []ModuleRef{
		moduleRef("root", "./vpc", "repo-a"),
		{Name: "vpc", Source: ModuleSource{Kind: SourceLocal, Path: "./modules/vpc"}, Repository: "repo-a"},
	}
	g := assembleGraph(modules, nil, nil, defaultAnalyzerConfig())

	require.NotEmpty(t, g.edges)
	for _, e := range g.edges {
		if e.Type == EdgeLocalModuleRef {
			assert.True(t, e.Inexact, "local module edges must be flagged inexact")
		}
	}
}

func TestAddNodeFirstInsertWins(t *testing.T) {
	g := newGraph()
	first := &Node{ID: "module:repo:a:b", Kind: NodeModule, VCS: "first"}
	second := &Node{ID: "module:repo:a:b", Kind: NodeModule, VCS: "second"}
	g.addNode(first)
	g.addNode(second)
	n, _ := g.node("module:repo:a:b")
	assert.Equal(t, "first", n.VCS)
}

func TestAddEdgeRequiresBothEndpoints(t *testing.T) {
	g := newGraph()
	g.addNode(&Node{ID: "a", Kind: NodeModule})
	ok := g.addEdge(Edge{From: "a", To: "missing", Type: EdgeModuleDependsOn})
	assert.False(t, ok)
}

func TestAddEdgeDedupesSameType(t *testing.T) {
	g := newGraph()
	g.addNode(&Node{ID: "a", Kind: NodeModule})
	g.addNode(&Node{ID: "b", Kind: NodeModule})
	assert.True(t, g.addEdge(Edge{From: "a", To: "b", Type: EdgeModuleDependsOn}))
	assert.False(t, g.addEdge(Edge{From: "a", To: "b", Type: EdgeModuleDependsOn}))
	assert.Len(t, g.edges, 1)
}

// TestMergeGraphsIdempotent is Testable Property #4 (spec §8): merging the
// same source graph into a destination a second time leaves the
// destination's node/edge counts unchanged.
func TestMergeGraphsIdempotent(t *testing.T) {
	modules := []ModuleRef{moduleRef("vpc", "terraform-aws-modules/vpc/aws", "repo-a")}
	providers := []ProviderRef{providerRef("aws", "hashicorp/aws", "repo-a")}
	src := assembleGraph(modules, providers, nil, defaultAnalyzerConfig())

	dst := newGraph()
	mergeGraphs(dst, src)
	nodeCount := len(dst.nodesByID)
	edgeCount := len(dst.edges)

	mergeGraphs(dst, src)
	assert.Equal(t, nodeCount, len(dst.nodesByID))
	assert.Equal(t, edgeCount, len(dst.edges))
}

func TestMergeGraphsCopiesVCSWhenMissing(t *testing.T) {
	dst := newGraph()
	dst.addNode(&Node{ID: "module:repo:a:b", Kind: NodeModule})

	src := newGraph()
	src.addNode(&Node{ID: "module:repo:a:b", Kind: NodeModule, VCS: "vcs:github:o:r"})

	mergeGraphs(dst, src)
	n, _ := dst.node("module:repo:a:b")
	assert.Equal(t, "vcs:github:o:r", n.VCS)
}

func TestGroupModulesBySourceSortedKeys(t *testing.T) {
	modules := []ModuleRef{
		moduleRef("b", "zeta/mod/aws", "repo"),
		moduleRef("a", "alpha/mod/aws", "repo"),
	}
	groups := groupModulesBySource(modules)
	require.Len(t, groups, 2)
	assert.True(t, groups[0].Key < groups[1].Key)
}

func TestExportJSONRoundTripsShape(t *testing.T) {
	modules := []ModuleRef{moduleRef("vpc", "terraform-aws-modules/vpc/aws", "repo-a")}
	providers := []ProviderRef{providerRef("aws", "hashicorp/aws", "repo-a")}
	g := assembleGraph(modules, providers, nil, defaultAnalyzerConfig())

	out, err := g.ExportJSON()
	require.NoError(t, err)
	assert.Len(t, out.Nodes, 2)
	assert.NotEmpty(t, out.Edges)
}

func TestExportDOTContainsNodesAndEdges(t *testing.T) {
	modules := []ModuleRef{moduleRef("vpc", "terraform-aws-modules/vpc/aws", "repo-a")}
	providers := []ProviderRef{providerRef("aws", "hashicorp/aws", "repo-a")}
	g := assembleGraph(modules, providers, nil, defaultAnalyzerConfig())

	dot := g.ExportDOT()
	assert.Contains(t, dot, "digraph driftscan")
	assert.Contains(t, dot, "->")
}
