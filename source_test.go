package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormaliseSourceLocal(t *testing.T) {
	for _, s := range []string{"./modules/vpc", "../shared/vpc", "/abs/path", "~/modules/vpc"} {
		ms, err := normaliseSource(s)
		require.Nil(t, err)
		assert.Equal(t, SourceLocal, ms.Kind)
		assert.Equal(t, s, ms.Path)
	}
}

func TestNormaliseSourceGit(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		wantHost   string
		wantRef    string
		wantSubdir string
	}{
		{"git:: prefix with ref", "git::https://example.com/vpc.git?ref=v1.0.0", "git::https://example.com/vpc.git", "v1.0.0", ""},
		{"scp form", "git@github.com:hashicorp/terraform-aws-vpc.git", "github.com/hashicorp/terraform-aws-vpc.git", "", ""},
		{"bare github with subdir", "github.com/hashicorp/terraform-aws-vpc//modules/vpc", "github.com/hashicorp/terraform-aws-vpc.git", "", "modules/vpc"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ms, err := normaliseSource(tc.input)
			require.Nil(t, err)
			assert.Equal(t, SourceGit, ms.Kind)
			assert.Equal(t, tc.wantHost, ms.Host)
			assert.Equal(t, tc.wantRef, ms.Ref)
			assert.Equal(t, tc.wantSubdir, ms.Subdir)
		})
	}
}

// TestCanonicalIDGitSCPBoundary pins the §8 boundary case: an SCP-form Git
// source with both a ref and a subdir canonicalises from the host, never
// the clone URL.
func TestCanonicalIDGitSCPBoundary(t *testing.T) {
	ms, err := normaliseSource("git@github.com:o/r.git?ref=v1//sub")
	require.Nil(t, err)
	assert.Equal(t, "github.com/o/r.git?ref=v1//sub", canonicalID(ms))
}

func TestNormaliseSourceRegistryShorthand(t *testing.T) {
	ms, err := normaliseSource("terraform-aws-modules/vpc/aws")
	require.Nil(t, err)
	assert.Equal(t, SourceRegistry, ms.Kind)
	assert.Equal(t, "registry.terraform.io", ms.Hostname)
	assert.Equal(t, "terraform-aws-modules", ms.Namespace)
	assert.Equal(t, "vpc", ms.Name)
	assert.Equal(t, "aws", ms.Provider)
}

func TestNormaliseSourceRegistryFourPart(t *testing.T) {
	ms, err := normaliseSource("app.terraform.io/example-corp/vpc/aws")
	require.Nil(t, err)
	assert.Equal(t, SourceRegistry, ms.Kind)
	assert.Equal(t, "app.terraform.io", ms.Hostname)
}

func TestNormaliseSourceS3(t *testing.T) {
	ms, err := normaliseSource("s3::https://s3-us-east-1.amazonaws.com/my-bucket/vpc/module.zip")
	require.Nil(t, err)
	assert.Equal(t, SourceS3, ms.Kind)
	assert.Equal(t, "my-bucket", ms.Bucket)
	assert.Equal(t, "us-east-1", ms.Region)
}

func TestNormaliseSourceGCS(t *testing.T) {
	ms, err := normaliseSource("gcs::https://www.googleapis.com/storage/v1/my-bucket/vpc/module.zip")
	require.Nil(t, err)
	assert.Equal(t, SourceGCS, ms.Kind)
	assert.Equal(t, "my-bucket", ms.Bucket)
}

func TestNormaliseSourceUnknownRecordsError(t *testing.T) {
	ms, err := normaliseSource("???not-a-source???")
	require.NotNil(t, err)
	assert.Equal(t, SourceUnknown, ms.Kind)
	assert.Equal(t, ErrSourceParse, err.Kind)
}

// TestCanonicalIDStability is Testable Property #3 (spec §8): canonicalID
// is a pure function of the parsed ModuleSource, independent of incidental
// textual variation that normalises to the same value.
func TestCanonicalIDStability(t *testing.T) {
	a, err := normaliseSource("terraform-aws-modules/vpc/aws")
	require.Nil(t, err)
	b, err := normaliseSource("registry.terraform.io/terraform-aws-modules/vpc/aws")
	require.Nil(t, err)
	assert.Equal(t, canonicalID(a), canonicalID(b))
}

func TestDeprecationKeysGitDedup(t *testing.T) {
	ms, err := normaliseSource("git::https://github.com/hashicorp/terraform-aws-vpc.git?ref=v1.0.0")
	require.Nil(t, err)
	keys := deprecationKeys(ms)
	assert.NotEmpty(t, keys)
	seen := map[string]bool{}
	for _, k := range keys {
		assert.False(t, seen[k], "duplicate key %q", k)
		seen[k] = true
	}
}

func TestDeprecationKeysRegistryShortForm(t *testing.T) {
	ms, err := normaliseSource("terraform-aws-modules/vpc/aws")
	require.Nil(t, err)
	keys := deprecationKeys(ms)
	assert.Contains(t, keys, "registry.terraform.io/terraform-aws-modules/vpc/aws")
	assert.Contains(t, keys, "terraform-aws-modules/vpc/aws")
}
