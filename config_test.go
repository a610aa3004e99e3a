package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePlatform(t *testing.T) {
	tests := []struct {
		input string
		want  Platform
	}{
		{"", PlatformGitHub},
		{"github", PlatformGitHub},
		{"gitlab", PlatformGitLab},
		{"azure_devops", PlatformAzureDevOps},
		{"azure-devops", PlatformAzureDevOps},
		{"ado", PlatformAzureDevOps},
		{"bitbucket", PlatformBitbucket},
	}
	for _, tc := range tests {
		t.Run(tc.input, func(t *testing.T) {
			got, err := parsePlatform(tc.input)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestParsePlatformRejectsUnknown(t *testing.T) {
	_, err := parsePlatform("not-a-platform")
	require.Error(t, err)
	var de *DriftError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, ErrConfigValue, de.Kind)
}

func TestValidateAppConfigRequiresATarget(t *testing.T) {
	err := validateAppConfig(defaultAppConfig())
	require.Error(t, err)
	var de *DriftError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, ErrConfigMissing, de.Kind)
}

func TestValidateAppConfigAcceptsPaths(t *testing.T) {
	cfg := defaultAppConfig()
	cfg.Paths = []string{"./somewhere"}
	assert.NoError(t, validateAppConfig(cfg))
}

func TestValidateAppConfigRejectsConflictingTargeting(t *testing.T) {
	cfg := defaultAppConfig()
	cfg.Namespace = "myorg"
	cfg.TargetRepos = []string{"a"}
	cfg.TargetReposFile = "repos.txt"
	err := validateAppConfig(cfg)
	require.Error(t, err)
}

func TestLoadOptionalEnvFileMissingIsNotAnError(t *testing.T) {
	assert.NoError(t, loadOptionalEnvFile(filepath.Join(t.TempDir(), "nope.env")))
}

func TestLoadOptionalEnvFileLoadsPresentFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("DRIFTSCAN_TOKEN=from-file\n"), 0o644))

	withEnvVars(t, map[string]string{"DRIFTSCAN_TOKEN": ""})

	require.NoError(t, loadOptionalEnvFile(path))
}

func TestBindViperDefaultsSetsExpectedDefaults(t *testing.T) {
	v := viper.New()
	bindViperDefaults(v)
	assert.Equal(t, DefaultMaxGoroutines, v.GetInt("max_goroutines"))
	assert.True(t, v.GetBool("continue_on_error"))
	assert.Equal(t, "json", v.GetString("output_format"))
}

func TestResolveTokenPrefersExplicitViperValue(t *testing.T) {
	v := viper.New()
	v.Set("token", "explicit-token")
	assert.Equal(t, "explicit-token", resolveToken(v, PlatformGitHub))
}
