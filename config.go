package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// AppConfig is the fully resolved configuration for one CLI invocation,
// binding viper/cobra flags and environment variables the way the teacher's
// cmd.go does in createConfigFromEnv/loadEnvironmentConfig.
type AppConfig struct {
	Paths            []string
	URLs             []string
	Platform         Platform
	Namespace        string
	PlatformBaseURL  string
	Token            string
	MaxGoroutines    int
	ContinueOnError  bool
	CloneCacheRoot   string
	DiscoveryCacheDir string
	DiscoveryTTL     time.Duration
	Verbose          bool
	OutputFormat     string
	OutputPath       string

	TargetRepos     []string
	TargetReposFile string
	MatchRegex      string
	MatchPrefix     []string
	ExcludeRegex    string
	ExcludePrefix   []string
}

func defaultAppConfig() AppConfig {
	return AppConfig{
		MaxGoroutines:     DefaultMaxGoroutines,
		ContinueOnError:   true,
		CloneCacheRoot:    filepath.Join(os.TempDir(), "driftscan", "clones"),
		DiscoveryCacheDir: filepath.Join(os.TempDir(), "driftscan", "discovery"),
		DiscoveryTTL:      24 * time.Hour,
		OutputFormat:      "json",
	}
}

// loadOptionalEnvFile loads a .env file via godotenv if present, mirroring
// the teacher's loadRequiredEnvFile but tolerant of a missing file — the
// analysis CLI should run standalone without a project-local .env.
func loadOptionalEnvFile(path string) error {
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return newDriftError(ErrConfigParse, "loadOptionalEnvFile", err).WithPath(path)
	}
	return nil
}

// bindViperDefaults wires flag and env-var binding the way the teacher's
// cmd.go binds TF_ANALYZER_* variables, renamed to this module's prefix.
func bindViperDefaults(v *viper.Viper) {
	v.SetEnvPrefix("DRIFTSCAN")
	v.AutomaticEnv()
	v.SetDefault("max_goroutines", DefaultMaxGoroutines)
	v.SetDefault("continue_on_error", true)
	v.SetDefault("output_format", "json")
}

// resolveToken applies the platform token precedence of spec §4.H via
// tokenFromEnv in vcs.go, after checking the viper-bound explicit value.
func resolveToken(v *viper.Viper, platform Platform) string {
	explicit := v.GetString("token")
	return tokenFromEnv(platform, explicit)
}

func parsePlatform(s string) (Platform, error) {
	switch s {
	case "github", "":
		return PlatformGitHub, nil
	case "gitlab":
		return PlatformGitLab, nil
	case "azure_devops", "azure-devops", "ado":
		return PlatformAzureDevOps, nil
	case "bitbucket":
		return PlatformBitbucket, nil
	default:
		return "", newDriftError(ErrConfigValue, "parsePlatform", fmt.Errorf("unknown platform %q", s))
	}
}

func validateAppConfig(cfg AppConfig) error {
	if err := validateTargetingConfiguration(cfg); err != nil {
		return newDriftError(ErrConfigValue, "validateAppConfig", err)
	}
	if len(cfg.Paths) == 0 && len(cfg.URLs) == 0 && cfg.Namespace == "" {
		return newDriftError(ErrConfigMissing, "validateAppConfig", fmt.Errorf("one of paths, urls, or namespace must be set"))
	}
	return nil
}
