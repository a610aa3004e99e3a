package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// ============================================================================
// CLI - cobra root command, flag/env binding via viper, slog initialisation
// ============================================================================

var vcfg = viper.New()

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "driftscan",
		Short: "Detect version-constraint drift across Terraform/OpenTofu repositories",
	}
	root.PersistentFlags().Bool("verbose", false, "enable debug logging")
	root.PersistentFlags().String("env-file", "", "path to a .env file (default .env if present)")
	_ = vcfg.BindPFlag("verbose", root.PersistentFlags().Lookup("verbose"))
	_ = vcfg.BindPFlag("env_file", root.PersistentFlags().Lookup("env-file"))

	root.AddCommand(newAnalyzeCmd())
	root.AddCommand(newConfigCmd())
	return root
}

func setupAnalysisLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	opts := &slog.HandlerOptions{}
	if verbose {
		level = slog.LevelDebug
		opts.AddSource = true
	}
	opts.Level = level
	handler := slog.NewJSONHandler(os.Stderr, opts)
	return slog.New(handler)
}

func newAnalyzeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Scan local paths, explicit repository URLs, or a platform namespace",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(cmd, args)
		},
	}
	flags := cmd.Flags()
	flags.StringSlice("path", nil, "local directory to scan (repeatable)")
	flags.StringSlice("url", nil, "explicit repository URL to scan (repeatable)")
	flags.String("platform", "", "github|gitlab|azure_devops|bitbucket")
	flags.String("namespace", "", "org/group/workspace (or org/project for azure_devops)")
	flags.String("base-url", "", "override the platform API base URL")
	flags.String("token", "", "VCS access token (overrides env lookup)")
	flags.Int("max-goroutines", DefaultMaxGoroutines, "bounded scan concurrency")
	flags.Bool("continue-on-error", true, "record recoverable errors as warnings instead of aborting")
	flags.String("clone-cache-dir", "", "clone cache root directory")
	flags.String("discovery-cache-dir", "", "discovery cache root directory")
	flags.String("output", "", "report output file path (default stdout)")
	flags.String("format", "json", "report format (json)")
	flags.StringSlice("target-repos", nil, "comma-separated repository names to include")
	flags.String("target-repos-file", "", "file listing repository names to include")
	flags.String("match-regex", "", "regex a discovered repository name must match")
	flags.StringSlice("match-prefix", nil, "prefixes a discovered repository name must match")
	flags.String("exclude-regex", "", "regex excluding discovered repository names")
	flags.StringSlice("exclude-prefix", nil, "prefixes excluding discovered repository names")

	for _, name := range []string{
		"path", "url", "platform", "namespace", "base-url", "token", "max-goroutines",
		"continue-on-error", "clone-cache-dir", "discovery-cache-dir", "output", "format",
		"target-repos", "target-repos-file", "match-regex", "match-prefix", "exclude-regex", "exclude-prefix",
	} {
		_ = vcfg.BindPFlag(name, flags.Lookup(name))
	}
	_ = vcfg.BindEnv("token", "DRIFTSCAN_TOKEN")

	return cmd
}

func buildAppConfigFromFlags() (AppConfig, error) {
	cfg := defaultAppConfig()
	cfg.Paths = vcfg.GetStringSlice("path")
	cfg.URLs = vcfg.GetStringSlice("url")
	cfg.Namespace = vcfg.GetString("namespace")
	cfg.PlatformBaseURL = vcfg.GetString("base-url")
	if n := vcfg.GetInt("max-goroutines"); n > 0 {
		cfg.MaxGoroutines = n
	}
	cfg.ContinueOnError = vcfg.GetBool("continue-on-error")
	if v := vcfg.GetString("clone-cache-dir"); v != "" {
		cfg.CloneCacheRoot = v
	}
	if v := vcfg.GetString("discovery-cache-dir"); v != "" {
		cfg.DiscoveryCacheDir = v
	}
	cfg.OutputPath = vcfg.GetString("output")
	if v := vcfg.GetString("format"); v != "" {
		cfg.OutputFormat = v
	}
	cfg.TargetRepos = vcfg.GetStringSlice("target-repos")
	cfg.TargetReposFile = vcfg.GetString("target-repos-file")
	cfg.MatchRegex = vcfg.GetString("match-regex")
	cfg.MatchPrefix = vcfg.GetStringSlice("match-prefix")
	cfg.ExcludeRegex = vcfg.GetString("exclude-regex")
	cfg.ExcludePrefix = vcfg.GetStringSlice("exclude-prefix")

	platform, err := parsePlatform(vcfg.GetString("platform"))
	if err != nil && vcfg.GetString("namespace") != "" {
		return cfg, err
	}
	cfg.Platform = platform
	cfg.Token = resolveToken(vcfg, platform)

	if err := validateAppConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func runAnalyze(cmd *cobra.Command, _ []string) error {
	verbose := vcfg.GetBool("verbose")
	logger := setupAnalysisLogger(verbose)

	if err := loadOptionalEnvFile(vcfg.GetString("env_file")); err != nil {
		return err
	}
	bindViperDefaults(vcfg)

	appCfg, err := buildAppConfigFromFlags()
	if err != nil {
		return err
	}

	scanCfg := defaultScanConfig()
	scanCfg.MaxGoroutines = appCfg.MaxGoroutines
	scanCfg.ContinueOnError = appCfg.ContinueOnError
	scanCfg.CloneCacheRoot = appCfg.CloneCacheRoot
	scanCfg.Platform = appCfg.Platform
	scanCfg.PlatformBaseURL = appCfg.PlatformBaseURL
	scanCfg.Token = appCfg.Token
	scanCfg.DiscoveryCache.CacheDir = appCfg.DiscoveryCacheDir
	scanCfg.DiscoveryCache.CacheTTL = appCfg.DiscoveryTTL
	scanCfg.Targeting = targetingOptionsFromConfig(appCfg)

	ctx := context.Background()
	var result ScanResult
	switch {
	case len(appCfg.Paths) > 0:
		result, err = scanLocalPaths(ctx, appCfg.Paths, scanCfg, logger)
	case len(appCfg.URLs) > 0:
		result, err = scanExplicitURLs(ctx, appCfg.URLs, scanCfg, logger)
	case appCfg.Namespace != "":
		result, err = scanOrganisation(ctx, appCfg.Namespace, scanCfg, logger)
	default:
		err = newDriftError(ErrConfigMissing, "runAnalyze", fmt.Errorf("no scan target specified"))
	}
	if err != nil {
		return err
	}

	return writeReport(result, appCfg.OutputFormat, appCfg.OutputPath)
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and validate driftscan configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the resolved configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := buildAppConfigFromFlags()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%+v\n", cfg)
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate the resolved configuration without scanning",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := buildAppConfigFromFlags()
			if err != nil {
				return err
			}
			if err := validateAppConfig(cfg); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "configuration valid")
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write a starter .env file",
		RunE: func(cmd *cobra.Command, args []string) error {
			content := "DRIFTSCAN_TOKEN=\nDO_GITHUB_TOKEN=\nDO_GITLAB_TOKEN=\nDO_AZURE_DEVOPS_TOKEN=\nDO_BITBUCKET_TOKEN=\n"
			if err := os.WriteFile(".env", []byte(content), 0o644); err != nil {
				return newDriftError(ErrIO, "config init", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "wrote .env")
			return nil
		},
	})
	return cmd
}

func execute() error {
	return newRootCmd().Execute()
}
