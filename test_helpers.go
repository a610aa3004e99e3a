package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/samber/lo"
)

// Config Builders - Pure functions for test configuration creation

// newTestAppConfig creates a basic test configuration scanning a single path
func newTestAppConfig(paths []string) AppConfig {
	cfg := defaultAppConfig()
	cfg.Paths = paths
	return cfg
}

// newValidAppConfig creates a valid configuration for testing
func newValidAppConfig() AppConfig {
	return newTestAppConfig([]string{"testdata"})
}

// newInvalidAppConfig creates an invalid configuration for error testing
func newInvalidAppConfig() AppConfig {
	return AppConfig{}
}

// newTargetingAppConfig creates configuration with target repositories
func newTargetingAppConfig(targetRepos []string) AppConfig {
	cfg := newValidAppConfig()
	cfg.TargetRepos = targetRepos
	return cfg
}

// File System Helpers - Functions for creating test files and directories

// createTempTerraformFile creates a temporary .tf file with given content
func createTempTerraformFile(t *testing.T, content string) string {
	t.Helper()

	tempDir := t.TempDir()
	filePath := filepath.Join(tempDir, "test.tf")

	if err := os.WriteFile(filePath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to create temp terraform file: %v", err)
	}

	return filePath
}

// createTempTerraformRepo creates a temporary repository with terraform files
func createTempTerraformRepo(t *testing.T, files map[string]string) string {
	t.Helper()

	repoDir := t.TempDir()

	for fileName, content := range files {
		filePath := filepath.Join(repoDir, fileName)

		if dir := filepath.Dir(filePath); dir != repoDir {
			if err := os.MkdirAll(dir, 0755); err != nil {
				t.Fatalf("failed to create directory %s: %v", dir, err)
			}
		}

		if err := os.WriteFile(filePath, []byte(content), 0644); err != nil {
			t.Fatalf("failed to create file %s: %v", fileName, err)
		}
	}

	return repoDir
}

// Data Builders - Pure functions for creating test data structures

// newTestModuleRef creates a standard module reference for testing
func newTestModuleRef(name, source, constraintRaw, repo string) ModuleRef {
	ms, _ := normaliseSource(source)
	var c *Constraint
	if constraintRaw != "" {
		parsed, err := parseConstraint(constraintRaw)
		if err == nil {
			c = &parsed
		}
	}
	return ModuleRef{
		Name:       name,
		Source:     ms,
		Constraint: c,
		File:       "main.tf",
		Line:       1,
		Repository: repo,
	}
}

// Assertion Helpers - Functions for common test assertions

// assertNoError verifies that no error occurred
func assertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("expected no error, but got: %v", err)
	}
}

// assertError verifies that an error occurred with expected message
func assertError(t *testing.T, err error, expectedMsg string) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, but got nil")
	}
	if !strings.Contains(err.Error(), expectedMsg) {
		t.Fatalf("expected error containing '%s', but got: %v", expectedMsg, err)
	}
}

// assertFileExists verifies that a file exists at the given path
func assertFileExists(t *testing.T, filePath string) {
	t.Helper()
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		t.Fatalf("expected file to exist: %s", filePath)
	}
}

// Environment Helpers - Functions for managing test environment

// withEnvVars temporarily sets environment variables for a test
func withEnvVars(t *testing.T, envVars map[string]string) {
	t.Helper()

	originalValues := make(map[string]string)
	var keysToUnset []string

	for key, value := range envVars {
		if original, exists := os.LookupEnv(key); exists {
			originalValues[key] = original
		} else {
			keysToUnset = append(keysToUnset, key)
		}
		if err := os.Setenv(key, value); err != nil {
			t.Fatalf("failed to set env var %s: %v", key, err)
		}
	}

	t.Cleanup(func() {
		for key, value := range originalValues {
			os.Setenv(key, value)
		}
		for _, key := range keysToUnset {
			os.Unsetenv(key)
		}
	})
}

// Collection Helpers - Functional operations on test data

// filterTerraformFiles filters a list of files to only include terraform files
func filterTerraformFiles(files []string) []string {
	return lo.Filter(files, func(file string, _ int) bool {
		ext := strings.ToLower(filepath.Ext(file))
		return lo.Contains([]string{".tf", ".tfvars", ".hcl"}, ext)
	})
}

// Mock Data Creators - Functions for creating test fixtures

// createMockTerraformModule creates a complete terraform module structure
func createMockTerraformModule(t *testing.T, moduleName string) string {
	t.Helper()

	moduleDir := filepath.Join(t.TempDir(), moduleName)
	if err := os.MkdirAll(moduleDir, 0755); err != nil {
		t.Fatalf("failed to create module directory: %v", err)
	}

	files := map[string]string{
		"main.tf": `module "vpc" {
  source  = "terraform-aws-modules/vpc/aws"
  version = "~> 5.0"
}`,
		"versions.tf": `terraform {
  required_version = ">= 1.0"
  required_providers {
    aws = {
      source  = "hashicorp/aws"
      version = "~> 5.0"
    }
  }
}`,
	}

	for fileName, content := range files {
		filePath := filepath.Join(moduleDir, fileName)
		if err := os.WriteFile(filePath, []byte(content), 0644); err != nil {
			t.Fatalf("failed to create file %s: %v", fileName, err)
		}
	}

	return moduleDir
}

// Functional Test Utilities - Higher-order functions for test operations

// withTempRepo executes a test function with a temporary repository
func withTempRepo(t *testing.T, repoFiles map[string]string, testFunc func(repoPath string)) {
	t.Helper()

	repoPath := createTempTerraformRepo(t, repoFiles)
	testFunc(repoPath)
}

// withMockAppConfig executes a test function with a mock configuration
func withMockAppConfig(t *testing.T, configModifier func(*AppConfig), testFunc func(config AppConfig)) {
	t.Helper()

	cfg := newValidAppConfig()
	if configModifier != nil {
		configModifier(&cfg)
	}
	testFunc(cfg)
}
