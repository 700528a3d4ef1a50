package main

import (
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"slices"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"guidepost/internal/apperr"
	"guidepost/internal/config"
)

func TestReadmeConfigKeysMatchAllowedKeys(t *testing.T) {
	section := readmeSection(t, "Supported config keys:", "Runtime environment:")
	documented := backtickedBulletKeys(section)

	allowed := slices.Clone(config.AllowedKeys())
	slices.Sort(allowed)
	if !slices.Equal(documented, allowed) {
		t.Fatalf("README config keys mismatch\ndocumented: %v\nallowed:    %v", documented, allowed)
	}
}

// Each "`GUIDEPOST_X`: overrides `key`" bullet must hold for config.Load.
func TestReadmeEnvOverridesApply(t *testing.T) {
	samples := map[string][2]string{
		"db_path":                             {"/srv/guidepost/readme.db", "/srv/guidepost/readme.db"},
		"log_level":                           {"debug", "debug"},
		"operation_timeout":                   {"45s", "45s"},
		"blobs.chunk_size":                    {"4096", "4096"},
		"blobs.orphan_chunk_grace":            {"2h", "2h0m0s"},
		"maintenance.stale_request_retention": {"3d", "72h0m0s"},
	}

	section := readmeSection(t, "Runtime environment:", "## Errors")
	overrides := regexp.MustCompile("`(GUIDEPOST_[A-Z0-9_]+)`: overrides `([a-z_.]+)`").FindAllStringSubmatch(section, -1)
	if len(overrides) != len(samples) {
		t.Fatalf("expected %d documented env overrides, found %d", len(samples), len(overrides))
	}

	dir := t.TempDir()
	t.Setenv("GUIDEPOST_CONFIG_DIR", dir)
	t.Setenv("GUIDEPOST_ENV_FILE", filepath.Join(dir, "missing.env"))
	for _, match := range overrides {
		envKey, configKey := match[1], match[2]
		sample, ok := samples[configKey]
		if !ok {
			t.Fatalf("%s overrides unknown key %q", envKey, configKey)
		}
		t.Run(envKey, func(t *testing.T) {
			t.Setenv(envKey, sample[0])
			cfg, err := config.Load()
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			got, err := cfg.Get(configKey)
			if err != nil {
				t.Fatalf("get %s: %v", configKey, err)
			}
			if got != sample[1] {
				t.Fatalf("%s=%q: expected %s=%q, got %q", envKey, sample[0], configKey, sample[1], got)
			}
		})
	}
}

func TestReadmeCommandsMatchCLI(t *testing.T) {
	block := readmeSection(t, "## Commands", "## Configuration")
	var documented []string
	for _, line := range strings.Split(block, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 || fields[0] != "guidepost" {
			continue
		}
		var path []string
		for _, token := range fields[1:] {
			if strings.ContainsAny(token[:1], "<[-") {
				break
			}
			path = append(path, token)
		}
		documented = append(documented, strings.Join(path, " "))
	}
	slices.Sort(documented)

	cfg := config.Default()
	actual := leafCommandPaths(newRootCmd(&cfg), nil)
	slices.Sort(actual)
	if !slices.Equal(documented, actual) {
		t.Fatalf("README commands mismatch\ndocumented: %v\ncli:        %v", documented, actual)
	}
}

func TestReadmeErrorKinds(t *testing.T) {
	section := readmeSection(t, "## Errors", "")
	for _, kind := range []apperr.Kind{
		apperr.KindNotFound,
		apperr.KindValidation,
		apperr.KindInvalidTransition,
		apperr.KindDanglingReference,
		apperr.KindIncompleteWrite,
		apperr.KindTimeout,
		apperr.KindInternal,
	} {
		if !strings.Contains(section, "`"+string(kind)+"`") {
			t.Errorf("README Errors section does not mention %q", kind)
		}
	}
}

// readmeSection returns the README text between start and end; an empty end
// runs to the end of the file.
func readmeSection(t *testing.T, start, end string) string {
	t.Helper()
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("runtime.Caller failed")
	}
	data, err := os.ReadFile(filepath.Join(filepath.Dir(file), "..", "..", "README.md"))
	if err != nil {
		t.Fatalf("read README.md: %v", err)
	}
	readme := string(data)

	from := strings.Index(readme, start)
	if from == -1 {
		t.Fatalf("README has no %q section", start)
	}
	section := readme[from+len(start):]
	if end != "" {
		to := strings.Index(section, end)
		if to == -1 {
			t.Fatalf("README section %q is not followed by %q", start, end)
		}
		section = section[:to]
	}
	return section
}

func backtickedBulletKeys(section string) []string {
	var keys []string
	for _, match := range regexp.MustCompile("(?m)^- `([^`]+)`").FindAllStringSubmatch(section, -1) {
		keys = append(keys, match[1])
	}
	slices.Sort(keys)
	return keys
}

func leafCommandPaths(cmd *cobra.Command, prefix []string) []string {
	var paths []string
	for _, child := range cmd.Commands() {
		if child.Hidden || child.Name() == "help" || child.Name() == "completion" {
			continue
		}
		path := append(slices.Clone(prefix), child.Name())
		if child.HasSubCommands() {
			paths = append(paths, leafCommandPaths(child, path)...)
			continue
		}
		paths = append(paths, strings.Join(path, " "))
	}
	return paths
}
