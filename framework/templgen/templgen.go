// Package templgen compiles .templ files into the _templ.go sources that are
// committed next to them.
package templgen

import (
	"bytes"
	"errors"
	"fmt"
	"go/format"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/a-h/templ/generator"
	"github.com/a-h/templ/parser/v2"
)

const (
	sourceExt       = ".templ"
	generatedSuffix = "_templ.go"
)

var (
	ErrNoSources = errors.New("no templ files found")
	ErrStale     = errors.New("generated files are out of date")
)

type Config struct {
	Files []string
	Paths []string
	// BasePath is the root that file names in generated error locations are
	// relative to. Defaults to the working directory.
	BasePath string
	// Check reports stale outputs through ErrStale instead of writing them.
	Check bool
}

func Run(cfg Config) error {
	basePath := strings.TrimSpace(cfg.BasePath)
	if basePath == "" {
		basePath = "."
	}
	baseAbs, err := filepath.Abs(basePath)
	if err != nil {
		return fmt.Errorf("resolve base path %q: %w", basePath, err)
	}

	sources, err := collectSources(cfg.Files, cfg.Paths)
	if err != nil {
		return err
	}
	if len(sources) == 0 {
		return ErrNoSources
	}

	var stale []string
	for _, source := range sources {
		generated, err := Generate(source, baseAbs)
		if err != nil {
			return err
		}
		target := TargetPath(source)
		if cfg.Check {
			current, readErr := os.ReadFile(target)
			if readErr != nil || !bytes.Equal(current, generated) {
				stale = append(stale, target)
			}
			continue
		}
		if err := os.WriteFile(target, generated, 0o644); err != nil {
			return fmt.Errorf("write %q: %w", target, err)
		}
	}
	if len(stale) > 0 {
		return fmt.Errorf("%w: %s", ErrStale, strings.Join(stale, ", "))
	}
	return nil
}

// TargetPath is where the Go source generated from source is written.
func TargetPath(source string) string {
	return strings.TrimSuffix(source, sourceExt) + generatedSuffix
}

// Generate compiles one template file and returns gofmt-ed Go source.
func Generate(source string, baseAbs string) ([]byte, error) {
	tree, err := parser.Parse(source)
	if err != nil {
		return nil, fmt.Errorf("parse %q: %w", source, err)
	}

	rel, err := filepath.Rel(baseAbs, source)
	if err != nil {
		return nil, fmt.Errorf("relative name for %q: %w", source, err)
	}

	var out bytes.Buffer
	if _, err := generator.Generate(tree, &out, generator.WithFileName(filepath.ToSlash(rel))); err != nil {
		return nil, fmt.Errorf("generate %q: %w", source, err)
	}
	formatted, err := format.Source(out.Bytes())
	if err != nil {
		return nil, fmt.Errorf("format output of %q: %w", source, err)
	}
	return formatted, nil
}

func collectSources(files []string, paths []string) ([]string, error) {
	seen := make(map[string]struct{}, len(files))
	var sources []string
	add := func(name string) error {
		abs, err := filepath.Abs(name)
		if err != nil {
			return fmt.Errorf("resolve %q: %w", name, err)
		}
		if _, ok := seen[abs]; !ok {
			seen[abs] = struct{}{}
			sources = append(sources, abs)
		}
		return nil
	}

	for _, name := range files {
		if filepath.Ext(name) != sourceExt {
			return nil, fmt.Errorf("file %q must have %s extension", name, sourceExt)
		}
		if err := add(name); err != nil {
			return nil, err
		}
	}

	for _, root := range paths {
		err := filepath.WalkDir(root, func(name string, entry fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if entry.IsDir() {
				// Same directories the go tool ignores.
				base := entry.Name()
				if name != root && (strings.HasPrefix(base, ".") || strings.HasPrefix(base, "_") || base == "testdata") {
					return filepath.SkipDir
				}
				return nil
			}
			if filepath.Ext(name) != sourceExt {
				return nil
			}
			return add(name)
		})
		if err != nil {
			return nil, fmt.Errorf("walk %q: %w", root, err)
		}
	}

	slices.Sort(sources)
	return sources, nil
}
