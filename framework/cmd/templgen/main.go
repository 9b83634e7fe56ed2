// Command templgen regenerates the committed _templ.go files.
//
//	go tool templgen -path internal/web/components
//	go tool templgen -path internal/web/components -check
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"postsdemo/framework/templgen"
)

type multiFlag []string

func (m *multiFlag) String() string {
	return strings.Join(*m, ",")
}

func (m *multiFlag) Set(value string) error {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return errors.New("value cannot be empty")
	}
	*m = append(*m, trimmed)
	return nil
}

func main() {
	var cfg templgen.Config
	var files, paths multiFlag

	flag.Var(&files, "file", "templ file to compile (repeatable)")
	flag.Var(&paths, "path", "directory to scan for .templ files (repeatable)")
	flag.StringVar(&cfg.BasePath, "base", ".", "root for file names embedded in generated error locations")
	flag.BoolVar(&cfg.Check, "check", false, "fail when a generated file differs instead of writing it")
	flag.Parse()

	cfg.Files = files
	cfg.Paths = paths
	if err := templgen.Run(cfg); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "templgen: %v\n", err)
		os.Exit(1)
	}
}
