package templgen

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const helloSource = "package sample\n\ntempl Hello(name string) {\n\t<p>Hello { name }</p>\n}\n"

func TestRunWritesGeneratedFileNextToSource(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeTestFile(t, filepath.Join(root, "hello.templ"), helloSource)

	require.NoError(t, Run(Config{Paths: []string{root}, BasePath: root}))

	generated, err := os.ReadFile(filepath.Join(root, "hello_templ.go"))
	require.NoError(t, err)
	assert.Contains(t, string(generated), "// Code generated by templ - DO NOT EDIT.")
	assert.Contains(t, string(generated), "func Hello(name string) templ.Component")
	assert.Contains(t, string(generated), "FileName: `hello.templ`")
}

func TestRunSkipsIgnoredDirectories(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	for _, dir := range []string{"_reference", ".cache", "testdata"} {
		require.NoError(t, os.MkdirAll(filepath.Join(root, dir), 0o755))
		writeTestFile(t, filepath.Join(root, dir, "hello.templ"), helloSource)
	}

	err := Run(Config{Paths: []string{root}, BasePath: root})
	assert.ErrorIs(t, err, ErrNoSources)
}

func TestRunCheckReportsStaleOutput(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	source := filepath.Join(root, "hello.templ")
	writeTestFile(t, source, helloSource)

	err := Run(Config{Files: []string{source}, BasePath: root, Check: true})
	require.ErrorIs(t, err, ErrStale)
	_, statErr := os.Stat(TargetPath(source))
	assert.True(t, os.IsNotExist(statErr), "check mode must not write output")

	require.NoError(t, Run(Config{Files: []string{source}, BasePath: root}))
	require.NoError(t, Run(Config{Files: []string{source}, BasePath: root, Check: true}))

	writeTestFile(t, source, helloSource+"\ntempl Bye() {\n\t<p>Bye</p>\n}\n")
	assert.ErrorIs(t, Run(Config{Files: []string{source}, BasePath: root, Check: true}), ErrStale)
}

func TestRunRejectsNonTemplFiles(t *testing.T) {
	t.Parallel()

	err := Run(Config{Files: []string{"components.go"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), ".templ extension")
}

func TestRunReturnsErrorForEmptySelection(t *testing.T) {
	t.Parallel()

	assert.ErrorIs(t, Run(Config{BasePath: t.TempDir()}), ErrNoSources)
}

func writeTestFile(t *testing.T, filePath string, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filePath, []byte(content), 0o644))
}
