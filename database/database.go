// Package database stores mind state as flat files under rootDir/flatFileDir/<mind>/<name>.
package database

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	dircopy "github.com/otiai10/copy"
	"github.com/sasha-s/go-deadlock"
	"github.com/sergi/go-diff/diffmatchpatch"

	"arnsmachine/arnsmachine"
)

var writeMutex = &deadlock.Mutex{}

var baseDir string

// SetBaseDir overrides the directory derived from config. Tests point it at t.TempDir().
func SetBaseDir(dir string) {
	writeMutex.Lock()
	defer writeMutex.Unlock()
	baseDir = dir
}

func dir() string {
	if baseDir != "" {
		return baseDir
	}
	conf := arnsmachine.MakeOrGetConfig()
	if conf == nil {
		return filepath.Join(os.TempDir(), "arnsmachine")
	}
	return conf.GetString("rootDir") + conf.GetString("flatFileDir")
}

func path(mind, name string) (string, error) {
	if strings.ContainsAny(mind, `/\`) || strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return "", fmt.Errorf("invalid database path %s/%s", mind, name)
	}
	return filepath.Join(dir(), mind, name), nil
}

// Open returns the file for a mind's named object. The caller closes it.
func Open(mind, name string) (*os.File, bool) {
	p, err := path(mind, name)
	if err != nil {
		arnsmachine.LogCLI(err.Error(), 2)
		return nil, false
	}
	f, err := os.Open(p)
	if err != nil {
		if !os.IsNotExist(err) {
			arnsmachine.LogCLI(err.Error(), 2)
		}
		return nil, false
	}
	return f, true
}

// Read returns the whole content of a mind's named object.
func Read(mind, name string) ([]byte, bool) {
	p, err := path(mind, name)
	if err != nil {
		return nil, false
	}
	b, err := os.ReadFile(p)
	if err != nil {
		return nil, false
	}
	return b, true
}

// Write replaces a mind's named object. Writes go to a temp file first so a crash never
// leaves a half written snapshot behind.
func Write(mind, name string, data []byte) error {
	writeMutex.Lock()
	defer writeMutex.Unlock()
	p, err := path(mind, name)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return err
	}
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, p)
}

// Backup copies the whole data directory to dest.
func Backup(dest string) error {
	writeMutex.Lock()
	defer writeMutex.Unlock()
	return dircopy.Copy(dir(), dest)
}

// Diff renders a human readable diff between two stored objects of the same mind.
func Diff(mind, a, b string) (string, error) {
	left, ok := Read(mind, a)
	if !ok {
		return "", fmt.Errorf("%s/%s not found", mind, a)
	}
	right, ok := Read(mind, b)
	if !ok {
		return "", fmt.Errorf("%s/%s not found", mind, b)
	}
	dmp := diffmatchpatch.New()
	l, r, lines := dmp.DiffLinesToChars(string(left), string(right))
	diffs := dmp.DiffMain(l, r, false)
	diffs = dmp.DiffCharsToLines(diffs, lines)
	return dmp.DiffPrettyText(dmp.DiffCleanupSemantic(diffs)), nil
}
