package utils

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func RenewOutputPath(outputPath string) string {
	dir := filepath.Dir(outputPath)
	base := filepath.Base(outputPath)
	ext := filepath.Ext(base)
	name := base[:len(base)-len(ext)]
	index := 1
	for {
		outputPath = filepath.Join(dir, fmt.Sprintf("%s-(%d)%s", name, index, ext))
		if _, err := os.Stat(outputPath); os.IsNotExist(err) {
			return outputPath
		}
		index++
	}
}

// PartPath names the temporary file for chunk index of destination.
func PartPath(destination string, index int) string {
	return fmt.Sprintf("%s.part%d", destination, index)
}

// CleanParts removes every <destination>.partN file next to destination and
// returns how many were removed.
func CleanParts(destination string) (int, error) {
	dir := filepath.Dir(destination)
	files, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, err
	}
	base := filepath.Base(destination)
	removed := 0
	for _, file := range files {
		if file.IsDir() {
			continue
		}
		loc := ChunkIDRegex.FindStringIndex(file.Name())
		if loc == nil || file.Name()[:loc[0]] != base {
			continue
		}
		if err := os.Remove(filepath.Join(dir, file.Name())); err != nil && !errors.Is(err, os.ErrNotExist) {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// LocalPathFor maps a remote file found under a selected remote directory to
// a local path that keeps the directory structure below baseRemote.
func LocalPathFor(destDir, baseRemote, remotePath string) string {
	rel := strings.TrimPrefix(remotePath, strings.TrimSuffix(baseRemote, "/"))
	rel = strings.TrimPrefix(rel, "/")
	if rel == "" {
		rel = filepath.Base(remotePath)
	}
	return filepath.Join(destDir, filepath.FromSlash(rel))
}

func JoinRemote(dir, name string) string {
	if strings.HasSuffix(dir, "/") {
		return dir + name
	}
	return dir + "/" + name
}
