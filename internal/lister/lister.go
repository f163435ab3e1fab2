// Package lister turns FTP directory listings into file entries, preferring
// MLSD and falling back to parsing Unix-style LIST output.
package lister

import (
	"strconv"
	"strings"

	"github.com/tanq16/octoftp/internal/utils"
)

// Conn is the part of a control connection the lister needs.
type Conn interface {
	ChangeDir(path string) error
	MLSD(path string) ([]string, error)
	List(path string) ([]string, error)
}

// List changes into path and lists it. An inaccessible path, or failure of
// both listing commands, yields a *utils.ListError.
func List(conn Conn, path string) ([]utils.FileEntry, error) {
	log := utils.GetLogger("lister").With().Str("path", path).Logger()
	if err := conn.ChangeDir(path); err != nil {
		return nil, &utils.ListError{Path: path, CwdErr: err}
	}

	lines, mlsdErr := conn.MLSD("")
	if mlsdErr == nil {
		entries := make([]utils.FileEntry, 0, len(lines))
		for _, line := range lines {
			if entry, ok := ParseMLSDLine(line, path); ok {
				entries = append(entries, entry)
			}
		}
		log.Debug().Int("entries", len(entries)).Msg("MLSD listing parsed")
		return entries, nil
	}
	log.Debug().Err(mlsdErr).Msg("MLSD failed, falling back to LIST")

	lines, listErr := conn.List("")
	if listErr != nil {
		return nil, &utils.ListError{Path: path, MlsdErr: mlsdErr, ListErr: listErr}
	}
	if len(lines) == 0 {
		log.Debug().Msg("LIST returned no lines")
	}
	entries := make([]utils.FileEntry, 0, len(lines))
	for _, line := range lines {
		if entry, ok := ParseListLine(line, path); ok {
			entries = append(entries, entry)
		}
	}
	log.Debug().Int("entries", len(entries)).Msg("LIST listing parsed")
	return entries, nil
}

// ParseMLSDLine parses "fact=value;fact=value; name". Current and parent
// directory entries are dropped.
func ParseMLSDLine(line, dir string) (utils.FileEntry, bool) {
	factsPart, name, found := strings.Cut(line, " ")
	if !found || name == "" {
		return utils.FileEntry{}, false
	}
	if name == "." || name == ".." {
		return utils.FileEntry{}, false
	}
	facts := make(map[string]string)
	for _, fact := range strings.Split(factsPart, ";") {
		key, value, ok := strings.Cut(fact, "=")
		if !ok {
			continue
		}
		facts[strings.ToLower(key)] = value
	}
	kind := strings.ToLower(facts["type"])
	if kind == "cdir" || kind == "pdir" {
		return utils.FileEntry{}, false
	}
	size, _ := strconv.ParseInt(facts["size"], 10, 64)
	return utils.FileEntry{
		Name:     name,
		Path:     utils.JoinRemote(dir, name),
		Size:     size,
		IsDir:    kind == "dir",
		Modified: facts["modify"],
	}, true
}

// ParseListLine parses one Unix-style LIST line: permissions, links, owner,
// group, size, month, day, time or year, then the name. Lines with fewer
// than nine fields are rejected.
func ParseListLine(line, dir string) (utils.FileEntry, bool) {
	fields := splitFields(line, 9)
	if len(fields) < 9 {
		return utils.FileEntry{}, false
	}
	name := fields[8]
	if name == "." || name == ".." {
		return utils.FileEntry{}, false
	}
	size, err := strconv.ParseInt(fields[4], 10, 64)
	if err != nil || size < 0 {
		size = 0
	}
	return utils.FileEntry{
		Name:     name,
		Path:     utils.JoinRemote(dir, name),
		Size:     size,
		IsDir:    strings.HasPrefix(fields[0], "d"),
		Modified: strings.Join(fields[5:8], " "),
	}, true
}

// splitFields splits on runs of whitespace into at most n fields; the last
// field keeps the remainder of the line, inner spacing included.
func splitFields(s string, n int) []string {
	var fields []string
	s = strings.TrimLeft(s, " \t")
	for len(fields) < n-1 && s != "" {
		i := strings.IndexAny(s, " \t")
		if i < 0 {
			break
		}
		fields = append(fields, s[:i])
		s = strings.TrimLeft(s[i:], " \t")
	}
	s = strings.TrimRight(s, " \t\r\n")
	if s != "" {
		fields = append(fields, s)
	}
	return fields
}

// Recursive expands every directory under root depth-first and returns only
// the files.
func Recursive(list func(path string) ([]utils.FileEntry, error), root string) ([]utils.FileEntry, error) {
	entries, err := list(root)
	if err != nil {
		return nil, err
	}
	var files []utils.FileEntry
	for _, entry := range entries {
		if !entry.IsDir {
			files = append(files, entry)
			continue
		}
		sub, err := Recursive(list, entry.Path)
		if err != nil {
			return nil, err
		}
		files = append(files, sub...)
	}
	return files, nil
}
