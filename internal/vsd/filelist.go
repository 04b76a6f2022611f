package vsd

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rohitsakala/printcore/internal/perrors"
)

// validGcodeExts gates recursive enumeration the same way the original's
// VALID_GCODE_EXTS does; flat (non-recursive) listing matches the
// original's get_file_list, which applies no extension filter.
var validGcodeExts = map[string]bool{"gcode": true, "g": true, "gco": true}

// FileEntry is one enumerated file's name (relative to SDCardDir) and size.
type FileEntry struct {
	Name string
	Size int64
}

// GetFileList enumerates printable files under SDCardDir: flat (sorted,
// case-insensitive, dotfiles excluded) or recursive (extension-filtered),
// matching virtual_sdcard.py's get_file_list(check_subdirs) (spec.md §4.1
// "load", SPEC_FULL §3 supplement).
func (e *Executor) GetFileList(checkSubdirs bool) ([]FileEntry, error) {
	if checkSubdirs {
		return listRecursive(e.cfg.SDCardDir)
	}
	return listFlat(e.cfg.SDCardDir)
}

func listFlat(root string) ([]FileEntry, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, perrors.OpenFailed("Unable to get file list")
	}

	names := make([]string, 0, len(entries))
	for _, ent := range entries {
		name := ent.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		info, err := ent.Info()
		if err != nil || info.IsDir() {
			continue
		}
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		return strings.ToLower(names[i]) < strings.ToLower(names[j])
	})

	out := make([]FileEntry, 0, len(names))
	for _, name := range names {
		info, err := os.Stat(filepath.Join(root, name))
		if err != nil {
			continue
		}
		out = append(out, FileEntry{Name: name, Size: info.Size()})
	}
	return out, nil
}

func listRecursive(root string) ([]FileEntry, error) {
	var out []FileEntry
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.TrimPrefix(filepath.Ext(d.Name()), ".")
		if !validGcodeExts[ext] {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		out = append(out, FileEntry{Name: rel, Size: info.Size()})
		return nil
	})
	if err != nil {
		return nil, perrors.OpenFailed("Unable to get file list")
	}
	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})
	return out, nil
}

// resolveFile maps a requested name (case-insensitive fallback) to an
// absolute path and size, matching _load_file's lookup.
func (e *Executor) resolveFile(name string, checkSubdirs bool) (absPath string, size int64, err error) {
	files, err := e.GetFileList(checkSubdirs)
	if err != nil {
		return "", 0, err
	}

	for _, f := range files {
		if f.Name == name {
			return filepath.Join(e.cfg.SDCardDir, f.Name), f.Size, nil
		}
	}
	lower := strings.ToLower(name)
	for _, f := range files {
		if strings.ToLower(f.Name) == lower {
			return filepath.Join(e.cfg.SDCardDir, f.Name), f.Size, nil
		}
	}
	return "", 0, perrors.OpenFailed("Unable to open file")
}
