package archive

import (
	"io/fs"
	"path"

	"github.com/m-mizutani/goerr/v2"

	"github.com/open-edge-platform/sdk-provisioner/internal/sdkpackage"
)

// Normalize finds the directory inside fsys that is the real package root,
// i.e. the one directly containing marker. Vendor archives put their content
// at inconsistent depths, so the candidates are probed in this order:
//
//  1. the root itself
//  2. the first subdirectory of the root
//  3. a subdirectory of (2) whose name matches nestedPattern
//  4. breadth-first over the whole tree, shallowest match first
//
// The result is a slash-separated path relative to the root of fsys ("." for
// the root). Symlinked directories are not descended into.
func Normalize(fsys fs.FS, marker, nestedPattern string) (string, error) {
	if marker == "" {
		return "", goerr.Wrap(sdkpackage.ErrStructureMismatch, "no marker configured")
	}

	if hasMarker(fsys, ".", marker) {
		return ".", nil
	}

	if first, ok := firstSubdir(fsys, "."); ok {
		if hasMarker(fsys, first, marker) {
			return first, nil
		}
		if nested, ok := matchNested(fsys, first, nestedPattern, marker); ok {
			return nested, nil
		}
	}

	if found, ok := searchMarker(fsys, marker); ok {
		return found, nil
	}

	return "", goerr.Wrap(sdkpackage.ErrStructureMismatch, "marker not found in extracted tree",
		goerr.V("marker", marker))
}

func hasMarker(fsys fs.FS, dir, marker string) bool {
	_, err := fs.Stat(fsys, path.Join(dir, marker))
	return err == nil
}

func firstSubdir(fsys fs.FS, dir string) (string, bool) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return "", false
	}
	for _, e := range entries {
		if e.IsDir() {
			return path.Join(dir, e.Name()), true
		}
	}
	return "", false
}

func matchNested(fsys fs.FS, dir, pattern, marker string) (string, bool) {
	if pattern == "" {
		return "", false
	}
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return "", false
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if ok, _ := path.Match(pattern, e.Name()); !ok {
			continue
		}
		candidate := path.Join(dir, e.Name())
		if hasMarker(fsys, candidate, marker) {
			return candidate, true
		}
	}
	return "", false
}

func searchMarker(fsys fs.FS, marker string) (string, bool) {
	queue := []string{"."}
	for len(queue) > 0 {
		dir := queue[0]
		queue = queue[1:]

		if dir != "." && hasMarker(fsys, dir, marker) {
			return dir, true
		}

		entries, err := fs.ReadDir(fsys, dir)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if e.IsDir() {
				queue = append(queue, path.Join(dir, e.Name()))
			}
		}
	}
	return "", false
}
