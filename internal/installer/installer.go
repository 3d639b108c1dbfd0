// Package installer places a normalized package tree at its canonical
// install root. Installation is not transactional; re-running it overwrites
// what a previous run left behind.
package installer

import (
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/m-mizutani/goerr/v2"

	"github.com/open-edge-platform/sdk-provisioner/internal/sdkpackage"
	"github.com/open-edge-platform/sdk-provisioner/internal/utils/logger"
)

// Install copies the contents of srcRoot into installRoot, creating it and
// its parents first. Existing files are overwritten, symlinks are recreated
// as symlinks and file modes are kept.
func Install(srcRoot, installRoot string) (*sdkpackage.InstalledTree, error) {
	log := logger.Logger()

	if err := os.MkdirAll(installRoot, 0755); err != nil {
		return nil, goerr.Wrap(err, "failed to create install root", goerr.V("root", installRoot))
	}

	files := 0
	err := filepath.WalkDir(srcRoot, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(srcRoot, p)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		dest := filepath.Join(installRoot, rel)

		switch {
		case d.Type()&fs.ModeSymlink != 0:
			target, err := os.Readlink(p)
			if err != nil {
				return err
			}
			return replaceSymlink(target, dest)
		case d.IsDir():
			info, err := d.Info()
			if err != nil {
				return err
			}
			return ensureDir(dest, info.Mode().Perm()|0700)
		default:
			files++
			return copyFile(p, dest)
		}
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to install package tree",
			goerr.V("src", srcRoot), goerr.V("root", installRoot))
	}

	log.Infof("installed %d files into %s", files, installRoot)
	return Describe(installRoot, sdkpackage.MethodCopy)
}

// Link installs by pointing installRoot entries at an already-installed
// sibling. links maps an entry name under installRoot to a path relative to
// siblingRoot. Stale links are replaced.
func Link(siblingRoot, installRoot string, links map[string]string) (*sdkpackage.InstalledTree, error) {
	log := logger.Logger()

	if err := os.MkdirAll(installRoot, 0755); err != nil {
		return nil, goerr.Wrap(err, "failed to create install root", goerr.V("root", installRoot))
	}

	names := make([]string, 0, len(links))
	for name := range links {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		target := filepath.Join(siblingRoot, links[name])
		if _, err := os.Stat(target); err != nil {
			return nil, goerr.Wrap(err, "sibling path missing", goerr.V("target", target))
		}
		dest := filepath.Join(installRoot, name)
		if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
			return nil, goerr.Wrap(err, "failed to create link parent", goerr.V("path", dest))
		}
		if err := replaceSymlink(target, dest); err != nil {
			return nil, goerr.Wrap(err, "failed to link sibling", goerr.V("link", dest), goerr.V("target", target))
		}
		log.Debugf("linked %s -> %s", dest, target)
	}

	log.Infof("linked %d entries from %s into %s", len(names), siblingRoot, installRoot)
	return Describe(installRoot, sdkpackage.MethodLink)
}

// Describe lists the top-level directories of root (symlinks to
// directories included).
func Describe(root, method string) (*sdkpackage.InstalledTree, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read install root", goerr.V("root", root))
	}
	tree := &sdkpackage.InstalledTree{Root: root, Subdirs: []string{}, Method: method}
	for _, e := range entries {
		info, err := os.Stat(filepath.Join(root, e.Name()))
		if err != nil || !info.IsDir() {
			continue
		}
		tree.Subdirs = append(tree.Subdirs, e.Name())
	}
	sort.Strings(tree.Subdirs)
	return tree, nil
}

func ensureDir(dest string, perm fs.FileMode) error {
	info, err := os.Lstat(dest)
	if err == nil {
		if info.IsDir() {
			return nil
		}
		// A link or file from an earlier layout is in the way.
		if err := os.Remove(dest); err != nil {
			return err
		}
	}
	return os.MkdirAll(dest, perm)
}

func replaceSymlink(target, dest string) error {
	if existing, err := os.Readlink(dest); err == nil && existing == target {
		return nil
	}
	if info, err := os.Lstat(dest); err == nil {
		if info.IsDir() {
			if err := os.RemoveAll(dest); err != nil {
				return err
			}
		} else if err := os.Remove(dest); err != nil {
			return err
		}
	}
	return os.Symlink(target, dest)
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	// Replace instead of truncating: the old file may be read-only, or a
	// symlink left by an earlier link-based install.
	if li, err := os.Lstat(dest); err == nil {
		if li.IsDir() {
			err = os.RemoveAll(dest)
		} else {
			err = os.Remove(dest)
		}
		if err != nil {
			return err
		}
	}

	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm()|0200)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Chmod(dest, info.Mode().Perm())
}
