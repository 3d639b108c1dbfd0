// Package archive unpacks vendor SDK archives and locates the package root
// inside whatever wrapper folders the vendor chose.
package archive

import (
	"archive/tar"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
	"github.com/sassoftware/go-rpmutils"
	"github.com/ulikunitz/xz"

	"github.com/open-edge-platform/sdk-provisioner/internal/utils/logger"
)

const (
	FormatZip    = "zip"
	FormatTar    = "tar"
	FormatTarGz  = "tar.gz"
	FormatTarXz  = "tar.xz"
	FormatTarZst = "tar.zst"
	FormatRpm    = "rpm"
	FormatRun    = "run"
)

// DetectFormat guesses the archive format from a file name or URL path.
func DetectFormat(name string) (string, error) {
	lower := strings.ToLower(name)
	if i := strings.IndexAny(lower, "?#"); i >= 0 {
		lower = lower[:i]
	}
	switch {
	case strings.HasSuffix(lower, ".zip"):
		return FormatZip, nil
	case strings.HasSuffix(lower, ".tar.gz"), strings.HasSuffix(lower, ".tgz"):
		return FormatTarGz, nil
	case strings.HasSuffix(lower, ".tar.xz"), strings.HasSuffix(lower, ".txz"):
		return FormatTarXz, nil
	case strings.HasSuffix(lower, ".tar.zst"), strings.HasSuffix(lower, ".tzst"):
		return FormatTarZst, nil
	case strings.HasSuffix(lower, ".tar"):
		return FormatTar, nil
	case strings.HasSuffix(lower, ".rpm"):
		return FormatRpm, nil
	case strings.HasSuffix(lower, ".run"), strings.HasSuffix(lower, ".sh"):
		return FormatRun, nil
	default:
		return "", fmt.Errorf("cannot determine archive format of %s", name)
	}
}

// Extract unpacks archivePath into destDir and returns the number of
// regular files written. An empty format is detected from the file name.
func Extract(archivePath, destDir, format string) (int, error) {
	log := logger.Logger()

	if format == "" {
		detected, err := DetectFormat(archivePath)
		if err != nil {
			return 0, err
		}
		format = detected
	}

	if err := os.MkdirAll(destDir, 0755); err != nil {
		return 0, fmt.Errorf("failed to create extraction directory %s: %w", destDir, err)
	}

	log.Debugf("extracting %s (%s) into %s", filepath.Base(archivePath), format, destDir)

	switch format {
	case FormatZip:
		return extractZip(archivePath, destDir)
	case FormatTar, FormatTarGz, FormatTarXz, FormatTarZst:
		return extractTarFile(archivePath, destDir, format)
	case FormatRpm:
		return extractRpm(archivePath, destDir)
	case FormatRun:
		return 0, fmt.Errorf("%s is a self-extracting installer and must be run, not extracted", archivePath)
	default:
		return 0, fmt.Errorf("unsupported archive format %q", format)
	}
}

// safeJoin resolves name under destDir, rejecting entries that escape it.
func safeJoin(destDir, name string) (string, error) {
	destPath := filepath.Join(destDir, name)
	cleanDest := filepath.Clean(destDir)
	if destPath != cleanDest && !strings.HasPrefix(destPath, cleanDest+string(os.PathSeparator)) {
		return "", fmt.Errorf("invalid file path detected: file=%s, dest=%s", name, destPath)
	}
	return destPath, nil
}

// checkLinkTarget rejects symlinks that would point outside destDir. ".."
// is only accepted as a leading prefix so a target can never climb back out
// through another link.
func checkLinkTarget(destDir, linkPath, target string) error {
	if filepath.IsAbs(target) {
		return fmt.Errorf("absolute symlink %s -> %s not allowed", linkPath, target)
	}
	climbing := true
	for _, part := range strings.Split(filepath.ToSlash(target), "/") {
		switch {
		case part == "..":
			if !climbing {
				return fmt.Errorf("symlink %s -> %s climbs out of a subdirectory", linkPath, target)
			}
		case part == "" || part == ".":
		default:
			climbing = false
		}
	}
	resolved := filepath.Join(filepath.Dir(linkPath), target)
	cleanDest := filepath.Clean(destDir)
	if resolved != cleanDest && !strings.HasPrefix(resolved, cleanDest+string(os.PathSeparator)) {
		return fmt.Errorf("symlink %s -> %s escapes extraction directory", linkPath, target)
	}
	return nil
}

// checkNoLinkedParents rejects paths under destDir whose directories go
// through a symlink, since creating anything there follows the link.
func checkNoLinkedParents(destDir, dir string) error {
	rel, err := filepath.Rel(destDir, dir)
	if err != nil || rel == "." {
		return err
	}
	cur := filepath.Clean(destDir)
	for _, part := range strings.Split(rel, string(os.PathSeparator)) {
		cur = filepath.Join(cur, part)
		info, err := os.Lstat(cur)
		if os.IsNotExist(err) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to inspect %s: %w", cur, err)
		}
		if info.Mode()&os.ModeSymlink != 0 {
			return fmt.Errorf("entry %s goes through symlink %s", dir, cur)
		}
	}
	return nil
}

func makeDir(destDir, destPath string) error {
	if err := checkNoLinkedParents(destDir, destPath); err != nil {
		return err
	}
	if err := os.MkdirAll(destPath, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", destPath, err)
	}
	return nil
}

func writeFile(destDir, destPath string, r io.Reader, mode os.FileMode) error {
	if err := checkNoLinkedParents(destDir, filepath.Dir(destPath)); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return fmt.Errorf("failed to create parent directories %s: %w", filepath.Dir(destPath), err)
	}
	// Replace rather than truncate so an existing symlink is not followed.
	_ = os.Remove(destPath)
	out, err := os.OpenFile(destPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode.Perm()|0200)
	if err != nil {
		return fmt.Errorf("failed to create destination file %s: %w", destPath, err)
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return fmt.Errorf("failed to copy file content to %s: %w", destPath, err)
	}
	return out.Close()
}

func writeSymlink(destDir, destPath, target string) error {
	if err := checkLinkTarget(destDir, destPath, target); err != nil {
		return err
	}
	if err := checkNoLinkedParents(destDir, filepath.Dir(destPath)); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return fmt.Errorf("failed to create parent directories %s: %w", filepath.Dir(destPath), err)
	}
	_ = os.Remove(destPath)
	if err := os.Symlink(target, destPath); err != nil {
		return fmt.Errorf("failed to create symlink %s: %w", destPath, err)
	}
	return nil
}

func extractZip(archivePath, destDir string) (int, error) {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return 0, fmt.Errorf("failed to create zip reader: %w", err)
	}
	defer zr.Close()

	count := 0
	for _, f := range zr.File {
		destPath, err := safeJoin(destDir, f.Name)
		if err != nil {
			return count, err
		}
		info := f.FileInfo()

		if info.IsDir() {
			if err := makeDir(destDir, destPath); err != nil {
				return count, err
			}
			continue
		}

		rc, err := f.Open()
		if err != nil {
			return count, fmt.Errorf("failed to open file %s in zip: %w", f.Name, err)
		}

		if info.Mode()&os.ModeSymlink != 0 {
			target, rerr := io.ReadAll(rc)
			rc.Close()
			if rerr != nil {
				return count, fmt.Errorf("failed to read symlink %s in zip: %w", f.Name, rerr)
			}
			if err := writeSymlink(destDir, destPath, string(target)); err != nil {
				return count, err
			}
			continue
		}

		err = writeFile(destDir, destPath, rc, info.Mode())
		rc.Close()
		if err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

func extractTarFile(archivePath, destDir, format string) (int, error) {
	f, err := os.Open(archivePath)
	if err != nil {
		return 0, fmt.Errorf("failed to open archive: %w", err)
	}
	defer f.Close()

	var r io.Reader = f
	switch format {
	case FormatTarGz:
		gzReader, err := gzip.NewReader(f)
		if err != nil {
			return 0, fmt.Errorf("failed to create gzip reader: %w", err)
		}
		defer gzReader.Close()
		r = gzReader
	case FormatTarXz:
		xzReader, err := xz.NewReader(f)
		if err != nil {
			return 0, fmt.Errorf("failed to create xz reader: %w", err)
		}
		r = xzReader
	case FormatTarZst:
		zr, err := zstd.NewReader(f)
		if err != nil {
			return 0, fmt.Errorf("failed to create zstd reader: %w", err)
		}
		defer zr.Close()
		r = zr
	}

	return extractTar(r, destDir)
}

func extractTar(r io.Reader, destDir string) (int, error) {
	tr := tar.NewReader(r)
	count := 0
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return count, nil
		}
		if err != nil {
			return count, fmt.Errorf("failed to read tar entry: %w", err)
		}

		destPath, err := safeJoin(destDir, hdr.Name)
		if err != nil {
			return count, err
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := makeDir(destDir, destPath); err != nil {
				return count, err
			}
		case tar.TypeReg:
			if err := writeFile(destDir, destPath, tr, hdr.FileInfo().Mode()); err != nil {
				return count, err
			}
			count++
		case tar.TypeSymlink:
			if err := writeSymlink(destDir, destPath, hdr.Linkname); err != nil {
				return count, err
			}
		case tar.TypeLink:
			src, err := safeJoin(destDir, hdr.Linkname)
			if err != nil {
				return count, err
			}
			if err := checkNoLinkedParents(destDir, filepath.Dir(src)); err != nil {
				return count, err
			}
			if err := checkNoLinkedParents(destDir, filepath.Dir(destPath)); err != nil {
				return count, err
			}
			_ = os.Remove(destPath)
			if err := os.Link(src, destPath); err != nil {
				return count, fmt.Errorf("failed to create hard link %s: %w", destPath, err)
			}
			count++
		default:
			logger.Logger().Debugf("skipping tar entry %s of type %c", hdr.Name, hdr.Typeflag)
		}
	}
}

func extractRpm(archivePath, destDir string) (int, error) {
	f, err := os.Open(archivePath)
	if err != nil {
		return 0, fmt.Errorf("failed to open rpm: %w", err)
	}
	defer f.Close()

	rpm, err := rpmutils.ReadRpm(f)
	if err != nil {
		return 0, fmt.Errorf("failed to read rpm headers: %w", err)
	}
	if err := rpm.ExpandPayload(destDir); err != nil {
		return 0, fmt.Errorf("failed to expand rpm payload: %w", err)
	}

	count := 0
	err = filepath.WalkDir(destDir, func(_ string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			count++
		}
		return nil
	})
	return count, err
}
