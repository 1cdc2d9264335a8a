// Package backup provides tar.gz-based backup and restore for storefront
// data: the product dataset, the probe cache database and the config file.
package backup

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite" // SQLite driver
)

// Sources lists the files to archive. Empty paths and missing optional
// files are skipped; Dataset is required.
type Sources struct {
	Dataset string
	DBPath  string
	Config  string
}

// ErrUnsafePath is returned for archive entries that would escape the
// restore directory.
var ErrUnsafePath = errors.New("unsafe path in archive")

// ErrExists is returned by Restore when a target file exists and force is
// not set.
var ErrExists = errors.New("file already exists")

// Backup creates a tar.gz archive of the sources. The database, when
// present, is WAL-checkpointed before it is copied.
func Backup(ctx context.Context, src Sources, outputPath string) (err error) {
	if _, statErr := os.Stat(src.Dataset); statErr != nil {
		return fmt.Errorf("dataset file not found: %w", statErr)
	}

	files := []string{src.Dataset}
	if src.DBPath != "" {
		if _, statErr := os.Stat(src.DBPath); statErr == nil {
			if err := checkpointWAL(ctx, src.DBPath); err != nil {
				return fmt.Errorf("WAL checkpoint failed: %w", err)
			}
			files = append(files, src.DBPath)
		}
	}
	if src.Config != "" {
		if _, statErr := os.Stat(src.Config); statErr == nil {
			files = append(files, src.Config)
		}
	}

	outFile, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("creating output file: %w", err)
	}
	defer func() {
		if cerr := outFile.Close(); err == nil {
			err = cerr
		}
	}()

	gw := gzip.NewWriter(outFile)
	tw := tar.NewWriter(gw)

	seen := make(map[string]bool, len(files))
	for _, f := range files {
		name := filepath.Base(f)
		if seen[name] {
			return fmt.Errorf("two sources share the archive name %q", name)
		}
		seen[name] = true
		if err := addFileToTar(tw, f, name); err != nil {
			return fmt.Errorf("adding %s to archive: %w", name, err)
		}
	}

	if err := tw.Close(); err != nil {
		return fmt.Errorf("finalizing tar: %w", err)
	}
	if err := gw.Close(); err != nil {
		return fmt.Errorf("finalizing gzip: %w", err)
	}
	return nil
}

// checkpointWAL opens the database, runs a TRUNCATE checkpoint to flush the
// WAL, and closes the connection.
func checkpointWAL(ctx context.Context, dbPath string) error {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	_, err = db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)")
	return err
}

// addFileToTar adds a single file to the tar archive under the given name.
func addFileToTar(tw *tar.Writer, filePath, archiveName string) error {
	f, err := os.Open(filePath)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}

	hdr, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return err
	}
	hdr.Name = archiveName

	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}

	_, err = io.Copy(tw, f)
	return err
}

// Restore extracts the archive at inputPath into dir. Existing files are
// only replaced when force is set. It returns the restored file names.
func Restore(ctx context.Context, inputPath, dir string, force bool) ([]string, error) {
	in, err := os.Open(inputPath)
	if err != nil {
		return nil, fmt.Errorf("opening archive: %w", err)
	}
	defer in.Close()

	gr, err := gzip.NewReader(in)
	if err != nil {
		return nil, fmt.Errorf("reading gzip: %w", err)
	}
	defer gr.Close()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating target dir: %w", err)
	}

	var restored []string
	tr := tar.NewReader(gr)
	for {
		if err := ctx.Err(); err != nil {
			return restored, err
		}
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return restored, nil
		}
		if err != nil {
			return restored, fmt.Errorf("reading tar: %w", err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		name := hdr.Name
		if name == "" || name != filepath.Base(name) || strings.Contains(name, "..") {
			return restored, fmt.Errorf("%w: %q", ErrUnsafePath, hdr.Name)
		}

		target := filepath.Join(dir, name)
		if _, statErr := os.Stat(target); statErr == nil && !force {
			return restored, fmt.Errorf("%w: %s (use force to overwrite)", ErrExists, target)
		}
		if err := extractFile(tr, target, hdr.FileInfo().Mode().Perm()); err != nil {
			return restored, fmt.Errorf("extracting %s: %w", name, err)
		}
		restored = append(restored, name)
	}
}

func extractFile(r io.Reader, target string, perm os.FileMode) error {
	if perm == 0 {
		perm = 0o644
	}
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
