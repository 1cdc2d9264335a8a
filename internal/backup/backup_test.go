package backup

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HerbHall/storefront/internal/store"
)

func TestBackupRestore_RoundTrip(t *testing.T) {
	src := t.TempDir()
	dataset := filepath.Join(src, "products.json")
	cfg := filepath.Join(src, "storefront.yaml")
	dbPath := filepath.Join(src, "storefront.db")
	require.NoError(t, os.WriteFile(dataset, []byte(`{"products":[]}`), 0o600))
	require.NoError(t, os.WriteFile(cfg, []byte("server:\n  addr: :8080\n"), 0o600))

	s, err := store.New(dbPath)
	require.NoError(t, err)
	_, err = s.DB().Exec(`CREATE TABLE t (v TEXT)`)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	archive := filepath.Join(t.TempDir(), "backup.tar.gz")
	ctx := context.Background()
	require.NoError(t, Backup(ctx, Sources{Dataset: dataset, DBPath: dbPath, Config: cfg}, archive))

	dst := t.TempDir()
	names, err := Restore(ctx, archive, dst, false)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"products.json", "storefront.db", "storefront.yaml"}, names)

	got, err := os.ReadFile(filepath.Join(dst, "products.json"))
	require.NoError(t, err)
	assert.Equal(t, `{"products":[]}`, string(got))

	// A second restore refuses to overwrite without force.
	_, err = Restore(ctx, archive, dst, false)
	assert.ErrorIs(t, err, ErrExists)
	_, err = Restore(ctx, archive, dst, true)
	assert.NoError(t, err)
}

func TestBackup_SkipsMissingOptional(t *testing.T) {
	dataset := filepath.Join(t.TempDir(), "products.json")
	require.NoError(t, os.WriteFile(dataset, []byte("{}"), 0o600))

	archive := filepath.Join(t.TempDir(), "b.tar.gz")
	err := Backup(context.Background(), Sources{
		Dataset: dataset,
		DBPath:  filepath.Join(t.TempDir(), "absent.db"),
		Config:  filepath.Join(t.TempDir(), "absent.yaml"),
	}, archive)
	require.NoError(t, err)

	names, err := Restore(context.Background(), archive, t.TempDir(), false)
	require.NoError(t, err)
	assert.Equal(t, []string{"products.json"}, names)
}

func TestBackup_MissingDataset(t *testing.T) {
	err := Backup(context.Background(), Sources{Dataset: filepath.Join(t.TempDir(), "none.json")},
		filepath.Join(t.TempDir(), "b.tar.gz"))
	assert.Error(t, err)
}

func TestRestore_RejectsTraversal(t *testing.T) {
	archive := filepath.Join(t.TempDir(), "evil.tar.gz")
	f, err := os.Create(archive)
	require.NoError(t, err)
	gw := gzip.NewWriter(f)
	tw := tar.NewWriter(gw)
	body := []byte("x")
	require.NoError(t, tw.WriteHeader(&tar.Header{Name: "../escape.txt", Mode: 0o600, Size: int64(len(body)), Typeflag: tar.TypeReg}))
	_, err = tw.Write(body)
	require.NoError(t, err)
	require.NoError(t, tw.Close())
	require.NoError(t, gw.Close())
	require.NoError(t, f.Close())

	dst := t.TempDir()
	_, err = Restore(context.Background(), archive, dst, true)
	assert.ErrorIs(t, err, ErrUnsafePath)
	_, statErr := os.Stat(filepath.Join(filepath.Dir(dst), "escape.txt"))
	assert.True(t, os.IsNotExist(statErr))
}
