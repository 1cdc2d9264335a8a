package cli

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/360EntSecGroup-Skylar/excelize"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HerbHall/storefront/internal/catalog"
	"github.com/HerbHall/storefront/internal/config"
	"github.com/HerbHall/storefront/internal/testutil"
)

func newTestApp(t *testing.T, e *env) *app {
	t.Helper()
	cfg, err := config.Load(e.config)
	require.NoError(t, err)
	a, err := newApp(context.Background(), cfg, testutil.Logger())
	require.NoError(t, err)
	t.Cleanup(a.close)
	return a
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestNewApp_ServesCatalog(t *testing.T) {
	a := newTestApp(t, newEnv(t, nil))
	h := a.server.Handler()

	rec := get(t, h, "/api/v1/catalog/products?sort=name")
	require.Equal(t, http.StatusOK, rec.Code)
	var list catalog.ListResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&list))
	assert.Equal(t, 3, list.Count)

	rec = get(t, h, "/api/v1/health")
	require.Equal(t, http.StatusOK, rec.Code)
	var health map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&health))
	assert.Equal(t, "ok", health["status"])

	rec = get(t, h, "/api/v1/importer/status")
	assert.Equal(t, http.StatusNotFound, rec.Code, "importer is disabled by default")

	rec = get(t, h, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "storefront_catalog_products")
}

func TestNewApp_GalleryDefaultsToStaticDir(t *testing.T) {
	site := t.TempDir()
	a := newTestApp(t, newEnv(t, map[string]any{
		"server": map[string]any{"static_dir": site},
	}))
	assert.Equal(t, site, a.cfg.GetString("plugins.catalog.gallery.static_dir"))
}

func TestNewApp_ImportReloadsCatalog(t *testing.T) {
	dir := t.TempDir()
	workbook := filepath.Join(dir, "productos.xlsx")
	f := excelize.NewFile()
	rows := [][]string{
		{"ID", "Nombre", "Categoría", "Descripción", "Detalles", "Características"},
		{"10", "Parlante", "Audio", "Portátil", "Bluetooth", "Batería: 10 h"},
	}
	for r, row := range rows {
		for c, v := range row {
			f.SetCellValue("Sheet1", string(rune('A'+c))+strconv.Itoa(r+1), v)
		}
	}
	require.NoError(t, f.SaveAs(workbook))

	e := newEnv(t, nil)
	e.writeConfig(t, map[string]any{
		"plugins": map[string]any{
			"catalog":  map[string]any{"source": e.dataset, "fallback": "none"},
			"importer": map[string]any{"enabled": true, "input": workbook, "output": e.dataset},
		},
	})
	a := newTestApp(t, e)
	h := a.server.Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/importer/convert", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = get(t, h, "/api/v1/catalog/products")
	var list catalog.ListResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&list))
	require.Equal(t, 1, list.Count)
	assert.Equal(t, "Parlante", list.Products[0].Name)
}

func TestAppRun_ShutsDownOnCancel(t *testing.T) {
	a := newTestApp(t, newEnv(t, nil))
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.run(ctx, l) }()

	url := "http://" + l.Addr().String() + "/api/v1/health"
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return after cancel")
	}
}
