package catalog

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/HerbHall/storefront/internal/gallery"
	"github.com/HerbHall/storefront/internal/plugin"
	"github.com/HerbHall/storefront/internal/server"
	"github.com/HerbHall/storefront/internal/services"
	pkgcatalog "github.com/HerbHall/storefront/pkg/catalog"
)

// cardDetails is how many detail lines a listing card shows.
const cardDetails = 3

// Card is the listing and related-product representation of a product.
type Card struct {
	ID           pkgcatalog.ProductID `json:"id"`
	Name         string               `json:"name"`
	Category     string               `json:"category"`
	CategoryName string               `json:"category_name"`
	Description  string               `json:"description"`
	Details      []string             `json:"details"`
	Image        string               `json:"image"`
}

// ListResponse is the response for GET /api/v1/catalog/products.
type ListResponse struct {
	Category string `json:"category"`
	Search   string `json:"search,omitempty"`
	Sort     string `json:"sort"`
	Count    int    `json:"count"`
	Products []Card `json:"products"`
}

// Detail is the full product view.
type Detail struct {
	pkgcatalog.Product
	CategoryName   string          `json:"category_name"`
	MainImage      string          `json:"main_image"`
	GalleryImages  []string        `json:"gallery_images"`
	Specifications []Specification `json:"specifications"`
}

func (m *Module) card(e *Engine, p pkgcatalog.Product) Card {
	details := p.Details
	if len(details) > cardDetails {
		details = details[:cardDetails]
	}
	if details == nil {
		details = []string{}
	}
	return Card{
		ID:           p.ID,
		Name:         p.Name,
		Category:     p.Category,
		CategoryName: e.Catalog().CategoryName(p.Category),
		Description:  p.Description,
		Details:      details,
		Image:        gallery.CardImage(p, m.settings.Placeholder),
	}
}

func (m *Module) cards(e *Engine, products []pkgcatalog.Product) []Card {
	out := make([]Card, 0, len(products))
	for i := range products {
		out = append(out, m.card(e, products[i]))
	}
	return out
}

// Routes implements plugin.Plugin.
func (m *Module) Routes() []plugin.Route {
	return []plugin.Route{
		{Method: http.MethodGet, Path: "/products", Handler: m.handleList},
		{Method: http.MethodGet, Path: "/products/{id}", Handler: m.handleDetail},
		{Method: http.MethodGet, Path: "/products/{id}/related", Handler: m.handleRelated},
		{Method: http.MethodGet, Path: "/products/{id}/gallery", Handler: m.handleGallery},
		{Method: http.MethodGet, Path: "/products/{id}/specifications", Handler: m.handleSpecifications},
		{Method: http.MethodGet, Path: "/categories", Handler: m.handleCategories},
		{Method: http.MethodGet, Path: "/probes", Handler: m.handleProbes},
		{Method: http.MethodDelete, Path: "/probes", Handler: m.handlePurgeProbes},
		{Method: http.MethodPost, Path: "/reload", Handler: m.handleReload},
	}
}

// handleList returns the filtered, sorted listing.
//
//	@Summary	List products
//	@Tags		catalog
//	@Produce	json
//	@Param		category query string false "Category id, or all"
//	@Param		q query string false "Case-insensitive search term"
//	@Param		sort query string false "newest, name or category"
//	@Success	200 {object} ListResponse
//	@Failure	400 {object} server.Problem
//	@Router		/catalog/products [get]
func (m *Module) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	key, err := ParseSort(q.Get("sort"))
	if err != nil {
		server.BadRequest(w, err.Error(), r.URL.Path)
		return
	}
	category := q.Get("category")
	if category == "" {
		category = CategoryAll
	}

	e := m.Engine()
	products := e.Query(Query{Category: category, Search: q.Get("q"), SortBy: key})
	if m.metrics != nil {
		m.metrics.QueryServed(string(key))
	}

	cards := m.cards(e, products)
	writeJSON(w, http.StatusOK, ListResponse{
		Category: category,
		Search:   q.Get("q"),
		Sort:     string(key),
		Count:    len(cards),
		Products: cards,
	})
}

// lookup resolves the {id} path value and writes the error response when the
// product cannot be shown. Incomplete products redirect to the listing.
func (m *Module) lookup(w http.ResponseWriter, r *http.Request) (*Engine, pkgcatalog.Product, bool) {
	id := pkgcatalog.ProductID(r.PathValue("id"))
	e := m.Engine()
	p, err := e.Lookup(id)
	switch {
	case err == nil:
		return e, p, true
	case errors.Is(err, ErrIncomplete):
		http.Redirect(w, r, m.settings.ListingPath, http.StatusSeeOther)
	default:
		server.NotFound(w, "product "+string(id)+" not found", r.URL.Path)
	}
	return nil, pkgcatalog.Product{}, false
}

// handleDetail returns one complete product.
//
//	@Summary	Get product detail
//	@Tags		catalog
//	@Produce	json
//	@Param		id path string true "Product id"
//	@Success	200 {object} Detail
//	@Success	303 "Incomplete product, redirected to the listing"
//	@Failure	404 {object} server.Problem
//	@Router		/catalog/products/{id} [get]
func (m *Module) handleDetail(w http.ResponseWriter, r *http.Request) {
	e, p, ok := m.lookup(w, r)
	if !ok {
		return
	}
	candidates := gallery.Candidates(p, false)
	writeJSON(w, http.StatusOK, Detail{
		Product:        p,
		CategoryName:   e.Catalog().CategoryName(p.Category),
		MainImage:      gallery.MainImage(candidates),
		GalleryImages:  gallery.GalleryImages(candidates),
		Specifications: Specifications(p),
	})
}

// handleRelated returns up to limit related products.
func (m *Module) handleRelated(w http.ResponseWriter, r *http.Request) {
	limit := m.settings.RelatedLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			server.BadRequest(w, "limit must be a positive integer", r.URL.Path)
			return
		}
		limit = n
	}
	id := pkgcatalog.ProductID(r.PathValue("id"))
	e := m.Engine()
	if _, ok := e.Catalog().Product(id); !ok {
		server.NotFound(w, "product "+string(id)+" not found", r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, m.cards(e, e.Related(id, limit)))
}

// handleGallery probes the product's image candidates and returns the
// verified gallery.
func (m *Module) handleGallery(w http.ResponseWriter, r *http.Request) {
	_, p, ok := m.lookup(w, r)
	if !ok {
		return
	}
	g, err := m.Gallery(r.Context(), p)
	if err != nil {
		m.logger.Debug("gallery abandoned", zap.String("id", string(p.ID)), zap.Stringer("state", g.State), zap.Error(err))
		server.Unavailable(w, "gallery resolution did not finish", r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (m *Module) handleSpecifications(w http.ResponseWriter, r *http.Request) {
	_, p, ok := m.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, Specifications(p))
}

func (m *Module) handleCategories(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, m.Engine().Categories())
}

// handleProbes pages through the image probe cache.
func (m *Module) handleProbes(w http.ResponseWriter, r *http.Request) {
	if m.probes == nil {
		writeJSON(w, http.StatusOK, services.ListResult[services.ProbeRecord]{Items: []services.ProbeRecord{}})
		return
	}
	q := r.URL.Query()
	opts := services.ListOptions{SortBy: q.Get("sort"), SortOrder: q.Get("order")}
	var err error
	if opts.Limit, err = intParam(q.Get("limit")); err != nil {
		server.BadRequest(w, "limit must be an integer", r.URL.Path)
		return
	}
	if opts.Offset, err = intParam(q.Get("offset")); err != nil {
		server.BadRequest(w, "offset must be an integer", r.URL.Path)
		return
	}
	res, err := m.probes.List(r.Context(), opts)
	if err != nil {
		m.logger.Error("list probes", zap.Error(err))
		server.InternalError(w, "failed to list probe cache", r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handlePurgeProbes drops cache entries older than the cache TTL, or every
// entry with ?all=true.
func (m *Module) handlePurgeProbes(w http.ResponseWriter, r *http.Request) {
	if m.probes == nil {
		writeJSON(w, http.StatusOK, map[string]int64{"purged": 0})
		return
	}
	before := time.Now().Add(-m.settings.Gallery.CacheTTL)
	if all, _ := strconv.ParseBool(r.URL.Query().Get("all")); all {
		before = time.Now().Add(time.Second)
	}
	n, err := m.probes.Purge(r.Context(), before)
	if err != nil {
		m.logger.Error("purge probes", zap.Error(err))
		server.InternalError(w, "failed to purge probe cache", r.URL.Path)
		return
	}
	m.logger.Info("probe cache purged", zap.Int64("purged", n))
	writeJSON(w, http.StatusOK, map[string]int64{"purged": n})
}

func intParam(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}

// handleReload reloads the dataset on demand.
func (m *Module) handleReload(w http.ResponseWriter, r *http.Request) {
	if err := m.Reload(r.Context()); err != nil {
		m.logger.Warn("reload failed", zap.Error(err))
		server.Unavailable(w, err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "reloaded",
		"products": m.Engine().Catalog().Len(),
	})
}

// -- helpers --

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
