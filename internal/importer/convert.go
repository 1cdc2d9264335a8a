// Package importer converts the product spreadsheet maintained by the shop
// into the products.json dataset the catalog serves.
package importer

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/360EntSecGroup-Skylar/excelize"
	"github.com/spf13/cast"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/HerbHall/storefront/pkg/catalog"
)

// ProductImageDir is where bare image names from the sheet are placed.
const ProductImageDir = "assets/images/products/"

// FallbackCategoryImage is used for products in unknown categories that list
// no images.
const FallbackCategoryImage = "assets/images/categories/cat-electronics.png"

// ErrNoSheet is returned for workbooks without a readable sheet.
var ErrNoSheet = errors.New("workbook has no sheets")

type field int

const (
	fieldNone field = iota
	fieldID
	fieldCode
	fieldName
	fieldCategory
	fieldDescription
	fieldDetails
	fieldFeatures
	fieldImages
)

// headerKeywords is checked in order; the first field with a keyword
// contained in the lower-cased header wins.
var headerKeywords = []struct {
	field    field
	keywords []string
}{
	{fieldID, []string{"id"}},
	{fieldCode, []string{"code", "código"}},
	{fieldName, []string{"name", "nombre", "producto"}},
	{fieldCategory, []string{"category", "categoría"}},
	{fieldDescription, []string{"description", "descripción"}},
	{fieldDetails, []string{"details", "detalles"}},
	{fieldFeatures, []string{"features", "características", "especificaciones"}},
	{fieldImages, []string{"image", "imagen", "imágenes"}},
}

func classifyHeader(header string) field {
	h := strings.ToLower(strings.TrimSpace(header))
	if h == "" {
		return fieldNone
	}
	for _, hk := range headerKeywords {
		for _, kw := range hk.keywords {
			if strings.Contains(h, kw) {
				return hk.field
			}
		}
	}
	return fieldNone
}

// categoryAliases maps display names and ids found in the sheet to category
// ids.
var categoryAliases = map[string]string{
	"cámaras y fotografía":     "camera",
	"camera":                   "camera",
	"productos de belleza":     "beauty",
	"beauty":                   "beauty",
	"audio y sonido":           "audio",
	"audio":                    "audio",
	"hogar y cocina":           "home",
	"hogar":                    "home",
	"home":                     "home",
	"computación y gamer":      "computing",
	"computing":                "computing",
	"imagen y tv":              "image",
	"image":                    "image",
	"electrónica y accesorios": "electronics",
	"electrónica":              "electronics",
	"electronics":              "electronics",
	"celulares y tablets":      "mobile",
	"mobile":                   "mobile",
}

// categoryNames are the display names written to the categories list.
var categoryNames = map[string]string{
	"camera":      "Cámaras & Fotografía",
	"beauty":      "Productos de Belleza",
	"audio":       "Audio & Sonido",
	"home":        "Hogar & Cocina",
	"computing":   "Computación & Gamer",
	"image":       "Imagen & TV",
	"electronics": "Electrónica & Accesorios",
	"mobile":      "Celulares & Tablets",
}

// categoryImages are the default images for products without their own.
var categoryImages = map[string]string{
	"audio":       "assets/images/categories/cat-audio.png",
	"beauty":      "assets/images/categories/cat-beauty.png",
	"camera":      "assets/images/categories/cat-camera.png",
	"computing":   "assets/images/categories/cat-computing.png",
	"electronics": "assets/images/categories/cat-electronics.png",
	"home":        "assets/images/categories/cat-home.png",
	"image":       "assets/images/categories/cat-image.png",
	"mobile":      "assets/images/categories/cat-cell.png",
}

// NormalizeCategory maps a sheet category to its id: known display names
// through the alias table, anything else lower-cased with spaces turned into
// dashes and accents removed.
func NormalizeCategory(raw string) string {
	c := strings.ToLower(strings.TrimSpace(raw))
	if id, ok := categoryAliases[c]; ok {
		return id
	}
	return stripAccents(strings.ReplaceAll(c, " ", "-"))
}

func stripAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// CategoryName returns the display name for a category id.
func CategoryName(id string) string {
	if name, ok := categoryNames[id]; ok {
		return name
	}
	if id == "" {
		return ""
	}
	r := []rune(id)
	return strings.ToUpper(string(r[0])) + strings.ToLower(string(r[1:]))
}

// SplitList splits a multi-value cell on ";" when present, else ",", else
// newlines. Entries are trimmed and empties dropped.
func SplitList(cell string) []string {
	sep := "\n"
	switch {
	case strings.Contains(cell, ";"):
		sep = ";"
	case strings.Contains(cell, ","):
		sep = ","
	}
	return splitTrim(cell, sep)
}

// splitImages splits an image cell on ";" when present, else ",".
func splitImages(cell string) []string {
	sep := ","
	if strings.Contains(cell, ";") {
		sep = ";"
	}
	return splitTrim(cell, sep)
}

func splitTrim(s, sep string) []string {
	parts := strings.Split(s, sep)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// NormalizeImage turns a sheet image entry into a site path. Entries already
// rooted at assets/ or / are kept; bare names are placed under
// ProductImageDir, prefixed with the product code when they are a suffix
// ("_main", "0", "main"). ".png" is appended when the filename has no
// extension.
func NormalizeImage(img, code string) string {
	img = strings.TrimSpace(strings.TrimRight(strings.TrimSpace(img), ";"))
	if img == "" {
		return ""
	}

	var full string
	switch {
	case strings.HasPrefix(img, "assets/") || strings.HasPrefix(img, "/"):
		full = img
	case code != "" && (strings.Contains(img, code) || strings.Contains(img, "_") || isDigits(img)):
		switch {
		case strings.HasPrefix(img, code):
			full = ProductImageDir + img
		case strings.HasPrefix(img, "_"), isDigits(img):
			full = ProductImageDir + code + img
		default:
			full = ProductImageDir + code + "_" + img
		}
	default:
		full = ProductImageDir + img
	}

	if !strings.Contains(path.Base(full), ".") {
		full += ".png"
	}
	return full
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// normalizeID renders numeric ids as integers ("3.0" becomes "3") and keeps
// anything else verbatim.
func normalizeID(cell string) catalog.ProductID {
	cell = strings.TrimSpace(cell)
	if f, err := strconv.ParseFloat(cell, 64); err == nil {
		return catalog.ProductID(strconv.Itoa(cast.ToInt(f)))
	}
	return catalog.ProductID(cell)
}

// Rows converts spreadsheet rows, the first being headers, into a dataset
// document.
func Rows(rows [][]string) *catalog.Document {
	doc := &catalog.Document{
		Products:   []catalog.Product{},
		Categories: []catalog.Category{},
	}
	if len(rows) == 0 {
		return doc
	}

	fields := make([]field, len(rows[0]))
	for i, h := range rows[0] {
		fields[i] = classifyHeader(h)
	}

	used := map[string]struct{}{}
	for _, row := range rows[1:] {
		if blankRow(row) {
			continue
		}
		p, hasID := productFromRow(fields, row)
		if p.Name == "" {
			continue
		}
		if p.Category != "" {
			used[p.Category] = struct{}{}
		}
		if !hasID {
			p.ID = catalog.ProductID(strconv.Itoa(len(doc.Products) + 1))
		}
		p.Images = productImages(p)
		doc.Products = append(doc.Products, p)
	}

	ids := make([]string, 0, len(used))
	for id := range used {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		doc.Categories = append(doc.Categories, catalog.Category{ID: id, Name: CategoryName(id)})
	}
	return doc
}

func blankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func productFromRow(fields []field, row []string) (catalog.Product, bool) {
	var p catalog.Product
	hasID := false
	for i, f := range fields {
		if i >= len(row) {
			break
		}
		cell := row[i]
		if strings.TrimSpace(cell) == "" {
			continue
		}
		switch f {
		case fieldID:
			p.ID = normalizeID(cell)
			hasID = true
		case fieldCode:
			p.Code = cell
		case fieldName:
			p.Name = cell
		case fieldCategory:
			p.Category = NormalizeCategory(cell)
		case fieldDescription:
			p.Description = cell
		case fieldDetails:
			p.Details = SplitList(cell)
		case fieldFeatures:
			p.Features = SplitList(cell)
		case fieldImages:
			p.Images = splitImages(cell)
		}
	}
	return p, hasID
}

func productImages(p catalog.Product) []string {
	out := make([]string, 0, len(p.Images))
	for _, img := range p.Images {
		if n := NormalizeImage(img, p.Code); n != "" {
			out = append(out, n)
		}
	}
	if len(out) > 0 {
		return out
	}
	if img, ok := categoryImages[p.Category]; ok {
		return []string{img}
	}
	return []string{FallbackCategoryImage}
}

// Convert reads the active sheet of the workbook at workbook.
func Convert(workbook string) (*catalog.Document, error) {
	f, err := excelize.OpenFile(workbook)
	if err != nil {
		return nil, fmt.Errorf("open workbook %q: %w", workbook, err)
	}
	sheet := f.GetSheetName(f.GetActiveSheetIndex())
	if sheet == "" {
		names := f.GetSheetMap()
		if len(names) == 0 {
			return nil, fmt.Errorf("%q: %w", workbook, ErrNoSheet)
		}
		first := 0
		for idx := range names {
			if first == 0 || idx < first {
				first = idx
			}
		}
		sheet = names[first]
	}
	return Rows(f.GetRows(sheet)), nil
}

// Encode renders doc as indented JSON without HTML escaping so accents and
// ampersands stay readable.
func Encode(doc *catalog.Document) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("encode dataset: %w", err)
	}
	return buf.Bytes(), nil
}

// WriteJSON writes doc to out atomically: a temp file in the same directory
// is renamed over the destination.
func WriteJSON(doc *catalog.Document, out string) error {
	data, err := Encode(doc)
	if err != nil {
		return err
	}
	dir := filepath.Dir(out)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(out)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, out); err != nil {
		return fmt.Errorf("replace %q: %w", out, err)
	}
	return nil
}

// Result summarises one conversion.
type Result struct {
	Products   int `json:"products"`
	Categories int `json:"categories"`
}

// ConvertFile converts the workbook at in and writes the dataset to out.
func ConvertFile(in, out string) (Result, error) {
	doc, err := Convert(in)
	if err != nil {
		return Result{}, err
	}
	if err := WriteJSON(doc, out); err != nil {
		return Result{}, err
	}
	return Result{Products: len(doc.Products), Categories: len(doc.Categories)}, nil
}
