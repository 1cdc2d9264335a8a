// Package gallery resolves which product images to show: it picks main and
// gallery images by filename convention, derives numbered variants from legacy
// single-image entries and verifies candidates with concurrent existence
// probes.
package gallery

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/HerbHall/storefront/pkg/catalog"
)

// MainMarker tags the designated primary image in a filename.
const MainMarker = "_main"

// MaxVariants is the highest numbered suffix Variants derives.
const MaxVariants = 10

// variantPattern splits a filename into base, trailing digits and extension.
var variantPattern = regexp.MustCompile(`^(.+?)(\d*)(\.[^.]+)$`)

// MainImage returns the first image whose filename carries MainMarker, else
// the first image, else "".
func MainImage(images []string) string {
	for _, img := range images {
		if strings.Contains(img, MainMarker) {
			return img
		}
	}
	if len(images) > 0 {
		return images[0]
	}
	return ""
}

// GalleryImages returns the images that are not marked as main, in order.
func GalleryImages(images []string) []string {
	out := make([]string, 0, len(images))
	for _, img := range images {
		if !strings.Contains(img, MainMarker) {
			out = append(out, img)
		}
	}
	return out
}

// splitPath separates the directory part of a slash-separated path from its
// filename. dir is "" when the path has no directory.
func splitPath(path string) (dir, file string) {
	i := strings.LastIndex(path, "/")
	if i < 0 {
		return "", path
	}
	return path[:i], path[i+1:]
}

func joinPath(dir, file string) string {
	if dir == "" {
		return file
	}
	return dir + "/" + file
}

// Variants derives numbered candidates from a bare image path:
// "dir/cam-ip1.png" yields dir/cam-ip.png, dir/cam-ip1.png ... dir/cam-ip10.png.
// A path whose filename has no extension yields only itself.
func Variants(path string) []string {
	if path == "" {
		return []string{}
	}
	dir, file := splitPath(path)
	m := variantPattern.FindStringSubmatch(file)
	if m == nil {
		return []string{path}
	}
	base, ext := m[1], m[3]

	out := make([]string, 0, MaxVariants+1)
	out = append(out, joinPath(dir, base+ext))
	for i := 1; i <= MaxVariants; i++ {
		out = append(out, joinPath(dir, base+strconv.Itoa(i)+ext))
	}
	return out
}

// MainVariant returns the _main counterpart of a bare image path:
// "dir/cam-ip1.png" becomes "dir/cam-ip_main.png".
func MainVariant(path string) string {
	if path == "" {
		return ""
	}
	dir, file := splitPath(path)
	m := variantPattern.FindStringSubmatch(file)
	if m == nil {
		return path
	}
	return joinPath(dir, m[1]+MainMarker+m[3])
}

// Candidates lists the image paths to verify for a product detail view. An
// explicit images list wins; otherwise the legacy single image is used. With
// derive set the legacy image expands into its _main counterpart followed by
// the numbered variants.
func Candidates(p catalog.Product, derive bool) []string {
	if len(p.Images) > 0 {
		return append([]string(nil), p.Images...)
	}
	if p.Image == "" {
		return []string{}
	}
	if derive {
		variants := Variants(p.Image)
		if mv := MainVariant(p.Image); mv != p.Image {
			return append([]string{mv}, variants...)
		}
		return variants
	}
	return []string{p.Image}
}

// CardImage returns the image shown on listing and related-product cards.
// When the product has no image at all, placeholder is returned with "{id}"
// replaced by the product id.
func CardImage(p catalog.Product, placeholder string) string {
	if img := MainImage(p.Images); img != "" {
		return img
	}
	if p.Image != "" {
		return p.Image
	}
	return strings.ReplaceAll(placeholder, "{id}", string(p.ID))
}
