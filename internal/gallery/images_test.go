package gallery

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/HerbHall/storefront/internal/testutil"
	"github.com/HerbHall/storefront/pkg/catalog"
)

func TestMainImage(t *testing.T) {
	tests := []struct {
		name   string
		images []string
		want   string
	}{
		{name: "marked", images: []string{"a1.png", "a1_main.png", "a2.png"}, want: "a1_main.png"},
		{name: "first marked wins", images: []string{"x_main.png", "y_main.png"}, want: "x_main.png"},
		{name: "no marker", images: []string{"a1.png", "a2.png"}, want: "a1.png"},
		{name: "empty", images: nil, want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MainImage(tt.images); got != tt.want {
				t.Errorf("MainImage() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestGalleryImages(t *testing.T) {
	got := GalleryImages([]string{"a1.png", "a1_main.png", "a2.png"})
	if diff := cmp.Diff([]string{"a1.png", "a2.png"}, got); diff != "" {
		t.Errorf("GalleryImages() mismatch (-want +got):\n%s", diff)
	}

	if got := GalleryImages(nil); got == nil || len(got) != 0 {
		t.Errorf("GalleryImages(nil) = %#v, want empty non-nil slice", got)
	}
}

func TestVariants(t *testing.T) {
	got := Variants("dir/cam-ip1.png")
	want := []string{
		"dir/cam-ip.png",
		"dir/cam-ip1.png", "dir/cam-ip2.png", "dir/cam-ip3.png", "dir/cam-ip4.png", "dir/cam-ip5.png",
		"dir/cam-ip6.png", "dir/cam-ip7.png", "dir/cam-ip8.png", "dir/cam-ip9.png", "dir/cam-ip10.png",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Variants() mismatch (-want +got):\n%s", diff)
	}
}

func TestVariants_EdgeCases(t *testing.T) {
	tests := []struct {
		name  string
		path  string
		first string
		n     int
	}{
		{name: "no digits", path: "shoe.jpg", first: "shoe.jpg", n: 11},
		{name: "multi digit suffix", path: "a/b/item12.webp", first: "a/b/item.webp", n: 11},
		{name: "no extension", path: "assets/readme", first: "assets/readme", n: 1},
		{name: "empty", path: "", n: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Variants(tt.path)
			if len(got) != tt.n {
				t.Fatalf("len(Variants(%q)) = %d, want %d", tt.path, len(got), tt.n)
			}
			if tt.n > 0 && got[0] != tt.first {
				t.Errorf("Variants(%q)[0] = %q, want %q", tt.path, got[0], tt.first)
			}
		})
	}
}

func TestMainVariant(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{path: "dir/cam-ip1.png", want: "dir/cam-ip_main.png"},
		{path: "shoe.jpg", want: "shoe_main.jpg"},
		{path: "noext", want: "noext"},
		{path: "", want: ""},
	}
	for _, tt := range tests {
		if got := MainVariant(tt.path); got != tt.want {
			t.Errorf("MainVariant(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestCandidates(t *testing.T) {
	withList := testutil.NewProduct("1", testutil.WithImages("x_main.png", "x1.png"))
	legacy := testutil.NewProduct("2", testutil.WithImage("img/p2.png"))
	bare := testutil.NewProduct("3", testutil.WithImages())

	if diff := cmp.Diff([]string{"x_main.png", "x1.png"}, Candidates(withList, true)); diff != "" {
		t.Errorf("explicit list mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"img/p2.png"}, Candidates(legacy, false)); diff != "" {
		t.Errorf("legacy single mismatch (-want +got):\n%s", diff)
	}
	derived := Candidates(legacy, true)
	if len(derived) != MaxVariants+2 {
		t.Fatalf("derived candidates = %d, want %d", len(derived), MaxVariants+2)
	}
	if diff := cmp.Diff([]string{"img/p2_main.png", "img/p2.png", "img/p21.png"}, derived[:3]); diff != "" {
		t.Errorf("derived head mismatch (-want +got):\n%s", diff)
	}
	if got := Candidates(bare, true); len(got) != 0 {
		t.Errorf("Candidates(no images) = %v, want empty", got)
	}
}

func TestCardImage(t *testing.T) {
	const placeholder = "https://placehold.co/300?text={id}"

	tests := []struct {
		name string
		opts []func(*catalog.Product)
		want string
	}{
		{name: "main from list", opts: []func(*catalog.Product){testutil.WithImages("a1.png", "a_main.png")}, want: "a_main.png"},
		{name: "legacy image", opts: []func(*catalog.Product){testutil.WithImage("legacy.png")}, want: "legacy.png"},
		{name: "placeholder", opts: []func(*catalog.Product){testutil.WithImages()}, want: "https://placehold.co/300?text=7"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := testutil.NewProduct("7", tt.opts...)
			if got := CardImage(p, placeholder); got != tt.want {
				t.Errorf("CardImage() = %q, want %q", got, tt.want)
			}
		})
	}
}
