package catalog

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	"github.com/HerbHall/storefront/internal/testutil"
	pkgcatalog "github.com/HerbHall/storefront/pkg/catalog"
)

func ids(products []pkgcatalog.Product) []string {
	out := make([]string, 0, len(products))
	for i := range products {
		out = append(out, string(products[i].ID))
	}
	return out
}

func names(products []pkgcatalog.Product) []string {
	out := make([]string, 0, len(products))
	for i := range products {
		out = append(out, products[i].Name)
	}
	return out
}

func TestIsComplete(t *testing.T) {
	tests := []struct {
		name string
		p    pkgcatalog.Product
		want bool
	}{
		{
			name: "complete",
			p:    testutil.NewProduct("1"),
			want: true,
		},
		{
			name: "missing description",
			p:    testutil.NewProduct("1", testutil.WithDescription("")),
			want: false,
		},
		{
			name: "whitespace description",
			p:    testutil.NewProduct("1", testutil.WithDescription("  \t\n")),
			want: false,
		},
		{
			name: "nil details",
			p:    testutil.NewProduct("1", testutil.WithDetails()),
			want: false,
		},
		{
			name: "blank details",
			p:    testutil.NewProduct("1", testutil.WithDetails("", "   ")),
			want: false,
		},
		{
			name: "one usable detail among blanks",
			p:    testutil.NewProduct("1", testutil.WithDetails("", "ok")),
			want: true,
		},
		{
			name: "nil features",
			p:    testutil.NewProduct("1", testutil.WithFeatures()),
			want: false,
		},
		{
			name: "blank features",
			p:    testutil.NewProduct("1", testutil.WithFeatures(" ")),
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsComplete(tt.p); got != tt.want {
				t.Errorf("IsComplete() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsComplete_Malformed(t *testing.T) {
	cat, err := pkgcatalog.Parse([]byte(`{"products":[
		{"id":1,"name":"x","category":"c","description":{"es":"x"},"details":["a"],"features":["b"]}
	]}`))
	require.NoError(t, err)

	p, ok := cat.Product("1")
	require.True(t, ok)
	assert.False(t, IsComplete(p), "malformed description must not count as complete")
}

func TestQuery_DefaultReturnsCompleteSubsetInOrder(t *testing.T) {
	cat := pkgcatalog.New([]pkgcatalog.Product{
		testutil.NewProduct("1"),
		testutil.NewProduct("2", testutil.Incomplete()),
		testutil.NewProduct("3"),
		testutil.NewProduct("4", testutil.WithFeatures("")),
		testutil.NewProduct("5"),
	}, nil)
	engine := NewEngine(cat)

	got := engine.Query(Query{Category: CategoryAll, SortBy: SortNewest})

	if diff := cmp.Diff([]string{"1", "3", "5"}, ids(got)); diff != "" {
		t.Errorf("Query() ids mismatch (-want +got):\n%s", diff)
	}
}

func TestQuery_SortByName(t *testing.T) {
	cat := pkgcatalog.New([]pkgcatalog.Product{
		testutil.NewProduct("1", testutil.WithName("Zapatillas")),
		testutil.NewProduct("2", testutil.WithName("Camiseta")),
		testutil.NewProduct("3", testutil.WithName("Mesa")),
	}, nil)
	engine := NewEngine(cat)

	got := engine.Query(Query{Category: CategoryAll, SortBy: SortName})

	if diff := cmp.Diff([]string{"Camiseta", "Mesa", "Zapatillas"}, names(got)); diff != "" {
		t.Errorf("sorted names mismatch (-want +got):\n%s", diff)
	}
}

func TestQuery_SortByNameIsLocaleAware(t *testing.T) {
	cat := pkgcatalog.New([]pkgcatalog.Product{
		testutil.NewProduct("1", testutil.WithName("Zapatillas")),
		testutil.NewProduct("2", testutil.WithName("Ácido")),
		testutil.NewProduct("3", testutil.WithName("bolso")),
		testutil.NewProduct("4", testutil.WithName("Banco")),
	}, nil)
	engine := NewEngine(cat, WithLanguage(language.Spanish))

	got := engine.Query(Query{SortBy: SortName})

	// Byte order would put "Ácido" last and "bolso" after "Zapatillas".
	if diff := cmp.Diff([]string{"Ácido", "Banco", "bolso", "Zapatillas"}, names(got)); diff != "" {
		t.Errorf("collated names mismatch (-want +got):\n%s", diff)
	}
}

func TestQuery_SortByCategoryIsStable(t *testing.T) {
	cat := pkgcatalog.New([]pkgcatalog.Product{
		testutil.NewProduct("1", testutil.WithCategory("home")),
		testutil.NewProduct("2", testutil.WithCategory("audio")),
		testutil.NewProduct("3", testutil.WithCategory("home")),
		testutil.NewProduct("4", testutil.WithCategory("audio")),
		testutil.NewProduct("5", testutil.WithCategory("camera")),
	}, nil)
	engine := NewEngine(cat)

	got := engine.Query(Query{SortBy: SortCategory})

	if diff := cmp.Diff([]string{"2", "4", "5", "1", "3"}, ids(got)); diff != "" {
		t.Errorf("category sort mismatch (-want +got):\n%s", diff)
	}
}

func TestQuery_CategoryFilter(t *testing.T) {
	cat := pkgcatalog.New([]pkgcatalog.Product{
		testutil.NewProduct("1", testutil.WithCategory("audio")),
		testutil.NewProduct("2", testutil.WithCategory("home")),
		testutil.NewProduct("3", testutil.WithCategory("audio")),
	}, nil)
	engine := NewEngine(cat)

	tests := []struct {
		category string
		want     []string
	}{
		{category: "audio", want: []string{"1", "3"}},
		{category: "home", want: []string{"2"}},
		{category: "aud", want: []string{}},
		{category: CategoryAll, want: []string{"1", "2", "3"}},
		{category: "", want: []string{"1", "2", "3"}},
	}
	for _, tt := range tests {
		t.Run("category="+tt.category, func(t *testing.T) {
			got := engine.Query(Query{Category: tt.category})
			assert.Equal(t, tt.want, ids(got))
		})
	}
}

func TestQuery_Search(t *testing.T) {
	cat := pkgcatalog.New([]pkgcatalog.Product{
		testutil.NewProduct("1", testutil.WithName("Cámara IP"), testutil.WithCategory("camera")),
		testutil.NewProduct("2", testutil.WithName("Parlante"), testutil.WithDescription("Sonido potente")),
		testutil.NewProduct("3", testutil.WithName("Hervidor"), testutil.WithCode("DX-HERV")),
		testutil.NewProduct("4", testutil.WithName("Mouse"), testutil.WithCategory("computing")),
	}, nil)
	engine := NewEngine(cat)

	tests := []struct {
		name string
		term string
		want []string
	}{
		{name: "name case-insensitive", term: "cámara", want: []string{"1"}},
		{name: "description", term: "SONIDO", want: []string{"2"}},
		{name: "code", term: "dx-herv", want: []string{"3"}},
		{name: "category id", term: "comput", want: []string{"4"}},
		{name: "no match", term: "zzz", want: []string{}},
		{name: "blank term is identity", term: "   ", want: []string{"1", "2", "3", "4"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := engine.Query(Query{Category: CategoryAll, Search: tt.term})
			assert.Equal(t, tt.want, ids(got))
		})
	}
}

func TestQuery_DeduplicatesByID(t *testing.T) {
	cat := pkgcatalog.New([]pkgcatalog.Product{
		testutil.NewProduct("1", testutil.WithName("first")),
		testutil.NewProduct("2"),
		testutil.NewProduct("1", testutil.WithName("again")),
	}, nil)
	engine := NewEngine(cat)

	got := engine.Query(Query{})

	require.Len(t, got, 2)
	assert.Equal(t, "first", got[0].Name)
}

func TestQuery_DeduplicatesBeforeSorting(t *testing.T) {
	cat := pkgcatalog.New([]pkgcatalog.Product{
		testutil.NewProduct("1", testutil.WithName("Zeta"), testutil.WithCategory("hogar")),
		testutil.NewProduct("2", testutil.WithName("Mesa"), testutil.WithCategory("hogar")),
		testutil.NewProduct("1", testutil.WithName("Alfa"), testutil.WithCategory("calzado")),
	}, nil)
	engine := NewEngine(cat)
	lookedUp, err := engine.Lookup("1")
	require.NoError(t, err)

	for _, key := range []SortKey{SortNewest, SortName, SortCategory} {
		t.Run(string(key), func(t *testing.T) {
			got := engine.Query(Query{SortBy: key})
			require.Len(t, got, 2)
			for _, p := range got {
				if p.ID == "1" {
					assert.Equal(t, lookedUp.Name, p.Name, "listing and detail agree on id 1")
				}
			}
		})
	}

	// A later duplicate cannot surface through a filter the first one fails.
	assert.Empty(t, engine.Query(Query{Category: "calzado"}))
}

func TestQuery_Idempotent(t *testing.T) {
	cat := pkgcatalog.New([]pkgcatalog.Product{
		testutil.NewProduct("1", testutil.WithName("b")),
		testutil.NewProduct("2", testutil.WithName("a")),
		testutil.NewProduct("3", testutil.Incomplete()),
	}, nil)
	engine := NewEngine(cat)
	q := Query{Category: CategoryAll, Search: "", SortBy: SortName}

	first := engine.Query(q)
	second := engine.Query(q)

	if diff := cmp.Diff(ids(first), ids(second)); diff != "" {
		t.Errorf("Query() not idempotent (-first +second):\n%s", diff)
	}
	// The snapshot itself keeps dataset order.
	assert.Equal(t, []string{"1", "2", "3"}, ids(cat.Products()))
}

func TestParseSort(t *testing.T) {
	tests := []struct {
		in      string
		want    SortKey
		wantErr bool
	}{
		{in: "", want: SortNewest},
		{in: "newest", want: SortNewest},
		{in: "Name", want: SortName},
		{in: "category", want: SortCategory},
		{in: "price", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseSort(tt.in)
		if tt.wantErr {
			if !errors.Is(err, ErrUnknownSort) {
				t.Errorf("ParseSort(%q) error = %v, want ErrUnknownSort", tt.in, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseSort(%q) unexpected error: %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseSort(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRelated_SameCategoryFirst(t *testing.T) {
	cat := pkgcatalog.New([]pkgcatalog.Product{
		testutil.NewProduct("o1", testutil.WithCategory("home")),
		testutil.NewProduct("cur", testutil.WithCategory("audio")),
		testutil.NewProduct("o2", testutil.WithCategory("home")),
		testutil.NewProduct("s1", testutil.WithCategory("audio")),
		testutil.NewProduct("o3", testutil.WithCategory("camera")),
		testutil.NewProduct("s2", testutil.WithCategory("audio")),
		testutil.NewProduct("o4", testutil.WithCategory("camera")),
		testutil.NewProduct("o5", testutil.WithCategory("home")),
	}, nil)
	engine := NewEngine(cat)

	got := engine.Related("cur", DefaultRelatedLimit)

	assert.Equal(t, []string{"s1", "s2", "o1", "o2"}, ids(got))
}

func TestRelated_NeverIncludesCurrentAndRespectsLimit(t *testing.T) {
	products := []pkgcatalog.Product{testutil.NewProduct("cur", testutil.WithCategory("audio"))}
	for _, id := range []string{"a", "b", "c", "d", "e", "f"} {
		products = append(products, testutil.NewProduct(id, testutil.WithCategory("audio")))
	}
	engine := NewEngine(pkgcatalog.New(products, nil))

	for _, limit := range []int{1, 3, 4, 10} {
		got := engine.Related("cur", limit)
		want := limit
		if want > 6 {
			want = 6
		}
		assert.Len(t, got, want, "limit %d", limit)
		assert.NotContains(t, ids(got), "cur")
	}
}

func TestRelated_SkipsIncompleteProducts(t *testing.T) {
	cat := pkgcatalog.New([]pkgcatalog.Product{
		testutil.NewProduct("cur", testutil.WithCategory("audio")),
		testutil.NewProduct("bad", testutil.WithCategory("audio"), testutil.Incomplete()),
		testutil.NewProduct("ok", testutil.WithCategory("home")),
	}, nil)
	engine := NewEngine(cat)

	assert.Equal(t, []string{"ok"}, ids(engine.Related("cur", 0)))
}

func TestRelated_IncompleteCurrentStillHasRelated(t *testing.T) {
	cat := pkgcatalog.New([]pkgcatalog.Product{
		testutil.NewProduct("cur", testutil.WithCategory("audio"), testutil.Incomplete()),
		testutil.NewProduct("a", testutil.WithCategory("audio")),
	}, nil)
	engine := NewEngine(cat)

	assert.Equal(t, []string{"a"}, ids(engine.Related("cur", 4)))
}

func TestRelated_EmptyCases(t *testing.T) {
	t.Run("unknown current", func(t *testing.T) {
		engine := NewEngine(pkgcatalog.New([]pkgcatalog.Product{testutil.NewProduct("a")}, nil))
		got := engine.Related("missing", 4)
		assert.NotNil(t, got)
		assert.Empty(t, got)
	})

	t.Run("empty pool", func(t *testing.T) {
		engine := NewEngine(pkgcatalog.New([]pkgcatalog.Product{
			testutil.NewProduct("cur"),
			testutil.NewProduct("x", testutil.Incomplete()),
		}, nil))
		assert.Empty(t, engine.Related("cur", 4))
	})
}

func TestLookup(t *testing.T) {
	cat := pkgcatalog.New([]pkgcatalog.Product{
		testutil.NewProduct("1"),
		testutil.NewProduct("2", testutil.Incomplete()),
	}, nil)
	engine := NewEngine(cat)

	p, err := engine.Lookup("1")
	require.NoError(t, err)
	assert.Equal(t, pkgcatalog.ProductID("1"), p.ID)

	_, err = engine.Lookup("2")
	assert.ErrorIs(t, err, ErrIncomplete)

	_, err = engine.Lookup("3")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCategories_CountsCompleteProducts(t *testing.T) {
	cat := pkgcatalog.New(
		[]pkgcatalog.Product{
			testutil.NewProduct("1", testutil.WithCategory("audio")),
			testutil.NewProduct("2", testutil.WithCategory("audio"), testutil.Incomplete()),
			testutil.NewProduct("3", testutil.WithCategory("home")),
		},
		[]pkgcatalog.Category{{ID: "audio", Name: "Audio"}, {ID: "home", Name: "Hogar"}, {ID: "beauty", Name: "Belleza"}},
	)
	engine := NewEngine(cat)

	got := engine.Categories()

	require.Len(t, got, 3)
	assert.Equal(t, 1, got[0].Count)
	assert.Equal(t, 1, got[1].Count)
	assert.Equal(t, 0, got[2].Count)
}

func TestSpecifications(t *testing.T) {
	p := testutil.NewProduct("1", testutil.WithFeatures(
		"Resolución: 1080p",
		"Sin especificación",
		"Hora: 10:30",
	))

	want := []Specification{
		{Key: "Resolución", Value: "1080p"},
		{Value: "Sin especificación"},
		{Value: "Hora: 10:30"},
	}
	if diff := cmp.Diff(want, Specifications(p)); diff != "" {
		t.Errorf("Specifications() mismatch (-want +got):\n%s", diff)
	}
}
