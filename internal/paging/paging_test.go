package paging

import (
	"net/url"
	"strings"
	"testing"
)

func TestTemplateURL(t *testing.T) {
	t.Parallel()

	tmpl, err := Parse("https://example.com/ajax/flats/?page={page}&cnt={cnt}&filter[project]=jazz", 60)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	tests := []struct {
		page int
		want string
	}{
		{1, "https://example.com/ajax/flats/?page=1&cnt=60&filter[project]=jazz"},
		{2, "https://example.com/ajax/flats/?page=2&cnt=60&filter[project]=jazz"},
		{999, "https://example.com/ajax/flats/?page=999&cnt=60&filter[project]=jazz"},
	}
	for _, tt := range tests {
		if got := tmpl.URL(tt.page); got != tt.want {
			t.Fatalf("URL(%d): want %q got %q", tt.page, tt.want, got)
		}
	}

	if got := tmpl.Site().String(); got != "https://example.com/" {
		t.Fatalf("Site(): got %q", got)
	}
}

func TestDefaultTemplateParses(t *testing.T) {
	t.Parallel()

	tmpl := MustParse(DefaultTemplate, DefaultPageSize)
	u := tmpl.URL(3)
	if !strings.Contains(u, "page=3&cnt=60") {
		t.Fatalf("unexpected default url: %q", u)
	}
	if tmpl.Site().Host != "dom-dostigenie.ru" {
		t.Fatalf("unexpected site: %v", tmpl.Site())
	}
}

func TestParseErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		tmpl string
		size int
		want string
	}{
		{"empty", "  ", 60, "empty url template"},
		{"no page", "https://example.com/?cnt={cnt}", 60, "no {page}"},
		{"zero size", "https://example.com/?page={page}&cnt={cnt}", 0, "page size"},
		{"scheme", "ftp://example.com/?page={page}", 60, "must be http(s)"},
		{"no host", "https:///?page={page}", 60, "no host"},
	}
	for _, tt := range tests {
		_, err := Parse(tt.tmpl, tt.size)
		if err == nil || !strings.Contains(err.Error(), tt.want) {
			t.Fatalf("%s: err=%v, want containing %q", tt.name, err, tt.want)
		}
	}
}

func TestParse_SizeOptionalWithoutPlaceholder(t *testing.T) {
	t.Parallel()

	tmpl, err := Parse("https://example.com/list/{page}", 0)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got := tmpl.URL(4); got != "https://example.com/list/4" {
		t.Fatalf("URL(4)=%q", got)
	}
}

// TestResolveHref verifies relative links become absolute when base is provided.
func TestResolveHref(t *testing.T) {
	t.Parallel()

	base, _ := url.Parse("https://example.com/root/page")
	if got := ResolveHref(base, "/upload/plan.pdf"); got != "https://example.com/upload/plan.pdf" {
		t.Fatalf("unexpected resolved url: %q", got)
	}
	if got := ResolveHref(base, "https://cdn.example.org/a.pdf"); got != "https://cdn.example.org/a.pdf" {
		t.Fatalf("absolute href changed: %q", got)
	}
	if got := ResolveHref(nil, "/a.pdf"); got != "/a.pdf" {
		t.Fatalf("nil base: %q", got)
	}
}
