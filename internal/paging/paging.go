// Package paging builds page URLs for the harvest loop and resolves links
// found in listing records.
package paging

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

const (
	// PagePlaceholder is replaced with the 1-based page index.
	PagePlaceholder = "{page}"

	// SizePlaceholder is replaced with the page size.
	SizePlaceholder = "{cnt}"

	// DefaultPageSize matches what the flats endpoint serves per page.
	DefaultPageSize = 60

	// DefaultTemplate is the dom-dostigenie flats listing for the jazz project,
	// sorted by price.
	DefaultTemplate = "https://dom-dostigenie.ru/ajax/flats/?page={page}&cnt={cnt}" +
		"&filter[project]=jazz&filter[special]=&filter[type]=&filter[fav]=0" +
		"&sort[sec]=0&sort[name]=0&sort[sq]=0&sort[price]=2&sort[rooms]=0&sort[floor]=0"
)

// Template is a parsed page URL template.
type Template struct {
	raw      string
	pageSize int
	base     *url.URL
}

// Parse validates tmpl and binds the page size.
//
// tmpl must be an absolute http(s) URL containing {page}. {cnt} is optional;
// when present it is replaced by pageSize, which must then be positive.
func Parse(tmpl string, pageSize int) (Template, error) {
	tmpl = strings.TrimSpace(tmpl)
	if tmpl == "" {
		return Template{}, errors.New("paging: empty url template")
	}
	if !strings.Contains(tmpl, PagePlaceholder) {
		return Template{}, fmt.Errorf("paging: url template %q has no %s placeholder", tmpl, PagePlaceholder)
	}
	if strings.Contains(tmpl, SizePlaceholder) && pageSize <= 0 {
		return Template{}, fmt.Errorf("paging: page size must be > 0, got %d", pageSize)
	}

	// Placeholders are not valid in every URL position; check a sample page.
	sample := expand(tmpl, 1, pageSize)
	u, err := url.Parse(sample)
	if err != nil {
		return Template{}, fmt.Errorf("paging: parse url template: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return Template{}, fmt.Errorf("paging: url template must be http(s), got scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return Template{}, fmt.Errorf("paging: url template %q has no host", tmpl)
	}

	return Template{
		raw:      tmpl,
		pageSize: pageSize,
		base:     &url.URL{Scheme: u.Scheme, Host: u.Host, Path: "/"},
	}, nil
}

// MustParse is Parse for templates fixed at compile time.
func MustParse(tmpl string, pageSize int) Template {
	t, err := Parse(tmpl, pageSize)
	if err != nil {
		panic(err)
	}
	return t
}

// URL returns the URL of page (1-based).
func (t Template) URL(page int) string {
	return expand(t.raw, page, t.pageSize)
}

// PageSize returns the bound page size.
func (t Template) PageSize() int { return t.pageSize }

// Site returns the scheme and host of the template, e.g. "https://example.com/".
func (t Template) Site() *url.URL {
	if t.base == nil {
		return nil
	}
	u := *t.base
	return &u
}

func (t Template) String() string { return t.raw }

func expand(tmpl string, page, size int) string {
	return strings.NewReplacer(
		PagePlaceholder, strconv.Itoa(page),
		SizePlaceholder, strconv.Itoa(size),
	).Replace(tmpl)
}

// ResolveHref resolves href against base, returning an absolute URL string.
// If href is invalid, it is returned unchanged.
func ResolveHref(base *url.URL, href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if base == nil {
		return u.String()
	}
	return base.ResolveReference(u).String()
}
