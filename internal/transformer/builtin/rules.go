// Package builtin holds the concrete extraction rules of the canonical listing
// schema (version 1) and the small domain helpers they share.
package builtin

import (
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"realty/internal/paging"
	"realty/internal/transformer"
	"realty/pkg/records"
)

const (
	// DefaultSiteURL is the base for relative media links.
	DefaultSiteURL = "https://dom-dostigenie.ru"

	// DefaultComplexName is the complex name plus region.
	DefaultComplexName = "Достижение (Москва)"

	// StatusReserved is the sale status shown for reserved units.
	StatusReserved = "Забронировано"

	// Studio is the rooms value for studio units.
	Studio = "studio"
)

// Options configures the schema v1 rule set.
type Options struct {
	// SiteURL resolves relative plan links. Default DefaultSiteURL.
	SiteURL string

	// ComplexName is emitted as the complex field. Default DefaultComplexName.
	ComplexName string
}

// TypeTable is the object type lookup, in tie-break order.
var TypeTable = MustCategories(
	"flat", `квартира`,
	"apartment", `апартамент`,
	"parking", `машиноместо|паркинг`,
	"townhouse", `таунхаус|коттедж|дуплекс`,
)

var (
	reStudio    = regexp.MustCompile(`студи`)
	reFurniture = regexp.MustCompile(`furniture`)
)

const viewPrefix = "window_view_"

// Rules returns the schema v1 rule set in enumeration order.
func Rules(opts Options) ([]transformer.Rule, error) {
	site := strings.TrimSpace(opts.SiteURL)
	if site == "" {
		site = DefaultSiteURL
	}
	base, err := url.Parse(site)
	if err != nil {
		return nil, fmt.Errorf("builtin: parse site url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("builtin: site url %q must be absolute", site)
	}

	complexName := opts.ComplexName
	if complexName == "" {
		complexName = DefaultComplexName
	}

	return []transformer.Rule{
		constant("complex", complexName),
		{Name: "type", Fields: []string{"type"}, Extract: extractType},
		unknown("phase"),
		unknown("building"),
		{Name: "section", Fields: []string{"section"}, Extract: extractSection},
		unknown("price_base"),
		{Name: "price_finished", Fields: []string{"price_finished"}, Extract: extractPriceFinished},
		unknown("price_sale"),
		unknown("price_finished_sale"),
		{Name: "area", Fields: []string{"area"}, Extract: extractArea},
		unknown("living_area"),
		{Name: "number", Fields: []string{"number"}, Extract: extractNumber},
		unknown("number_on_site"),
		{Name: "rooms", Fields: []string{"rooms"}, Extract: extractRooms},
		{Name: "floor", Fields: []string{"floor"}, Extract: extractFloor},
		{Name: "in_sale", Fields: []string{"in_sale"}, Extract: extractInSale},
		{Name: "sale_status", Fields: []string{"sale_status"}, Extract: extractSaleStatus},
		constant("finished", int64(1)),
		{Name: "currency", Fields: []string{"currency"}, Extract: extractCurrency},
		unknown("ceil"),
		omitted("article"),
		unknown("finishing_name"),
		{Name: "furniture", Fields: []string{"furniture"}, Extract: extractFurniture},
		unknown("furniture_price"),
		{Name: "plan", Fields: []string{"plan"}, Extract: planExtractor(base)},
		{Name: "feature", Fields: []string{"feature"}, Extract: extractFeature},
		{Name: "view", Fields: []string{"view"}, Extract: extractView},
		unknown("euro_planning"),
		unknown("sale"),
		omitted("discount_percent"),
		omitted("discount"),
		omitted("comment"),
	}, nil
}

// NewRegistry builds the schema v1 registry.
func NewRegistry(opts Options) (*transformer.Registry, error) {
	rules, err := Rules(opts)
	if err != nil {
		return nil, err
	}
	return transformer.NewRegistry(rules...)
}

// constant emits the same value for every record.
func constant(field string, v any) transformer.Rule {
	return transformer.Rule{
		Name:   field,
		Fields: []string{field},
		Extract: func(records.Record) (transformer.Fragment, error) {
			return transformer.Fragment{field: v}, nil
		},
	}
}

// unknown emits field as null: the source never publishes it.
func unknown(field string) transformer.Rule {
	return constant(field, nil)
}

// omitted contributes no field to this schema build.
func omitted(name string) transformer.Rule {
	return transformer.Rule{
		Name: name,
		Extract: func(records.Record) (transformer.Fragment, error) {
			return nil, nil
		},
	}
}

func lookup(raw records.Record, key string) (any, error) {
	v, ok := raw[key]
	if !ok {
		return nil, transformer.MissingField(key)
	}
	return v, nil
}

// nullable is the fragment of a field whose raw value is present but null.
func nullable(field string) transformer.Fragment {
	return transformer.Fragment{field: nil}
}

func extractType(raw records.Record) (transformer.Fragment, error) {
	v, err := lookup(raw, "type")
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nullable("type"), nil
	}
	text, err := AsString(v)
	if err != nil {
		return nil, transformer.TypeMismatch("type", v)
	}
	if tok, ok := MatchCategory(TypeTable, text); ok {
		return transformer.Fragment{"type": tok}, nil
	}
	return nullable("type"), nil
}

func extractSection(raw records.Record) (transformer.Fragment, error) {
	v, err := lookup(raw, "section")
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nullable("section"), nil
	}
	s, err := AsString(v)
	if err != nil {
		return nil, transformer.TypeMismatch("section", v)
	}
	return transformer.Fragment{"section": s}, nil
}

// extractPriceFinished maps a zero price (unit not on sale) to null.
func extractPriceFinished(raw records.Record) (transformer.Fragment, error) {
	return positiveFloat(raw, "real_price", "price_finished")
}

// extractArea maps zero area (sold units) to null.
func extractArea(raw records.Record) (transformer.Fragment, error) {
	return positiveFloat(raw, "sq", "area")
}

// positiveFloat emits raw[key] as a float under field, with null and zero
// both meaning unknown.
func positiveFloat(raw records.Record, key, field string) (transformer.Fragment, error) {
	v, err := lookup(raw, key)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nullable(field), nil
	}
	f, err := AsFloat(v)
	if err != nil {
		return nil, transformer.TypeMismatch(key, v)
	}
	if f == 0 {
		return nullable(field), nil
	}
	return transformer.Fragment{field: f}, nil
}

func extractNumber(raw records.Record) (transformer.Fragment, error) {
	v, err := lookup(raw, "num")
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nullable("number"), nil
	}
	s, err := AsString(v)
	if err != nil {
		return nil, transformer.TypeMismatch("num", v)
	}
	return transformer.Fragment{"number": s}, nil
}

func extractRooms(raw records.Record) (transformer.Fragment, error) {
	if v, ok := raw["type"]; ok {
		if text, err := AsString(v); err == nil && reStudio.MatchString(Fold(text)) {
			return transformer.Fragment{"rooms": Studio}, nil
		}
	}
	v, err := lookup(raw, "rooms")
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nullable("rooms"), nil
	}
	n, err := AsInt(v)
	if err != nil {
		return nil, transformer.TypeMismatch("rooms", v)
	}
	return transformer.Fragment{"rooms": n}, nil
}

func extractFloor(raw records.Record) (transformer.Fragment, error) {
	v, err := lookup(raw, "floor")
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nullable("floor"), nil
	}
	n, err := AsInt(v)
	if err != nil {
		return nil, transformer.TypeMismatch("floor", v)
	}
	return transformer.Fragment{"floor": n}, nil
}

// extractInSale: units without a price are not on sale.
func extractInSale(raw records.Record) (transformer.Fragment, error) {
	v, err := lookup(raw, "real_price")
	if err != nil {
		return nil, err
	}
	if Truthy(v) {
		return transformer.Fragment{"in_sale": int64(1)}, nil
	}
	return transformer.Fragment{"in_sale": int64(0)}, nil
}

func extractSaleStatus(raw records.Record) (transformer.Fragment, error) {
	v, err := lookup(raw, "reserved")
	if err != nil {
		return nil, err
	}
	switch x := v.(type) {
	case bool:
		if x {
			return transformer.Fragment{"sale_status": StatusReserved}, nil
		}
	case string:
		if strings.EqualFold(strings.TrimSpace(x), "true") {
			return transformer.Fragment{"sale_status": StatusReserved}, nil
		}
	}
	return nullable("sale_status"), nil
}

// extractCurrency emits currency only for non-ruble prices.
func extractCurrency(raw records.Record) (transformer.Fragment, error) {
	v, ok := raw["currency"]
	if !ok || v == nil {
		return nil, nil
	}
	s, err := AsString(v)
	if err != nil {
		return nil, transformer.TypeMismatch("currency", v)
	}
	s = strings.ToUpper(strings.TrimSpace(s))
	switch s {
	case "", "RUB", "RUR":
		return nil, nil
	}
	return transformer.Fragment{"currency": s}, nil
}

// extractFurniture defaults to 0: no furniture folder means no furniture.
func extractFurniture(raw records.Record) (transformer.Fragment, error) {
	v := raw["scheme_folder"]
	if v == nil {
		return transformer.Fragment{"furniture": int64(0)}, nil
	}
	s, err := AsString(v)
	if err != nil {
		return nil, transformer.TypeMismatch("scheme_folder", v)
	}
	if reFurniture.MatchString(strings.ToLower(s)) {
		return transformer.Fragment{"furniture": int64(1)}, nil
	}
	return transformer.Fragment{"furniture": int64(0)}, nil
}

func planExtractor(base *url.URL) transformer.ExtractFunc {
	return func(raw records.Record) (transformer.Fragment, error) {
		v, err := lookup(raw, "pdf")
		if err != nil {
			return nil, err
		}
		if !Truthy(v) {
			return nullable("plan"), nil
		}
		href, err := AsString(v)
		if err != nil {
			return nil, transformer.TypeMismatch("pdf", v)
		}
		return transformer.Fragment{"plan": paging.ResolveHref(base, strings.TrimSpace(href))}, nil
	}
}

func extractFeature(raw records.Record) (transformer.Fragment, error) {
	v, err := lookup(raw, "advantages")
	if err != nil {
		return nil, err
	}
	features := []string{}
	if v == nil {
		return transformer.Fragment{"feature": features}, nil
	}
	list, ok := v.([]any)
	if !ok {
		return nil, transformer.TypeMismatch("advantages", v)
	}
	for i, item := range list {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, transformer.TypeMismatch(fmt.Sprintf("advantages[%d]", i), item)
		}
		name, ok := obj["name"]
		if !ok {
			return nil, transformer.MissingField(fmt.Sprintf("advantages[%d].name", i))
		}
		s, err := AsString(name)
		if err != nil {
			return nil, transformer.TypeMismatch(fmt.Sprintf("advantages[%d].name", i), name)
		}
		if s = PlainText(s); s != "" {
			features = append(features, s)
		}
	}
	return transformer.Fragment{"feature": features}, nil
}

// extractView collects every window_view_* value, keys in lexical order.
func extractView(raw records.Record) (transformer.Fragment, error) {
	var keys []string
	for k := range raw {
		if strings.HasPrefix(k, viewPrefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	views := []string{}
	for _, k := range keys {
		v := raw[k]
		if v == nil {
			continue
		}
		s, err := AsString(v)
		if err != nil {
			return nil, transformer.TypeMismatch(k, v)
		}
		if s = PlainText(s); s != "" {
			views = append(views, s)
		}
	}
	return transformer.Fragment{"view": views}, nil
}
