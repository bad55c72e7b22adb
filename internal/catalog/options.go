package catalog

import (
	"regexp"
	"strings"

	"atrocitee/internal/provider"
)

// OptionKey is one of the variant options the storefront understands.
type OptionKey string

const (
	OptionColor OptionKey = "color"
	OptionSize  OptionKey = "size"
)

// VariantOptions is the typed view of a remote variant's options. Options
// with keys outside the known set are kept in Unrecognized.
type VariantOptions struct {
	Color        string
	Size         string
	Unrecognized map[string]string
}

var (
	sizeToken = regexp.MustCompile(`(?i)^(xxs|xs|s|m|l|xl|xxl|xxxl|[2-5]xl)$`)
	sizeUnit  = regexp.MustCompile(`(?i)^\d+(\.\d+)?\s*(oz|ml|in|cm)$`)
	slugStrip = regexp.MustCompile(`[^a-z0-9]+`)
)

// IsSizeToken reports whether s looks like an apparel size or a measured size.
func IsSizeToken(s string) bool {
	s = strings.TrimSpace(s)
	return sizeToken.MatchString(s) || sizeUnit.MatchString(s)
}

// DeriveOptions resolves color and size. Direct fields win, then typed
// options, then the trailing slash separated segments of the variant name.
func DeriveOptions(v provider.SyncVariant) VariantOptions {
	opts := VariantOptions{
		Color: strings.TrimSpace(v.Color),
		Size:  strings.TrimSpace(v.Size),
	}

	for _, o := range v.Options {
		value, ok := o.StringValue()
		if !ok {
			value = string(o.Value)
		}
		value = strings.TrimSpace(value)

		switch OptionKey(strings.ToLower(strings.TrimSpace(o.ID))) {
		case OptionColor:
			if opts.Color == "" {
				opts.Color = value
			}
		case OptionSize:
			if opts.Size == "" {
				opts.Size = value
			}
		default:
			if opts.Unrecognized == nil {
				opts.Unrecognized = make(map[string]string)
			}
			opts.Unrecognized[o.ID] = value
		}
	}

	if opts.Color == "" || opts.Size == "" {
		color, size := parseNameSegments(v.Name)
		if opts.Color == "" {
			opts.Color = color
		}
		if opts.Size == "" {
			opts.Size = size
		}
	}
	return opts
}

// parseNameSegments reads "Product / Color / Size" style names. The first
// segment is the product name and never an option.
func parseNameSegments(name string) (color, size string) {
	parts := strings.Split(name, "/")
	segments := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			segments = append(segments, p)
		}
	}
	if len(segments) < 2 {
		return "", ""
	}
	options := segments[1:]

	last := options[len(options)-1]
	if IsSizeToken(last) {
		size = last
		if len(options) >= 2 {
			color = options[len(options)-2]
		}
		return color, size
	}

	color = last
	if len(options) >= 2 && IsSizeToken(options[len(options)-2]) {
		size = options[len(options)-2]
	}
	return color, size
}

var apostrophes = strings.NewReplacer("'", "", "\u2019", "")

// Slugify lowercases name and joins its alphanumeric runs with hyphens.
// Apostrophes are dropped so "Men's" becomes "mens".
func Slugify(name string) string {
	s := apostrophes.Replace(strings.ToLower(name))
	return strings.Trim(slugStrip.ReplaceAllString(s, "-"), "-")
}
