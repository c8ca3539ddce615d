package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"

	"golang.org/x/text/language"
)

type localeContextKey struct{}
type countryContextKey struct{}

var (
	LocaleKey  = localeContextKey{}
	CountryKey = countryContextKey{}
)

// SupportedLanguages are the languages the UI formats numbers and prices for.
// The first entry is the fallback.
var SupportedLanguages = []language.Tag{language.English, language.French}

var localeMatcher = language.NewMatcher(SupportedLanguages)

// CountryLookup resolves ISO country codes for an IP address.
type CountryLookup func(ip string) (string, error)

// I18N stores the resolved locale and country on the request context.
func I18N(defaultLocale string, lookup CountryLookup) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			country := ResolveCountry(r, lookup)
			locale := detectLocale(r, defaultLocale, country)
			ctx := context.WithValue(r.Context(), LocaleKey, locale)
			if country != "" {
				ctx = context.WithValue(ctx, CountryKey, strings.ToUpper(country))
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// detectLocale picks a supported language from X-Locale, Accept-Language or
// the fallback, and attaches the most specific region known for the request.
func detectLocale(r *http.Request, fallback string, country string) language.Tag {
	var requested []language.Tag
	if v := strings.TrimSpace(r.Header.Get("X-Locale")); v != "" {
		if tag, err := language.Parse(v); err == nil {
			requested = append(requested, tag)
		}
	}
	if len(requested) == 0 {
		if tags, _, err := language.ParseAcceptLanguage(r.Header.Get("Accept-Language")); err == nil {
			requested = tags
		}
	}
	if len(requested) == 0 && strings.TrimSpace(fallback) != "" {
		if tag, err := language.Parse(fallback); err == nil {
			requested = append(requested, tag)
		}
	}
	if len(requested) == 0 {
		requested = []language.Tag{SupportedLanguages[0]}
	}

	_, idx, conf := localeMatcher.Match(requested...)
	if conf == language.No {
		idx = 0
	}
	base, _ := SupportedLanguages[idx].Base()

	region, explicit := explicitRegion(requested)
	if !explicit && country != "" {
		if parsed, err := language.ParseRegion(country); err == nil {
			region, explicit = parsed, true
		}
	}
	if !explicit {
		tag, _ := language.Compose(base)
		return tag
	}
	tag, err := language.Compose(base, region)
	if err != nil {
		tag, _ = language.Compose(base)
	}
	return tag
}

func explicitRegion(tags []language.Tag) (language.Region, bool) {
	for _, tag := range tags {
		if region, conf := tag.Region(); conf == language.Exact {
			return region, true
		}
	}
	return language.Region{}, false
}

// ClientIP returns the best-effort client IP address for the request.
func ClientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	if xf := r.Header.Get("X-Forwarded-For"); xf != "" {
		for _, part := range strings.Split(xf, ",") {
			ip := strings.TrimSpace(part)
			if net.ParseIP(ip) != nil {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// LocaleFromContext returns the request locale, English when unset.
func LocaleFromContext(ctx context.Context) language.Tag {
	if v, ok := ctx.Value(LocaleKey).(language.Tag); ok {
		return v
	}
	return SupportedLanguages[0]
}

// CountryFromContext returns the ISO country code stored in the request context.
func CountryFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(CountryKey).(string); ok {
		return v
	}
	return ""
}

// ResolveCountry resolves a best-effort ISO country code for the given request.
func ResolveCountry(r *http.Request, lookup CountryLookup) string {
	if r == nil {
		return ""
	}
	headerHints := []string{"X-Country-Code", "X-IP-Country", "CF-IPCountry", "X-Appengine-Country"}
	for _, key := range headerHints {
		if val := strings.TrimSpace(r.Header.Get(key)); val != "" {
			return strings.ToUpper(val)
		}
	}
	if lookup != nil {
		if ip := ClientIP(r); ip != "" {
			if country, err := lookup(ip); err == nil && country != "" {
				return strings.ToUpper(country)
			}
		}
	}
	return ""
}
