// Package i18n resolves user-facing strings for the negotiated language.
package i18n

import (
	"context"
	"fmt"
	"io/fs"
	"net/http"
	"sort"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
	"gopkg.in/yaml.v3"
)

type messageFile struct {
	Lang     string            `yaml:"lang"`
	Messages map[string]string `yaml:"messages"`
}

// Bundle holds every loaded catalog.
type Bundle struct {
	catalog  *catalog.Builder
	tags     []language.Tag
	matcher  language.Matcher
	fallback language.Tag
}

// Load reads all YAML message files matching pattern in fsys. The fallback
// language is used when negotiation finds nothing better.
func Load(fsys fs.FS, pattern, fallback string) (*Bundle, error) {
	fallbackTag, err := language.Parse(fallback)
	if err != nil {
		return nil, fmt.Errorf("i18n: parse fallback %q: %w", fallback, err)
	}
	paths, err := fs.Glob(fsys, pattern)
	if err != nil {
		return nil, fmt.Errorf("i18n: glob %q: %w", pattern, err)
	}
	sort.Strings(paths)

	builder := catalog.NewBuilder(catalog.Fallback(fallbackTag))
	tags := []language.Tag{fallbackTag}
	seen := map[language.Tag]bool{fallbackTag: true}
	for _, path := range paths {
		raw, err := fs.ReadFile(fsys, path)
		if err != nil {
			return nil, fmt.Errorf("i18n: read %s: %w", path, err)
		}
		var file messageFile
		if err := yaml.Unmarshal(raw, &file); err != nil {
			return nil, fmt.Errorf("i18n: decode %s: %w", path, err)
		}
		tag, err := language.Parse(file.Lang)
		if err != nil {
			return nil, fmt.Errorf("i18n: %s: parse lang %q: %w", path, file.Lang, err)
		}
		for key, msg := range file.Messages {
			if err := builder.SetString(tag, key, msg); err != nil {
				return nil, fmt.Errorf("i18n: %s: set %s: %w", path, key, err)
			}
		}
		if !seen[tag] {
			seen[tag] = true
			tags = append(tags, tag)
		}
	}
	return &Bundle{
		catalog:  builder,
		tags:     tags,
		matcher:  language.NewMatcher(tags),
		fallback: fallbackTag,
	}, nil
}

// Localizer prints messages for one language.
type Localizer struct {
	printer *message.Printer
	tag     language.Tag
}

// For returns a Localizer for the best match of the given preferences,
// each either a language tag or an Accept-Language header value.
func (b *Bundle) For(preferences ...string) *Localizer {
	var desired []language.Tag
	for _, pref := range preferences {
		if pref == "" {
			continue
		}
		tags, _, err := language.ParseAcceptLanguage(pref)
		if err != nil {
			continue
		}
		desired = append(desired, tags...)
	}
	tag := b.fallback
	if len(desired) > 0 {
		_, idx, confidence := b.matcher.Match(desired...)
		if confidence != language.No {
			tag = b.tags[idx]
		}
	}
	return &Localizer{
		printer: message.NewPrinter(tag, message.Catalog(b.catalog)),
		tag:     tag,
	}
}

// T returns the message for key, or the key itself when it is unknown.
func (l *Localizer) T(key string, args ...any) string {
	if l == nil {
		return key
	}
	return l.printer.Sprintf(key, args...)
}

// Lang returns the BCP 47 tag of the localizer.
func (l *Localizer) Lang() string {
	if l == nil {
		return ""
	}
	return l.tag.String()
}

type localizerContextKey struct{}

// ContextWithLocalizer stores the localizer in context.
func ContextWithLocalizer(ctx context.Context, l *Localizer) context.Context {
	return context.WithValue(ctx, localizerContextKey{}, l)
}

// FromContext extracts the localizer from context. A nil result still
// answers T with the message key.
func FromContext(ctx context.Context) *Localizer {
	l, _ := ctx.Value(localizerContextKey{}).(*Localizer)
	return l
}

// LangCookie remembers an explicit language choice across redirects.
const LangCookie = "lang"

// Middleware negotiates the language from the lang query parameter, the
// lang cookie and the Accept-Language header, in that order. An explicit
// query choice is stored in the cookie.
func (b *Bundle) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		choice := r.URL.Query().Get("lang")
		if choice != "" {
			if _, err := language.Parse(choice); err == nil {
				http.SetCookie(w, &http.Cookie{
					Name:     LangCookie,
					Value:    choice,
					Path:     "/",
					MaxAge:   365 * 24 * 60 * 60,
					HttpOnly: true,
					SameSite: http.SameSiteLaxMode,
				})
			}
		} else if cookie, err := r.Cookie(LangCookie); err == nil {
			choice = cookie.Value
		}
		loc := b.For(choice, r.Header.Get("Accept-Language"))
		w.Header().Set("Content-Language", loc.Lang())
		next.ServeHTTP(w, r.WithContext(ContextWithLocalizer(r.Context(), loc)))
	})
}
