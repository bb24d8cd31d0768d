// Package translate renders stage content in another language through a
// content-addressed cache.
//
// Entries are keyed by (content fingerprint, language, scope), so any edit
// to the content produces a new key and a stale translation is never
// served. Lookups go memory LRU, then the store, then the provider.
// Translation is best-effort: a provider failure yields the original
// content with Outcome.Unavailable set, never an error.
package translate

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/text/language"

	"github.com/roach88/canvaspipe/internal/ir"
	"github.com/roach88/canvaspipe/internal/provider"
	"github.com/roach88/canvaspipe/internal/store"
)

// DefaultTimeout bounds one provider call.
const DefaultTimeout = 20 * time.Second

// Outcome is the result of a translation request.
type Outcome struct {
	// Content is the translated object. Nil when Native is set; the
	// original content when Unavailable is set.
	Content ir.IRObject
	// Native reports that the target is the content's own language and
	// the caller should show the original.
	Native bool
	// Cached reports a hit in the memory or store tier.
	Cached bool
	// Unavailable reports that the provider failed or timed out.
	Unavailable bool
	// Cause is the provider failure behind Unavailable.
	Cause error
}

// Cache translates content and remembers the results.
type Cache struct {
	store    *store.Store
	provider provider.Translator
	native   language.Tag
	memory   *memoryTier
	timeout  time.Duration
	logger   *slog.Logger
}

// Option configures a Cache.
type Option func(*Cache)

// WithNativeLanguage sets the language content is authored in. Defaults to
// English.
func WithNativeLanguage(tag language.Tag) Option {
	return func(c *Cache) { c.native = tag }
}

// WithMemoryEntries sets the capacity of the in-memory tier.
func WithMemoryEntries(n int) Option {
	return func(c *Cache) { c.memory = newMemoryTier(n) }
}

// WithTimeout bounds each provider call.
func WithTimeout(d time.Duration) Option {
	return func(c *Cache) { c.timeout = d }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) { c.logger = l }
}

// New creates a Cache persisting into st and translating with p.
func New(st *store.Store, p provider.Translator, opts ...Option) *Cache {
	c := &Cache{
		store:    st,
		provider: p,
		native:   language.English,
		memory:   newMemoryTier(DefaultMemoryEntries),
		timeout:  DefaultTimeout,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ParseLanguage parses a BCP 47 tag such as "de" or "pt-BR".
func ParseLanguage(s string) (language.Tag, error) {
	tag, err := language.Parse(s)
	if err != nil {
		return language.Und, ir.Validation(fmt.Sprintf("invalid language %q: %v", s, err))
	}
	return tag, nil
}

// IsNative reports whether tag names the native language. Only the base
// language is compared, so "en-GB" is native for English content.
func (c *Cache) IsNative(tag language.Tag) bool {
	want, _ := c.native.Base()
	got, _ := tag.Base()
	return want == got
}

// Translate renders content in target for scopeID. A native target returns
// Outcome{Native: true} without touching the cache or provider.
func (c *Cache) Translate(ctx context.Context, content ir.IRObject, target, scopeID string) (Outcome, error) {
	tag, err := ParseLanguage(target)
	if err != nil {
		return Outcome{}, err
	}
	if c.IsNative(tag) {
		return Outcome{Native: true}, nil
	}

	fp, err := ir.ContentFingerprint(content)
	if err != nil {
		return Outcome{}, fmt.Errorf("translate: %w", err)
	}
	lang := tag.String()
	key := ir.TranslationKey(fp, lang, scopeID)

	if hit, ok := c.memory.get(key); ok {
		return Outcome{Content: hit, Cached: true}, nil
	}
	hit, ok, err := c.store.GetTranslation(ctx, key)
	if err != nil {
		c.logger.Warn("translation store read failed",
			"language", lang,
			"scope", scopeID,
			"error", err,
		)
	}
	if ok {
		c.memory.put(key, hit)
		return Outcome{Content: hit, Cached: true}, nil
	}

	translated, err := c.callProvider(ctx, content, lang)
	if err != nil {
		c.logger.Warn("translation unavailable",
			"language", lang,
			"scope", scopeID,
			"error", err,
		)
		return Outcome{Content: content.Clone(), Unavailable: true, Cause: err}, nil
	}

	c.memory.put(key, translated)
	err = c.store.PutTranslation(ctx, store.Translation{
		Key:         key,
		Fingerprint: fp,
		Language:    lang,
		ScopeID:     scopeID,
		Content:     translated,
	})
	if err != nil {
		c.logger.Warn("translation store write failed",
			"language", lang,
			"scope", scopeID,
			"error", err,
		)
	}
	c.logger.Debug("translated content",
		"language", lang,
		"scope", scopeID,
		"fingerprint", fp[:12],
	)
	return Outcome{Content: translated}, nil
}

// TranslateSubset translates only the given top-level keys of original
// (one tab's worth of fields) and merges the result back. The outcome's
// Content always has every key of original.
func (c *Cache) TranslateSubset(ctx context.Context, original ir.IRObject, keys []string, target, scopeID string) (Outcome, error) {
	subset := make(ir.IRObject, len(keys))
	for _, k := range keys {
		if v, ok := original[k]; ok {
			subset[k] = v
		}
	}
	out, err := c.Translate(ctx, subset, target, scopeID)
	if err != nil || out.Native {
		return out, err
	}
	out.Content = Merge(original, out.Content)
	return out, nil
}

// callProvider translates every string leaf of content in one batch.
func (c *Cache) callProvider(ctx context.Context, content ir.IRObject, lang string) (ir.IRObject, error) {
	texts := extractStrings(content)
	if len(texts) == 0 {
		return content.Clone(), nil
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	out, err := c.provider.TranslateText(ctx, texts, lang)
	if err != nil {
		return nil, ir.External("translate to "+lang, err)
	}
	if len(out) != len(texts) {
		return nil, ir.External("translate to "+lang,
			fmt.Errorf("provider returned %d strings for %d", len(out), len(texts)))
	}
	return inject(content, out)
}
