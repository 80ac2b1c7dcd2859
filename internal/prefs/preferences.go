package prefs

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/language"
)

// Theme is the UI color scheme.
type Theme string

const (
	ThemeLight  Theme = "light"
	ThemeDark   Theme = "dark"
	ThemeSystem Theme = "system"
)

const (
	themeKey    = "btp_theme"
	languageKey = "btp_language"
)

// ErrInvalidTheme is returned for a theme outside light, dark and system.
var ErrInvalidTheme = eris.New("prefs: invalid theme")

// ErrInvalidLanguage is returned for a malformed BCP 47 tag.
var ErrInvalidLanguage = eris.New("prefs: invalid language tag")

// ParseTheme validates s.
func ParseTheme(s string) (Theme, error) {
	t := Theme(strings.ToLower(strings.TrimSpace(s)))
	switch t {
	case ThemeLight, ThemeDark, ThemeSystem:
		return t, nil
	}
	return "", eris.Wrapf(ErrInvalidTheme, "%q", s)
}

// ParseLanguage validates tag and returns its canonical form.
func ParseLanguage(tag string) (string, error) {
	t, err := language.Parse(strings.TrimSpace(tag))
	if err != nil {
		return "", eris.Wrapf(ErrInvalidLanguage, "%q: %v", tag, err)
	}
	return t.String(), nil
}

// Snapshot is the current preference values.
type Snapshot struct {
	Theme    Theme  `json:"theme"`
	Language string `json:"language"`
}

// Preferences reads preferences once and writes every change through to
// the store.
type Preferences struct {
	store Store
	// scope suffixes every key; empty for the process-wide preferences.
	scope string

	mu       sync.RWMutex
	theme    Theme
	language string
}

// New creates Preferences with defaults system and en.
func New(store Store) *Preferences {
	return &Preferences{store: store, theme: ThemeSystem, language: language.English.String()}
}

// ForSession returns preferences stored under keys scoped to one client
// session, loaded from the store. A new session starts from the defaults.
func (p *Preferences) ForSession(ctx context.Context, sessionID string) (*Preferences, error) {
	s := New(p.store)
	s.scope = sessionID
	if err := s.Load(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (p *Preferences) key(base string) string {
	if p.scope == "" {
		return base
	}
	return base + ":" + p.scope
}

// Load reads stored values. Unreadable or invalid values keep the defaults.
func (p *Preferences) Load(ctx context.Context) error {
	theme, err := p.readString(ctx, themeKey)
	if err != nil {
		return err
	}
	lang, err := p.readString(ctx, languageKey)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if theme != "" {
		if t, err := ParseTheme(theme); err == nil {
			p.theme = t
		} else {
			zap.L().Warn("prefs: ignoring stored theme", zap.String("theme", theme))
		}
	}
	if lang != "" {
		if l, err := ParseLanguage(lang); err == nil {
			p.language = l
		} else {
			zap.L().Warn("prefs: ignoring stored language", zap.String("language", lang))
		}
	}
	return nil
}

// Theme returns the current theme.
func (p *Preferences) Theme() Theme {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.theme
}

// Language returns the current canonical language tag.
func (p *Preferences) Language() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.language
}

// Snapshot returns both values.
func (p *Preferences) Snapshot() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return Snapshot{Theme: p.theme, Language: p.language}
}

// SetTheme validates and stores t.
func (p *Preferences) SetTheme(ctx context.Context, t string) error {
	theme, err := ParseTheme(t)
	if err != nil {
		return err
	}
	if err := p.writeString(ctx, themeKey, string(theme)); err != nil {
		return err
	}
	p.mu.Lock()
	p.theme = theme
	p.mu.Unlock()
	return nil
}

// SetLanguage validates, canonicalizes and stores tag.
func (p *Preferences) SetLanguage(ctx context.Context, tag string) error {
	lang, err := ParseLanguage(tag)
	if err != nil {
		return err
	}
	if err := p.writeString(ctx, languageKey, lang); err != nil {
		return err
	}
	p.mu.Lock()
	p.language = lang
	p.mu.Unlock()
	return nil
}

func (p *Preferences) readString(ctx context.Context, key string) (string, error) {
	raw, ok, err := p.store.Get(ctx, p.key(key))
	if err != nil {
		return "", eris.Wrapf(err, "prefs: load %s", key)
	}
	if !ok {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		zap.L().Warn("prefs: malformed value", zap.String("key", key), zap.Error(err))
		return "", nil
	}
	return s, nil
}

func (p *Preferences) writeString(ctx context.Context, key, value string) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return eris.Wrapf(err, "prefs: marshal %s", key)
	}
	if err := p.store.Set(ctx, p.key(key), raw); err != nil {
		return eris.Wrapf(err, "prefs: save %s", key)
	}
	return nil
}
