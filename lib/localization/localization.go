// Package localization resolves the one user-visible failure message per
// rejected CAPTCHA field. Internal reason codes never pass through here;
// submitters always see the same message regardless of why verification
// failed.
package localization

import (
	"embed"
	"encoding/json"
	"net/http"
	"strings"
	"sync"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
)

//go:embed locales/*.json
var localeFS embed.FS

// ForcedLanguage overrides the request's Accept-Language header when set.
var ForcedLanguage = ""

type LocalizationService struct {
	bundle *i18n.Bundle
}

var (
	globalService *LocalizationService
	once          sync.Once
)

func NewLocalizationService() *LocalizationService {
	once.Do(func() {
		bundle := i18n.NewBundle(language.English)
		bundle.RegisterUnmarshalFunc("json", json.Unmarshal)

		entries, err := localeFS.ReadDir("locales")
		if err != nil {
			globalService = &LocalizationService{bundle: bundle}
			return
		}

		for _, entry := range entries {
			if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") || entry.Name() == "manifest.json" {
				continue
			}
			// A bad locale file should not take the service down,
			// English is always compiled in as the fallback.
			bundle.LoadMessageFileFS(localeFS, "locales/"+entry.Name())
		}

		globalService = &LocalizationService{bundle: bundle}
	})

	return globalService
}

func (ls *LocalizationService) GetLocalizer(lang string) *i18n.Localizer {
	return i18n.NewLocalizer(ls.bundle, lang, "en")
}

func (ls *LocalizationService) GetLocalizerFromRequest(r *http.Request) *i18n.Localizer {
	if ForcedLanguage != "" {
		return ls.GetLocalizer(ForcedLanguage)
	}

	return ls.GetLocalizer(r.Header.Get("Accept-Language"))
}

// SimpleLocalizer wraps i18n.Localizer with a more convenient API.
type SimpleLocalizer struct {
	Localizer *i18n.Localizer
}

// T provides a concise way to localize messages.
func (sl *SimpleLocalizer) T(messageID string) string {
	return sl.Localizer.MustLocalize(&i18n.LocalizeConfig{MessageID: messageID})
}

// GetLocalizer creates a localizer based on the request's Accept-Language header.
func GetLocalizer(r *http.Request) *SimpleLocalizer {
	localizer := NewLocalizationService().GetLocalizerFromRequest(r)
	return &SimpleLocalizer{Localizer: localizer}
}

// ForLanguage creates a localizer for an explicit language tag, for callers
// that do not have a request in hand.
func ForLanguage(lang string) *SimpleLocalizer {
	return &SimpleLocalizer{Localizer: NewLocalizationService().GetLocalizer(lang)}
}
