// internal/middleware/i18n.go
package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/vistahub/license-gate/internal/i18n"
)

// I18nMiddleware stores the first supported language of Accept-Language
// under "lang".
func I18nMiddleware() gin.HandlerFunc {
	supported := make(map[string]bool)
	for _, lang := range i18n.GetSupportedLanguages() {
		supported[lang] = true
	}

	return func(c *gin.Context) {
		c.Set("lang", negotiateLanguage(c.GetHeader("Accept-Language"), supported))
		c.Next()
	}
}

// negotiateLanguage walks a header like "zh-TW,zh;q=0.9,en;q=0.8" in order.
func negotiateLanguage(header string, supported map[string]bool) string {
	for _, part := range strings.Split(header, ",") {
		tag := strings.TrimSpace(strings.Split(part, ";")[0])
		if tag == "" {
			continue
		}
		lang := normalizeLanguage(tag)
		if supported[lang] {
			return lang
		}
	}
	return i18n.DefaultLang
}

func normalizeLanguage(tag string) string {
	switch strings.ToLower(strings.ReplaceAll(tag, "_", "-")) {
	case "zh-tw", "zh-hant", "zh-hk", "zh":
		return "zh_TW"
	case "en", "en-us", "en-gb":
		return "en"
	}
	return tag
}
