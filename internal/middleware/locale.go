package middleware

import (
	"context"
	"net/http"

	"github.com/quintile/maturity/internal/utils"
)

type ctxKey int

const localeKey ctxKey = 1

// supportedLocales are the languages the assessment UI ships in. Sessions
// default their language preference to the resolved locale.
var supportedLocales = []string{"en", "nl", "de"}

// Locale resolves the request locale from the lang query parameter or the
// Accept-Language header and stores it in the request context.
func Locale(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		locale := utils.DetermineLocale(r.URL.Query().Get("lang"), r.Header.Get("Accept-Language"), supportedLocales, "en")
		ctx := context.WithValue(r.Context(), localeKey, locale)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// LocaleFromContext retrieves the locale stored by Locale.
func LocaleFromContext(ctx context.Context) string {
	if s, ok := ctx.Value(localeKey).(string); ok {
		return s
	}
	return "en"
}
