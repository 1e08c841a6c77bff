package i18n

import "net/http"

// Middleware injects a localizer into every request context. A ?lang=
// query parameter wins over Accept-Language; fallback is the default language.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var langs []string
		if q := r.URL.Query().Get("lang"); q != "" {
			langs = append(langs, q)
		}
		langs = append(langs, Match(r.Header.Get("Accept-Language")))
		ctx := WithLocalizer(r.Context(), NewLocalizer(langs...))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
