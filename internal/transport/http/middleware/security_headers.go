package middleware

import "net/http"

// SecureHeaders marks every response as uncacheable and non-embeddable.
// Payslip downloads carry salary data, so HTML payslips are sandboxed when
// opened directly. HSTS is only sent in production.
func SecureHeaders(isProd bool) func(http.Handler) http.Handler {
	static := map[string]string{
		"X-Content-Type-Options":       "nosniff",
		"X-Frame-Options":              "DENY",
		"Referrer-Policy":              "no-referrer",
		"Content-Security-Policy":      "default-src 'none'; frame-ancestors 'none'; sandbox",
		"Cross-Origin-Resource-Policy": "same-origin",
		"Cache-Control":                "no-store",
		"Pragma":                       "no-cache",
	}
	if isProd {
		static["Strict-Transport-Security"] = "max-age=63072000; includeSubDomains"
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			headers := w.Header()
			for k, v := range static {
				headers.Set(k, v)
			}
			next.ServeHTTP(w, r)
		})
	}
}
