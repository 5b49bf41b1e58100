package middleware

import "net/http"

const (
	corsAllowHeaders = "Authorization, Content-Type, Stripe-Signature, X-Request-ID"
	corsAllowMethods = "GET, POST, OPTIONS"
)

// CORS allows any origin and answers preflight requests on every path.
func CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Headers", corsAllowHeaders)
		h.Set("Access-Control-Allow-Methods", corsAllowMethods)

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
