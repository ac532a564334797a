package middleware

import (
	"crypto/subtle"
	"log"
	"net/http"
)

// CronSecret guards scheduler-triggered endpoints. The token is read from
// "Authorization: Bearer <token>" or the X-Cron-Secret header. Nothing
// downstream runs on a mismatch.
func CronSecret(secret string) func(http.Handler) http.Handler {
	expected := []byte(secret)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				token = r.Header.Get("X-Cron-Secret")
			}

			if len(expected) == 0 || token == "" || subtle.ConstantTimeCompare([]byte(token), expected) != 1 {
				log.Printf("[cron] rejected %s %s from %s", r.Method, r.URL.Path, r.RemoteAddr)
				writeError(w, http.StatusUnauthorized, "Unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
