package middleware

import (
	"net/http"

	"github.com/demoreel/demoreel-server/internal/config"
	"github.com/demoreel/demoreel-server/internal/httputil"
)

// RequestBodyLimit caps API request bodies. Clip uploads go straight to
// object storage via presigned URLs and never pass through here, so the
// cap only needs to fit metadata payloads.
func RequestBodyLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.ContentLength > config.MaxRequestBodyBytes {
			httputil.WriteJSON(w, http.StatusRequestEntityTooLarge, map[string]string{
				"error": "request body too large",
			})
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, config.MaxRequestBodyBytes)
		next.ServeHTTP(w, r)
	})
}
