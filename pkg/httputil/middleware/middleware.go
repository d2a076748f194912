package middleware

import (
	"net/http"

	"github.com/edgeflare/dataprovider/pkg/httputil"
)

// Recover turns a panicking handler into a 500 response and logs the panic.
func Recover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				if v == http.ErrAbortHandler {
					panic(v)
				}
				LoggerFromContext(r.Context()).Sugar().Errorw("handler panicked", "panic", v, "path", r.URL.Path)
				httputil.Error(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}
