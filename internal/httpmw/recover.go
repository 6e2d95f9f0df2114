package httpmw

import (
	"net/http"
	"runtime/debug"

	"github.com/LumeWeb/portal-legacy/internal/log"
	"github.com/LumeWeb/portal-legacy/internal/xerrors"
)

// Recover turns handler panics into a logged 500. onPanic, when set, runs
// before the response is written so callers can count panics.
// http.ErrAbortHandler is re-raised for net/http to handle.
func Recover(L log.Logger, onPanic func()) func(http.Handler) http.Handler {
	if L == nil {
		L = log.Nop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				v := recover()
				if v == nil {
					return
				}
				if v == http.ErrAbortHandler {
					panic(v)
				}
				if onPanic != nil {
					onPanic()
				}
				L.Error(r.Context(), xerrors.Newf("panic: %v", v), "http handler panic",
					"request_id", RequestIDFromContext(r.Context()),
					"http.request.method", r.Method,
					"url.path", r.URL.Path,
					"panic_stack", string(debug.Stack()),
				)
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			}()
			next.ServeHTTP(w, r)
		})
	}
}
