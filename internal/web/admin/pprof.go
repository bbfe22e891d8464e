package admin

import (
	"net/http/pprof"

	"github.com/go-chi/chi/v5"
)

// registerProfiling mounts the pprof handlers under prefix. The endpoints
// expose stacks and memory contents; only enable them on trusted networks.
func registerProfiling(router chi.Router, prefix string) {
	router.Route(prefix, func(r chi.Router) {
		r.HandleFunc("/", pprof.Index)
		r.HandleFunc("/cmdline", pprof.Cmdline)
		r.HandleFunc("/profile", pprof.Profile)
		r.HandleFunc("/symbol", pprof.Symbol)
		r.HandleFunc("/trace", pprof.Trace)
		for _, name := range []string{"allocs", "block", "goroutine", "heap", "mutex", "threadcreate"} {
			r.Handle("/"+name, pprof.Handler(name))
		}
	})
}
