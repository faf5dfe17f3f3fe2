package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/ayudhien/erddap/core"
)

// NewRouter wires every registered dataset under /api/<datasetId>/query,
// matching route/rootRouter.go's RootHandler -- one mux.Router, one
// HandleFunc per registered route.
func NewRouter(datasets map[string]*core.Dataset) *mux.Router {
	router := mux.NewRouter()
	for id, ds := range datasets {
		h := &Handler{Dataset: ds}
		router.HandleFunc("/api/"+id+"/query", h.Handlers).Methods("GET", "POST")
	}
	router.HandleFunc("/healthz", healthz).Methods("GET")
	return router
}

func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
