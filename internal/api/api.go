// Package api serves the monitor status, recent findings, tracked state and
// Prometheus metrics over HTTP.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"runtime/debug"
	"strconv"
	"time"

	"influence-monitoring/internal/collector"
	"influence-monitoring/internal/detector"
	"influence-monitoring/internal/events"
	"influence-monitoring/internal/models"
	"influence-monitoring/internal/sink"
	"influence-monitoring/internal/store"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
)

const (
	RouteHealth    = "/health"
	RouteStats     = "/v1/stats"
	RouteFindings  = "/v1/findings"
	RouteProposals = "/v1/proposals"
	RouteVotes     = "/v1/votes/{voter}"
	RouteMetrics   = "/metrics"

	defaultFindingsLimit = 50
	maxFindingsLimit     = 1000
)

// StatusProvider reports collector progress.
type StatusProvider interface {
	Status() collector.Status
}

// Stats is the reply of RouteStats.
type Stats struct {
	Head          uint64    `json:"head"`
	Processed     uint64    `json:"processed"`
	Lag           uint64    `json:"lag"`
	Transactions  uint64    `json:"transactions"`
	Findings      uint64    `json:"findings"`
	Failures      uint64    `json:"failures"`
	Proposals     int64     `json:"proposals"`
	Votes         int64     `json:"votes"`
	LastBlockTime time.Time `json:"last_block_time,omitempty"`
}

// Server is the status API.
type Server struct {
	status  StatusProvider
	recent  *sink.Recent
	store   store.Store
	metrics http.Handler
	router  *mux.Router
}

// New builds the router. metrics may be nil.
func New(status StatusProvider, recent *sink.Recent, s store.Store, metrics http.Handler) *Server {
	srv := &Server{
		status:  status,
		recent:  recent,
		store:   s,
		metrics: metrics,
	}

	r := mux.NewRouter()
	r.StrictSlash(true)
	r.NotFoundHandler = http.HandlerFunc(handleNotFound)
	r.Use(loggingMiddleware)
	r.Use(recoverMiddleware)

	r.HandleFunc(RouteHealth, srv.handleHealth).Methods(http.MethodGet)
	r.HandleFunc(RouteStats, srv.handleStats).Methods(http.MethodGet)
	r.HandleFunc(RouteFindings, srv.handleFindings).Methods(http.MethodGet)
	r.HandleFunc(RouteProposals, srv.handleProposals).Methods(http.MethodGet)
	r.HandleFunc(RouteVotes, srv.handleVotes).Methods(http.MethodGet)
	if metrics != nil {
		r.Handle(RouteMetrics, metrics).Methods(http.MethodGet)
	}
	srv.router = r
	return srv
}

// ServeHTTP satisfies the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	hs := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
	}
	errC := make(chan error, 1)
	go func() {
		log.Infof("Listening on %v", addr)
		errC <- hs.ListenAndServe()
	}()

	select {
	case err := <-errC:
		return err
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return hs.Shutdown(shutCtx)
	}
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, _ := json.Marshal(payload)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

func handleNotFound(w http.ResponseWriter, r *http.Request) {
	log.Debugf("Invalid route: %v %v %v", r.RemoteAddr, r.Method, r.URL)
	respondWithError(w, http.StatusNotFound, "not found")
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	st := s.status.Status()
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"processed": st.Processed,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	st := s.status.Status()
	var lag uint64
	if st.Head > st.Processed {
		lag = st.Head - st.Processed
	}
	respondWithJSON(w, http.StatusOK, Stats{
		Head:          st.Head,
		Processed:     st.Processed,
		Lag:           lag,
		Transactions:  st.Transactions,
		Findings:      st.Findings,
		Failures:      st.Failures,
		Proposals:     st.Proposals,
		Votes:         st.Votes,
		LastBlockTime: st.LastBlockTime,
	})
}

func (s *Server) handleFindings(w http.ResponseWriter, r *http.Request) {
	limit := defaultFindingsLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			respondWithError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		if n > maxFindingsLimit {
			n = maxFindingsLimit
		}
		limit = n
	}
	fs := s.recent.Snapshot(limit)
	if fs == nil {
		fs = []detector.Finding{}
	}
	respondWithJSON(w, http.StatusOK, fs)
}

func (s *Server) handleProposals(w http.ResponseWriter, r *http.Request) {
	ps, err := s.store.FindProposals(r.Context())
	if err != nil {
		respondWithInternalError(w, r, err)
		return
	}
	if ps == nil {
		ps = []models.Proposal{}
	}
	respondWithJSON(w, http.StatusOK, ps)
}

func (s *Server) handleVotes(w http.ResponseWriter, r *http.Request) {
	voter := mux.Vars(r)["voter"]
	if !isAddress(voter) {
		respondWithError(w, http.StatusBadRequest, "invalid voter address")
		return
	}
	vs, err := s.store.FindVotesByVoter(r.Context(), checksum(voter))
	if err != nil {
		respondWithInternalError(w, r, err)
		return
	}
	if vs == nil {
		vs = []models.Vote{}
	}
	respondWithJSON(w, http.StatusOK, vs)
}

func respondWithInternalError(w http.ResponseWriter, r *http.Request, err error) {
	if r.Context().Err() == context.Canceled {
		log.Infof("%v %v %v client aborted connection", r.RemoteAddr, r.Method, r.URL)
		return
	}
	t := time.Now().Unix()
	log.Errorf("%v %v %v Internal error %v: %+v", r.RemoteAddr, r.Method, r.URL, t, err)
	respondWithJSON(w, http.StatusInternalServerError, map[string]int64{"errorcode": t})
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.Debugf("%v %v %v", r.RemoteAddr, r.Method, r.URL)
		next.ServeHTTP(w, r)
	})
}

func recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if e := recover(); e != nil {
				log.Criticalf("%v %v %v panic: %v\n%s", r.RemoteAddr, r.Method, r.URL, e, debug.Stack())
				respondWithError(w, http.StatusInternalServerError, "internal error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func isAddress(s string) bool {
	return common.IsHexAddress(s)
}

// checksum converts any address spelling into the store key.
func checksum(s string) string {
	return events.AddressKey(common.HexToAddress(s))
}
