package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/mezonai/votechain/errors"
	"github.com/mezonai/votechain/events"
	"github.com/mezonai/votechain/exception"
	"github.com/mezonai/votechain/jsonx"
	"github.com/mezonai/votechain/ledger"
	"github.com/mezonai/votechain/logx"
	"github.com/mezonai/votechain/miner"
	"github.com/mezonai/votechain/monitoring"
	"github.com/mezonai/votechain/ratelimit"
)

const shutdownTimeout = 5 * time.Second

type TxReq struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Amount *int64 `json:"amount"`
}

type MineReq struct {
	Miner string `json:"miner"`
}

type APIServer struct {
	Ledger     *ledger.Ledger
	Scheduler  *miner.Scheduler
	EventBus   *events.EventBus
	TxLimiter  *ratelimit.TxLimiter
	ListenAddr string

	// baseCtx outlives single requests; the mining scheduler runs under it
	baseCtx context.Context
	mux     *http.ServeMux
}

// NewAPIServer wires the routes. Scheduler, EventBus and TxLimiter may be nil;
// the matching endpoints then answer 503 or skip the check.
func NewAPIServer(l *ledger.Ledger, scheduler *miner.Scheduler, bus *events.EventBus, limiter *ratelimit.TxLimiter, addr string) *APIServer {
	s := &APIServer{
		Ledger:     l,
		Scheduler:  scheduler,
		EventBus:   bus,
		TxLimiter:  limiter,
		ListenAddr: addr,
		baseCtx:    context.Background(),
		mux:        http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *APIServer) routes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)

	s.mux.HandleFunc("POST /transactions", s.submitTxHandler)
	s.mux.HandleFunc("GET /transactions/pending", s.pendingTxsHandler)
	s.mux.HandleFunc("GET /transactions/{id}", s.getTxHandler)

	s.mux.HandleFunc("GET /chain", s.chainStatusHandler)
	s.mux.HandleFunc("GET /chain/validate", s.validateChainHandler)

	s.mux.HandleFunc("GET /blocks", s.blocksHandler)
	s.mux.HandleFunc("GET /blocks/latest", s.latestBlockHandler)
	s.mux.HandleFunc("GET /blocks/index/{index}", s.blockByIndexHandler)
	s.mux.HandleFunc("GET /blocks/{hash}", s.blockByHashHandler)

	s.mux.HandleFunc("GET /balance/{address}", s.balanceHandler)
	s.mux.HandleFunc("GET /votes/{candidate}", s.voteCountHandler)
	s.mux.HandleFunc("GET /votes", s.tallyHandler)

	s.mux.HandleFunc("POST /mine", s.mineHandler)
	s.mux.HandleFunc("GET /mining", s.miningStatusHandler)
	s.mux.HandleFunc("POST /mining", s.startMiningHandler)
	s.mux.HandleFunc("DELETE /mining", s.stopMiningHandler)

	s.mux.HandleFunc("GET /events", s.eventsHandler)

	monitoring.RegisterMetrics(s.mux)
}

func (s *APIServer) Handler() http.Handler {
	return s.mux
}

// Run serves until ctx ends, then shuts down gracefully. Request contexts
// derive from ctx, so streams and in-flight mining stop with it.
func (s *APIServer) Run(ctx context.Context) error {
	s.baseCtx = ctx
	srv := &http.Server{
		Addr:              s.ListenAddr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	exception.SafeGo("apiServer", func() {
		logx.Info("API", "API listen on", s.ListenAddr)
		errCh <- srv.ListenAndServe()
	})

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		logx.Info("API", "Shutting down API server")
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

func clientIP(r *http.Request) string {
	if ip, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return ip
	}
	return r.RemoteAddr
}

func (s *APIServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"height":    s.Ledger.Height(),
		"timestamp": time.Now().Unix(),
	})
}

func (s *APIServer) submitTxHandler(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var req TxReq
	if err := jsonx.NewDecoder(r.Body).Decode(&req); err != nil {
		monitoring.RecordRejectedTx(monitoring.TxInvalidArgument)
		writeError(w, errors.NewError(errors.ErrCodeInvalidArgument, fmt.Sprintf("Invalid request body: %v", err)))
		return
	}
	if req.Amount == nil {
		monitoring.RecordRejectedTx(monitoring.TxInvalidArgument)
		writeError(w, errors.NewError(errors.ErrCodeInvalidArgument, errors.ErrMsgInvalidAmount))
		return
	}

	if s.TxLimiter != nil {
		if err := s.TxLimiter.Allow(clientIP(r), req.From); err != nil {
			monitoring.RecordRejectedTx(monitoring.TxRateLimited)
			logx.Warn("API", fmt.Sprintf("Rate limit exceeded | ip=%s | from=%s", clientIP(r), req.From))
			writeError(w, err)
			return
		}
	}

	tx, err := s.Ledger.AddTransaction(req.From, req.To, *req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, txView{ID: tx.Hash(), Transaction: tx})
}

func (s *APIServer) pendingTxsHandler(w http.ResponseWriter, r *http.Request) {
	pending := s.Ledger.PendingTransactions()
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeError(w, errors.NewError(errors.ErrCodeInvalidArgument, "Limit must be a non-negative integer"))
			return
		}
		pending = s.Ledger.PendingBatch(limit)
	}
	out := make([]txView, len(pending))
	for i := range pending {
		out[i] = txView{ID: pending[i].Hash(), Transaction: pending[i]}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":        len(out),
		"transactions": out,
	})
}

func (s *APIServer) getTxHandler(w http.ResponseWriter, r *http.Request) {
	rec, err := s.Ledger.TransactionByID(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *APIServer) chainStatusHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Ledger.Status())
}

func (s *APIServer) validateChainHandler(w http.ResponseWriter, r *http.Request) {
	resp := struct {
		Valid bool   `json:"valid"`
		Error string `json:"error,omitempty"`
	}{Valid: true}
	if err := s.Ledger.ValidateChain(); err != nil {
		resp.Valid = false
		resp.Error = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *APIServer) blocksHandler(w http.ResponseWriter, r *http.Request) {
	blocks := s.Ledger.Blocks()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"height": len(blocks),
		"blocks": blocks,
	})
}

func (s *APIServer) latestBlockHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Ledger.LatestBlock())
}

func (s *APIServer) blockByIndexHandler(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.ParseUint(r.PathValue("index"), 10, 64)
	if err != nil {
		writeError(w, errors.NewError(errors.ErrCodeInvalidArgument, "Block index must be a non-negative integer"))
		return
	}
	b, err := s.Ledger.BlockByIndex(index)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *APIServer) blockByHashHandler(w http.ResponseWriter, r *http.Request) {
	b, err := s.Ledger.BlockByHash(r.PathValue("hash"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *APIServer) balanceHandler(w http.ResponseWriter, r *http.Request) {
	addr := r.PathValue("address")
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"address": addr,
		"balance": s.Ledger.Balance(addr),
	})
}

func (s *APIServer) voteCountHandler(w http.ResponseWriter, r *http.Request) {
	candidate := r.PathValue("candidate")
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"candidate": candidate,
		"votes":     s.Ledger.VoteCount(candidate),
	})
}

func (s *APIServer) tallyHandler(w http.ResponseWriter, r *http.Request) {
	candidates := r.URL.Query()["candidate"]
	if len(candidates) == 0 {
		writeError(w, errors.NewError(errors.ErrCodeInvalidArgument, "At least one candidate query parameter is required"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"votes": s.Ledger.Tally(candidates),
	})
}

func (s *APIServer) mineHandler(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var req MineReq
	if err := jsonx.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.NewError(errors.ErrCodeInvalidArgument, fmt.Sprintf("Invalid request body: %v", err)))
		return
	}

	b, err := s.Ledger.MinePendingTransactions(r.Context(), req.Miner)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

func (s *APIServer) miningStatusHandler(w http.ResponseWriter, r *http.Request) {
	if s.Scheduler == nil {
		writeError(w, errMiningUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, s.Scheduler.Status())
}

func (s *APIServer) startMiningHandler(w http.ResponseWriter, r *http.Request) {
	if s.Scheduler == nil {
		writeError(w, errMiningUnavailable)
		return
	}
	defer r.Body.Close()

	// an empty body keeps the configured miner address
	var req MineReq
	if r.ContentLength != 0 {
		if err := jsonx.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, errors.NewError(errors.ErrCodeInvalidArgument, fmt.Sprintf("Invalid request body: %v", err)))
			return
		}
	}

	if err := s.Scheduler.Start(s.baseCtx, req.Miner); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.Scheduler.Status())
}

func (s *APIServer) stopMiningHandler(w http.ResponseWriter, r *http.Request) {
	if s.Scheduler == nil {
		writeError(w, errMiningUnavailable)
		return
	}
	s.Scheduler.Stop()
	writeJSON(w, http.StatusOK, s.Scheduler.Status())
}
