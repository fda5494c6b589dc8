package node

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"energytrade.dev/settle/covenant"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const maxRequestBodyBytes = 1 << 20

type contextKey string

const requestIDContextKey contextKey = "requestID"

// Server is the HTTP front of a Ledger.
type Server struct {
	ledger  *Ledger
	log     *logrus.Entry
	limiter *ipRateLimiter
	proxies []netip.Prefix
	router  *mux.Router
}

func NewServer(ledger *Ledger, cfg Config, log *logrus.Logger) *Server {
	s := &Server{
		ledger:  ledger,
		log:     log.WithField("component", "rpc"),
		limiter: newIPRateLimiter(cfg.RateLimitPerMinute, cfg.RateLimitBurst),
	}
	// ValidateConfig has already rejected malformed entries.
	s.proxies, _ = parseTrustedProxies(cfg.TrustedProxies)
	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	api := r.PathPrefix("/v1").Subrouter()
	api.Use(s.rateLimit)
	api.HandleFunc("/records", s.handleFund).Methods(http.MethodPost)
	api.HandleFunc("/records/{txid}/{vout}", s.handleGetRecord).Methods(http.MethodGet)
	api.HandleFunc("/settle", s.handleSettle).Methods(http.MethodPost)
	api.HandleFunc("/clock", s.handleGetClock).Methods(http.MethodGet)
	api.HandleFunc("/clock", s.handleSetClock).Methods(http.MethodPut)

	r.Use(requestID, s.metrics, bodyLimit(maxRequestBodyBytes))
	s.router = r
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

// Serve runs the API on addr until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	s.log.WithField("addr", addr).Info("listening")

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

type fundRequest struct {
	Txid   string     `json:"txid"`
	Vout   uint32     `json:"vout"`
	Output OutputJSON `json:"output"`
}

type recordResponse struct {
	Outpoint       OutpointJSON `json:"outpoint"`
	Live           bool         `json:"live"`
	Output         OutputJSON   `json:"output"`
	CreationHeight uint32       `json:"creation_height"`
	SpentBy        *spentJSON   `json:"spent_by,omitempty"`
}

type spentJSON struct {
	SettlementTxid string         `json:"settlement_txid"`
	Transition     string         `json:"transition"`
	Height         uint32         `json:"height"`
	Created        []OutpointJSON `json:"created"`
}

type settleResponse struct {
	Accept         bool           `json:"accept"`
	Code           string         `json:"code,omitempty"`
	Message        string         `json:"message,omitempty"`
	SettlementTxid string         `json:"settlement_txid,omitempty"`
	Payout         uint64         `json:"payout,omitempty"`
	Created        []OutpointJSON `json:"created,omitempty"`
}

type clockJSON struct {
	Height uint32 `json:"height"`
}

type errorResponse struct {
	Code      string `json:"code,omitempty"`
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "clock_height": s.ledger.ClockHeight()})
}

func (s *Server) handleFund(w http.ResponseWriter, r *http.Request) {
	var req fundRequest
	if !s.decode(w, r, &req) {
		return
	}
	point, err := DecodeOutpoint(req.Txid, req.Vout)
	if err != nil {
		s.fail(w, r, http.StatusBadRequest, err)
		return
	}
	out, err := req.Output.Decode()
	if err != nil {
		s.fail(w, r, http.StatusBadRequest, err)
		return
	}
	if err := s.ledger.Fund(point, out); err != nil {
		s.fail(w, r, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, OutpointToJSON(point))
}

func (s *Server) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	vout, err := strconv.ParseUint(vars["vout"], 10, 32)
	if err != nil {
		s.fail(w, r, http.StatusBadRequest, err)
		return
	}
	point, err := DecodeOutpoint(vars["txid"], uint32(vout))
	if err != nil {
		s.fail(w, r, http.StatusBadRequest, err)
		return
	}
	live, receipt, err := s.ledger.Record(point)
	if err != nil {
		s.fail(w, r, statusFor(err), err)
		return
	}
	resp := recordResponse{Outpoint: OutpointToJSON(point)}
	if live != nil {
		resp.Live = true
		resp.Output = OutputToJSON(live.Output)
		resp.CreationHeight = live.CreationHeight
	} else {
		resp.Output = OutputToJSON(receipt.Consumed.Output)
		resp.CreationHeight = receipt.Consumed.CreationHeight
		spent := &spentJSON{
			SettlementTxid: hex.EncodeToString(receipt.SettlementTxid[:]),
			Transition:     string(receipt.Transition),
			Height:         receipt.Height,
			Created:        []OutpointJSON{},
		}
		for _, p := range receipt.Created {
			spent.Created = append(spent.Created, OutpointToJSON(p))
		}
		resp.SpentBy = spent
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSettle(w http.ResponseWriter, r *http.Request) {
	var body SettleRequestJSON
	if !s.decode(w, r, &body) {
		return
	}
	req, err := body.Decode()
	if err != nil {
		s.fail(w, r, http.StatusBadRequest, err)
		return
	}
	st, err := s.ledger.Settle(req)
	if err != nil {
		code := covenant.CodeOf(err)
		if code == "" {
			s.fail(w, r, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, statusFor(err), settleResponse{Accept: false, Code: string(code), Message: err.Error()})
		return
	}
	resp := settleResponse{
		Accept:         true,
		SettlementTxid: hex.EncodeToString(st.Txid[:]),
		Payout:         st.Payout,
	}
	for _, p := range st.Created {
		resp.Created = append(resp.Created, OutpointToJSON(p))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetClock(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, clockJSON{Height: s.ledger.ClockHeight()})
}

func (s *Server) handleSetClock(w http.ResponseWriter, r *http.Request) {
	var req clockJSON
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.ledger.AdvanceClock(req.Height); err != nil {
		s.fail(w, r, http.StatusConflict, err)
		return
	}
	writeJSON(w, http.StatusOK, clockJSON{Height: s.ledger.ClockHeight()})
}

// statusFor maps settlement error codes to HTTP statuses.
func statusFor(err error) int {
	switch covenant.CodeOf(err) {
	case "":
		return http.StatusInternalServerError
	case covenant.ERR_MISSING_RECORD:
		return http.StatusNotFound
	case covenant.ERR_ALREADY_SPENT:
		return http.StatusConflict
	case covenant.ERR_PARSE:
		return http.StatusBadRequest
	default:
		return http.StatusUnprocessableEntity
	}
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			s.fail(w, r, http.StatusRequestEntityTooLarge, err)
			return false
		}
		s.fail(w, r, http.StatusBadRequest, err)
		return false
	}
	return true
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, status int, err error) {
	id := requestIDFrom(r.Context())
	if status >= http.StatusInternalServerError {
		s.log.WithField("request_id", id).WithError(err).Error("request failed")
	}
	writeJSON(w, status, errorResponse{Code: string(covenant.CodeOf(err)), Error: err.Error(), RequestID: id})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.New().String()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDContextKey, id)))
	})
}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDContextKey).(string)
	return id
}

func bodyLimit(maxBytes int64) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodPost || r.Method == http.MethodPut {
				r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			}
			next.ServeHTTP(w, r)
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (w *statusRecorder) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (s *Server) metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := "unmatched"
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		httpRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

const (
	limiterSweepInterval = time.Minute
	limiterIdleTTL       = 3 * time.Minute
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// ipRateLimiter keeps one token bucket per client IP. Buckets idle longer
// than limiterIdleTTL are dropped on the next sweep.
type ipRateLimiter struct {
	mu        sync.Mutex
	visitors  map[string]*visitor
	rate      rate.Limit
	burst     int
	now       func() time.Time
	lastSweep time.Time
}

func newIPRateLimiter(perMinute, burst int) *ipRateLimiter {
	return &ipRateLimiter{
		visitors: make(map[string]*visitor),
		rate:     rate.Limit(float64(perMinute) / 60.0),
		burst:    burst,
		now:      time.Now,
	}
}

func (l *ipRateLimiter) get(ip string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	if now.Sub(l.lastSweep) >= limiterSweepInterval {
		for k, v := range l.visitors {
			if now.Sub(v.lastSeen) > limiterIdleTTL {
				delete(l.visitors, k)
			}
		}
		l.lastSweep = now
	}
	v, ok := l.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.visitors[ip] = v
	}
	v.lastSeen = now
	return v.limiter
}

func (l *ipRateLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.visitors)
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.get(s.clientIP(r)).Allow() {
			writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "rate limited", RequestID: requestIDFrom(r.Context())})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP is the peer address, or the X-Forwarded-For client when the peer
// is a trusted proxy.
func (s *Server) clientIP(r *http.Request) string {
	peer, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		peer = strings.Trim(r.RemoteAddr, "[]")
	}
	if !s.trustedPeer(peer) {
		return peer
	}
	xff := r.Header.Get("X-Forwarded-For")
	if xff == "" {
		return peer
	}
	first, _, _ := strings.Cut(xff, ",")
	client, err := netip.ParseAddr(strings.TrimSpace(first))
	if err != nil {
		return peer
	}
	return client.Unmap().String()
}

func (s *Server) trustedPeer(peer string) bool {
	addr, err := netip.ParseAddr(peer)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range s.proxies {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}
