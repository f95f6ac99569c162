package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/itsneelabh/intelcore/internal/corelog"
	"github.com/itsneelabh/intelcore/pkg/events"
	"github.com/itsneelabh/intelcore/pkg/intel"
	"github.com/itsneelabh/intelcore/pkg/intelerrors"
	"github.com/itsneelabh/intelcore/pkg/knowledge"
	"github.com/itsneelabh/intelcore/pkg/recommend"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("intelcore/httpapi")

// Server wires the orchestrator, knowledge exporter, and event bus onto
// the HTTP surface described in spec §6.
type Server struct {
	orchestrator *intel.Orchestrator
	exporter     *knowledge.Exporter
	store        *knowledge.Store
	embedder     *knowledge.Embedder
	bus          *events.Bus
	logger       corelog.Logger
}

func NewServer(orchestrator *intel.Orchestrator, exporter *knowledge.Exporter, store *knowledge.Store, embedder *knowledge.Embedder, bus *events.Bus, logger corelog.Logger) *Server {
	if logger == nil {
		logger = corelog.NoOpLogger{}
	}
	return &Server{orchestrator: orchestrator, exporter: exporter, store: store, embedder: embedder, bus: bus, logger: logger}
}

// Routes registers every handler on mux.
func (s *Server) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/events", s.handleEvents)
	mux.HandleFunc("/api/intel/query", s.handleIntelQuery)
	mux.HandleFunc("/api/recommend-depth", s.handleRecommendDepth)
	mux.HandleFunc("/api/council/export", s.handleCouncilExport)
	mux.HandleFunc("/api/council", s.handleCouncilSearch)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleEvents serves GET /api/events?session_id=<uuid> as an SSE stream.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	s.bus.ServeSSE(w, r, sessionID)
}

type intelQueryRequest struct {
	Query string `json:"query"`
	Depth string `json:"depth"`
}

type intelQueryResponse struct {
	Result intel.Result `json:"result"`
	Cost   float64      `json:"cost"`
}

// handleIntelQuery serves POST /api/intel/query body {query, depth?}.
func (s *Server) handleIntelQuery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req intelQueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, intelerrors.NewValidationError("httpapi", CorrelationFromContext(r.Context()), "body", "json", "unparseable", "malformed request body"))
		return
	}
	if req.Query == "" {
		writeError(w, intelerrors.NewValidationError("httpapi", CorrelationFromContext(r.Context()), "query", "non-empty string", "empty", "required"))
		return
	}

	depth := intel.Depth(req.Depth)
	if depth == "" {
		depth = intel.Standard
	}

	ctx, span := tracer.Start(r.Context(), "intel.gather")
	defer span.End()

	result, err := s.orchestrator.GatherIntel(ctx, req.Query, depth)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, intelQueryResponse{Result: result, Cost: result.TotalCostUSD})
}

type recommendRequest struct {
	Query string `json:"query"`
}

type recommendResponse struct {
	Depth  string `json:"depth"`
	Reason string `json:"reason"`
}

// handleRecommendDepth serves POST /api/recommend-depth body {query}.
func (s *Server) handleRecommendDepth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req recommendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, intelerrors.NewValidationError("httpapi", CorrelationFromContext(r.Context()), "body", "json", "unparseable", "malformed request body"))
		return
	}

	depth, reason := recommend.Recommend(req.Query)
	writeJSON(w, http.StatusOK, recommendResponse{Depth: string(depth), Reason: reason})
}

type councilExportRequest struct {
	Result   intel.Result           `json:"result"`
	Tags     []string               `json:"tags"`
	Metadata map[string]interface{} `json:"metadata"`
}

// handleCouncilExport serves POST /api/council/export.
func (s *Server) handleCouncilExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req councilExportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, intelerrors.NewValidationError("httpapi", CorrelationFromContext(r.Context()), "body", "json", "unparseable", "malformed request body"))
		return
	}

	record, err := s.exporter.ExportResult(r.Context(), req.Result, req.Tags, req.Metadata)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, record)
}

// handleCouncilSearch serves GET /api/council?q=<text>&mode=keyword|semantic.
func (s *Server) handleCouncilSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		writeError(w, intelerrors.NewValidationError("httpapi", CorrelationFromContext(r.Context()), "q", "non-empty string", "empty", "required"))
		return
	}

	var tags []string
	if raw := r.URL.Query().Get("tags"); raw != "" {
		tags = strings.Split(raw, ",")
	}

	var records []knowledge.Record
	var err error
	if r.URL.Query().Get("mode") == "semantic" {
		records, err = s.store.SearchSemantic(r.Context(), s.embedder, query, 10, CorrelationFromContext(r.Context()))
	} else {
		records, err = s.store.SearchKeyword(r.Context(), query, 10, tags)
	}
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"records": records})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, err error) {
	envelope := intelerrors.NewEnvelope(err, "", false)
	writeJSON(w, intelerrors.HTTPStatus(err), envelope)
}
