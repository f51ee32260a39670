package culpritserver

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	metricsprom "github.com/slok/go-http-metrics/metrics/prometheus"
	metricsmw "github.com/slok/go-http-metrics/middleware"
	"github.com/slok/go-http-metrics/middleware/std"

	"github.com/openshift/culprit/pkg/apis/cache"
	v1 "github.com/openshift/culprit/pkg/apis/ci/v1"
	configv1 "github.com/openshift/culprit/pkg/apis/config/v1"
	"github.com/openshift/culprit/pkg/datasource"
	"github.com/openshift/culprit/pkg/push"
	"github.com/openshift/culprit/pkg/regression"
	"github.com/openshift/culprit/pkg/util/param"
	"github.com/openshift/culprit/pkg/version"
)

const defaultBranch = "autoland"

type Server struct {
	// Registerer receives the request metrics. It defaults to the global registry.
	Registerer prometheus.Registerer

	listenAddr string
	data       *datasource.Handler
	config     *configv1.CulpritConfig
	cache      cache.Cache
	httpServer *http.Server
}

func NewServer(listenAddr string, data *datasource.Handler, config *configv1.CulpritConfig, cacheClient cache.Cache) *Server {
	return &Server{
		listenAddr: listenAddr,
		data:       data,
		config:     config,
		cache:      cacheClient,
		Registerer: prometheus.DefaultRegisterer,
	}
}

// CandidatesResponse is the body of /api/candidates.
type CandidatesResponse struct {
	Push       v1.PushInfo     `json:"push"`
	Kind       v1.RunnableKind `json:"kind"`
	Candidates []v1.Runnable   `json:"candidates"`
}

type healthResponse struct {
	Status  string   `json:"status"`
	Sources []string `json:"sources"`
	Version string   `json:"version"`
}

// Handler returns the API routes, instrumented with request metrics.
func (s *Server) Handler() http.Handler {
	serveMux := http.NewServeMux()
	serveMux.HandleFunc("/api/health", s.jsonHealthReport)
	serveMux.HandleFunc("/api/regressions", s.jsonRegressionsReport)
	serveMux.HandleFunc("/api/candidates", s.jsonCandidatesReport)

	mdlw := metricsmw.New(metricsmw.Config{
		Recorder: metricsprom.NewRecorder(metricsprom.Config{Registry: s.Registerer}),
	})
	return std.Handler("", mdlw, serveMux)
}

func (s *Server) Serve() {
	s.httpServer = &http.Server{
		Addr:              s.listenAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Infof("Serving regression reports on %s", s.listenAddr)
	if err := s.httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		log.WithError(err).Fatal("server exited")
	}
}

func (s *Server) GetHTTPServer() *http.Server {
	return s.httpServer
}

// maxDepthFactor bounds the maxDepth a client may ask for, relative to the configured one.
const maxDepthFactor = 5

// request is the push and options named by the query string.
type request struct {
	branch   string
	rev      string
	kind     v1.RunnableKind
	maxDepth int
	refresh  bool
}

func (s *Server) parseRequest(req *http.Request) (request, error) {
	values := map[string]string{}
	for _, name := range []string{"branch", "rev", "kind", "maxDepth", "forceRefresh"} {
		v, ok := param.SafeRead(req, name)
		if !ok {
			return request{}, errors.Errorf("invalid %s parameter", name)
		}
		values[name] = v
	}

	r := request{
		branch:   values["branch"],
		rev:      values["rev"],
		kind:     v1.KindLabel,
		maxDepth: s.config.MaxDepth,
		refresh:  values["forceRefresh"] == "true",
	}
	if r.branch == "" {
		r.branch = defaultBranch
	}
	if r.rev == "" {
		return r, errors.New("missing rev parameter")
	}
	if k := values["kind"]; k != "" {
		kind, ok := v1.ParseRunnableKind(k)
		if !ok {
			return r, errors.Errorf("unknown kind %q", k)
		}
		r.kind = kind
	}
	if d := values["maxDepth"]; d != "" {
		depth, err := strconv.Atoi(d)
		if err != nil || depth < 1 {
			return r, errors.Errorf("invalid maxDepth %q", d)
		}
		if limit := maxDepthFactor * s.config.MaxDepth; depth > limit {
			return r, errors.Errorf("maxDepth %d exceeds the limit of %d", depth, limit)
		}
		r.maxDepth = depth
	}
	return r, nil
}

// lookup resolves the push of r in a registry of its own, so every request classifies a
// fresh snapshot. The cache carries finalized pushes across requests.
func (s *Server) lookup(ctx context.Context, r request) (*push.Push, error) {
	registry := push.NewRegistry(s.data, push.Options{
		Tier:  s.config.Tier,
		Cache: s.cache,
		CacheOptions: cache.RequestOptions{
			ForceRefresh: r.refresh,
			Retention:    s.config.Cache.Retention,
		},
	})
	return registry.Get(ctx, r.branch, r.rev)
}

func (s *Server) jsonHealthReport(w http.ResponseWriter, req *http.Request) {
	RespondWithJSON(http.StatusOK, w, healthResponse{
		Status:  "ok",
		Sources: s.data.Sources(),
		Version: version.Get().GitCommit,
	})
}

func (s *Server) jsonRegressionsReport(w http.ResponseWriter, req *http.Request) {
	r, err := s.parseRequest(req)
	if err != nil {
		failureResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	p, err := s.lookup(req.Context(), r)
	if err != nil {
		errorResponse(w, err)
		return
	}
	report, err := regression.NewClassifier(r.maxDepth).Analyze(req.Context(), p, r.kind, s.config.Concurrency)
	if err != nil {
		errorResponse(w, err)
		return
	}
	RespondWithJSON(http.StatusOK, w, report)
}

func (s *Server) jsonCandidatesReport(w http.ResponseWriter, req *http.Request) {
	r, err := s.parseRequest(req)
	if err != nil {
		failureResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	p, err := s.lookup(req.Context(), r)
	if err != nil {
		errorResponse(w, err)
		return
	}
	cands, err := regression.NewClassifier(r.maxDepth).CandidateRegressions(req.Context(), p, r.kind)
	if err != nil {
		errorResponse(w, err)
		return
	}
	RespondWithJSON(http.StatusOK, w, CandidatesResponse{
		Push:       p.Info(),
		Kind:       r.kind,
		Candidates: regression.SortRunnables(cands),
	})
}

// RespondWithJSON writes data as the JSON body of a response with statusCode.
func RespondWithJSON(statusCode int, w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.WithError(err).Warn("could not write response")
	}
}

func failureResponse(w http.ResponseWriter, code int, message string) {
	RespondWithJSON(code, w, map[string]interface{}{
		"code":    code,
		"message": message,
	})
}

func errorResponse(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, v1.ErrPushNotFound):
		failureResponse(w, http.StatusNotFound, err.Error())
	case errors.Is(err, v1.ErrDataUnavailable):
		failureResponse(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		failureResponse(w, http.StatusGatewayTimeout, err.Error())
	default:
		log.WithError(err).Error("error classifying push")
		failureResponse(w, http.StatusInternalServerError, err.Error())
	}
}
