package rest

import (
	"bytes"
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/edgeflare/pgrest/pkg/config"
	"github.com/edgeflare/pgrest/pkg/httputil"
	"github.com/edgeflare/pgrest/pkg/httputil/middleware"
	"github.com/edgeflare/pgrest/pkg/metrics"
	"github.com/edgeflare/pgrest/pkg/pgx/schema"
	"github.com/justinas/alice"
	"go.uber.org/zap"
)

const (
	mediaJSON   = "application/json"
	mediaObject = "application/vnd.pgrst.object+json"
	mediaCSV    = "text/csv"
	mediaGeo    = "application/geo+json"

	mediaOpenAPI = "application/openapi+json"
)

// Server answers PostgREST requests from a Store.
type Server struct {
	store   *Store
	logger  *zap.Logger
	handler http.Handler
}

// Option configures a Server.
type Option func(*serverOptions)

type serverOptions struct {
	logger     *zap.Logger
	cors       *middleware.CORSOptions
	noCORS     bool
	middleware []alice.Constructor
}

// WithLogger sets the logger for access and error logs.
func WithLogger(l *zap.Logger) Option {
	return func(o *serverOptions) {
		o.logger = l
	}
}

// WithCORS overrides the default CORS settings.
func WithCORS(c *middleware.CORSOptions) Option {
	return func(o *serverOptions) {
		o.cors = c
	}
}

// WithoutCORS leaves out the CORS middleware, so OPTIONS requests reach the
// handler and no Access-Control headers are set.
func WithoutCORS() Option {
	return func(o *serverOptions) {
		o.noCORS = true
	}
}

// WithMiddleware appends middleware run after the built-in chain.
func WithMiddleware(m ...alice.Constructor) Option {
	return func(o *serverOptions) {
		o.middleware = append(o.middleware, m...)
	}
}

func NewServer(store *Store, opts ...Option) *Server {
	o := serverOptions{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	s := &Server{store: store, logger: o.logger}

	chain := alice.New(
		middleware.RequestID,
		middleware.LoggerWithOptions(&middleware.LoggerOptions{Logger: o.logger}),
	)
	if !o.noCORS {
		chain = chain.Append(middleware.CORSWithOptions(o.cors))
	}
	chain = chain.Append(o.middleware...)
	s.handler = chain.ThenFunc(s.handleRequest)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Start serves on addr until ctx is canceled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 3 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", zap.String("addr", addr))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.logger.Info("server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleRequest(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	rec := middleware.NewResponseRecorder(w)
	name := strings.Trim(r.URL.Path, "/")
	defer func() {
		metrics.ServerRequests.WithLabelValues(name, r.Method, strconv.Itoa(rec.StatusCode)).Inc()
		metrics.ServerRequestDuration.WithLabelValues(r.Method).Observe(time.Since(start).Seconds())
	}()

	h := parseHeaders(r)
	schemaName := cmp.Or(h.Profile, defaultSchema)
	if h.Profile != "" && !s.store.hasSchema(schemaName) {
		s.writeError(rec, errInvalidSchema(defaultSchema))
		return
	}

	if name == "" {
		s.handleRoot(rec, r, schemaName)
		return
	}

	if fn, ok := strings.CutPrefix(name, "rpc/"); ok {
		s.handleRPC(rec, r, h, schemaName, fn)
		return
	}

	switch r.Method {
	case http.MethodGet, http.MethodHead:
		s.handleGet(rec, r, h, schemaName, name)
	case http.MethodPost:
		s.handlePost(rec, r, h, schemaName, name)
	case http.MethodPatch:
		s.handlePatch(rec, r, h, schemaName, name)
	case http.MethodDelete:
		s.handleDelete(rec, r, h, schemaName, name)
	default:
		httputil.Error(rec, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// handleRoot serves the OpenAPI description of schemaName when asked for
// application/openapi+json, the list of relations otherwise.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request, schemaName string) {
	if !strings.Contains(r.Header.Get("Accept"), mediaOpenAPI) {
		httputil.JSON(w, http.StatusOK, s.store.Tables())
		return
	}
	s.store.mu.RLock()
	var tables []schema.Table
	for _, rel := range s.store.relationsIn(schemaName) {
		tables = append(tables, rel.Table)
	}
	s.store.mu.RUnlock()

	doc := schema.OpenAPI(tables, schema.OpenAPIInfo{Title: "pgrest mock", Version: config.Version})
	b, err := json.Marshal(doc)
	if err != nil {
		httputil.Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	httputil.Blob(w, http.StatusOK, b, mediaOpenAPI+"; charset=utf-8")
}

// handleGet processes GET and HEAD requests
func (s *Server) handleGet(w http.ResponseWriter, r *http.Request, h *Headers, schemaName, name string) {
	params, apiErr := parseQueryParams(r.URL.Query(), nil)
	if apiErr != nil {
		s.writeError(w, apiErr)
		return
	}

	s.store.mu.RLock()
	defer s.store.mu.RUnlock()

	rel, err := s.store.relation(schemaName, name)
	if err != nil {
		s.writeError(w, errTableNotFound(schemaName, name))
		return
	}
	objs, total, apiErr := s.read(rel, params, rel.rows, true)
	if apiErr != nil {
		s.writeError(w, apiErr)
		return
	}
	s.writeRows(w, r, h, http.StatusOK, objs, total, params.at("").offset)
}

// read evaluates a select over rows; filter is false for rows already
// chosen by a mutation.
func (s *Server) read(rel *relation, params *QueryParams, rows []Row, filter bool) ([]*object, int, *apiError) {
	ev, apiErr := s.store.newEvaluator(rel, params)
	if apiErr != nil {
		return nil, 0, apiErr
	}
	return ev.eval(rel, params.Select, "", rows, filter)
}

// writeRows writes a result set in the negotiated media type.
func (s *Server) writeRows(w http.ResponseWriter, r *http.Request, h *Headers, status int, objs []*object, total, offset int) {
	if len(objs) == 0 {
		w.Header().Set("Content-Range", "*/"+countOrStar(h, total))
	} else {
		w.Header().Set("Content-Range", fmt.Sprintf("%d-%d/%s", offset, offset+len(objs)-1, countOrStar(h, total)))
	}

	var body []byte
	contentType := mediaJSON
	var err error
	switch h.Accept {
	case mediaObject:
		if len(objs) != 1 {
			s.writeError(w, errSingular(len(objs)))
			return
		}
		contentType = mediaObject
		body, err = json.Marshal(objs[0])
	case mediaCSV:
		contentType = mediaCSV
		body, err = encodeCSV(objs)
	case mediaGeo:
		contentType = mediaGeo
		body, err = encodeGeoJSON(objs)
	case mediaJSON, "application/*":
		body, err = json.Marshal(objs)
	default:
		s.writeError(w, &apiError{
			status:  http.StatusNotAcceptable,
			Code:    "PGRST107",
			Message: "None of these media types are available: " + h.Accept,
		})
		return
	}
	if err != nil {
		s.logger.Error("encode response", zap.Error(err))
		httputil.Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	if r.Method == http.MethodHead {
		w.Header().Set("Content-Type", contentType+"; charset=utf-8")
		w.WriteHeader(status)
		return
	}
	httputil.Blob(w, status, body, contentType+"; charset=utf-8")
}

func countOrStar(h *Headers, total int) string {
	if h.Prefer.WantsCount() {
		return strconv.Itoa(total)
	}
	return "*"
}

func (s *Server) writeError(w http.ResponseWriter, e *apiError) {
	s.logger.Debug("request error", zap.String("code", e.Code), zap.String("message", e.Message))
	httputil.JSON(w, e.status, e)
}

// decodeBody reads a json object or array of objects.
func decodeBody(r *http.Request) ([]Row, bool, *apiError) {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, false, errBody("Error reading request body: " + err.Error())
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, false, nil
	}
	if data[0] == '[' {
		var rows []Row
		if err := json.Unmarshal(data, &rows); err != nil {
			return nil, true, errBody("Empty or invalid json: " + err.Error())
		}
		return rows, true, nil
	}
	var row Row
	if err := json.Unmarshal(data, &row); err != nil {
		return nil, false, errBody("Empty or invalid json: " + err.Error())
	}
	return []Row{row}, false, nil
}
