package rest

import (
	"encoding/json"
	"net/http"

	"github.com/edgeflare/pgrest/pkg/httputil"
	"github.com/edgeflare/pgrest/pkg/pgx/schema"
	"go.uber.org/zap"
)

// handleRPC calls a registered function. Arguments come from the json body
// with POST and from the query string with GET and HEAD. A function that
// returns rows can be filtered, ordered and projected like a table.
func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request, h *Headers, schemaName, name string) {
	s.store.mu.RLock()
	fn, ok := s.store.functions[schemaName+"."+name]
	s.store.mu.RUnlock()
	if !ok {
		s.writeError(w, errFunctionNotFound(schemaName, name))
		return
	}

	var rpcParams []string
	args := map[string]any{}
	switch r.Method {
	case http.MethodGet, http.MethodHead:
		rpcParams = fn.Params
	case http.MethodPost:
		rows, isArray, apiErr := decodeBody(r)
		if apiErr != nil {
			s.writeError(w, apiErr)
			return
		}
		if isArray {
			s.writeError(w, errBody("rpc arguments must be a json object"))
			return
		}
		if len(rows) == 1 {
			args = rows[0]
		}
	default:
		httputil.Error(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	params, apiErr := parseQueryParams(r.URL.Query(), rpcParams)
	if apiErr != nil {
		s.writeError(w, apiErr)
		return
	}
	for k, v := range params.Args {
		args[k] = argValue(v)
	}

	result, err := fn.Call(args)
	if err != nil {
		s.logger.Debug("rpc failed", zap.String("function", name), zap.Error(err))
		s.writeError(w, &apiError{status: http.StatusBadRequest, Code: "P0001", Message: err.Error()})
		return
	}
	s.writeResult(w, r, h, schemaName, name, params, result)
}

// argValue decodes a query string argument as json when it is valid json,
// otherwise it is text.
func argValue(s string) any {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return s
	}
	return v
}

func (s *Server) writeResult(w http.ResponseWriter, r *http.Request, h *Headers, schemaName, name string, params *QueryParams, result any) {
	b, err := json.Marshal(result)
	if err != nil {
		httputil.Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		httputil.Error(w, http.StatusInternalServerError, err.Error())
		return
	}

	var rows []Row
	single := false
	switch v := v.(type) {
	case map[string]any:
		rows, single = []Row{v}, true
	case []any:
		for _, item := range v {
			m, ok := item.(map[string]any)
			if !ok {
				httputil.Blob(w, http.StatusOK, b, mediaJSON)
				return
			}
			rows = append(rows, m)
		}
	default:
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusOK)
			return
		}
		httputil.Blob(w, http.StatusOK, b, mediaJSON)
		return
	}

	rel := &relation{Table: schema.Table{Schema: schemaName, Name: name}, rows: rows}

	s.store.mu.RLock()
	defer s.store.mu.RUnlock()
	ev, apiErr := s.store.newEvaluator(rel, params)
	if apiErr != nil {
		s.writeError(w, apiErr)
		return
	}
	objs, total, apiErr := ev.eval(rel, params.Select, "", rows, true)
	if apiErr != nil {
		s.writeError(w, apiErr)
		return
	}
	if single && h.Accept == mediaJSON {
		var out any
		if len(objs) > 0 {
			out = objs[0]
		}
		httputil.JSON(w, http.StatusOK, out)
		return
	}
	s.writeRows(w, r, h, http.StatusOK, objs, total, params.at("").offset)
}
