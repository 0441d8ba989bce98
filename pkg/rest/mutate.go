package rest

import (
	"maps"
	"net/http"
	"slices"
	"strings"
)

// handlePost inserts or upserts one row or an array of rows.
func (s *Server) handlePost(w http.ResponseWriter, r *http.Request, h *Headers, schemaName, name string) {
	params, apiErr := parseQueryParams(r.URL.Query(), nil)
	if apiErr != nil {
		s.writeError(w, apiErr)
		return
	}
	rows, _, apiErr := decodeBody(r)
	if apiErr != nil {
		s.writeError(w, apiErr)
		return
	}

	s.store.mu.Lock()
	defer s.store.mu.Unlock()

	rel, err := s.store.relation(schemaName, name)
	if err != nil {
		s.writeError(w, errTableNotFound(schemaName, name))
		return
	}
	ev, apiErr := s.store.newEvaluator(rel, params)
	if apiErr != nil {
		s.writeError(w, apiErr)
		return
	}

	affected, apiErr := insertRows(rel, rows, params, h.Prefer)
	if apiErr != nil {
		s.writeError(w, apiErr)
		return
	}
	s.respondMutation(w, r, h, ev, rel, http.StatusCreated, affected)
}

// insertRows applies an insert to rel and returns the rows written. The
// relation is only changed when every row succeeds.
func insertRows(rel *relation, rows []Row, params *QueryParams, prefer *Prefer) ([]Row, *apiError) {
	conflict := params.OnConflict
	if len(conflict) == 0 {
		conflict = rel.PrimaryKeys
	}
	next := slices.Clone(rel.rows)
	var affected []Row

	for _, in := range rows {
		row, apiErr := shapeInsert(rel, normalizeRow(in), params.Columns, prefer)
		if apiErr != nil {
			return nil, apiErr
		}
		autoIncrement(rel, next, row)
		if apiErr := checkNotNull(rel, row); apiErr != nil {
			return nil, apiErr
		}

		if i := findConflict(next, conflict, row); i >= 0 {
			switch {
			case prefer.MergeDuplicates():
				merged := maps.Clone(next[i])
				maps.Copy(merged, row)
				next[i] = merged
				affected = append(affected, merged)
			case prefer.IgnoreDuplicates():
			default:
				return nil, errUnique(rel.Name+"_pkey", strings.Join(conflict, ", "), conflictValue(row, conflict))
			}
			continue
		}
		next = append(next, row)
		affected = append(affected, row)
	}
	rel.rows = next
	return affected, nil
}

// shapeInsert restricts a row to the columns= list and checks that every
// key is a known column. Listed columns missing from the row are null, or
// left to their default with Prefer: missing=default.
func shapeInsert(rel *relation, row Row, columns []string, prefer *Prefer) (Row, *apiError) {
	if len(columns) > 0 {
		shaped := make(Row, len(columns))
		for _, c := range columns {
			if v, ok := row[c]; ok {
				shaped[c] = v
			} else if prefer == nil || prefer.Missing != "default" {
				shaped[c] = nil
			}
		}
		row = shaped
	}
	for k := range row {
		if !hasColumn(rel, k) {
			return nil, errColumn(rel.Name, k)
		}
	}
	return row, nil
}

// autoIncrement fills a missing single numeric primary key with max+1.
func autoIncrement(rel *relation, rows []Row, row Row) {
	if len(rel.PrimaryKeys) != 1 {
		return
	}
	pk := rel.PrimaryKeys[0]
	if row[pk] != nil {
		return
	}
	if c, ok := rel.Column(pk); ok && !isNumericType(c.DataType) {
		return
	}
	maxID := 0.0
	for _, r := range rows {
		f, ok := r[pk].(float64)
		if !ok && r[pk] != nil {
			return
		}
		maxID = max(maxID, f)
	}
	row[pk] = maxID + 1
}

func isNumericType(t string) bool {
	switch strings.ToLower(t) {
	case "", "int", "int2", "int4", "int8", "integer", "smallint", "bigint", "serial", "bigserial", "numeric":
		return true
	}
	return false
}

func checkNotNull(rel *relation, row Row) *apiError {
	for _, c := range rel.Columns {
		if !c.IsNullable && row[c.Name] == nil {
			return errNotNull(rel.Name, c.Name)
		}
	}
	return nil
}

func findConflict(rows []Row, cols []string, row Row) int {
	if len(cols) == 0 {
		return -1
	}
	return slices.IndexFunc(rows, func(existing Row) bool {
		for _, c := range cols {
			if row[c] == nil || !equalValues(existing[c], row[c]) {
				return false
			}
		}
		return true
	})
}

func conflictValue(row Row, cols []string) string {
	vals := make([]string, len(cols))
	for i, c := range cols {
		vals[i] = textOf(row[c])
	}
	return strings.Join(vals, ", ")
}

// handlePatch updates every row matching the filters with a json object.
func (s *Server) handlePatch(w http.ResponseWriter, r *http.Request, h *Headers, schemaName, name string) {
	params, apiErr := parseQueryParams(r.URL.Query(), nil)
	if apiErr != nil {
		s.writeError(w, apiErr)
		return
	}
	rows, isArray, apiErr := decodeBody(r)
	if apiErr != nil {
		s.writeError(w, apiErr)
		return
	}
	if isArray || len(rows) != 1 {
		s.writeError(w, errBody("PATCH expects a single json object"))
		return
	}
	patch := normalizeRow(rows[0])

	s.store.mu.Lock()
	defer s.store.mu.Unlock()

	rel, err := s.store.relation(schemaName, name)
	if err != nil {
		s.writeError(w, errTableNotFound(schemaName, name))
		return
	}
	ev, apiErr := s.store.newEvaluator(rel, params)
	if apiErr != nil {
		s.writeError(w, apiErr)
		return
	}
	for k, v := range patch {
		if !hasColumn(rel, k) {
			s.writeError(w, errColumn(rel.Name, k))
			return
		}
		if c, ok := rel.Column(k); ok && !c.IsNullable && v == nil {
			s.writeError(w, errNotNull(rel.Name, k))
			return
		}
	}

	filters := params.at("").filters
	next := slices.Clone(rel.rows)
	var affected []Row
	for i, row := range next {
		if !matchAll(filters, row) {
			continue
		}
		updated := maps.Clone(row)
		maps.Copy(updated, patch)
		next[i] = updated
		affected = append(affected, updated)
	}
	rel.rows = next
	s.respondMutation(w, r, h, ev, rel, http.StatusOK, affected)
}

// handleDelete removes every row matching the filters.
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request, h *Headers, schemaName, name string) {
	params, apiErr := parseQueryParams(r.URL.Query(), nil)
	if apiErr != nil {
		s.writeError(w, apiErr)
		return
	}

	s.store.mu.Lock()
	defer s.store.mu.Unlock()

	rel, err := s.store.relation(schemaName, name)
	if err != nil {
		s.writeError(w, errTableNotFound(schemaName, name))
		return
	}
	ev, apiErr := s.store.newEvaluator(rel, params)
	if apiErr != nil {
		s.writeError(w, apiErr)
		return
	}

	filters := params.at("").filters
	var kept, removed []Row
	for _, row := range rel.rows {
		if matchAll(filters, row) {
			removed = append(removed, row)
		} else {
			kept = append(kept, row)
		}
	}
	// embeds in the representation still see the deleted rows
	objs, total, apiErr := ev.eval(rel, params.Select, "", removed, false)
	rel.rows = kept
	if apiErr != nil {
		s.writeError(w, apiErr)
		return
	}
	s.writeMutation(w, r, h, http.StatusOK, objs, total)
}

// respondMutation writes the result of an insert or update.
func (s *Server) respondMutation(w http.ResponseWriter, r *http.Request, h *Headers, ev *evaluator, rel *relation, status int, affected []Row) {
	objs, total, apiErr := ev.eval(rel, ev.params.Select, "", affected, false)
	if apiErr != nil {
		s.writeError(w, apiErr)
		return
	}
	s.writeMutation(w, r, h, status, objs, total)
}

// writeMutation returns the representation when asked for; otherwise 201
// for inserts and 204 for updates and deletes.
func (s *Server) writeMutation(w http.ResponseWriter, r *http.Request, h *Headers, status int, objs []*object, total int) {
	if h.Prefer.WantsRepresentation() {
		s.writeRows(w, r, h, status, objs, total, 0)
		return
	}
	w.Header().Set("Content-Range", "*/"+countOrStar(h, total))
	if status == http.StatusOK {
		status = http.StatusNoContent
	}
	w.WriteHeader(status)
}
