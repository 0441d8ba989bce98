package postgrest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/edgeflare/pgrest/pkg/metrics"
	"github.com/edgeflare/pgrest/pkg/postgrest/selectexpr"
	"go.uber.org/zap"
)

// Count is the row counting algorithm requested with Prefer: count=.
type Count string

const (
	CountExact     Count = "exact"
	CountPlanned   Count = "planned"
	CountEstimated Count = "estimated"
)

// Media types negotiated with the Accept header.
const (
	MediaTypeJSON   = "application/json"
	MediaTypeObject = "application/vnd.pgrst.object+json"
	MediaTypeCSV    = "text/csv"
	MediaTypeGeo    = "application/geo+json"
)

type resultShape int

const (
	shapeArray resultShape = iota
	shapeSingle
	shapeMaybeSingle
)

// ErrNoClient is returned when building a Query that was not created from a
// Client.
var ErrNoClient = errors.New("postgrest: query is not bound to a client")

// Query is an immutable description of one PostgREST request. Every builder
// method returns a new Query and leaves the receiver untouched, so a partial
// query can be shared and extended from several goroutines.
type Query struct {
	client    *Client
	method    string
	path      string
	schema    string
	header    http.Header
	prefer    []string
	selectExp string
	hasSelect bool
	state     State
	body      any
	hasBody   bool
	accept    string
	shape     resultShape
	throw     bool
}

func (q Query) clone() Query {
	q.header = q.header.Clone()
	q.prefer = slices.Clone(q.prefer)
	q.state.Filters = slices.Clone(q.state.Filters)
	q.state.Orders = slices.Clone(q.state.Orders)
	q.state.Pages = slices.Clone(q.state.Pages)
	q.state.Extra = slices.Clone(q.state.Extra)
	return q
}

// withPrefer sets one Prefer directive, replacing an earlier value for key.
func (q Query) withPrefer(key, value string) Query {
	q = q.clone()
	directive := key + "=" + value
	for i, p := range q.prefer {
		if strings.HasPrefix(p, key+"=") {
			q.prefer[i] = directive
			return q
		}
	}
	q.prefer = append(q.prefer, directive)
	return q
}

func (q Query) isRead() bool {
	return q.method == http.MethodGet || q.method == http.MethodHead
}

// SelectOptions configures Select.
type SelectOptions struct {
	Head  bool  // only the status and count, no rows
	Count Count // count algorithm reported in Content-Range
}

// Select sets the select expression. An empty expression selects *. On
// Insert, Upsert, Update and Delete it also asks for the affected rows to be
// returned.
func (q Query) Select(exp string, opts ...SelectOptions) Query {
	q = q.clone()
	if strings.TrimSpace(exp) == "" {
		exp = "*"
	}
	q.selectExp = exp
	q.hasSelect = true
	if !q.isRead() && !strings.HasPrefix(q.path, "/rpc/") {
		q = q.withPrefer("return", string(ReturnRepresentation))
	}
	if len(opts) > 0 {
		if opts[0].Count != "" {
			q = q.Count(opts[0].Count)
		}
		if opts[0].Head {
			q = q.Head()
		}
	}
	return q
}

// Count asks the server to report the total row count in Content-Range.
func (q Query) Count(c Count) Query {
	return q.withPrefer("count", string(c))
}

// Head turns a read into a HEAD request: no rows are returned, only the
// status and count.
func (q Query) Head() Query {
	q = q.clone()
	if q.method == http.MethodGet {
		q.method = http.MethodHead
	}
	return q
}

// Returning is the Prefer: return= directive of a mutation.
type Returning string

const (
	ReturnMinimal        Returning = "minimal"
	ReturnRepresentation Returning = "representation"
)

// MutationOptions configures Insert, Upsert, Update and Delete.
type MutationOptions struct {
	Count     Count
	Returning Returning
	// DefaultMissing fills columns missing from a bulk insert with their
	// default value instead of null.
	DefaultMissing bool
}

// UpsertOptions configures Upsert.
type UpsertOptions struct {
	MutationOptions
	OnConflict       string // comma separated unique columns
	IgnoreDuplicates bool
}

func (q Query) mutate(method string, values any, opts MutationOptions) Query {
	q = q.clone()
	q.method = method
	if values != nil {
		q.body = values
		q.hasBody = true
	}
	if opts.Count != "" {
		q = q.withPrefer("count", string(opts.Count))
	}
	if opts.Returning != "" {
		q = q.withPrefer("return", string(opts.Returning))
	}
	if opts.DefaultMissing {
		q = q.withPrefer("missing", "default")
	}
	if rows, ok := values.([]map[string]any); ok {
		if cols := columnsOf(rows); cols != "" {
			q.state.Extra = q.state.Extra.set("columns", cols)
		}
	}
	return q
}

// columnsOf lists the union of keys of a bulk payload so that rows missing a
// key are inserted with null (or the default, with DefaultMissing).
func columnsOf(rows []map[string]any) string {
	var cols []string
	seen := map[string]bool{}
	for _, row := range rows {
		for _, k := range slices.Sorted(maps.Keys(row)) {
			if !seen[k] {
				seen[k] = true
				cols = append(cols, `"`+k+`"`)
			}
		}
	}
	return strings.Join(cols, ",")
}

// Insert adds rows. values is a struct, a map or a slice of either.
func (q Query) Insert(values any, opts ...MutationOptions) Query {
	var o MutationOptions
	if len(opts) > 0 {
		o = opts[0]
	}
	return q.mutate(http.MethodPost, values, o)
}

// Upsert inserts rows, resolving primary key (or OnConflict) collisions by
// merging or, with IgnoreDuplicates, skipping them.
func (q Query) Upsert(values any, opts ...UpsertOptions) Query {
	var o UpsertOptions
	if len(opts) > 0 {
		o = opts[0]
	}
	q = q.mutate(http.MethodPost, values, o.MutationOptions)
	if o.IgnoreDuplicates {
		q = q.withPrefer("resolution", "ignore-duplicates")
	} else {
		q = q.withPrefer("resolution", "merge-duplicates")
	}
	if o.OnConflict != "" {
		q.state.Extra = q.state.Extra.set("on_conflict", o.OnConflict)
	}
	return q
}

// Update patches the rows matched by the filters with values.
func (q Query) Update(values any, opts ...MutationOptions) Query {
	var o MutationOptions
	if len(opts) > 0 {
		o = opts[0]
	}
	return q.mutate(http.MethodPatch, values, o)
}

// Delete removes the rows matched by the filters.
func (q Query) Delete(opts ...MutationOptions) Query {
	var o MutationOptions
	if len(opts) > 0 {
		o = opts[0]
	}
	return q.mutate(http.MethodDelete, nil, o)
}

// Header sets an extra request header.
func (q Query) Header(key, value string) Query {
	q = q.clone()
	q.header.Set(key, value)
	return q
}

// ThrowOnError makes Execute return the backend error as its error value in
// addition to Response.Error.
func (q Query) ThrowOnError() Query {
	q = q.clone()
	q.throw = true
	return q
}

// Build compiles the select expression and assembles the request without
// sending it. Select syntax errors are returned here, wrapping a
// *selectexpr.SyntaxError.
func (q Query) Build() (*Request, error) {
	if q.client == nil {
		return nil, ErrNoClient
	}
	var tree selectexpr.Tree
	if q.hasSelect {
		t, err := selectexpr.Parse(q.selectExp)
		if err != nil {
			return nil, fmt.Errorf("compile select: %w", err)
		}
		tree = t
	}
	params := Encode(tree, q.state)

	header := q.header.Clone()
	if header == nil {
		header = make(http.Header)
	}
	if len(q.prefer) > 0 {
		header.Set("Prefer", strings.Join(q.prefer, ","))
	}
	if q.schema != "" {
		if q.isRead() {
			header.Set("Accept-Profile", q.schema)
		} else {
			header.Set("Content-Profile", q.schema)
		}
	}
	if q.accept != "" {
		header.Set("Accept", q.accept)
	}

	var body []byte
	if q.hasBody {
		b, err := json.Marshal(q.body)
		if err != nil {
			return nil, fmt.Errorf("marshal body: %w", err)
		}
		body = b
		header.Set("Content-Type", MediaTypeJSON)
	}

	u := *q.client.baseURL
	u.Path += q.path
	u.RawQuery = params.Encode()
	return &Request{
		Method: q.method,
		URL:    u.String(),
		Path:   u.Path,
		Params: params,
		Header: header,
		Body:   body,
	}, nil
}

// Execute sends the query. Errors past the request boundary (transport
// failures, backend errors, malformed bodies) are reported in
// Response.Error; the error result is only set for local failures such as a
// select syntax error, or for backend errors after ThrowOnError.
func (q Query) Execute(ctx context.Context) (*Response, error) {
	req, err := q.Build()
	if err != nil {
		metrics.ClientBuildErrors.Inc()
		return nil, err
	}
	c := q.client
	start := time.Now()
	raw, err := c.transport.Do(ctx, req)
	elapsed := time.Since(start)

	var resp *Response
	if err != nil {
		resp = transportFailure(ctx, err)
		c.logger.Warn("request failed",
			zap.String("method", req.Method),
			zap.String("url", req.URL),
			zap.Error(err),
		)
	} else {
		resp = newResponse(raw, decodeOptions{
			head:  req.Method == http.MethodHead,
			text:  q.accept == MediaTypeCSV,
			shape: q.shape,
		})
		c.logger.Debug("request",
			zap.String("method", req.Method),
			zap.String("url", req.URL),
			zap.Int("status", resp.Status),
			zap.Duration("duration", elapsed),
		)
	}
	metrics.ClientRequests.WithLabelValues(req.Method, strconv.Itoa(resp.Status)).Inc()
	metrics.ClientRequestDuration.WithLabelValues(req.Method).Observe(elapsed.Seconds())

	if q.throw && resp.Error != nil {
		return resp, resp.Error
	}
	return resp, nil
}
