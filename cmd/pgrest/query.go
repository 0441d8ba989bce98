package pgrest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/edgeflare/pgrest/pkg/postgrest"
	"github.com/spf13/cobra"
)

type queryFlags struct {
	sel         string
	filters     []string
	order       string
	limit       int
	offset      int
	single      bool
	maybeSingle bool
	count       string
	head        bool
	csv         bool
	headers     map[string]string
}

func (a *app) queryCmd() *cobra.Command {
	var f queryFlags
	cmd := &cobra.Command{
		Use:   "query <relation>",
		Short: "Read rows from a PostgREST server",
		Example: `  pgrest query channels --select 'slug, messages!inner(id)' --filter messages.username=eq.kiwicopple
  pgrest query users --filter status=eq.ONLINE --order username.desc --limit 2 --count exact`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.newClient(f.headers)
			if err != nil {
				return err
			}
			q, err := buildQuery(client.From(args[0]), f)
			if err != nil {
				return err
			}
			resp, err := q.Execute(cmd.Context())
			if err != nil {
				return err
			}
			return printResponse(cmd.OutOrStdout(), cmd.ErrOrStderr(), resp, f.csv)
		},
	}

	fl := cmd.Flags()
	fl.StringVarP(&f.sel, "select", "s", "", "select expression")
	fl.StringArrayVarP(&f.filters, "filter", "F", nil, "filter as column=operator.value, repeatable")
	fl.StringVarP(&f.order, "order", "o", "", "order terms, e.g. id.desc,name.asc.nullslast")
	fl.IntVarP(&f.limit, "limit", "n", 0, "maximum number of rows")
	fl.IntVar(&f.offset, "offset", 0, "rows to skip")
	fl.BoolVar(&f.single, "single", false, "expect exactly one row, returned as an object")
	fl.BoolVar(&f.maybeSingle, "maybe-single", false, "expect at most one row")
	fl.StringVar(&f.count, "count", "", "count algorithm (exact, planned, estimated)")
	fl.BoolVar(&f.head, "head", false, "only report status and count")
	fl.BoolVar(&f.csv, "csv", false, "ask for csv output")
	fl.StringToStringVarP(&f.headers, "header", "H", nil, "extra request header as key=value, repeatable")
	fl.String("url", "", "PostgREST base url")
	fl.String("schema", "", "schema sent as Accept-Profile")
	fl.Bool("retry", false, "retry connection failures and gateway errors")
	a.bind(cmd, "client.url", "url")
	a.bind(cmd, "client.schema", "schema")
	a.bind(cmd, "client.retry.enabled", "retry")
	return cmd
}

func (a *app) newClient(headers map[string]string) (*postgrest.Client, error) {
	cc := a.cfg.Client
	transport := postgrest.NewHTTPTransport(postgrest.HTTPTransportConfig{
		Logger:     a.logger,
		Timeout:    cc.Timeout,
		Retry:      cc.Retry.Enabled,
		MaxRetries: cc.Retry.MaxRetries,
	})
	opts := []postgrest.Option{
		postgrest.WithLogger(a.logger),
		postgrest.WithTransport(transport),
		postgrest.WithHeaders(cc.Headers),
		postgrest.WithHeaders(headers),
	}
	if cc.Schema != "" {
		opts = append(opts, postgrest.WithSchema(cc.Schema))
	}
	return postgrest.NewClient(cc.URL, opts...)
}

func buildQuery(q postgrest.Query, f queryFlags) (postgrest.Query, error) {
	if f.sel != "" || f.count != "" || f.head {
		q = q.Select(f.sel, postgrest.SelectOptions{Count: postgrest.Count(f.count), Head: f.head})
	}
	for _, raw := range f.filters {
		column, expr, ok := strings.Cut(raw, "=")
		op, value, okOp := strings.Cut(expr, ".")
		if !ok || !okOp || column == "" || op == "" {
			return q, fmt.Errorf("invalid filter %q: want column=operator.value", raw)
		}
		q = q.Filter(column, op, value)
	}
	if f.order != "" {
		for _, term := range strings.Split(f.order, ",") {
			column, opts, err := parseOrder(term)
			if err != nil {
				return q, err
			}
			q = q.Order(column, opts)
		}
	}
	switch {
	case f.offset > 0:
		n := f.limit
		if n == 0 {
			return q, fmt.Errorf("--offset requires --limit")
		}
		q = q.Range(f.offset, f.offset+n-1)
	case f.limit > 0:
		q = q.Limit(f.limit)
	}
	switch {
	case f.single:
		q = q.Single()
	case f.maybeSingle:
		q = q.MaybeSingle()
	case f.csv:
		q = q.CSV()
	}
	return q, nil
}

// parseOrder reads column[.asc|.desc][.nullsfirst|.nullslast].
func parseOrder(term string) (string, postgrest.OrderOptions, error) {
	var opts postgrest.OrderOptions
	parts := strings.Split(strings.TrimSpace(term), ".")
	for len(parts) > 1 {
		switch parts[len(parts)-1] {
		case "asc":
		case "desc":
			opts.Descending = true
		case "nullsfirst":
			opts.Nulls = postgrest.NullsFirst
		case "nullslast":
			opts.Nulls = postgrest.NullsLast
		default:
			return strings.Join(parts, "."), opts, nil
		}
		parts = parts[:len(parts)-1]
	}
	if parts[0] == "" {
		return "", opts, fmt.Errorf("invalid order term %q", term)
	}
	return parts[0], opts, nil
}

// printResponse writes the data as indented json, or as text for csv.
func printResponse(out, errOut io.Writer, resp *postgrest.Response, text bool) error {
	if resp.Count != nil {
		fmt.Fprintf(errOut, "count: %d\n", *resp.Count)
	}
	if resp.Error != nil {
		if resp.Status == 0 {
			return resp.Error
		}
		return fmt.Errorf("%d %s: %w", resp.Status, resp.StatusText, resp.Error)
	}

	if text {
		s, err := postgrest.As[string](resp)
		if err != nil {
			return err
		}
		_, err = io.WriteString(out, s)
		return err
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, resp.Data, "", "  "); err != nil {
		return err
	}
	buf.WriteByte('\n')
	_, err := buf.WriteTo(out)
	return err
}
