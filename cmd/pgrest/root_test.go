package pgrest

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/edgeflare/pgrest/pkg/config"
	"github.com/edgeflare/pgrest/pkg/postgrest"
	"github.com/edgeflare/pgrest/pkg/rest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const fixture = "../../pkg/rest/testdata/chat.yaml"

func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	var out, errOut bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append(args, "--log-level", "none"))
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

func TestVersion(t *testing.T) {
	out, _, err := run(t, "--version")
	require.NoError(t, err)
	assert.Equal(t, config.Version+"\n", out)
}

func TestSelectCmd(t *testing.T) {
	out, _, err := run(t, "select", "id, messages!channel_id!inner(id, username), ...users(status)")
	require.NoError(t, err)
	assert.Equal(t, "id\nmessages hint=channel_id join=inner\n  id\n  username\n...users\n  status\n", out)

	out, _, err = run(t, "select", "-f", "json", "id, author:users!left(name)")
	require.NoError(t, err)
	assert.JSONEq(t, `[
		{"type":"field","name":"id"},
		{"type":"embed","target":"users","alias":"author","join":"left","children":[{"type":"field","name":"name"}]}
	]`, out)

	out, _, err = run(t, "select", "--format", "params", "first_user:users!best_friends_first_user_fkey(*)")
	require.NoError(t, err)
	assert.Equal(t, "select=first_user:users!best_friends_first_user_fkey(*)\n", out)

	_, _, err = run(t, "select", "a(b")
	assert.ErrorContains(t, err, `unmatched "("`)

	_, _, err = run(t, "select", "-f", "yaml", "id")
	assert.ErrorContains(t, err, `unknown format "yaml"`)
}

func TestQueryCmd(t *testing.T) {
	store, err := rest.LoadFixtureFile(fixture)
	require.NoError(t, err)
	srv := httptest.NewServer(rest.NewServer(store))
	defer srv.Close()

	out, errOut, err := run(t, "query", "users", "--url", srv.URL,
		"--select", "username",
		"--filter", "status=eq.ONLINE",
		"--order", "username.desc",
		"--limit", "2",
		"--count", "exact",
	)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"username":"supabot"},{"username":"dragarcia"}]`, out)
	assert.Equal(t, "count: 3\n", errOut)

	out, _, err = run(t, "query", "channels", "--url", srv.URL, "-s", "id,slug", "-o", "id", "--csv")
	require.NoError(t, err)
	assert.Equal(t, "id,slug\n1,public\n2,random\n3,other\n", out)

	out, _, err = run(t, "query", "channels", "--url", srv.URL,
		"-s", "slug, messages!inner(id)",
		"-F", "messages.username=eq.kiwicopple",
		"--single",
	)
	require.NoError(t, err)
	assert.JSONEq(t, `{"slug":"random","messages":[{"id":3}]}`, out)

	_, _, err = run(t, "query", "users", "--url", srv.URL, "--select", "nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400 Bad Request")
	var pe *postgrest.Error
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "42703", pe.Code)

	_, _, err = run(t, "query", "users", "--url", srv.URL, "--filter", "status")
	assert.ErrorContains(t, err, "invalid filter")
}

func TestParseOrder(t *testing.T) {
	tests := []struct {
		term   string
		column string
		opts   postgrest.OrderOptions
	}{
		{"id", "id", postgrest.OrderOptions{}},
		{"id.asc", "id", postgrest.OrderOptions{}},
		{"id.desc.nullslast", "id", postgrest.OrderOptions{Descending: true, Nulls: postgrest.NullsLast}},
		{" name.nullsfirst", "name", postgrest.OrderOptions{Nulls: postgrest.NullsFirst}},
		{"data->>rank.desc", "data->>rank", postgrest.OrderOptions{Descending: true}},
	}
	for _, tt := range tests {
		t.Run(tt.term, func(t *testing.T) {
			column, opts, err := parseOrder(tt.term)
			require.NoError(t, err)
			assert.Equal(t, tt.column, column)
			assert.Equal(t, tt.opts, opts)
		})
	}

	_, _, err := parseOrder(".desc")
	assert.Error(t, err)
}

func TestBuildQueryErrors(t *testing.T) {
	client, err := postgrest.NewClient("http://localhost:3000")
	require.NoError(t, err)

	_, err = buildQuery(client.From("users"), queryFlags{offset: 5})
	assert.ErrorContains(t, err, "--offset requires --limit")

	q, err := buildQuery(client.From("users"), queryFlags{offset: 5, limit: 5})
	require.NoError(t, err)
	req, err := q.Build()
	require.NoError(t, err)
	assert.Equal(t, "5", req.Params.Get("offset"))
	assert.Equal(t, "5", req.Params.Get("limit"))
}

func TestMockLoadStore(t *testing.T) {
	a := &app{logger: zap.NewNop(), cfg: &config.Config{}}
	_, _, err := a.loadStore(context.Background())
	assert.ErrorIs(t, err, errNoSource)

	a.cfg.Mock.Fixture = fixture
	store, closeStore, err := a.loadStore(context.Background())
	require.NoError(t, err)
	defer closeStore()
	assert.Len(t, store.Tables(), 9)

	_, _, err = run(t, "mock")
	assert.ErrorIs(t, err, errNoSource)
}

func TestMockCORS(t *testing.T) {
	a := &app{logger: zap.NewNop(), cfg: &config.Config{Mock: config.MockConfig{Fixture: fixture, CORS: true}}}
	store, closeStore, err := a.loadStore(context.Background())
	require.NoError(t, err)
	defer closeStore()

	rec := httptest.NewRecorder()
	a.newServer(store).ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/users", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	a.cfg.Mock.CORS = false
	rec = httptest.NewRecorder()
	a.newServer(store).ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/users", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestNewLogger(t *testing.T) {
	l, err := newLogger("none")
	require.NoError(t, err)
	assert.NotNil(t, l)

	l, err = newLogger("debug")
	require.NoError(t, err)
	assert.True(t, l.Core().Enabled(zap.DebugLevel))

	_, err = newLogger("loud")
	assert.Error(t, err)
}
