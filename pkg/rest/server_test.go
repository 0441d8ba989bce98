package rest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/edgeflare/pgrest/pkg/httputil/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*Server, *Store) {
	t.Helper()
	store, err := LoadFixtureFile("testdata/chat.yaml")
	require.NoError(t, err)
	return NewServer(store), store
}

func do(t *testing.T, srv http.Handler, method, target, body string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Code string `json:"code"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body.Code
}

func TestServerEmbeds(t *testing.T) {
	tests := []struct {
		name   string
		target string
		want   string
	}{
		{
			name:   "inner join drops parents without a match",
			target: "/booking?select=id,hotel!inner(id,name)",
			want: `[
				{"id":1,"hotel":{"id":1,"name":"Sunset Resort"}},
				{"id":2,"hotel":{"id":1,"name":"Sunset Resort"}},
				{"id":3,"hotel":{"id":2,"name":"Mountain View Hotel"}},
				{"id":5,"hotel":{"id":3,"name":"Beachfront Inn"}},
				{"id":6,"hotel":{"id":1,"name":"Sunset Resort"}},
				{"id":8,"hotel":{"id":4,"name":null}}
			]`,
		},
		{
			name:   "left join keeps parents with a null embed",
			target: "/booking?select=id,hotel(name)&id=in.(4,5)",
			want:   `[{"id":4,"hotel":null},{"id":5,"hotel":{"name":"Beachfront Inn"}}]`,
		},
		// messages.channel_id is not null, so the embed only comes back empty
		// through an embed filter. The join type decides whether the parent
		// stays; the to-one shape is an object or null either way.
		{
			name:   "left join on a mandatory to-one keeps the parent with null",
			target: "/messages?select=id,channels!left(slug)&channels.slug=eq.nope&id=eq.1",
			want:   `[{"id":1,"channels":null}]`,
		},
		{
			name:   "inner join on a mandatory to-one drops the parent",
			target: "/messages?select=id,channels!inner(slug)&channels.slug=eq.nope&id=eq.1",
			want:   `[]`,
		},
		{
			name:   "nested inner joins",
			target: "/messages?select=channels!inner(*,channel_details!inner(*))&limit=1",
			want: `[{"channels":{"id":1,"data":null,"slug":"public",
				"channel_details":{"id":1,"details":"Details for public channel"}}}]`,
		},
		{
			name:   "one to many",
			target: "/users?select=messages!left(id)&username=eq.supabot",
			want:   `[{"messages":[{"id":1},{"id":2},{"id":4}]}]`,
		},
		{
			name:   "one to many without rows is an empty array",
			target: "/users?select=user_profiles!left(username)&username=eq.dragarcia",
			want:   `[{"user_profiles":[]}]`,
		},
		{
			name:   "unique reverse key embeds an object",
			target: "/channels?select=slug,channel_details(details)&order=id",
			want: `[
				{"slug":"public","channel_details":{"details":"Details for public channel"}},
				{"slug":"random","channel_details":{"details":"Details for random channel"}},
				{"slug":"other","channel_details":null}
			]`,
		},
		{
			name:   "constraint name hints",
			target: "/best_friends?select=id,first_user:users!best_friends_first_user_fkey(username),third_wheel:users!best_friends_third_wheel_fkey(username)",
			want: `[
				{"id":1,"first_user":{"username":"supabot"},"third_wheel":{"username":"awailas"}},
				{"id":2,"first_user":{"username":"supabot"},"third_wheel":null}
			]`,
		},
		{
			name:   "column hint",
			target: "/best_friends?select=users!first_user(username)&limit=1",
			want:   `[{"users":{"username":"supabot"}}]`,
		},
		{
			name:   "constraint as target",
			target: "/users?select=first_friend_of:best_friends_first_user_fkey(id),second_friend_of:best_friends_second_user_fkey(id)&username=eq.supabot",
			want:   `[{"first_friend_of":[{"id":1},{"id":2}],"second_friend_of":[]}]`,
		},
		{
			name:   "column as target",
			target: "/user_profiles?select=user:username(status)&id=eq.1",
			want:   `[{"user":{"status":"ONLINE"}}]`,
		},
		{
			name:   "view through a declared key",
			target: "/user_profiles?select=updatable_view(*)&id=eq.1",
			want:   `[{"updatable_view":{"username":"supabot","non_updatable_column":1}}]`,
		},
		{
			name:   "inner join with a hint on a to-many embed",
			target: "/channels?select=id,messages!channel_id!inner(id,username)&messages.username=eq.kiwicopple",
			want:   `[{"id":2,"messages":[{"id":3,"username":"kiwicopple"}]}]`,
		},
		{
			name:   "embed order and limit",
			target: "/channels?select=id,messages(id)&messages.order=id.desc&messages.limit=1&id=eq.2",
			want:   `[{"id":2,"messages":[{"id":3}]}]`,
		},
		{
			name:   "spread",
			target: "/messages?select=id,...channels(channel:slug)&id=eq.1",
			want:   `[{"id":1,"channel":"public"}]`,
		},
		{
			name:   "nested reverse and forward",
			target: "/users?select=username,best_friends!first_user(id,second:users!second_user(username))&username=eq.supabot",
			want: `[{"username":"supabot","best_friends":[
				{"id":1,"second":{"username":"kiwicopple"}},
				{"id":2,"second":{"username":"awailas"}}
			]}]`,
		},
	}

	srv, _ := newTestServer(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, srv, http.MethodGet, tt.target, "", nil)
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			assert.JSONEq(t, tt.want, rec.Body.String())
		})
	}
}

func TestServerRelationshipErrors(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := do(t, srv, http.MethodGet, "/best_friends?select=users(*)", "", nil)
	assert.Equal(t, http.StatusMultipleChoices, rec.Code)

	var ambiguous struct {
		Code    string `json:"code"`
		Hint    string `json:"hint"`
		Details []struct {
			Cardinality  string `json:"cardinality"`
			Relationship string `json:"relationship"`
		} `json:"details"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ambiguous))
	assert.Equal(t, "PGRST201", ambiguous.Code)
	assert.Len(t, ambiguous.Details, 3)
	assert.Equal(t, "many-to-one", ambiguous.Details[0].Cardinality)
	assert.Equal(t, "best_friends_first_user_fkey using best_friends(first_user) and users(username)", ambiguous.Details[0].Relationship)
	assert.Contains(t, ambiguous.Hint, "'users!best_friends_second_user_fkey'")

	rec = do(t, srv, http.MethodGet, "/hotel?select=channels(*)", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "PGRST200", errorCode(t, rec))

	rec = do(t, srv, http.MethodGet, "/booking?select=hotel!nope(*)", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "PGRST200", errorCode(t, rec))

	rec = do(t, srv, http.MethodGet, "/booking?select=id&hotel.id=eq.1", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "PGRST108", errorCode(t, rec))
}

func TestServerFilters(t *testing.T) {
	tests := []struct {
		query string
		want  []string
	}{
		{"status=eq.ONLINE", []string{"supabot", "awailas", "dragarcia"}},
		{"status=neq.ONLINE", []string{"kiwicopple"}},
		{"username=in.(supabot,awailas)", []string{"supabot", "awailas"}},
		{"username=not.in.(supabot,awailas)", []string{"kiwicopple", "dragarcia"}},
		{"username=like.*a*", []string{"supabot", "awailas", "dragarcia"}},
		{"username=ilike.SUPA%25", []string{"supabot"}},
		{"username=match.%5Ed", []string{"dragarcia"}},
		{"username=gt.kiwicopple", []string{"supabot"}},
		{"username=like(any).%7Ba*,k*%7D", []string{"kiwicopple", "awailas"}},
		{"catchphrase=fts.cat", []string{"supabot", "kiwicopple"}},
		{"catchphrase=fts.cat%20%26%20fat", []string{"supabot"}},
		{"data=is.null", []string{"supabot", "kiwicopple", "awailas", "dragarcia"}},
		{"data=not.is.null", nil},
		{"or=(status.eq.OFFLINE,username.eq.dragarcia)", []string{"kiwicopple", "dragarcia"}},
		{"not.and=(status.eq.ONLINE,username.neq.supabot)", []string{"supabot", "kiwicopple"}},
		{"or=(username.eq.awailas,and(status.eq.ONLINE,catchphrase.fts.fat))", []string{"supabot", "awailas", "dragarcia"}},
	}

	srv, _ := newTestServer(t)
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			rec := do(t, srv, http.MethodGet, "/users?select=username&"+tt.query, "", nil)
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

			var rows []struct {
				Username string `json:"username"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rows))
			var got []string
			for _, r := range rows {
				got = append(got, r.Username)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestServerJSONPaths(t *testing.T) {
	store, err := LoadFixture(strings.NewReader(`
tables:
  - name: todos
    primary_keys: [id]
    columns:
      - {name: id, data_type: int4}
      - {name: meta, data_type: jsonb, is_nullable: true}
    rows:
      - {id: 1, meta: {prio: 2, tags: [a, b], owner: {name: ada}}}
      - {id: 2, meta: {prio: 5, tags: [c]}}
`))
	require.NoError(t, err)
	srv := NewServer(store)

	tests := []struct {
		target string
		want   string
	}{
		{"/todos?select=id,prio:meta->prio", `[{"id":1,"prio":2},{"id":2,"prio":5}]`},
		{"/todos?select=id,owner:meta->owner->>name&id=eq.1", `[{"id":1,"owner":"ada"}]`},
		{"/todos?select=id,tag:meta->tags->0&id=eq.1", `[{"id":1,"tag":"a"}]`},
		{"/todos?select=id&meta->>prio=eq.2", `[{"id":1}]`},
		{"/todos?select=id&meta->prio=gt.3", `[{"id":2}]`},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			rec := do(t, srv, http.MethodGet, tt.target, "", nil)
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			assert.JSONEq(t, tt.want, rec.Body.String())
		})
	}
}

func TestServerCORS(t *testing.T) {
	store, err := LoadFixtureFile("testdata/chat.yaml")
	require.NoError(t, err)

	rec := do(t, NewServer(store, WithCORS(&middleware.CORSOptions{AllowedOrigins: []string{"http://app.test"}})),
		http.MethodOptions, "/users", "", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://app.test", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = do(t, NewServer(store, WithoutCORS()), http.MethodOptions, "/users", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))

	rec = do(t, NewServer(store, WithoutCORS()), http.MethodGet, "/users?select=username&limit=1", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestServerModifiers(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := do(t, srv, http.MethodGet, "/messages?select=id&order=username.desc,id.asc", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[{"id":1},{"id":2},{"id":4},{"id":3}]`, rec.Body.String())

	rec = do(t, srv, http.MethodGet, "/booking?select=id,hotel_id&order=hotel_id.desc.nullslast,id&limit=3", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[{"id":8,"hotel_id":4},{"id":5,"hotel_id":3},{"id":3,"hotel_id":2}]`, rec.Body.String())

	rec = do(t, srv, http.MethodGet, "/users?select=username&limit=2&offset=1", "", map[string]string{"Prefer": "count=exact"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "1-2/4", rec.Header().Get("Content-Range"))
	assert.JSONEq(t, `[{"username":"kiwicopple"},{"username":"awailas"}]`, rec.Body.String())

	rec = do(t, srv, http.MethodGet, "/users?username=eq.nobody", "", nil)
	assert.Equal(t, "*/*", rec.Header().Get("Content-Range"))
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = do(t, srv, http.MethodGet, "/messages?select=id::text,channel_id::int&id=eq.1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[{"id":"1","channel_id":1}]`, rec.Body.String())

	rec = do(t, srv, http.MethodGet, "/messages?select=username,count()", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[{"username":"supabot","count":3},{"username":"kiwicopple","count":1}]`, rec.Body.String())

	rec = do(t, srv, http.MethodGet, "/booking?select=hotel_id.max(),total:id.sum()", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[{"max":4,"total":36}]`, rec.Body.String())
}

func TestServerMediaTypes(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := do(t, srv, http.MethodGet, "/users?select=username&username=eq.supabot", "", map[string]string{
		"Accept": "application/vnd.pgrst.object+json",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"username":"supabot"}`, rec.Body.String())

	rec = do(t, srv, http.MethodGet, "/users", "", map[string]string{
		"Accept": "application/vnd.pgrst.object+json",
	})
	assert.Equal(t, http.StatusNotAcceptable, rec.Code)
	assert.JSONEq(t, `{"code":"PGRST116","message":"JSON object requested, multiple (or no) rows returned",
		"details":"The result contains 4 rows","hint":null}`, rec.Body.String())

	rec = do(t, srv, http.MethodGet, "/channels?select=id,slug&order=id", "", map[string]string{"Accept": "text/csv"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "id,slug\n1,public\n2,random\n3,other\n", rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/csv")

	rec = do(t, srv, http.MethodGet, "/hotel?select=id&id=eq.1", "", map[string]string{"Accept": "application/geo+json"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"type":"FeatureCollection","features":[{"type":"Feature","geometry":null,"properties":{"id":1}}]}`, rec.Body.String())

	rec = do(t, srv, http.MethodGet, "/users", "", map[string]string{"Accept": "application/xml"})
	assert.Equal(t, http.StatusNotAcceptable, rec.Code)
	assert.Equal(t, "PGRST107", errorCode(t, rec))

	rec = do(t, srv, http.MethodHead, "/users", "", map[string]string{"Prefer": "count=exact"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())
	assert.Equal(t, "0-3/4", rec.Header().Get("Content-Range"))
}

func TestServerRequestErrors(t *testing.T) {
	tests := []struct {
		name   string
		method string
		target string
		header map[string]string
		status int
		code   string
	}{
		{"unknown table", http.MethodGet, "/nope", nil, http.StatusNotFound, "PGRST205"},
		{"unknown column", http.MethodGet, "/users?select=nope", nil, http.StatusBadRequest, "42703"},
		{"unknown filter column", http.MethodGet, "/users?nope=eq.1", nil, http.StatusBadRequest, "42703"},
		{"bad select", http.MethodGet, "/users?select=messages(", nil, http.StatusBadRequest, "PGRST100"},
		{"bad operator", http.MethodGet, "/users?username=foo.bar", nil, http.StatusBadRequest, "PGRST100"},
		{"bad limit", http.MethodGet, "/users?limit=x", nil, http.StatusBadRequest, "PGRST100"},
		{"unknown cast", http.MethodGet, "/users?select=username::nope", nil, http.StatusBadRequest, "42704"},
		{"unknown schema", http.MethodGet, "/users", map[string]string{"Accept-Profile": "other"}, http.StatusNotAcceptable, "PGRST106"},
		{"unknown function", http.MethodPost, "/rpc/nope", nil, http.StatusNotFound, "PGRST202"},
	}

	srv, _ := newTestServer(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, srv, tt.method, tt.target, "", tt.header)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, tt.code, errorCode(t, rec))
		})
	}

	rec := do(t, srv, http.MethodPut, "/users", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestServerInsert(t *testing.T) {
	srv, store := newTestServer(t)
	repr := map[string]string{"Prefer": "return=representation"}

	rec := do(t, srv, http.MethodPost, "/channels", `{"slug":"new"}`, repr)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.JSONEq(t, `[{"id":4,"data":null,"slug":"new"}]`, rec.Body.String())

	rec = do(t, srv, http.MethodPost, "/channels", `[{"slug":"a"},{"slug":"b"}]`, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Empty(t, rec.Body.String())

	rows, err := store.Rows("public", "channels")
	require.NoError(t, err)
	assert.Len(t, rows, 6)
	assert.Equal(t, 6.0, rows[5]["id"])

	rec = do(t, srv, http.MethodPost, "/channels", `{"id":1,"slug":"dup"}`, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "23505", errorCode(t, rec))

	rec = do(t, srv, http.MethodPost, "/channels?select=id,slug", `{"id":1,"slug":"renamed"}`, map[string]string{
		"Prefer": "return=representation,resolution=merge-duplicates",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.JSONEq(t, `[{"id":1,"slug":"renamed"}]`, rec.Body.String())

	rec = do(t, srv, http.MethodPost, "/channels", `{"id":2,"slug":"ignored"}`, map[string]string{
		"Prefer": "return=representation,resolution=ignore-duplicates",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = do(t, srv, http.MethodPost, "/messages", `{"message":"orphan"}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "23502", errorCode(t, rec))

	rec = do(t, srv, http.MethodPost, "/channels", `{"nope":1}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "42703", errorCode(t, rec))

	rec = do(t, srv, http.MethodPost, "/channels", `{"slug":`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "PGRST102", errorCode(t, rec))

	// a failed bulk insert writes nothing
	rec = do(t, srv, http.MethodPost, "/channels", `[{"id":10,"slug":"x"},{"id":1,"slug":"y"}]`, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	rows, err = store.Rows("public", "channels")
	require.NoError(t, err)
	assert.Len(t, rows, 6)
}

func TestServerInsertColumns(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := do(t, srv, http.MethodPost, "/messages?columns=%22username%22,%22channel_id%22&select=id,username,channel_id,message",
		`[{"username":"awailas","channel_id":1,"message":"dropped"},{"username":"dragarcia","channel_id":3}]`,
		map[string]string{"Prefer": "return=representation"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.JSONEq(t, `[
		{"id":5,"username":"awailas","channel_id":1,"message":null},
		{"id":6,"username":"dragarcia","channel_id":3,"message":null}
	]`, rec.Body.String())
}

func TestServerUpdateDelete(t *testing.T) {
	srv, store := newTestServer(t)

	rec := do(t, srv, http.MethodPatch, "/messages?id=eq.3&select=id,message", `{"message":"edited"}`, map[string]string{
		"Prefer": "return=representation",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `[{"id":3,"message":"edited"}]`, rec.Body.String())

	rec = do(t, srv, http.MethodPatch, "/messages?username=eq.supabot", `{"channel_id":3}`, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, srv, http.MethodGet, "/channels?select=id,messages(id)&id=eq.3", "", nil)
	assert.JSONEq(t, `[{"id":3,"messages":[{"id":1},{"id":2},{"id":4}]}]`, rec.Body.String())

	rec = do(t, srv, http.MethodPatch, "/messages?id=eq.1", `{"username":null}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "23502", errorCode(t, rec))

	rec = do(t, srv, http.MethodPatch, "/messages?id=eq.1", `[{"message":"x"}]`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "PGRST102", errorCode(t, rec))

	rec = do(t, srv, http.MethodDelete, "/booking?hotel_id=is.null&select=id", "", map[string]string{
		"Prefer": "return=representation",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[{"id":4},{"id":7}]`, rec.Body.String())

	rec = do(t, srv, http.MethodDelete, "/booking?id=eq.8", "", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rows, err := store.Rows("public", "booking")
	require.NoError(t, err)
	assert.Len(t, rows, 5)
}

func TestServerRPC(t *testing.T) {
	srv, store := newTestServer(t)
	store.AddFunction("", "get_status", Function{
		Params: []string{"name_param"},
		Call: func(args map[string]any) (any, error) {
			rows, err := store.Rows("public", "users")
			if err != nil {
				return nil, err
			}
			for _, r := range rows {
				if r["username"] == args["name_param"] {
					return r["status"], nil
				}
			}
			return nil, nil
		},
	})
	store.AddFunction("", "channel_messages", Function{
		Params: []string{"channel"},
		Call: func(args map[string]any) (any, error) {
			rows, err := store.Rows("public", "messages")
			if err != nil {
				return nil, err
			}
			var out []Row
			for _, r := range rows {
				if equalValues(r["channel_id"], args["channel"]) {
					out = append(out, r)
				}
			}
			return out, nil
		},
	})

	rec := do(t, srv, http.MethodGet, "/rpc/get_status?name_param=supabot", "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `"ONLINE"`, rec.Body.String())

	rec = do(t, srv, http.MethodPost, "/rpc/get_status", `{"name_param":"kiwicopple"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `"OFFLINE"`, rec.Body.String())

	rec = do(t, srv, http.MethodPost, "/rpc/channel_messages?select=id&order=id.desc", `{"channel":2}`, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `[{"id":3},{"id":2}]`, rec.Body.String())

	rec = do(t, srv, http.MethodGet, "/rpc/channel_messages?channel=2&username=eq.supabot&select=id", "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `[{"id":2}]`, rec.Body.String())
}

func TestServerTables(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := do(t, srv, http.MethodGet, "/", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var tables []struct {
		Schema string `json:"schema"`
		Name   string `json:"name"`
		Type   string `json:"type"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tables))
	require.Len(t, tables, 9)
	assert.Equal(t, "best_friends", tables[0].Name)
	assert.Equal(t, "public", tables[0].Schema)
}

func TestServerOpenAPI(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := do(t, srv, http.MethodGet, "/", "", map[string]string{"Accept": "application/openapi+json"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/openapi+json; charset=utf-8", rec.Header().Get("Content-Type"))

	var doc struct {
		Swagger     string                    `json:"swagger"`
		Paths       map[string]map[string]any `json:"paths"`
		Definitions map[string]struct {
			Properties map[string]struct {
				Type        string `json:"type"`
				Format      string `json:"format"`
				Description string `json:"description"`
			} `json:"properties"`
			Required []string `json:"required"`
		} `json:"definitions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	assert.Equal(t, "2.0", doc.Swagger)
	assert.Len(t, doc.Definitions, 9)
	assert.Contains(t, doc.Paths["/messages"], "post")
	assert.NotContains(t, doc.Paths["/updatable_view"], "post")

	channelID := doc.Definitions["messages"].Properties["channel_id"]
	assert.Equal(t, "integer", channelID.Type)
	assert.Equal(t, "int8", channelID.Format)
	assert.Contains(t, channelID.Description, "This is a Foreign Key to `channels.id`.")
	assert.Contains(t, doc.Definitions["messages"].Properties["id"].Description, "<pk/>")
	assert.Equal(t, []string{"id", "username", "channel_id"}, doc.Definitions["messages"].Required)
}
