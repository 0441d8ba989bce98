// Package postgrest is a client for PostgREST servers.
//
// Queries are immutable values built fluently from a Client:
//
//	c, _ := postgrest.NewClient("http://localhost:3000")
//	resp, err := c.From("channels").
//		Select("id, messages!channel_id!inner(id, username)").
//		Eq("slug", "public").
//		Order("id", postgrest.OrderOptions{Descending: true}).
//		Limit(10).
//		Execute(ctx)
//
// The select expression is compiled by package selectexpr; syntax errors are
// reported by Build and Execute before anything is sent. Once a request is on
// the wire every failure is carried in Response.Error, unless ThrowOnError
// was set.
package postgrest
