// Package rest is an in-memory server that speaks the PostgREST protocol.
//
// Relations live in a Store, seeded from a yaml fixture (LoadFixture) or
// copied from a live PostgreSQL database (LoadFromDB). Each relation is
// exposed at /name; the schema is picked with the Accept-Profile header for
// reads and Content-Profile for writes, and defaults to public. Functions
// registered with Store.AddFunction are exposed at /rpc/name.
//
// Query parameters control projection, filtering, pagination, and ordering:
//
//	Parameter                      | Description
//	-------------------------------|------------------------------------------------
//	?select=a,b:c,t(*)             | Columns, aliases, casts, aggregates and embeds
//	?select=t!fk!inner(*)          | Embed through a named relationship, dropping parents without children
//	?order=col.desc.nullslast      | Order results
//	?t.order=col                   | Order an embedded resource
//	?limit=10&offset=20            | Pagination, also per embed (t.limit)
//	?col=eq.val                    | Filter; see below for operators
//	?col=not.in.(a,b)              | Negated filter
//	?or=(a.eq.x,and(b.lt.1,c.is.null)) | Logical trees
//	?t.col=eq.val                  | Filter an embedded resource
//
// Operators: eq, neq, gt, gte, lt, lte, like, ilike, match, imatch, in, is,
// isdistinct, cs, cd, ov, fts, plfts, phfts, wfts, with the (any) and (all)
// modifiers on the comparison operators.
//
// Embedded resources are resolved through the foreign keys of the relations
// in the same schema. A key declared on the parent embeds one object (or
// null); a key declared on the embedded relation embeds an array, unless the
// key column is unique. Several matching keys are reported with PGRST201 and
// the candidate list; no matching key is PGRST200.
//
// Headers:
//
//	Header                                     | Description
//	-------------------------------------------|----------------------------------------
//	Prefer: return=representation              | Return modified rows in the response body
//	Prefer: count=exact                        | Total count in the Content-Range header
//	Prefer: resolution=merge-duplicates        | Upsert on the primary key or on_conflict columns
//	Prefer: missing=default                    | Leave columns= keys absent from a row unset
//	Accept: application/vnd.pgrst.object+json  | Return a single object, PGRST116 otherwise
//	Accept: text/csv                           | CSV body
//	Accept: application/geo+json               | GeoJSON FeatureCollection
//
// Example usage:
//
//	store, err := rest.LoadFixtureFile("testdata/chat.yaml")
//	if err != nil {
//		log.Fatal(err)
//	}
//	srv := rest.NewServer(store, rest.WithLogger(logger))
//	log.Fatal(srv.Start(ctx, ":3000"))
package rest
