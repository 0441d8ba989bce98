// Package selectexpr scans, parses and re-serializes PostgREST select
// expressions.
//
// A select expression lists the columns of a resource and the related
// resources (embeds) to pull in through foreign keys:
//
//	Expression                                         | Meaning
//	---------------------------------------------------|------------------------------------------
//	id,name                                            | two columns
//	*                                                  | all columns of the current level
//	full_name:name                                     | column renamed in the response
//	age::text                                          | column cast to text
//	count(), amount.sum()                              | aggregates
//	data->settings->>theme                             | json path
//	channels(id,slug)                                  | embed related rows
//	author:users!posts_author_id_fkey(*)               | aliased embed with a constraint hint
//	messages!channel_id!inner(id)                      | column hint and inner join
//	users!left(status)                                 | forced outer join
//	...users(status)                                   | spread a to-one embed into the parent
//
// Parse produces a Tree of *Field and *Embed nodes. Tree.String writes the
// canonical form, which parses back to an equal tree.
//
// Relationship hints are not resolved here. The server reports unknown or
// ambiguous relationships.
package selectexpr
