package rest

import (
	"fmt"
	"net/http"
)

// apiError is a PostgREST error body. Details and Hint are usually strings;
// ambiguous embeds report the candidate relationships as a list.
type apiError struct {
	status  int
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details"`
	Hint    any    `json:"hint"`
}

func (e *apiError) Error() string {
	return e.Code + ": " + e.Message
}

func errTableNotFound(schemaName, name string) *apiError {
	return &apiError{
		status:  http.StatusNotFound,
		Code:    "PGRST205",
		Message: fmt.Sprintf("Could not find the table '%s.%s' in the schema cache", schemaName, name),
	}
}

func errFunctionNotFound(schemaName, name string) *apiError {
	return &apiError{
		status:  http.StatusNotFound,
		Code:    "PGRST202",
		Message: fmt.Sprintf("Could not find the function %s.%s in the schema cache", schemaName, name),
	}
}

func errInvalidSchema(schemaName string) *apiError {
	return &apiError{
		status:  http.StatusNotAcceptable,
		Code:    "PGRST106",
		Message: "The schema must be one of the following: " + schemaName,
	}
}

func errParse(what, msg string) *apiError {
	return &apiError{
		status:  http.StatusBadRequest,
		Code:    "PGRST100",
		Message: fmt.Sprintf("\"failed to parse %s parameter (%s)\"", what, msg),
		Details: msg,
	}
}

func errNoRelationship(schemaName, parent, target string) *apiError {
	return &apiError{
		status:  http.StatusBadRequest,
		Code:    "PGRST200",
		Message: fmt.Sprintf("Could not find a relationship between '%s' and '%s' in the schema cache", parent, target),
		Details: fmt.Sprintf("Searched for a foreign key relationship between '%s' and '%s' in the schema '%s', but no matches were found.", parent, target, schemaName),
	}
}

type relationshipDetail struct {
	Cardinality  string `json:"cardinality"`
	Embedding    string `json:"embedding"`
	Relationship string `json:"relationship"`
}

func errAmbiguous(parent, target string, candidates []relationship) *apiError {
	details := make([]relationshipDetail, len(candidates))
	hint := fmt.Sprintf("Try changing '%s' to one of the following: ", target)
	for i, c := range candidates {
		details[i] = relationshipDetail{
			Cardinality:  c.cardinality(),
			Embedding:    parent + " with " + c.target.Name,
			Relationship: fmt.Sprintf("%s using %s(%s) and %s(%s)", c.fk.Name, c.fkTable(), c.fk.Column, c.fk.ReferencedTable, c.fk.ReferencedColumn),
		}
		if i > 0 {
			hint += ", "
		}
		hint += fmt.Sprintf("'%s!%s'", c.target.Name, c.fk.Name)
	}
	hint += ". Find the desired relationship in the 'details' key."
	return &apiError{
		status:  http.StatusMultipleChoices,
		Code:    "PGRST201",
		Message: fmt.Sprintf("Could not embed because more than one relationship was found for '%s' and '%s'", parent, target),
		Details: details,
		Hint:    hint,
	}
}

func errSingular(n int) *apiError {
	return &apiError{
		status:  http.StatusNotAcceptable,
		Code:    "PGRST116",
		Message: "JSON object requested, multiple (or no) rows returned",
		Details: fmt.Sprintf("The result contains %d rows", n),
	}
}

func errColumn(table, column string) *apiError {
	return &apiError{
		status:  http.StatusBadRequest,
		Code:    "42703",
		Message: fmt.Sprintf("column %s.%s does not exist", table, column),
	}
}

func errType(name string) *apiError {
	return &apiError{
		status:  http.StatusBadRequest,
		Code:    "42704",
		Message: fmt.Sprintf("type \"%s\" does not exist", name),
	}
}

func errCast(value any, typ string) *apiError {
	return &apiError{
		status:  http.StatusBadRequest,
		Code:    "22P02",
		Message: fmt.Sprintf("invalid input syntax for type %s: \"%v\"", typ, value),
	}
}

func errUnique(constraint, column string, value any) *apiError {
	return &apiError{
		status:  http.StatusConflict,
		Code:    "23505",
		Message: fmt.Sprintf("duplicate key value violates unique constraint \"%s\"", constraint),
		Details: fmt.Sprintf("Key (%s)=(%v) already exists.", column, value),
	}
}

func errNotNull(table, column string) *apiError {
	return &apiError{
		status:  http.StatusBadRequest,
		Code:    "23502",
		Message: fmt.Sprintf("null value in column \"%s\" of relation \"%s\" violates not-null constraint", column, table),
	}
}

func errBody(msg string) *apiError {
	return &apiError{
		status:  http.StatusBadRequest,
		Code:    "PGRST102",
		Message: msg,
	}
}
