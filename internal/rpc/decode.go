package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
)

// Route-local decode targets. Required strings are pointers so a missing
// key can be told apart from an empty value.

// publicKeyQuery is the query of GET /auth_token_challenge.
type publicKeyQuery struct {
	PublicKey *string `json:"public_key"`
}

// publicKeyBody is the body of POST /block_list and POST /claim_auth_token.
type publicKeyBody struct {
	PublicKey *string `json:"public_key"`
}

// fileBody is the body of POST /files.
type fileBody struct {
	File *string `json:"file"`
}

var (
	errNullDocument  = errors.New("null document")
	errTrailingData  = errors.New("trailing data after json value")
	errMissingField  = errors.New("missing required field")
	errMissingQuery  = errors.New("missing query options")
	errEmptyDocument = errors.New("empty document")
	errNotPath       = errors.New("endpoint is not an absolute path")
)

// decodeStrict decodes a single JSON value into v, rejecting unknown
// fields, type mismatches, overflows, null documents and trailing data.
func decodeStrict(data string, v any) error {
	trimmed := strings.TrimSpace(data)
	if trimmed == "" {
		return errEmptyDocument
	}
	if trimmed == "null" {
		return errNullDocument
	}

	dec := json.NewDecoder(strings.NewReader(trimmed))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return errTrailingData
	}
	return nil
}

// decodeQuery decodes the JSON query string of an endpoint. A query that
// is not JSON as sent is percent-decoded first; '+' is kept literally.
func decodeQuery(rawQuery string, v any) error {
	if rawQuery == "" {
		return errMissingQuery
	}
	query := rawQuery
	if !json.Valid([]byte(rawQuery)) {
		unescaped, err := url.PathUnescape(rawQuery)
		if err != nil {
			return fmt.Errorf("unescape query: %w", err)
		}
		query = unescaped
	}
	return decodeStrict(query, v)
}

// required dereferences a required string field.
func required(field string, s *string) (string, error) {
	if s == nil {
		return "", fmt.Errorf("%w: %s", errMissingField, field)
	}
	return *s, nil
}
