package main

import (
	"fmt"

	"github.com/goccy/go-json"
)

// Tool argument types. Pointer fields are optional.

type yearInput struct {
	Year *int `json:"year,omitempty"`
}

type mediaForYearInput struct {
	Year *int    `json:"year,omitempty"`
	Type *string `json:"type,omitempty"`
}

type mediaRecentInput struct {
	Limit *int `json:"limit,omitempty"`
}

// unmarshalArgs decodes tool arguments; absent arguments leave v untouched.
func unmarshalArgs(args json.RawMessage, v any) error {
	if len(args) == 0 || string(args) == "null" {
		return nil
	}
	if err := json.Unmarshal(args, v); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}
