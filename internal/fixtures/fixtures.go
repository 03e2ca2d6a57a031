// Package fixtures fetches and caches challenge test fixtures from the
// upstream fixtures HTTP service.
package fixtures

import (
	"encoding/json"
	"fmt"
)

// Fixture is a single test case for a challenge.
type Fixture struct {
	ID             string      `json:"id"`
	Name           string      `json:"name"`
	Description    string      `json:"description"`
	Input          interface{} `json:"input"`
	ExpectedOutput interface{} `json:"expected_output"`
	Hidden         bool        `json:"hidden"`
	TimeoutSeconds int         `json:"timeout"`
	GasLimit       int64       `json:"gas_limit"`
}

// rawFixture mirrors the upstream wire shape before defaults are applied;
// pointer/omitted fields let us tell "absent" apart from "zero value".
type rawFixture struct {
	ID             string      `json:"id"`
	Name           *string     `json:"name"`
	Description    *string     `json:"description"`
	Input          interface{} `json:"input"`
	ExpectedOutput interface{} `json:"expected_output"`
	Hidden         *bool       `json:"hidden"`
	TimeoutSeconds *int        `json:"timeout"`
	GasLimit       *int64      `json:"gas_limit"`
}

// marshalFixtures re-serializes parsed fixtures for the on-disk cache,
// preserving every field so a cache round trip is lossless.
func marshalFixtures(fixtures []Fixture) ([]byte, error) {
	return json.Marshal(fixtures)
}

// ParseFixtures parses an upstream JSON array into fixtures, applying the
// field defaults the spec requires. Unknown fields are ignored; a missing
// or empty "id" is rejected per fixture.
func ParseFixtures(data []byte) ([]Fixture, error) {
	var raw []rawFixture
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse fixtures: %w", err)
	}

	out := make([]Fixture, 0, len(raw))
	for i, r := range raw {
		if r.ID == "" {
			return nil, fmt.Errorf("parse fixtures: fixture %d missing id", i)
		}
		f := Fixture{
			ID:             r.ID,
			Name:           "Unnamed test",
			Description:    "",
			Input:          r.Input,
			ExpectedOutput: r.ExpectedOutput,
			Hidden:         false,
			TimeoutSeconds: 30,
			GasLimit:       1_000_000,
		}
		if r.Name != nil {
			f.Name = *r.Name
		}
		if r.Description != nil {
			f.Description = *r.Description
		}
		if r.Hidden != nil {
			f.Hidden = *r.Hidden
		}
		if r.TimeoutSeconds != nil {
			f.TimeoutSeconds = *r.TimeoutSeconds
		}
		if r.GasLimit != nil {
			f.GasLimit = *r.GasLimit
		}
		out = append(out, f)
	}
	return out, nil
}
