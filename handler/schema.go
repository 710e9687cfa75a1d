package handler

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const (
	checkoutSchema    = "checkout.json"
	entitlementSchema = "entitlement.json"
	downloadSchema    = "download.json"
)

var schemaSources = map[string]string{
	checkoutSchema: `{
		"type": "object",
		"properties": {
			"type": {"enum": ["one_time", "subscription"]},
			"objectKey": {"type": "string", "maxLength": 512}
		},
		"required": ["type"]
	}`,
	entitlementSchema: `{
		"type": "object",
		"properties": {
			"sessionId": {"type": "string", "minLength": 1, "maxLength": 256}
		},
		"required": ["sessionId"]
	}`,
	downloadSchema: `{
		"type": "object",
		"properties": {
			"token": {"type": "string", "maxLength": 128},
			"key": {"type": "string", "minLength": 1, "maxLength": 512}
		},
		"required": ["key"]
	}`,
}

func compileSchemas() (map[string]*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	for name, src := range schemaSources {
		if err := compiler.AddResource(name, strings.NewReader(src)); err != nil {
			return nil, fmt.Errorf("handler: add schema %s: %w", name, err)
		}
	}
	out := make(map[string]*jsonschema.Schema, len(schemaSources))
	for name := range schemaSources {
		s, err := compiler.Compile(name)
		if err != nil {
			return nil, fmt.Errorf("handler: compile schema %s: %w", name, err)
		}
		out[name] = s
	}
	return out, nil
}

// decodeValidated checks body against the named schema and then decodes it
// into dst.
func (h *Handler) decodeValidated(name string, body []byte, dst any) error {
	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		return fmt.Errorf("handler: unmarshal body: %w", err)
	}
	if err := h.schemas[name].Validate(v); err != nil {
		return fmt.Errorf("handler: body does not match %s: %w", name, err)
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("handler: decode body: %w", err)
	}
	return nil
}
