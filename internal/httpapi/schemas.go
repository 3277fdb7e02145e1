package httpapi

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

const (
	schemaItemCreate     = "item-create.json"
	schemaHistoryUpsert  = "history-upsert.json"
	schemaCategoryCreate = "category-create.json"
	schemaMetaSet        = "meta-set.json"
	schemaPushSubscribe  = "push-subscribe.json"
)

// Unknown fields are allowed everywhere: browsers send extras such as
// expirationTime on push subscriptions.
var schemaSources = map[string]string{
	schemaItemCreate: `{
		"type": "object",
		"required": ["name"],
		"properties": {
			"name": {"type": "string", "minLength": 1},
			"category": {"type": "string"},
			"quantity": {"type": "string"}
		}
	}`,
	schemaHistoryUpsert: `{
		"type": "object",
		"required": ["name"],
		"properties": {
			"name": {"type": "string", "minLength": 1},
			"category": {"type": "string"}
		}
	}`,
	schemaCategoryCreate: `{
		"type": "object",
		"required": ["name"],
		"properties": {
			"name": {"type": "string", "minLength": 1},
			"order": {"type": "integer"}
		}
	}`,
	schemaMetaSet: `{
		"type": "object",
		"required": ["key", "value"],
		"properties": {
			"key": {"type": "string", "minLength": 1}
		}
	}`,
	schemaPushSubscribe: `{
		"type": "object",
		"required": ["endpoint", "keys"],
		"properties": {
			"endpoint": {"type": "string", "minLength": 1},
			"keys": {
				"type": "object",
				"required": ["p256dh", "auth"],
				"properties": {
					"p256dh": {"type": "string", "minLength": 1},
					"auth": {"type": "string", "minLength": 1}
				}
			}
		}
	}`,
}

type requestSchemas struct {
	compiled map[string]*jsonschema.Schema
}

func mustCompileSchemas() *requestSchemas {
	compiler := jsonschema.NewCompiler()
	for name, source := range schemaSources {
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(source))
		if err != nil {
			panic(fmt.Sprintf("parsing schema %s: %v", name, err))
		}
		if err := compiler.AddResource(name, doc); err != nil {
			panic(fmt.Sprintf("adding schema %s: %v", name, err))
		}
	}
	compiled := make(map[string]*jsonschema.Schema, len(schemaSources))
	for name := range schemaSources {
		schema, err := compiler.Compile(name)
		if err != nil {
			panic(fmt.Sprintf("compiling schema %s: %v", name, err))
		}
		compiled[name] = schema
	}
	return &requestSchemas{compiled: compiled}
}

func (s *requestSchemas) validate(name string, body []byte) error {
	schema, ok := s.compiled[name]
	if !ok {
		return fmt.Errorf("unknown schema %s", name)
	}
	instance, err := jsonschema.UnmarshalJSON(bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("invalid json body")
	}
	if err := schema.Validate(instance); err != nil {
		return err
	}
	return nil
}
