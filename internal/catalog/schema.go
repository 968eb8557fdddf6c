package catalog

import (
	"github.com/google/jsonschema-go/jsonschema"
)

// InputSchema derives the JSON schema for one operation's arguments. The MCP
// surface advertises it per tool; the REST surface embeds the same schema in
// the OpenAPI document.
func InputSchema(op Operation) *jsonschema.Schema {
	properties := make(map[string]*jsonschema.Schema, len(op.Params))
	var required []string
	for _, param := range op.Params {
		properties[param.Name] = paramSchema(param)
		if param.Required {
			required = append(required, param.Name)
		}
	}
	return &jsonschema.Schema{
		Type:       "object",
		Properties: properties,
		Required:   required,
	}
}

func paramSchema(param Param) *jsonschema.Schema {
	schema := &jsonschema.Schema{
		Type:        param.Type,
		Description: param.Description,
	}
	if param.Type == TypeStringArray {
		schema.Type = "array"
		schema.Items = &jsonschema.Schema{Type: "string"}
	}
	if len(param.Enum) > 0 {
		schema.Enum = make([]any, len(param.Enum))
		for i, value := range param.Enum {
			schema.Enum[i] = value
		}
	}
	return schema
}
