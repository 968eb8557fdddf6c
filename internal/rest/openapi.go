package rest

import (
	"encoding/json"
	"net/http"

	"github.com/HumanlyInc/anydb-mcp-service/internal/catalog"
)

// handleOpenAPI serves a machine-readable description of the REST surface for
// client auto-configuration. The document is generated from the same catalog
// that defines the MCP tools, so the two surfaces cannot diverge.
func handleOpenAPI(dispatcher *catalog.Dispatcher) http.HandlerFunc {
	doc, err := json.Marshal(buildOpenAPI(dispatcher))
	return func(w http.ResponseWriter, _ *http.Request) {
		if err != nil {
			http.Error(w, "openapi generation failed", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(doc)
	}
}

func buildOpenAPI(dispatcher *catalog.Dispatcher) map[string]any {
	paths := map[string]any{}
	for _, op := range dispatcher.List() {
		paths["/v1/"+op.Name] = pathItem(op)
	}
	return map[string]any{
		"openapi": "3.1.0",
		"info": map[string]any{
			"title":       "anydb-mcp REST surface",
			"description": "Pass-through operations against the AnyDB platform. Supply AnyDB credentials via X-Api-Key and X-User-Email headers.",
			"version":     "0.1.0",
		},
		"paths": paths,
		"components": map[string]any{
			"schemas": map[string]any{
				"Envelope": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"success": map[string]any{"type": "boolean"},
						"data":    map[string]any{},
						"error":   map[string]any{"type": "string"},
					},
					"required": []string{"success"},
				},
			},
			"securitySchemes": map[string]any{
				"serviceToken": map[string]any{
					"type":   "http",
					"scheme": "bearer",
				},
			},
		},
	}
}

func pathItem(op catalog.Operation) map[string]any {
	responses := map[string]any{
		"200": map[string]any{
			"description": "AnyDB response wrapped in the result envelope",
			"content": map[string]any{
				"application/json": map[string]any{
					"schema": map[string]any{"$ref": "#/components/schemas/Envelope"},
				},
			},
		},
		"400": map[string]any{"description": "Validation or credential error; no backend call was made"},
		"500": map[string]any{"description": "Transport failure or AnyDB error"},
	}

	post := map[string]any{
		"operationId": op.Name,
		"summary":     op.Description,
		"requestBody": map[string]any{
			"content": map[string]any{
				"application/json": map[string]any{
					"schema": catalog.InputSchema(op),
				},
			},
		},
		"responses": responses,
	}

	item := map[string]any{"post": post}
	if op.Name == "download_file" {
		var params []map[string]any
		for _, param := range op.Params {
			params = append(params, map[string]any{
				"name":        param.Name,
				"in":          "query",
				"required":    param.Required,
				"description": param.Description,
				"schema":      map[string]any{"type": "string"},
			})
		}
		item["get"] = map[string]any{
			"operationId": op.Name + "_get",
			"summary":     op.Description + " (302 redirect when redirect=true)",
			"parameters":  params,
			"responses": map[string]any{
				"200": responses["200"],
				"302": map[string]any{"description": "Redirect to the resolved file URL"},
				"400": responses["400"],
				"500": responses["500"],
			},
		}
	}
	return item
}
