package api

// buildOpenAPIDoc describes the status API as an OpenAPI 3.1 document.
func buildOpenAPIDoc(secured bool) map[string]any {
	op := func(id, summary string) map[string]any {
		o := map[string]any{
			"operationId": id,
			"summary":     summary,
			"responses": map[string]any{
				"200": map[string]any{"description": "OK"},
				"401": map[string]any{"description": "Missing or invalid API key"},
			},
		}
		if secured {
			o["security"] = []any{map[string]any{"BearerAuth": []string{}}}
		}
		return o
	}

	doc := map[string]any{
		"openapi": "3.1.0",
		"info": map[string]any{
			"title":   "printbridge status API",
			"version": "1.0",
		},
		"paths": map[string]any{
			"/healthz": map[string]any{"get": map[string]any{
				"operationId": "healthz",
				"summary":     "Liveness and printer link state",
				"responses":   map[string]any{"200": map[string]any{"description": "OK"}},
			}},
			"/status":       map[string]any{"get": op("status", "Printer status, failure counters, intervals and last poll")},
			"/jobs":         map[string]any{"get": op("jobs", "Recent job outcomes from the local journal")},
			"/events":       map[string]any{"get": op("events", "Server-sent event stream of logs, printer and job events")},
			"/openapi.json": map[string]any{"get": op("openapi", "This document")},
		},
	}
	if secured {
		doc["components"] = map[string]any{
			"securitySchemes": map[string]any{
				"BearerAuth": map[string]any{"type": "http", "scheme": "bearer"},
			},
		}
	}
	return doc
}
