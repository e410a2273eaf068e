package api

// buildOpenAPIDoc returns an OpenAPI 3.1 document covering every endpoint.
func buildOpenAPIDoc() map[string]any {
	errorResponse := map[string]any{
		"content": map[string]any{
			"application/json": map[string]any{
				"schema": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"error": map[string]any{"type": "string"},
					},
				},
			},
		},
	}

	paths := map[string]any{
		"/recognize": map[string]any{
			"post": map[string]any{
				"operationId": "recognize",
				"summary":     "Run layout analysis and recognition on uploaded pages",
				"requestBody": map[string]any{
					"required": true,
					"content": map[string]any{
						"multipart/form-data": map[string]any{
							"schema": map[string]any{
								"type": "object",
								"properties": map[string]any{
									"images": map[string]any{
										"type":  "array",
										"items": map[string]any{"type": "string", "format": "binary"},
									},
									"pagexml": map[string]any{"type": "string", "format": "binary"},
									"options": map[string]any{
										"type":  "array",
										"items": map[string]any{"type": "string"},
									},
								},
							},
						},
					},
				},
				"responses": map[string]any{
					"200": map[string]any{
						"description": "Recognition result",
						"content": map[string]any{
							"application/xml": map[string]any{},
						},
					},
					"400": withDescription(errorResponse, "Invalid request or tool failure"),
					"504": withDescription(errorResponse, "Job still running after request timeout"),
				},
				"security": []any{map[string]any{"BearerAuth": []string{}}},
			},
		},
		"/version": map[string]any{
			"get": map[string]any{
				"operationId": "version",
				"summary":     "Recognition tool version",
				"responses": map[string]any{
					"200": map[string]any{"description": "Tool version text"},
					"500": withDescription(errorResponse, "Tool invocation failed"),
				},
				"security": []any{map[string]any{"BearerAuth": []string{}}},
			},
		},
		"/help": map[string]any{
			"get": map[string]any{
				"operationId": "help",
				"summary":     "Recognition tool usage text",
				"responses": map[string]any{
					"200": map[string]any{"description": "Tool usage text"},
					"500": withDescription(errorResponse, "Tool invocation failed"),
				},
				"security": []any{map[string]any{"BearerAuth": []string{}}},
			},
		},
		"/healthz": map[string]any{
			"get": map[string]any{
				"operationId": "healthz",
				"summary":     "Service health",
				"responses": map[string]any{
					"200": map[string]any{"description": "Health status"},
				},
			},
		},
		"/jobs/{jobID}": map[string]any{
			"get": map[string]any{
				"operationId": "getJob",
				"summary":     "Recorded outcome of a completed job",
				"parameters": []any{
					map[string]any{
						"name":     "jobID",
						"in":       "path",
						"required": true,
						"schema":   map[string]any{"type": "string"},
					},
				},
				"responses": map[string]any{
					"200": map[string]any{"description": "Job record"},
					"404": withDescription(errorResponse, "Unknown job"),
				},
				"security": []any{map[string]any{"BearerAuth": []string{}}},
			},
		},
		"/events": map[string]any{
			"get": map[string]any{
				"operationId": "events",
				"summary":     "Job lifecycle event stream",
				"responses": map[string]any{
					"200": map[string]any{
						"description": "Server-sent event stream",
						"content": map[string]any{
							"text/event-stream": map[string]any{},
						},
					},
				},
				"security": []any{map[string]any{"BearerAuth": []string{}}},
			},
		},
	}

	return map[string]any{
		"openapi": "3.1.0",
		"info": map[string]any{
			"title":   "Recognize Gateway",
			"version": "1.0",
		},
		"paths": paths,
		"components": map[string]any{
			"securitySchemes": map[string]any{
				"BearerAuth": map[string]any{
					"type":   "http",
					"scheme": "bearer",
				},
			},
		},
	}
}

func withDescription(resp map[string]any, description string) map[string]any {
	out := make(map[string]any, len(resp)+1)
	for k, v := range resp {
		out[k] = v
	}
	out["description"] = description
	return out
}
