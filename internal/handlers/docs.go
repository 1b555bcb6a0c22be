package handlers

import (
	"encoding/json"
	"net/http"
)

func queryParam(name, description string, schema map[string]interface{}) map[string]interface{} {
	return map[string]interface{}{
		"name":        name,
		"in":          "query",
		"description": description,
		"required":    false,
		"schema":      schema,
	}
}

func filterParams() []map[string]interface{} {
	csv := func(values ...string) map[string]interface{} {
		return map[string]interface{}{
			"type":  "array",
			"items": map[string]interface{}{"type": "string", "enum": values},
		}
	}
	return []map[string]interface{}{
		queryParam("year", "Restrict to years (2011, 2012 or codes 0, 1); repeat or comma-separate", csv("2011", "2012", "0", "1")),
		queryParam("weather", "Restrict to weather conditions; repeat or comma-separate", csv("clear", "cloudy", "rain_snow", "1", "2", "3")),
		queryParam("holiday", "Restrict to working days or holidays; repeat or comma-separate", csv("working_day", "holiday", "0", "1")),
		queryParam("category", "Restrict to rental volume categories; repeat or comma-separate", csv("low", "medium", "high")),
	}
}

func jsonResponse(description string, schema map[string]interface{}) map[string]interface{} {
	return map[string]interface{}{
		"description": description,
		"content": map[string]interface{}{
			"application/json": map[string]interface{}{"schema": schema},
		},
	}
}

func ref(name string) map[string]interface{} {
	return map[string]interface{}{"$ref": "#/components/schemas/" + name}
}

func arrayOf(name string) map[string]interface{} {
	return map[string]interface{}{"type": "array", "items": ref(name)}
}

// OpenAPISpec returns the OpenAPI 3.0 specification for the rental analytics API
func OpenAPISpec(w http.ResponseWriter, r *http.Request) {
	badRequest := jsonResponse("Invalid filter value", ref("ErrorResponse"))

	spec := map[string]interface{}{
		"openapi": "3.0.0",
		"info": map[string]interface{}{
			"title":       "Rental Analytics API",
			"description": "Filtered monthly, weather and holiday rental means with Low/Medium/High volume categories",
			"version":     "1.0.0",
		},
		"servers": []map[string]string{
			{"url": "http://localhost:8080", "description": "Local development server"},
		},
		"paths": map[string]interface{}{
			"/api/rentals/analysis": map[string]interface{}{
				"get": map[string]interface{}{
					"summary":     "Analyze a selection",
					"description": "Monthly trend, weather effect, holiday effect and category summary for the filtered records. An empty selection result sets no_data.",
					"parameters":  filterParams(),
					"responses": map[string]interface{}{
						"200": jsonResponse("Analysis result", ref("Analysis")),
						"400": badRequest,
					},
				},
			},
			"/api/rentals/records": map[string]interface{}{
				"get": map[string]interface{}{
					"summary":     "List categorized records",
					"description": "Filtered records with their rental category, paginated",
					"parameters": append(filterParams(),
						queryParam("page", "Page number (default: 1)", map[string]interface{}{"type": "integer", "default": 1}),
						queryParam("limit", "Records per page (default: 100, max: 1000)", map[string]interface{}{"type": "integer", "default": DefaultPageLimit}),
					),
					"responses": map[string]interface{}{
						"200": jsonResponse("Page of records", map[string]interface{}{
							"type": "object",
							"properties": map[string]interface{}{
								"data":        arrayOf("CategorizedRecord"),
								"total":       map[string]string{"type": "integer"},
								"page":        map[string]string{"type": "integer"},
								"limit":       map[string]string{"type": "integer"},
								"total_pages": map[string]string{"type": "integer"},
							},
						}),
						"400": badRequest,
					},
				},
			},
			"/api/rentals/records/{day_index}": map[string]interface{}{
				"get": map[string]interface{}{
					"summary": "Get one record",
					"parameters": []map[string]interface{}{
						{
							"name":     "day_index",
							"in":       "path",
							"required": true,
							"schema":   map[string]string{"type": "integer"},
						},
					},
					"responses": map[string]interface{}{
						"200": jsonResponse("Categorized record", ref("CategorizedRecord")),
						"404": jsonResponse("No record with this day index", ref("ErrorResponse")),
					},
				},
			},
			"/api/rentals/insights": map[string]interface{}{
				"get": map[string]interface{}{
					"summary":     "Derived insights",
					"description": "Textual observations derived from the aggregates of a selection",
					"parameters":  filterParams(),
					"responses": map[string]interface{}{
						"200": jsonResponse("Insights", map[string]interface{}{
							"type": "object",
							"properties": map[string]interface{}{
								"insights": arrayOf("Insight"),
								"no_data":  map[string]string{"type": "boolean"},
								"message":  map[string]string{"type": "string"},
							},
						}),
						"400": badRequest,
					},
				},
			},
			"/api/rentals/reload": map[string]interface{}{
				"post": map[string]interface{}{
					"summary":     "Clear cached results",
					"description": "Drops memoized selections so the next request re-reads the record source",
					"responses": map[string]interface{}{
						"200": jsonResponse("Cache cleared", map[string]interface{}{"type": "object"}),
					},
				},
			},
			"/health": map[string]interface{}{
				"get": map[string]interface{}{
					"summary":     "Health check",
					"description": "Reports whether the record source is reachable",
					"responses": map[string]interface{}{
						"200": jsonResponse("Healthy", map[string]interface{}{"type": "object"}),
						"503": jsonResponse("Record source unavailable", map[string]interface{}{"type": "object"}),
					},
				},
			},
			"/metrics": map[string]interface{}{
				"get": map[string]interface{}{
					"summary":     "Prometheus metrics",
					"description": "Prometheus metrics endpoint for monitoring",
					"responses": map[string]interface{}{
						"200": map[string]interface{}{
							"description": "Prometheus metrics in text format",
							"content": map[string]interface{}{
								"text/plain": map[string]interface{}{
									"schema": map[string]string{"type": "string"},
								},
							},
						},
					},
				},
			},
		},
		"components": map[string]interface{}{
			"schemas": map[string]interface{}{
				"CategorizedRecord": map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"day_index":       map[string]string{"type": "integer"},
						"date":            map[string]string{"type": "string"},
						"year":            map[string]string{"type": "string"},
						"month":           map[string]string{"type": "integer"},
						"weather":         map[string]string{"type": "string"},
						"holiday":         map[string]string{"type": "string"},
						"rental_count":    map[string]string{"type": "integer"},
						"rental_category": map[string]string{"type": "string"},
					},
				},
				"Analysis": map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"selection":        map[string]string{"type": "object"},
						"total_records":    map[string]string{"type": "integer"},
						"filtered_records": map[string]string{"type": "integer"},
						"monthly_trend":    map[string]string{"type": "array"},
						"weather_effect":   map[string]string{"type": "array"},
						"holiday_effect":   map[string]string{"type": "array"},
						"category_summary": map[string]string{"type": "array"},
						"records":          arrayOf("CategorizedRecord"),
						"no_data":          map[string]string{"type": "boolean"},
						"message":          map[string]string{"type": "string"},
					},
				},
				"Insight": map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"topic": map[string]string{"type": "string"},
						"text":  map[string]string{"type": "string"},
					},
				},
				"ErrorResponse": map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"error":      map[string]string{"type": "string"},
						"message":    map[string]string{"type": "string"},
						"code":       map[string]string{"type": "integer"},
						"request_id": map[string]string{"type": "string"},
					},
				},
			},
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(spec)
}
