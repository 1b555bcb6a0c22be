package handlers

import (
	"html/template"
	"net/http"
)

// OpenAPIPath is where OpenAPISpec is mounted
const OpenAPIPath = "/api/docs"

var swaggerPage = template.Must(template.New("swagger").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <title>{{.Title}}</title>
    <link rel="stylesheet" type="text/css" href="https://unpkg.com/swagger-ui-dist@5.10.0/swagger-ui.css">
    <style>body { margin: 0; }</style>
</head>
<body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5.10.0/swagger-ui-bundle.js"></script>
    <script>
        window.onload = function() {
            window.ui = SwaggerUIBundle({
                url: "{{.SpecURL}}",
                dom_id: "#swagger-ui",
                deepLinking: true,
                presets: [SwaggerUIBundle.presets.apis]
            });
        };
    </script>
</body>
</html>`))

type swaggerPageData struct {
	Title   string
	SpecURL string
}

// SwaggerUI renders the interactive documentation page for OpenAPISpec
func SwaggerUI(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := swaggerPage.Execute(w, swaggerPageData{
		Title:   "Rental Analytics API",
		SpecURL: OpenAPIPath,
	}); err != nil {
		http.Error(w, "failed to render documentation", http.StatusInternalServerError)
	}
}
