package server

import (
	"fmt"
	"html/template"
	"net/http"
	"path/filepath"

	"github.com/labstack/echo/v4"

	"coffrefort/pkg/log"
)

func (s *Server) serveSwaggerUI(ctx echo.Context) error {
	tmplPath := filepath.Join(s.webDir, "swagger-ui.html")
	tmpl, err := template.ParseFiles(tmplPath)
	if err != nil {
		log.Error().Err(err).Str("template_path", tmplPath).Msg("Failed to load template")
		return ctx.String(http.StatusInternalServerError, fmt.Sprintf("Failed to load template: %v", err))
	}

	data := struct {
		Title       string
		SwaggerPath string
		Version     string
	}{
		Title:       "Coffre-fort API Documentation",
		SwaggerPath: "/openapi.yml",
		Version:     s.version,
	}

	ctx.Response().Header().Set(echo.HeaderContentType, echo.MIMETextHTMLCharsetUTF8)
	ctx.Response().WriteHeader(http.StatusOK)
	return tmpl.Execute(ctx.Response().Writer, data)
}

func (s *Server) serveOpenAPISpec(ctx echo.Context) error {
	return ctx.File(filepath.Join(s.webDir, "openapi.yml"))
}
