package server

import (
	"mime/multipart"
	"net/http"

	"github.com/labstack/echo/v4"

	"coffrefort/pkg/upload"
)

// uploadFile runs the upload pipeline. Authentication happens inside the
// pipeline, after the payload checks. The route is exempt from the global body
// limit; an oversized body reaches the pipeline as a MaxBytesError.
func (s *Server) uploadFile(ctx echo.Context) error {
	req := ctx.Request()

	var (
		form    *multipart.Form
		formErr error
	)
	if req.ContentLength > upload.MaxBodySize {
		formErr = &http.MaxBytesError{Limit: upload.MaxBodySize}
	} else {
		req.Body = http.MaxBytesReader(ctx.Response(), req.Body, upload.MaxBodySize)
		form, formErr = ctx.MultipartForm()
	}
	if form != nil {
		defer func() {
			_ = form.RemoveAll()
		}()
	}

	result, err := s.uploads.Run(req.Context(), upload.Input{
		Form:          form,
		FormErr:       formErr,
		Authorization: req.Header.Get(echo.HeaderAuthorization),
	})
	if err != nil {
		return s.respondError(ctx, err)
	}

	return ctx.JSON(http.StatusCreated, result)
}
