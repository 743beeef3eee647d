package api

import (
	"context"
	"errors"
	"mime/multipart"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/avolkhov/relaynode/internal/uploads"
)

// registerUploadRoutes registers the image upload endpoints.
func (s *Server) registerUploadRoutes() {
	if s.options.Uploads == nil {
		return
	}
	store := s.options.Uploads

	huma.Register(s.api, huma.Operation{
		OperationID: "upload-file",
		Method:      http.MethodPost,
		Path:        "/api/uploads",
		Summary:     "Upload",
		Description: "Store an image file; the field name must be 'file'",
		Tags:        []string{"uploads"},
		Security:    withAuth(),
		Errors:      []int{400, 401, 413, 415},
	}, func(ctx context.Context, input *struct {
		RawBody multipart.Form
	}) (*UploadResponse, error) {
		files := input.RawBody.File["file"]
		if len(files) != 1 {
			return nil, huma.Error400BadRequest("Expected exactly one 'file' field")
		}

		f, err := files[0].Open()
		if err != nil {
			return nil, huma.Error400BadRequest("Failed to read upload", err)
		}
		defer f.Close()

		info, err := store.Save(f, files[0].Filename)
		switch {
		case errors.Is(err, uploads.ErrUnsupportedType):
			return nil, huma.Error415UnsupportedMediaType("Only image uploads are accepted", err)
		case errors.Is(err, uploads.ErrTooLarge):
			return nil, huma.NewError(http.StatusRequestEntityTooLarge, "Upload exceeds size limit", err)
		case err != nil:
			return nil, huma.Error500InternalServerError("Failed to store upload", err)
		}

		return &UploadResponse{
			Body: UploadData{
				File: info,
				URL:  "/uploads/" + info.Name,
			},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "list-uploads",
		Method:      http.MethodGet,
		Path:        "/api/uploads",
		Summary:     "List Uploads",
		Description: "List stored uploads, newest first",
		Tags:        []string{"uploads"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(ctx context.Context, input *struct{}) (*UploadListResponse, error) {
		files, err := store.List()
		if err != nil {
			return nil, huma.Error500InternalServerError("Failed to list uploads", err)
		}
		return &UploadListResponse{
			Body: UploadListData{Files: files, Count: len(files)},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "delete-upload",
		Method:      http.MethodDelete,
		Path:        "/api/uploads/{name}",
		Summary:     "Delete Upload",
		Description: "Delete one stored upload by name",
		Tags:        []string{"uploads"},
		Security:    withAuth(),
		Errors:      []int{400, 401, 404},
	}, func(ctx context.Context, input *struct {
		Name string `path:"name" doc:"Stored file name"`
	}) (*struct{}, error) {
		err := store.Delete(input.Name)
		switch {
		case errors.Is(err, uploads.ErrInvalidName):
			return nil, huma.Error400BadRequest("Invalid upload name")
		case errors.Is(err, uploads.ErrNotFound):
			return nil, huma.Error404NotFound("No such upload")
		case err != nil:
			return nil, huma.Error500InternalServerError("Failed to delete upload", err)
		}
		return nil, nil
	})
}
