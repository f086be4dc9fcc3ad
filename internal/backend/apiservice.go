package backend

import (
	"encoding/base64"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"path/filepath"

	"github.com/jo-hoe/imagestore/internal/core"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

type APIService struct {
	config      *core.ServiceConfig
	coreService *core.CoreService
}

type UploadRequest struct {
	Filename  string   `json:"filename" validate:"required"`
	ImageData string   `json:"image_data" validate:"required"`
	Tags      []string `json:"tags"`
}

type UpdateRequest struct {
	Filename *string `json:"filename"`
	// nil means "leave tags untouched"; an empty slice clears them.
	Tags *[]string `json:"tags"`
}

type TagResponse struct {
	Name string `json:"name"`
}

type ImageResponse struct {
	ID       string        `json:"id"`
	Filename string        `json:"filename"`
	Tags     []TagResponse `json:"tags"`
	URL      *string       `json:"url"`
}

type ListImagesResponse struct {
	Results []ImageResponse `json:"results"`
}

func NewAPIService(config *core.ServiceConfig, coreService *core.CoreService) *APIService {
	return &APIService{
		config:      config,
		coreService: coreService,
	}
}

func (s *APIService) SetRoutes(e *echo.Echo) {
	// Probe route for liveness checks
	e.GET("/probe", func(c echo.Context) error {
		return c.String(http.StatusOK, "API Service is running")
	})

	e.POST("/v1/upload", s.uploadHandler, middleware.BodyLimit(s.config.MaxUploadSize))
	e.GET("/v1/images", s.listImagesHandler)
	e.GET("/v1/images/:id", s.getImageHandler)
	e.PUT("/v1/images/:id", s.updateImageHandler)
	e.GET("/v1/blobs/:id/:filename", s.downloadBlobHandler)
}

func (s *APIService) uploadHandler(c echo.Context) error {
	var request UploadRequest
	if err := c.Bind(&request); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("received invalid request body: %v", err))
	}
	if err := c.Validate(&request); err != nil {
		return err
	}

	payload, err := base64.StdEncoding.DecodeString(request.ImageData)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("image_data is not valid base64: %v", err))
	}

	image, err := s.coreService.Upload(c.Request().Context(), request.Filename, payload, request.Tags)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, toImageResponse(image))
}

func (s *APIService) getImageHandler(c echo.Context) error {
	image, err := s.coreService.GetImageByID(c.Request().Context(), c.Param("id"))
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, toImageResponse(image))
}

func (s *APIService) listImagesHandler(c echo.Context) error {
	images, err := s.coreService.GetAllImages(c.Request().Context())
	if err != nil {
		return mapError(err)
	}

	response := ListImagesResponse{Results: make([]ImageResponse, 0, len(images))}
	for _, image := range images {
		response.Results = append(response.Results, toImageResponse(image))
	}
	return c.JSON(http.StatusOK, response)
}

func (s *APIService) updateImageHandler(c echo.Context) error {
	var request UpdateRequest
	if err := c.Bind(&request); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("received invalid request body: %v", err))
	}

	var tagNames []string
	if request.Tags != nil {
		tagNames = *request.Tags
		if tagNames == nil {
			tagNames = []string{}
		}
	}

	image, err := s.coreService.UpdateImage(c.Request().Context(), c.Param("id"), request.Filename, tagNames)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, toImageResponse(image))
}

// downloadBlobHandler serves the binary payload behind the URLs handed out
// by the filesystem blob store.
func (s *APIService) downloadBlobHandler(c echo.Context) error {
	data, err := s.coreService.GetBlob(c.Request().Context(), c.Param("id"), c.Param("filename"))
	if err != nil {
		return mapError(err)
	}

	contentType := mime.TypeByExtension(filepath.Ext(c.Param("filename")))
	if contentType == "" {
		contentType = echo.MIMEOctetStream
	}
	return c.Blob(http.StatusOK, contentType, data)
}

func toImageResponse(image *core.ResolvedImage) ImageResponse {
	tags := make([]TagResponse, 0, len(image.Image.Tags))
	for _, tag := range image.Image.Tags {
		tags = append(tags, TagResponse{Name: tag.Name})
	}
	return ImageResponse{
		ID:       image.Image.ID,
		Filename: image.Image.Filename,
		Tags:     tags,
		URL:      image.URL,
	}
}

// mapError translates the core error taxonomy into HTTP status codes.
func mapError(err error) error {
	switch {
	case errors.Is(err, core.ErrInvalidInput), errors.Is(err, core.ErrTagResolutionFailed):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, core.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, core.ErrStorageUnavailable):
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
