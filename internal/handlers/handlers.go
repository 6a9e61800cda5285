package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/example/secqr/internal/acquire"
	"github.com/example/secqr/internal/auth"
	"github.com/example/secqr/internal/repository"
	"github.com/example/secqr/internal/scanerror"
	"github.com/example/secqr/internal/usecase"
)

// MaxUploadSize is the default upload limit, 5 MiB.
const MaxUploadSize = acquire.DefaultMaxUploadSize

// multipartOverhead is allowed on top of the image limit for form framing.
const multipartOverhead = 1 << 20

// Dependencies are the collaborators behind the HTTP routes.
type Dependencies struct {
	Decoder    usecase.Decoder
	Reputation usecase.ReputationChecker
	Reporter   *usecase.Reporter
	// ScanHistory persists attempts; nil disables persistence.
	ScanHistory usecase.ScanHistory
	// History answers history queries; nil makes those routes return 404.
	History       *usecase.HistoryUseCase
	Auth          gin.HandlerFunc
	MaxUploadSize int64
	// Camera is the video configuration browsers should request; zero
	// means acquire.DefaultConstraints.
	Camera acquire.Constraints
	Logger *zap.Logger
}

type captureRequest struct {
	Image string `json:"image" binding:"required"`
}

type reportRequest struct {
	URL string `json:"url"`
}

// RegisterRoutes wires the HTTP handlers to the Gin router.
func RegisterRoutes(router *gin.Engine, deps Dependencies) {
	if deps.MaxUploadSize <= 0 {
		deps.MaxUploadSize = MaxUploadSize
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Camera == (acquire.Constraints{}) {
		deps.Camera = acquire.DefaultConstraints()
	}
	if deps.Auth == nil {
		deps.Auth = func(c *gin.Context) { c.Next() }
	}
	h := &handler{deps: deps, logger: deps.Logger.Named("http")}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	api := router.Group("/api")
	api.GET("/camera", h.camera)
	api.POST("/scan/upload", h.scanUpload)
	api.POST("/scan/capture", h.scanCapture)
	api.POST("/report", deps.Auth, h.report)
	api.GET("/scans/:id", deps.Auth, h.getScan)
	api.GET("/metrics", h.metrics)
}

type handler struct {
	deps   Dependencies
	logger *zap.Logger
}

// newScan builds a fresh orchestrator so that each request is its own
// attempt.
func (h *handler) newScan() (*usecase.ScanUseCase, *acquire.Acquirer) {
	var opts []usecase.ScanOption
	if h.deps.ScanHistory != nil {
		opts = append(opts, usecase.WithHistory(h.deps.ScanHistory))
	}
	uc := usecase.NewScanUseCase(h.deps.Decoder, h.deps.Reputation, h.logger, opts...)
	return uc, h.newAcquirer()
}

func (h *handler) newAcquirer() *acquire.Acquirer {
	return acquire.New(nil, h.logger,
		acquire.WithConstraints(h.deps.Camera),
		acquire.WithMaxUploadSize(h.deps.MaxUploadSize))
}

// camera tells a browser client which stream to open before it posts a
// frame to /api/scan/capture.
func (h *handler) camera(c *gin.Context) {
	c.JSON(http.StatusOK, h.newAcquirer().Constraints())
}

func (h *handler) scanUpload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.deps.MaxUploadSize+multipartOverhead)

	file, err := c.FormFile("image")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeScanError(c, "", scanerror.New(scanerror.KindFileTooLarge, ""))
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "image file is required"})
		return
	}

	src, err := file.Open()
	if err != nil {
		writeScanError(c, "", scanerror.Wrap(scanerror.KindFileReadFailed, "", err))
		return
	}
	defer src.Close()

	info := acquire.FileInfo{
		Name: file.Filename,
		MIME: file.Header.Get("Content-Type"),
		Size: file.Size,
	}
	uc, acq := h.newScan()
	defer acq.Close() //nolint:errcheck

	result, err := uc.Run(c.Request.Context(), func(ctx context.Context) (acquire.CapturedImage, error) {
		return acq.Upload(ctx, info, src)
	})
	h.writeScan(c, uc, result, err)
}

func (h *handler) scanCapture(c *gin.Context) {
	var req captureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "image data URL is required"})
		return
	}

	uc, acq := h.newScan()
	defer acq.Close() //nolint:errcheck

	result, err := uc.Run(c.Request.Context(), func(context.Context) (acquire.CapturedImage, error) {
		return acq.ImportFrame(req.Image)
	})
	h.writeScan(c, uc, result, err)
}

func (h *handler) writeScan(c *gin.Context, uc *usecase.ScanUseCase, result *usecase.ScanResult, err error) {
	if err != nil {
		requestID := uc.State().RequestID
		if errors.Is(err, usecase.ErrAttemptSuperseded) {
			c.JSON(http.StatusConflict, gin.H{"request_id": requestID, "error": err.Error()})
			return
		}
		writeScanError(c, requestID, scanerror.From(err))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"request_id":     result.RequestID,
		"classification": result.Classification,
		"url":            result.URL,
		"image": gin.H{
			"source":  result.Image.Source,
			"mime":    result.Image.MIME,
			"encoded": result.Image.Encoded,
			"size":    result.Image.Size,
			"sha1":    result.Image.SHA1,
		},
	})
}

func (h *handler) report(c *gin.Context) {
	var req reportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	subject, _ := auth.GetSubject(c.Request.Context())
	outcome := h.deps.Reporter.ReportAs(c.Request.Context(), subject, req.URL)
	switch {
	case outcome.Succeeded:
		c.JSON(http.StatusOK, outcome)
	case strings.TrimSpace(req.URL) == "":
		c.JSON(http.StatusBadRequest, outcome)
	default:
		c.JSON(http.StatusBadGateway, outcome)
	}
}

func (h *handler) getScan(c *gin.Context) {
	if h.deps.History == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "scan history disabled"})
		return
	}

	requestID := c.Param("id")
	report, err := h.deps.History.GetDuplicateReport(c.Request.Context(), requestID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "result not found"})
		return
	}

	duplicates := make([]gin.H, 0, len(report.Duplicates))
	for _, d := range report.Duplicates {
		duplicates = append(duplicates, renderLog(d))
	}
	body := renderLog(report.Scan)
	body["duplicates"] = duplicates
	c.JSON(http.StatusOK, body)
}

func (h *handler) metrics(c *gin.Context) {
	if h.deps.History == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "scan history disabled"})
		return
	}

	summary, err := h.deps.History.GetMetricsSummary(c.Request.Context())
	if err != nil {
		h.logger.Error("metrics query failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "metrics unavailable"})
		return
	}
	c.JSON(http.StatusOK, summary)
}

func renderLog(log *repository.ScanLog) gin.H {
	return gin.H{
		"request_id":     log.RequestID,
		"source":         log.Source,
		"url":            log.URL,
		"classification": log.Classification,
		"error_kind":     log.ErrorKind,
		"image_sha1":     log.ImageSHA1,
		"image_bytes":    log.ImageBytes,
		"created_at":     log.CreatedAt,
	}
}

func writeScanError(c *gin.Context, requestID string, scanErr *scanerror.Error) {
	body := gin.H{
		"error":   scanErr.Kind,
		"message": scanErr.Message,
	}
	if requestID != "" {
		body["request_id"] = requestID
	}
	c.JSON(StatusForKind(scanErr.Kind), body)
}

// StatusForKind maps a scan failure kind to an HTTP status.
func StatusForKind(kind scanerror.Kind) int {
	switch kind {
	case scanerror.KindInvalidFileType:
		return http.StatusUnsupportedMediaType
	case scanerror.KindFileTooLarge:
		return http.StatusRequestEntityTooLarge
	case scanerror.KindNoCodeDetected:
		return http.StatusUnprocessableEntity
	case scanerror.KindRequestTimeout:
		return http.StatusGatewayTimeout
	case scanerror.KindDecodeFailed, scanerror.KindNetworkError:
		return http.StatusBadGateway
	case scanerror.KindCameraUnavailable:
		return http.StatusConflict
	case scanerror.KindFileReadFailed:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
