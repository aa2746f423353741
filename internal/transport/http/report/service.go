package report

import (
	"context"
	"encoding/base64"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"cleancity-server-go/internal/app/session"
	"cleancity-server-go/internal/domain/geo"
	"cleancity-server-go/internal/domain/image"
	"cleancity-server-go/internal/domain/lifecycle"
	"cleancity-server-go/internal/domain/report/aggregate"
	"cleancity-server-go/internal/domain/report/service"
	"cleancity-server-go/internal/platform/errors"
	"cleancity-server-go/internal/platform/logging"
	httptransport "cleancity-server-go/internal/transport/http"
)

const maxUploadBytes = 16 << 20

// Service exposes the citizen-facing reporting flow over HTTP.
type Service struct {
	sessions   *session.Manager
	compressor *image.Compressor
	tracker    *service.Tracker
	verifier   *service.Verifier
	logger     *logging.Logger
}

// NewService wires the reporting transport.
func NewService(sessions *session.Manager, compressor *image.Compressor,
	tracker *service.Tracker, verifier *service.Verifier, logger *logging.Logger) (*Service, error) {
	if sessions == nil || compressor == nil || tracker == nil || verifier == nil {
		return nil, errors.New(errors.KindConfig, "report.new", "all dependencies are required")
	}
	return &Service{
		sessions:   sessions,
		compressor: compressor,
		tracker:    tracker,
		verifier:   verifier,
		logger:     logger,
	}, nil
}

// Register mounts the reporting routes.
func (s *Service) Register(ctx context.Context, router *gin.RouterGroup) error {
	router.POST("/sessions", s.handleCreateSession)
	router.GET("/sessions/:id", s.handleGetSession)
	router.POST("/sessions/:id/open-form", s.handleOpenForm)
	router.POST("/sessions/:id/open-track", s.handleOpenTrack)
	router.POST("/sessions/:id/reset", s.handleReset)
	router.POST("/sessions/:id/image", s.handleImage)
	router.POST("/sessions/:id/location", s.handleLocation)
	router.POST("/sessions/:id/details", s.handleDetails)
	router.POST("/sessions/:id/submit", s.handleSubmit)
	router.POST("/sessions/:id/verify/confirm", s.handleVerifyConfirm)
	router.POST("/sessions/:id/verify/deny", s.handleVerifyDeny)

	router.GET("/reports/:id/status", s.handleStatus)
	router.GET("/verify", s.handleVerifyLink)

	if s.logger != nil {
		s.logger.Info("report routes registered")
	}
	return nil
}

// handleCreateSession opens a fresh reporting session on the welcome screen.
func (s *Service) handleCreateSession(c *gin.Context) {
	_, machine := s.sessions.Create()
	httptransport.RespondSuccess(c, http.StatusCreated, machine.Snapshot(), "session created")
}

func (s *Service) handleGetSession(c *gin.Context) {
	machine, err := s.machine(c)
	if err != nil {
		return
	}
	httptransport.RespondSuccess(c, http.StatusOK, machine.Snapshot(), "")
}

func (s *Service) handleOpenForm(c *gin.Context) {
	machine, err := s.machine(c)
	if err != nil {
		return
	}
	if err := machine.OpenForm(); err != nil {
		httptransport.RespondDomainError(c, err)
		return
	}
	httptransport.RespondSuccess(c, http.StatusOK, machine.Snapshot(), "")
}

func (s *Service) handleOpenTrack(c *gin.Context) {
	machine, err := s.machine(c)
	if err != nil {
		return
	}
	if err := machine.OpenTrack(); err != nil {
		httptransport.RespondDomainError(c, err)
		return
	}
	httptransport.RespondSuccess(c, http.StatusOK, machine.Snapshot(), "")
}

func (s *Service) handleReset(c *gin.Context) {
	machine, err := s.machine(c)
	if err != nil {
		return
	}
	if err := machine.Reset(); err != nil {
		httptransport.RespondDomainError(c, err)
		return
	}
	httptransport.RespondSuccess(c, http.StatusOK, machine.Snapshot(), "")
}

type imageRequest struct {
	Data     string `json:"data"`
	MimeType string `json:"mime_type"`
}

// handleImage accepts the photo either as a multipart "photo" file or as a
// JSON body with base64 data, compresses it and attaches it to the draft.
func (s *Service) handleImage(c *gin.Context) {
	machine, err := s.machine(c)
	if err != nil {
		return
	}

	captured, err := readCapturedImage(c)
	if err != nil {
		httptransport.RespondError(c, http.StatusBadRequest, err.Error(), nil)
		return
	}

	payload, err := s.compressor.Compress(c.Request.Context(), captured)
	if err != nil {
		httptransport.RespondError(c, http.StatusUnprocessableEntity, "could not process the photo", nil)
		return
	}

	if err := machine.AttachImage(payload); err != nil {
		httptransport.RespondDomainError(c, err)
		return
	}

	httptransport.RespondSuccess(c, http.StatusOK, gin.H{
		"quality": payload.Quality,
		"width":   payload.Width,
		"height":  payload.Height,
		"bytes":   payload.TransportSize(),
	}, "photo attached")
}

func readCapturedImage(c *gin.Context) (image.CapturedImage, error) {
	if file, err := c.FormFile("photo"); err == nil {
		reader, err := file.Open()
		if err != nil {
			return image.CapturedImage{}, errors.Wrap(errors.KindTransport, "report.image", "failed to open upload", err)
		}
		defer reader.Close()
		data, err := io.ReadAll(io.LimitReader(reader, maxUploadBytes))
		if err != nil {
			return image.CapturedImage{}, errors.Wrap(errors.KindTransport, "report.image", "failed to read upload", err)
		}
		return image.CapturedImage{Data: data, MimeType: file.Header.Get("Content-Type")}, nil
	}

	var req imageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return image.CapturedImage{}, errors.New(errors.KindTransport, "report.image", "expected a photo upload or base64 body")
	}
	data, err := base64.StdEncoding.DecodeString(req.Data)
	if err != nil {
		return image.CapturedImage{}, errors.New(errors.KindTransport, "report.image", "photo data is not valid base64")
	}
	return image.CapturedImage{Data: data, MimeType: req.MimeType}, nil
}

type locationRequest struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Failure   string   `json:"failure"`
}

// handleLocation stores a captured GPS fix, or translates a client-reported
// acquisition failure into its typed user-facing message.
func (s *Service) handleLocation(c *gin.Context) {
	machine, err := s.machine(c)
	if err != nil {
		return
	}

	var req locationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httptransport.RespondError(c, http.StatusBadRequest, "invalid location body", nil)
		return
	}

	if req.Failure != "" {
		failure := geo.ParseFailure(req.Failure)
		httptransport.RespondError(c, http.StatusUnprocessableEntity, failure.Message(), gin.H{
			"kind": string(failure.Kind),
		})
		return
	}

	if req.Latitude == nil || req.Longitude == nil {
		httptransport.RespondError(c, http.StatusBadRequest, "latitude and longitude are required", nil)
		return
	}

	loc := aggregate.Location{Latitude: *req.Latitude, Longitude: *req.Longitude}
	if err := geo.Validate(loc); err != nil {
		httptransport.RespondError(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	if err := machine.SetLocation(loc); err != nil {
		httptransport.RespondDomainError(c, err)
		return
	}
	httptransport.RespondSuccess(c, http.StatusOK, gin.H{"map_link": loc.MapLink()}, "location captured")
}

type detailsRequest struct {
	Details string `json:"details"`
}

func (s *Service) handleDetails(c *gin.Context) {
	machine, err := s.machine(c)
	if err != nil {
		return
	}
	var req detailsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httptransport.RespondError(c, http.StatusBadRequest, "invalid details body", nil)
		return
	}
	if err := machine.SetDetails(req.Details); err != nil {
		httptransport.RespondDomainError(c, err)
		return
	}
	httptransport.RespondSuccess(c, http.StatusOK, nil, "details saved")
}

// handleSubmit kicks off the submission. The response reflects the loading
// screen; clients observe progress via the session snapshot or the event
// stream.
func (s *Service) handleSubmit(c *gin.Context) {
	machine, err := s.machine(c)
	if err != nil {
		return
	}
	if err := machine.Submit(context.WithoutCancel(c.Request.Context())); err != nil {
		httptransport.RespondDomainError(c, err)
		return
	}
	httptransport.RespondSuccess(c, http.StatusAccepted, machine.Snapshot(), "report submitted")
}

func (s *Service) handleVerifyConfirm(c *gin.Context) {
	machine, err := s.machine(c)
	if err != nil {
		return
	}
	record, err := machine.ConfirmVerify(c.Request.Context())
	if err != nil {
		httptransport.RespondDomainError(c, err)
		return
	}
	httptransport.RespondSuccess(c, http.StatusOK, record, "thank you for confirming")
}

func (s *Service) handleVerifyDeny(c *gin.Context) {
	machine, err := s.machine(c)
	if err != nil {
		return
	}
	if err := machine.DenyVerify(); err != nil {
		httptransport.RespondDomainError(c, err)
		return
	}
	httptransport.RespondSuccess(c, http.StatusOK, machine.Snapshot(), "")
}

// handleStatus resolves a tracking ID to its progress vector.
func (s *Service) handleStatus(c *gin.Context) {
	progress, err := s.tracker.Track(c.Request.Context(), c.Param("id"))
	if err != nil {
		httptransport.RespondDomainError(c, err)
		return
	}
	httptransport.RespondSuccess(c, http.StatusOK, progress, "")
}

// handleVerifyLink is the deep-link entry point from a delivered report. It
// resolves the report and opens a verify session for it.
func (s *Service) handleVerifyLink(c *gin.Context) {
	rawID := c.Query("report")
	record, err := s.verifier.Lookup(c.Request.Context(), rawID)
	if err != nil {
		httptransport.RespondDomainError(c, err)
		return
	}

	_, machine := s.sessions.CreateVerify(record.ID)
	httptransport.RespondSuccess(c, http.StatusOK, machine.Snapshot(), "")
}

// machine resolves the session from the path, writing the error response
// itself on failure.
func (s *Service) machine(c *gin.Context) (*lifecycle.Machine, error) {
	machine, err := s.sessions.Get(c.Param("id"))
	if err != nil {
		httptransport.RespondError(c, http.StatusNotFound, "session not found", nil)
		return nil, err
	}
	return machine, nil
}
