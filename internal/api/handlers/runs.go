package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/your-org/visitrack/internal/models"
	"github.com/your-org/visitrack/internal/storage"
	"github.com/your-org/visitrack/pkg/dto"
)

// RunStore is the part of the Postgres store the run handlers use.
type RunStore interface {
	CreateRun(ctx context.Context, r *models.Run) error
	GetRun(ctx context.Context, id uuid.UUID) (*models.Run, error)
	ListRuns(ctx context.Context, venueID uuid.UUID, limit int) ([]models.Run, error)
	FailRun(ctx context.Context, id uuid.UUID, message string, errorCount int) error
	QueryAssociations(ctx context.Context, runID uuid.UUID, f storage.AssociationFilter) ([]models.Association, int, error)
	QueryJourneys(ctx context.Context, runID uuid.UUID, f storage.JourneyFilter) ([]models.Journey, int, error)
}

type RunPublisher interface {
	PublishRun(ctx context.Context, task models.RunTask) error
}

type ReportReader interface {
	OpenReport(ctx context.Context, key string) (io.ReadCloser, error)
}

type RunHandler struct {
	db        RunStore
	publisher RunPublisher
	reports   ReportReader
}

func NewRunHandler(db RunStore, publisher RunPublisher, reports ReportReader) *RunHandler {
	return &RunHandler{db: db, publisher: publisher, reports: reports}
}

// maxCandidateWindowSec caps the per-run candidate window at one day.
const maxCandidateWindowSec = 24 * 60 * 60

func validateOptions(o dto.RunOptions) error {
	for name, v := range map[string]*float64{
		"match_threshold": o.MatchThreshold,
		"outfit_floor":    o.OutfitFloor,
		"ambiguity_gap":   o.AmbiguityGap,
	} {
		if v != nil && (*v < 0 || *v > 1) {
			return fmt.Errorf("%s must be within [0, 1]", name)
		}
	}
	if o.MaxCandidateWindow != nil {
		if w := *o.MaxCandidateWindow; w <= 0 || w > maxCandidateWindowSec {
			return fmt.Errorf("max_candidate_window must be within (0, %d] seconds", maxCandidateWindowSec)
		}
	}
	return nil
}

// Create triggers a run for a venue and time window.
func (h *RunHandler) Create(c *gin.Context) {
	venueID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid venue id"})
		return
	}

	var req dto.CreateRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.From.IsZero() || req.To.IsZero() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "from and to are required"})
		return
	}
	if req.To.Before(req.From) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "to must not be before from"})
		return
	}
	if err := validateOptions(req.Options); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	run := &models.Run{
		VenueID:    venueID,
		WindowFrom: req.From.UTC(),
		WindowTo:   req.To.UTC(),
		Options:    optionsFromDTO(req.Options),
	}
	if err := h.db.CreateRun(c.Request.Context(), run); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	task := models.RunTask{
		RunID:   run.ID,
		VenueID: run.VenueID,
		From:    run.WindowFrom,
		To:      run.WindowTo,
		Options: run.Options,
	}
	if err := h.publisher.PublishRun(c.Request.Context(), task); err != nil {
		slog.Error("failed to enqueue run", "run_id", run.ID, "error", err)
		if ferr := h.db.FailRun(c.Request.Context(), run.ID, "enqueue run: "+err.Error(), 1); ferr != nil {
			slog.Error("failed to mark run failed", "run_id", run.ID, "error", ferr)
		}
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "run queue unavailable"})
		return
	}

	slog.Info("run queued", "run_id", run.ID, "venue_id", venueID, "from", run.WindowFrom, "to", run.WindowTo)
	c.JSON(http.StatusAccepted, runToResponse(run))
}

func (h *RunHandler) List(c *gin.Context) {
	venueID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid venue id"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	runs, err := h.db.ListRuns(c.Request.Context(), venueID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := dto.RunListResponse{Runs: make([]dto.RunResponse, len(runs))}
	for i := range runs {
		resp.Runs[i] = runToResponse(&runs[i])
	}
	c.JSON(http.StatusOK, resp)
}

// loadRun resolves the :id parameter, writing the error response itself.
func (h *RunHandler) loadRun(c *gin.Context) (*models.Run, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid run id"})
		return nil, false
	}
	run, err := h.db.GetRun(c.Request.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return nil, false
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return nil, false
	}
	return run, true
}

func (h *RunHandler) Get(c *gin.Context) {
	run, ok := h.loadRun(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, runToResponse(run))
}

func parseTimeParam(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func parseUUIDParam(s string) (*uuid.UUID, error) {
	if s == "" {
		return nil, nil
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func (h *RunHandler) Associations(c *gin.Context) {
	run, ok := h.loadRun(c)
	if !ok {
		return
	}

	var q dto.AssociationQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	f := storage.AssociationFilter{MinScore: q.MinScore, MaxScore: q.MaxScore, Limit: q.Limit, Offset: q.Offset}
	if q.Decision != "" {
		d := models.Decision(q.Decision)
		if !d.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid decision"})
			return
		}
		f.Decision = &d
	}
	var err error
	if f.CameraID, err = parseUUIDParam(q.Pin); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid pin"})
		return
	}
	if f.From, err = parseTimeParam(q.From); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid 'from' time format (use RFC3339)"})
		return
	}
	if f.To, err = parseTimeParam(q.To); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid 'to' time format (use RFC3339)"})
		return
	}

	assocs, total, err := h.db.QueryAssociations(c.Request.Context(), run.ID, f)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := dto.AssociationListResponse{
		Associations: make([]dto.AssociationResponse, len(assocs)),
		Total:        total,
	}
	for i := range assocs {
		resp.Associations[i] = associationToResponse(&assocs[i])
	}
	c.JSON(http.StatusOK, resp)
}

func (h *RunHandler) Journeys(c *gin.Context) {
	run, ok := h.loadRun(c)
	if !ok {
		return
	}

	var q dto.JourneyQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	f := storage.JourneyFilter{MinConfidence: q.MinConfidence, Limit: q.Limit, Offset: q.Offset}
	if q.Status != "" {
		s := models.JourneyStatus(q.Status)
		if s != models.JourneyCompleted && s != models.JourneyIncomplete {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
			return
		}
		f.Status = &s
	}
	var err error
	if f.EntryPoint, err = parseUUIDParam(q.EntryPoint); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid entry_point"})
		return
	}
	if f.ExitPoint, err = parseUUIDParam(q.ExitPoint); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid exit_point"})
		return
	}

	journeys, total, err := h.db.QueryJourneys(c.Request.Context(), run.ID, f)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := dto.JourneyListResponse{
		Journeys: make([]dto.JourneyResponse, len(journeys)),
		Total:    total,
	}
	for i := range journeys {
		resp.Journeys[i] = journeyToResponse(&journeys[i])
	}
	c.JSON(http.StatusOK, resp)
}

// Report streams the stored audit report of a completed run.
func (h *RunHandler) Report(c *gin.Context) {
	run, ok := h.loadRun(c)
	if !ok {
		return
	}
	if run.ReportKey == "" || h.reports == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "report not available"})
		return
	}

	rc, err := h.reports.OpenReport(c.Request.Context(), run.ReportKey)
	if errors.Is(err, storage.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "report not available"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	defer rc.Close()

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="run-%s.json"`, run.ID))
	c.DataFromReader(http.StatusOK, -1, "application/json", rc, nil)
}
