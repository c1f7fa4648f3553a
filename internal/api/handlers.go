package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Skufu/medassist/internal/dashboard"
	"github.com/Skufu/medassist/internal/diagnosis"
	"github.com/Skufu/medassist/internal/imaging"
	apperrors "github.com/Skufu/medassist/pkg/errors"
)

type handler struct {
	ctrl *dashboard.Controller
}

type symptomRequest struct {
	Symptom string `json:"symptom" binding:"required"`
}

type scoreRequest struct {
	Symptoms []string `json:"symptoms"`
}

type tabRequest struct {
	Tab string `json:"tab" binding:"required"`
}

type diagnosisResponse struct {
	Symptoms    diagnosis.PatientSymptoms   `json:"symptoms"`
	Predictions []diagnosis.ScoredCondition `json:"predictions"`
}

func (h *handler) listConditions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"conditions": h.ctrl.Catalog().Conditions()})
}

func (h *handler) getCondition(c *gin.Context) {
	raw := c.Param("id")
	id, err := strconv.Atoi(raw)
	if err != nil {
		writeError(c, apperrors.NewNotFoundError(fmt.Sprintf("condition %q not found", raw)))
		return
	}
	cond, ok := h.ctrl.Catalog().Condition(id)
	if !ok {
		writeError(c, apperrors.NewNotFoundError(fmt.Sprintf("condition %d not found", id)))
		return
	}
	c.JSON(http.StatusOK, cond)
}

func (h *handler) suggestedSymptoms(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"symptoms": h.ctrl.Catalog().SuggestedSymptoms()})
}

func (h *handler) getPatient(c *gin.Context) {
	c.JSON(http.StatusOK, h.ctrl.State().Patient)
}

func (h *handler) updatePatient(c *gin.Context) {
	var payload dashboard.Profile
	if err := c.ShouldBindJSON(&payload); err != nil {
		badRequest(c, err)
		return
	}
	state, err := h.ctrl.UpdateProfile(payload)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, state.Patient)
}

func (h *handler) addSymptom(c *gin.Context) {
	var payload symptomRequest
	if err := c.ShouldBindJSON(&payload); err != nil {
		badRequest(c, err)
		return
	}
	state, err := h.ctrl.AddSymptom(payload.Symptom)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, state.Patient)
}

// removeSymptom takes the symptom from the query string so free text
// containing '/' can be removed.
func (h *handler) removeSymptom(c *gin.Context) {
	symptom := c.Query("symptom")
	if strings.TrimSpace(symptom) == "" {
		writeError(c, apperrors.NewValidationError("missing_symptom", "query parameter \"symptom\" is required"))
		return
	}
	state := h.ctrl.RemoveSymptom(symptom)
	c.JSON(http.StatusOK, state.Patient)
}

func (h *handler) diagnose(c *gin.Context) {
	c.JSON(http.StatusOK, diagnosisResponse{
		Symptoms:    h.ctrl.State().Patient.Symptoms,
		Predictions: h.ctrl.Diagnose(),
	})
}

// scoreSymptoms ranks an ad-hoc symptom list without touching the session.
func (h *handler) scoreSymptoms(c *gin.Context) {
	var payload scoreRequest
	if err := c.ShouldBindJSON(&payload); err != nil {
		badRequest(c, err)
		return
	}
	symptoms := diagnosis.NewPatientSymptoms(payload.Symptoms...)
	c.JSON(http.StatusOK, diagnosisResponse{
		Symptoms:    symptoms,
		Predictions: diagnosis.Score(h.ctrl.Catalog().Conditions(), symptoms),
	})
}

func (h *handler) uploadImage(c *gin.Context) {
	fh, err := c.FormFile("image")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			writeError(c, apperrors.NewValidationError("missing_image", "multipart field \"image\" is required"))
			return
		}
		badRequest(c, err)
		return
	}

	f, err := fh.Open()
	if err != nil {
		writeError(c, apperrors.NewInternalError("open upload", err))
		return
	}
	defer f.Close()

	image, err := io.ReadAll(f)
	if err != nil {
		writeError(c, apperrors.NewInternalError("read upload", err))
		return
	}

	handle, err := h.ctrl.SubmitImage(image)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"handle": handle.Info(),
		"state":  h.ctrl.Analysis().State,
	})
}

func (h *handler) analysisStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.ctrl.Analysis())
}

func (h *handler) cancelAnalysis(c *gin.Context) {
	cancelled := h.ctrl.CancelAnalysis()
	c.JSON(http.StatusOK, gin.H{
		"cancelled": cancelled,
		"state":     h.ctrl.Analysis().State,
	})
}

// analysisEvents streams pipeline state transitions as server-sent events,
// starting with a snapshot of the current status.
func (h *handler) analysisEvents(c *gin.Context) {
	events, unsubscribe := h.ctrl.SubscribeAnalysis()
	defer unsubscribe()

	c.SSEvent("status", h.ctrl.Analysis())
	c.Writer.Flush()

	c.Stream(func(w io.Writer) bool {
		select {
		case ev, ok := <-events:
			if !ok {
				return false
			}
			if ev.State == imaging.StateCompleted {
				c.SSEvent("status", h.ctrl.Analysis())
				return true
			}
			c.SSEvent("state", ev)
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

func (h *handler) vitals(c *gin.Context) {
	c.JSON(http.StatusOK, h.ctrl.Vitals())
}

func (h *handler) overview(c *gin.Context) {
	c.JSON(http.StatusOK, h.ctrl.Overview())
}

func (h *handler) setTab(c *gin.Context) {
	var payload tabRequest
	if err := c.ShouldBindJSON(&payload); err != nil {
		badRequest(c, err)
		return
	}
	state, err := h.ctrl.SetTab(payload.Tab)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, state)
}
