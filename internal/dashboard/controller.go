package dashboard

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Skufu/medassist/internal/diagnosis"
	"github.com/Skufu/medassist/internal/imaging"
	apperrors "github.com/Skufu/medassist/pkg/errors"
)

type Tab string

const (
	TabDashboard Tab = "dashboard"
	TabPatient   Tab = "patient"
	TabImaging   Tab = "imaging"
	TabDiagnosis Tab = "diagnosis"
	TabVitals    Tab = "vitals"
)

var tabs = []Tab{TabDashboard, TabPatient, TabImaging, TabDiagnosis, TabVitals}

func ParseTab(s string) (Tab, error) {
	for _, t := range tabs {
		if string(t) == strings.ToLower(strings.TrimSpace(s)) {
			return t, nil
		}
	}
	return "", apperrors.NewValidationError("unknown_tab", fmt.Sprintf("unknown tab %q", s))
}

// Profile is the editable part of the patient record.
type Profile struct {
	Name          string  `json:"name" validate:"required,max=120"`
	Age           int     `json:"age" validate:"gte=0,lte=130"`
	Gender        string  `json:"gender" validate:"max=40"`
	Height        string  `json:"height" validate:"max=40"`
	Weight        string  `json:"weight" validate:"max=40"`
	BloodPressure string  `json:"bloodPressure" validate:"required,bloodpressure"`
	HeartRate     int     `json:"heartRate" validate:"gt=0,lte=300"`
	Temperature   float64 `json:"temperature" validate:"gte=80,lte=115"`
}

// Patient is the session's patient record.
type Patient struct {
	Profile
	Symptoms diagnosis.PatientSymptoms `json:"symptoms"`
}

func DefaultPatient() Patient {
	return Patient{
		Profile: Profile{
			Name:          "John Doe",
			Age:           45,
			Gender:        "Male",
			Height:        "175 cm",
			Weight:        "80 kg",
			BloodPressure: "120/80",
			HeartRate:     72,
			Temperature:   98.6,
		},
		Symptoms: diagnosis.NewPatientSymptoms(),
	}
}

// State is a snapshot of the session. Snapshots are never modified once
// published; every mutation produces a new one.
type State struct {
	Patient   Patient `json:"patient"`
	ActiveTab Tab     `json:"activeTab"`
}

// Overview backs the dashboard tab.
type Overview struct {
	Patient       Patient                    `json:"patient"`
	ActiveTab     Tab                        `json:"activeTab"`
	Vitals        VitalsSummary              `json:"vitals"`
	RiskFactors   []RiskFactor               `json:"riskFactors"`
	TopPrediction *diagnosis.ScoredCondition `json:"topPrediction,omitempty"`
	Analysis      imaging.State              `json:"analysisState"`
}

// Controller owns the single session: patient record, active tab and the
// image analysis pipeline.
type Controller struct {
	mu       sync.RWMutex
	state    State
	catalog  *diagnosis.Catalog
	pipeline *imaging.Pipeline
	validate *validator.Validate
	logger   zerolog.Logger
}

// newProfileValidator panics if the custom tags cannot be registered; Profile
// validation is meaningless without them.
func newProfileValidator() *validator.Validate {
	v := validator.New()
	err := v.RegisterValidation("bloodpressure", func(fl validator.FieldLevel) bool {
		_, _, err := ParseBloodPressure(fl.Field().String())
		return err == nil
	})
	if err != nil {
		panic(fmt.Sprintf("dashboard: register bloodpressure validation: %v", err))
	}
	return v
}

func NewController(catalog *diagnosis.Catalog, pipeline *imaging.Pipeline) *Controller {
	return &Controller{
		state:    State{Patient: DefaultPatient(), ActiveTab: TabDashboard},
		catalog:  catalog,
		pipeline: pipeline,
		validate: newProfileValidator(),
		logger:   log.With().Str("component", "dashboard").Logger(),
	}
}

func (c *Controller) Catalog() *diagnosis.Catalog {
	return c.catalog
}

func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Controller) update(fn func(State) (State, error)) (State, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	next, err := fn(c.state)
	if err != nil {
		return c.state, err
	}
	c.state = next
	return next, nil
}

// AddSymptom adds symptom to the patient record. Adding a symptom twice
// leaves the record unchanged.
func (c *Controller) AddSymptom(symptom string) (State, error) {
	if strings.TrimSpace(symptom) == "" {
		return c.State(), apperrors.NewValidationError("", "symptom is required")
	}
	return c.update(func(s State) (State, error) {
		s.Patient.Symptoms = s.Patient.Symptoms.Add(symptom)
		return s, nil
	})
}

func (c *Controller) RemoveSymptom(symptom string) State {
	next, _ := c.update(func(s State) (State, error) {
		s.Patient.Symptoms = s.Patient.Symptoms.Remove(symptom)
		return s, nil
	})
	return next
}

// UpdateProfile replaces the patient's profile; symptoms are kept.
func (c *Controller) UpdateProfile(p Profile) (State, error) {
	p.Name = strings.TrimSpace(p.Name)
	if err := c.validate.Struct(p); err != nil {
		return c.State(), apperrors.NewValidationError("", describeValidation(err))
	}
	return c.update(func(s State) (State, error) {
		s.Patient.Profile = p
		return s, nil
	})
}

func (c *Controller) SetTab(name string) (State, error) {
	tab, err := ParseTab(name)
	if err != nil {
		return c.State(), err
	}
	return c.update(func(s State) (State, error) {
		s.ActiveTab = tab
		return s, nil
	})
}

// Diagnose ranks the catalog against the patient's current symptoms.
func (c *Controller) Diagnose() []diagnosis.ScoredCondition {
	return diagnosis.Score(c.catalog.Conditions(), c.State().Patient.Symptoms)
}

func (c *Controller) SubmitImage(image []byte) (*imaging.Handle, error) {
	h, err := c.pipeline.Start(image)
	if err != nil {
		return nil, fmt.Errorf("submit image: %w", err)
	}
	return h, nil
}

func (c *Controller) CancelAnalysis() bool {
	return c.pipeline.Cancel()
}

func (c *Controller) Analysis() imaging.Status {
	return c.pipeline.Status()
}

func (c *Controller) SubscribeAnalysis() (<-chan imaging.Event, func()) {
	return c.pipeline.Subscribe()
}

func (c *Controller) Vitals() VitalsSummary {
	return summarizeVitals(c.State().Patient)
}

func (c *Controller) Overview() Overview {
	s := c.State()
	o := Overview{
		Patient:     s.Patient,
		ActiveTab:   s.ActiveTab,
		Vitals:      summarizeVitals(s.Patient),
		RiskFactors: DefaultRiskFactors(),
		Analysis:    c.pipeline.State(),
	}
	if ranked := diagnosis.Score(c.catalog.Conditions(), s.Patient.Symptoms); len(ranked) > 0 {
		o.TopPrediction = &ranked[0]
	}
	return o
}

// Close tears the session down and cancels any pending analysis.
func (c *Controller) Close() {
	c.pipeline.Close()
	c.logger.Debug().Msg("dashboard closed")
}

func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s is required", fe.Field()))
		case "bloodpressure":
			msgs = append(msgs, fmt.Sprintf("%s must be a systolic/diastolic blood pressure reading", fe.Field()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s=%s", fe.Field(), fe.Tag(), fe.Param()))
		}
	}
	return strings.Join(msgs, "; ")
}
