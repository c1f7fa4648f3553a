package diagnosis

import (
	"encoding/json"
	"strings"
)

// PatientSymptoms is an insertion-ordered set of free-text symptoms. It is a
// value type: Add and Remove return a new set and leave the receiver as is.
type PatientSymptoms struct {
	items []string
}

// NewPatientSymptoms builds a set from values, skipping blanks and
// duplicates.
func NewPatientSymptoms(values ...string) PatientSymptoms {
	s := PatientSymptoms{}
	for _, v := range values {
		s = s.Add(v)
	}
	return s
}

// Add returns a set containing symptom. Adding a symptom already present
// (or a blank one) returns the set unchanged.
func (s PatientSymptoms) Add(symptom string) PatientSymptoms {
	symptom = strings.TrimSpace(symptom)
	if symptom == "" || s.Contains(symptom) {
		return s
	}
	items := make([]string, len(s.items), len(s.items)+1)
	copy(items, s.items)
	return PatientSymptoms{items: append(items, symptom)}
}

// Remove returns a set without symptom.
func (s PatientSymptoms) Remove(symptom string) PatientSymptoms {
	symptom = strings.TrimSpace(symptom)
	if !s.Contains(symptom) {
		return s
	}
	items := make([]string, 0, len(s.items)-1)
	for _, v := range s.items {
		if v != symptom {
			items = append(items, v)
		}
	}
	return PatientSymptoms{items: items}
}

func (s PatientSymptoms) Contains(symptom string) bool {
	for _, v := range s.items {
		if v == symptom {
			return true
		}
	}
	return false
}

func (s PatientSymptoms) Len() int {
	return len(s.items)
}

// Values returns the symptoms in insertion order.
func (s PatientSymptoms) Values() []string {
	return append([]string{}, s.items...)
}

func (s PatientSymptoms) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Values())
}

func (s *PatientSymptoms) UnmarshalJSON(data []byte) error {
	var values []string
	if err := json.Unmarshal(data, &values); err != nil {
		return err
	}
	*s = NewPatientSymptoms(values...)
	return nil
}
