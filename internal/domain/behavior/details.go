package behavior

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/davidleathers/clinic-security-monitor/internal/domain/errors"
)

// Deviation classifies how far an event is from the baseline
type Deviation string

const (
	DeviationNeverSeen   Deviation = "never_seen"
	DeviationRare        Deviation = "rare"
	DeviationOutsideTopK Deviation = "outside_common_set"
)

// Details is the evidence recorded with an anomaly. Implementations are
// LocationDetails, TimeDetails and AccessPatternDetails.
type Details interface {
	AnomalyType() AnomalyType
	Summary() string
	Validate() error
}

// Evidence is the comparison data shared by every anomaly type
type Evidence struct {
	Deviation            Deviation `json:"deviation"`
	BaselineFrequency    int       `json:"baselineFrequency"`
	BaselineTotal        int       `json:"baselineTotal"`
	BaselineCalculatedAt time.Time `json:"baselineCalculatedAt"`
	Text                 string    `json:"summary"`
}

type LocationDetails struct {
	Evidence
	ObservedLocation  string   `json:"observedLocation"`
	SourceAddress     string   `json:"sourceAddress,omitempty"`
	ExpectedLocations []string `json:"expectedLocations"`
}

type TimeDetails struct {
	Evidence
	ObservedHour  int    `json:"observedHour"`
	ObservedAt    string `json:"observedAt"`
	Timezone      string `json:"timezone"`
	AverageHour   int    `json:"averageHour"`
	ExpectedHours []int  `json:"expectedHours"`
}

type AccessPatternDetails struct {
	Evidence
	ObservedAction  string   `json:"observedAction"`
	ExpectedActions []string `json:"expectedActions"`
}

func (LocationDetails) AnomalyType() AnomalyType      { return AnomalyUnusualLocation }
func (TimeDetails) AnomalyType() AnomalyType          { return AnomalyUnusualTime }
func (AccessPatternDetails) AnomalyType() AnomalyType { return AnomalyUnusualAccessPattern }

func (e Evidence) Summary() string { return e.Text }

func (e Evidence) validate() error {
	switch e.Deviation {
	case DeviationNeverSeen:
		if e.BaselineFrequency != 0 {
			return invalidDetails("never_seen evidence must have zero baseline frequency")
		}
	case DeviationRare, DeviationOutsideTopK:
		if e.BaselineFrequency <= 0 {
			return invalidDetails("observed bucket must have a positive baseline frequency")
		}
	default:
		return invalidDetails(fmt.Sprintf("unknown deviation %q", e.Deviation))
	}
	if e.BaselineTotal < e.BaselineFrequency {
		return invalidDetails("baseline frequency exceeds baseline total")
	}
	if e.Text == "" {
		return invalidDetails("summary is required")
	}
	return nil
}

func (d LocationDetails) Validate() error {
	if d.ObservedLocation == "" {
		return invalidDetails("observedLocation is required")
	}
	return d.Evidence.validate()
}

func (d TimeDetails) Validate() error {
	if d.ObservedHour < 0 || d.ObservedHour > 23 {
		return invalidDetails("observedHour must be within 0-23")
	}
	if d.AverageHour < 0 || d.AverageHour > 23 {
		return invalidDetails("averageHour must be within 0-23")
	}
	return d.Evidence.validate()
}

func (d AccessPatternDetails) Validate() error {
	if d.ObservedAction == "" {
		return invalidDetails("observedAction is required")
	}
	return d.Evidence.validate()
}

// DecodeDetails decodes and validates anomaly evidence for the given type.
func DecodeDetails(t AnomalyType, raw []byte) (Details, error) {
	var (
		details Details
		err     error
	)
	switch t {
	case AnomalyUnusualLocation:
		var d LocationDetails
		err = json.Unmarshal(raw, &d)
		details = d
	case AnomalyUnusualTime:
		var d TimeDetails
		err = json.Unmarshal(raw, &d)
		details = d
	case AnomalyUnusualAccessPattern:
		var d AccessPatternDetails
		err = json.Unmarshal(raw, &d)
		details = d
	default:
		return nil, errors.NewValidationError(errors.CodeValidation, fmt.Sprintf("unknown anomaly type %q", t))
	}
	if err != nil {
		return nil, errors.NewValidationError(errors.CodeValidation,
			fmt.Sprintf("malformed %s details", t)).WithCause(err)
	}
	if err := details.Validate(); err != nil {
		return nil, err
	}
	return details, nil
}

func invalidDetails(reason string) error {
	return errors.NewValidationError(errors.CodeValidation, "invalid anomaly details: "+reason)
}
