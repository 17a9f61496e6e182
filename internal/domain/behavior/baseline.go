package behavior

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/davidleathers/clinic-security-monitor/internal/domain/errors"
)

// BaselineType is one behavioral dimension tracked per user
type BaselineType string

const (
	BaselineLocation      BaselineType = "location"
	BaselineTime          BaselineType = "time"
	BaselineAccessPattern BaselineType = "access_pattern"
)

// AllBaselineTypes lists every dimension in calculation order
var AllBaselineTypes = []BaselineType{BaselineLocation, BaselineTime, BaselineAccessPattern}

func (t BaselineType) Valid() bool {
	switch t {
	case BaselineLocation, BaselineTime, BaselineAccessPattern:
		return true
	}
	return false
}

// ParseBaselineType validates a client-supplied baseline type
func ParseBaselineType(s string) (BaselineType, error) {
	t := BaselineType(s)
	if !t.Valid() {
		return "", errors.NewValidationError(errors.CodeValidation,
			fmt.Sprintf("baselineType must be one of location, time, access_pattern; got %q", s))
	}
	return t, nil
}

// Baseline is the latest statistical summary of one user's behavior along one dimension.
type Baseline struct {
	ID            uuid.UUID
	UserID        uuid.UUID
	Type          BaselineType
	Data          BaselineData
	CalculatedAt  time.Time
	LowConfidence bool
	Message       string
}

// BaselineData is the per-type payload of a baseline. Implementations are
// LocationData, TimeData and AccessPatternData.
type BaselineData interface {
	BaselineType() BaselineType
	SampleSize() int
	Validate() error
}

// LocationFrequency counts logins from one location bucket
type LocationFrequency struct {
	Key        string          `json:"key"`
	Frequency  int             `json:"frequency"`
	Percentage decimal.Decimal `json:"percentage"`
}

// HourFrequency counts logins within one hour of the day
type HourFrequency struct {
	Hour      int `json:"hour"`
	Frequency int `json:"frequency"`
}

// ActionFrequency counts occurrences of one action type
type ActionFrequency struct {
	Action     string          `json:"action"`
	Frequency  int             `json:"frequency"`
	Percentage decimal.Decimal `json:"percentage"`
}

// LocationData summarizes where a user logs in from. CommonLocations is the
// top-K prefix of Locations, which holds every observed bucket.
type LocationData struct {
	TotalLogins     int                 `json:"totalLogins"`
	UniqueLocations int                 `json:"uniqueLocations"`
	CommonLocations []LocationFrequency `json:"commonLocations"`
	Locations       []LocationFrequency `json:"locations"`
}

// TimeData summarizes when a user logs in
type TimeData struct {
	TotalLogins      int             `json:"totalLogins"`
	AverageHour      int             `json:"averageHour"`
	HourDistribution []HourFrequency `json:"hourDistribution"`
	ExpectedHours    []int           `json:"expectedHours"`
	Timezone         string          `json:"timezone"`
}

// AccessPatternData summarizes which actions a user performs
type AccessPatternData struct {
	TotalActions  int               `json:"totalActions"`
	UniqueActions int               `json:"uniqueActions"`
	CommonActions []ActionFrequency `json:"commonActions"`
	Actions       []ActionFrequency `json:"actions"`
}

func (LocationData) BaselineType() BaselineType      { return BaselineLocation }
func (TimeData) BaselineType() BaselineType          { return BaselineTime }
func (AccessPatternData) BaselineType() BaselineType { return BaselineAccessPattern }

func (d LocationData) SampleSize() int      { return d.TotalLogins }
func (d TimeData) SampleSize() int          { return d.TotalLogins }
func (d AccessPatternData) SampleSize() int { return d.TotalActions }

func (d LocationData) Validate() error {
	counts := make([]int, len(d.Locations))
	keys := make([]string, len(d.Locations))
	for i, l := range d.Locations {
		counts[i], keys[i] = l.Frequency, l.Key
	}
	if err := validateDistribution("location", d.TotalLogins, d.UniqueLocations, keys, counts); err != nil {
		return err
	}
	if len(d.CommonLocations) > len(d.Locations) {
		return invalidData("location", "commonLocations larger than locations")
	}
	for i, c := range d.CommonLocations {
		if c.Key != d.Locations[i].Key || c.Frequency != d.Locations[i].Frequency {
			return invalidData("location", "commonLocations must be the leading entries of locations")
		}
	}
	return nil
}

func (d TimeData) Validate() error {
	if d.TotalLogins < 0 {
		return invalidData("time", "totalLogins must not be negative")
	}
	if len(d.HourDistribution) != 24 {
		return invalidData("time", fmt.Sprintf("hourDistribution must have 24 entries, got %d", len(d.HourDistribution)))
	}
	sum := 0
	for i, h := range d.HourDistribution {
		if h.Hour != i {
			return invalidData("time", "hourDistribution must list hours 0-23 in order")
		}
		if h.Frequency < 0 {
			return invalidData("time", "hour frequency must not be negative")
		}
		sum += h.Frequency
	}
	if sum != d.TotalLogins {
		return invalidData("time", fmt.Sprintf("hourDistribution sums to %d, totalLogins is %d", sum, d.TotalLogins))
	}
	if d.AverageHour < 0 || d.AverageHour > 23 {
		return invalidData("time", "averageHour must be within 0-23")
	}
	for _, h := range d.ExpectedHours {
		if h < 0 || h > 23 || d.HourDistribution[h].Frequency == 0 {
			return invalidData("time", "expectedHours must reference observed hours")
		}
	}
	if _, err := time.LoadLocation(d.Timezone); err != nil {
		return invalidData("time", fmt.Sprintf("unknown timezone %q", d.Timezone))
	}
	return nil
}

func (d AccessPatternData) Validate() error {
	counts := make([]int, len(d.Actions))
	keys := make([]string, len(d.Actions))
	for i, a := range d.Actions {
		counts[i], keys[i] = a.Frequency, a.Action
	}
	if err := validateDistribution("access_pattern", d.TotalActions, d.UniqueActions, keys, counts); err != nil {
		return err
	}
	if len(d.CommonActions) > len(d.Actions) {
		return invalidData("access_pattern", "commonActions larger than actions")
	}
	for i, c := range d.CommonActions {
		if c.Action != d.Actions[i].Action || c.Frequency != d.Actions[i].Frequency {
			return invalidData("access_pattern", "commonActions must be the leading entries of actions")
		}
	}
	return nil
}

// Location returns the typed payload or false when the baseline is another type.
func (b *Baseline) Location() (LocationData, bool) {
	d, ok := b.Data.(LocationData)
	return d, ok
}

func (b *Baseline) Time() (TimeData, bool) {
	d, ok := b.Data.(TimeData)
	return d, ok
}

func (b *Baseline) AccessPattern() (AccessPatternData, bool) {
	d, ok := b.Data.(AccessPatternData)
	return d, ok
}

// Validate checks the baseline envelope and its payload before it is written.
func (b *Baseline) Validate() error {
	if b.UserID == uuid.Nil {
		return errors.NewValidationError(errors.CodeValidation, "baseline userId is required")
	}
	if !b.Type.Valid() {
		return errors.NewValidationError(errors.CodeValidation, fmt.Sprintf("unknown baseline type %q", b.Type))
	}
	if b.Data == nil {
		return errors.NewValidationError(errors.CodeValidation, "baseline data is required")
	}
	if b.Data.BaselineType() != b.Type {
		return errors.NewValidationError(errors.CodeValidation,
			fmt.Sprintf("baseline data of type %s stored under %s", b.Data.BaselineType(), b.Type))
	}
	return b.Data.Validate()
}

type baselineJSON struct {
	ID            uuid.UUID       `json:"id"`
	UserID        uuid.UUID       `json:"userId"`
	Type          BaselineType    `json:"baselineType"`
	Data          json.RawMessage `json:"baselineData"`
	CalculatedAt  time.Time       `json:"calculatedAt"`
	LowConfidence bool            `json:"lowConfidence"`
	Message       string          `json:"message,omitempty"`
}

func (b Baseline) MarshalJSON() ([]byte, error) {
	data, err := json.Marshal(b.Data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(baselineJSON{
		ID:            b.ID,
		UserID:        b.UserID,
		Type:          b.Type,
		Data:          data,
		CalculatedAt:  b.CalculatedAt,
		LowConfidence: b.LowConfidence,
		Message:       b.Message,
	})
}

func (b *Baseline) UnmarshalJSON(raw []byte) error {
	var env baselineJSON
	if err := json.Unmarshal(raw, &env); err != nil {
		return err
	}
	data, err := DecodeBaselineData(env.Type, env.Data)
	if err != nil {
		return err
	}
	*b = Baseline{
		ID:            env.ID,
		UserID:        env.UserID,
		Type:          env.Type,
		Data:          data,
		CalculatedAt:  env.CalculatedAt,
		LowConfidence: env.LowConfidence,
		Message:       env.Message,
	}
	return nil
}

// DecodeBaselineData decodes and validates the payload stored for a baseline type.
func DecodeBaselineData(t BaselineType, raw []byte) (BaselineData, error) {
	var (
		data BaselineData
		err  error
	)
	switch t {
	case BaselineLocation:
		var d LocationData
		err = json.Unmarshal(raw, &d)
		data = d
	case BaselineTime:
		var d TimeData
		err = json.Unmarshal(raw, &d)
		data = d
	case BaselineAccessPattern:
		var d AccessPatternData
		err = json.Unmarshal(raw, &d)
		data = d
	default:
		return nil, errors.NewValidationError(errors.CodeValidation, fmt.Sprintf("unknown baseline type %q", t))
	}
	if err != nil {
		return nil, errors.NewValidationError(errors.CodeValidation,
			fmt.Sprintf("malformed %s baseline data", t)).WithCause(err)
	}
	if err := data.Validate(); err != nil {
		return nil, err
	}
	return data, nil
}

func validateDistribution(kind string, total, unique int, keys []string, counts []int) error {
	if total < 0 {
		return invalidData(kind, "total must not be negative")
	}
	if unique != len(keys) {
		return invalidData(kind, fmt.Sprintf("unique count %d does not match %d buckets", unique, len(keys)))
	}
	seen := make(map[string]struct{}, len(keys))
	sum := 0
	for i, k := range keys {
		if _, dup := seen[k]; dup {
			return invalidData(kind, fmt.Sprintf("duplicate bucket %q", k))
		}
		seen[k] = struct{}{}
		if counts[i] <= 0 {
			return invalidData(kind, fmt.Sprintf("bucket %q must have a positive frequency", k))
		}
		if i > 0 && counts[i] > counts[i-1] {
			return invalidData(kind, "buckets must be sorted by descending frequency")
		}
		sum += counts[i]
	}
	if sum != total {
		return invalidData(kind, fmt.Sprintf("bucket frequencies sum to %d, total is %d", sum, total))
	}
	return nil
}

func invalidData(kind, reason string) error {
	return errors.NewValidationError(errors.CodeValidation, fmt.Sprintf("invalid %s baseline data: %s", kind, reason))
}
