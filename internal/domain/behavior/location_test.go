package behavior

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocationKey(t *testing.T) {
	tests := []struct {
		label string
		addr  string
		want  string
	}{
		{label: "Vienna", addr: "203.0.113.10", want: "Vienna"},
		{addr: "127.0.0.1", want: LocalConnection},
		{addr: "10.20.30.40", want: LocalConnection},
		{addr: "172.16.0.1", want: LocalConnection},
		{addr: "172.31.255.254", want: LocalConnection},
		{addr: "172.32.0.1", want: "172.32.0.1"},
		{addr: "192.168.10.2", want: LocalConnection},
		{addr: "::1", want: LocalConnection},
		{addr: "[::1]:8443", want: LocalConnection},
		{addr: "::ffff:10.0.0.1", want: LocalConnection},
		{addr: "203.0.113.10:51234", want: "203.0.113.10"},
		{addr: "2001:db8::5", want: "2001:db8::5"},
		{addr: "", want: UnknownLocation},
		{addr: "vpn-gateway", want: "vpn-gateway"},
	}

	for _, tt := range tests {
		t.Run(tt.label+tt.addr, func(t *testing.T) {
			assert.Equal(t, tt.want, LocationKey(tt.label, tt.addr))
		})
	}
}

func TestBaseline_JSONRoundTrip(t *testing.T) {
	userID := uuid.New()
	b := buildBaseline(t, userID, BaselineLocation, repeatLogins(userID, 4, "Berlin"), DefaultPolicy())

	raw, err := json.Marshal(b)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"baselineType":"location"`)

	var decoded Baseline
	require.NoError(t, json.Unmarshal(raw, &decoded))
	data, ok := decoded.Location()
	require.True(t, ok)
	assert.Equal(t, 4, data.TotalLogins)
	assert.Equal(t, "Berlin", data.CommonLocations[0].Key)
}

func TestDecodeBaselineData_ValidatesOnRead(t *testing.T) {
	_, err := DecodeBaselineData(BaselineTime, []byte(`{"totalLogins": 1, "averageHour": 3, "hourDistribution": [{"hour": 3, "frequency": 1}], "timezone": "UTC"}`))
	assert.Error(t, err, "distribution must have 24 buckets")

	_, err = DecodeBaselineData(BaselineLocation, []byte(`{"totalLogins": 5, "uniqueLocations": 1, "locations": [{"key": "Berlin", "frequency": 4}], "commonLocations": []}`))
	assert.Error(t, err, "frequencies must sum to total")
}

func TestBaseline_ValidateTypeMismatch(t *testing.T) {
	b := &Baseline{UserID: uuid.New(), Type: BaselineTime, Data: AccessPatternData{}}
	assert.Error(t, b.Validate())
}
