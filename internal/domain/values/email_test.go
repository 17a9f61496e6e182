package values

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEmail(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "valid", input: "dpo@clinic.example.com", want: "dpo@clinic.example.com"},
		{name: "normalized", input: "  Privacy.Officer@Clinic.ORG ", want: "privacy.officer@clinic.org"},
		{name: "empty", input: "", wantErr: true},
		{name: "missing domain", input: "dpo@", wantErr: true},
		{name: "display name", input: "DPO <dpo@clinic.org>", wantErr: true},
		{name: "no tld", input: "dpo@localhost", wantErr: true},
		{name: "too long", input: strings.Repeat("a", 250) + "@clinic.org", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewEmail(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}
}
