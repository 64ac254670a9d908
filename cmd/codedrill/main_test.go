package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckServeConfig(t *testing.T) {
	tests := []struct {
		name    string
		flags   map[string]string
		wantErr string
	}{
		{"defaults with secret", map[string]string{"jwt-secret": "s3cret"}, ""},
		{"missing secret", nil, "jwt secret is required"},
		{"zero expiry interval", map[string]string{"jwt-secret": "s3cret", "expiry-interval": "0s"}, "expiry interval must be positive"},
		{"negative expiry interval", map[string]string{"jwt-secret": "s3cret", "expiry-interval": "-5s"}, "expiry interval must be positive"},
		{"zero suggest parallelism", map[string]string{"jwt-secret": "s3cret", "suggest-parallel": "0"}, "suggest parallelism"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("CODEDRILL_JWT_SECRET", "")
			t.Setenv("CODEDRILL_EXPIRY_INTERVAL", "")
			t.Setenv("CODEDRILL_SUGGEST_PARALLEL", "")
			cmd := serveCmd()
			for k, val := range tt.flags {
				require.NoError(t, cmd.Flags().Set(k, val))
			}
			err := checkServeConfig(viperForCmd(cmd))
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
