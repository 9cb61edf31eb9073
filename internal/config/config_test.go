package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoad(t *testing.T) {
	tcases := []struct {
		name   string
		env    map[string]string
		errMsg string
	}{
		{
			name: "valid config",
			env: map[string]string{
				"SERVER_ADDR":    "localhost:9000",
				"DATABASE_DSN":   "host=localhost user=postgres dbname=gatherup sslmode=disable",
				"SIGNING_SECRET": "wT0phFUusHZIrDhL9bUKPUhwaxKhpi/SaI6PtgB+MgU=",
			},
		},
		{
			name: "missing database DSN",
			env: map[string]string{
				"SIGNING_SECRET": "wT0phFUusHZIrDhL9bUKPUhwaxKhpi/SaI6PtgB+MgU=",
			},
			errMsg: "database DSN cannot be empty",
		},
		{
			name: "missing signing secret",
			env: map[string]string{
				"DATABASE_DSN": "host=localhost user=postgres dbname=gatherup sslmode=disable",
			},
			errMsg: "signing secret cannot be empty",
		},
		{
			name: "signing secret is not base64",
			env: map[string]string{
				"DATABASE_DSN":   "host=localhost user=postgres dbname=gatherup sslmode=disable",
				"SIGNING_SECRET": "not-base64!!!",
			},
			errMsg: "decode signing secret",
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}

			cfg, err := Load()
			if tc.errMsg != "" {
				assert.ErrorContains(t, err, tc.errMsg)
				assert.Nil(t, cfg)
				return
			}

			assert.NoError(t, err)
			assert.Equal(t, tc.env["SERVER_ADDR"], cfg.ServerAddr, "expected server address from env")
			assert.NotEmpty(t, cfg.SigningKey, "expected decoded signing key")
			assert.Equal(t, "https://exp.host/--/api/v2/push/send", cfg.PushGatewayURL, "expected default push gateway")
		})
	}
}
