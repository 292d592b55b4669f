// File: internal/config/config_test.go
package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -- Constructor and Defaults Tests --

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	// Verify a few key defaults to ensure the mechanism works.
	assert.Equal(t, "info", cfg.Logger.Level)
	assert.Equal(t, "sessionforge", cfg.Logger.ServiceName)
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, 60*time.Second, cfg.Engine.ConsentWaitTimeout)
	assert.Equal(t, 15*time.Second, cfg.Engine.LoginFieldWaitTimeout)
	assert.Equal(t, 1500*time.Millisecond, cfg.Engine.ConsentSettleDelay)
	assert.Equal(t, time.Second, cfg.Engine.SubmitSettleDelay)
	assert.Equal(t, 2*time.Second, cfg.Engine.NavigationSettleDelay)
	assert.Equal(t, ":8085", cfg.Server.Listen)
	assert.Equal(t, 2, cfg.CredStore.RetryMax)
}

func TestDefaultProviderEntry(t *testing.T) {
	cfg := NewDefaultConfig()

	p, ok := cfg.Providers["freemail"]
	require.True(t, ok, "default provider entry missing")
	assert.Equal(t, "#CybotCookiebotDialogBodyLevelButtonLevelOptinAllowAll", p.ConsentAcceptAllSelector)
	assert.Equal(t, "#CybotCookiebotDialog", p.ConsentDialogSelector)
	assert.Equal(t, "consent.cookiebot.com", p.ConsentHost)
	assert.Equal(t, "315468", p.ConsentConfigID)
	assert.NoError(t, p.Validate())
}

// -- Validation Logic Tests --

func TestConfigValidation(t *testing.T) {
	t.Run("ValidDefaults", func(t *testing.T) {
		assert.NoError(t, NewDefaultConfig().Validate())
	})

	t.Run("NonPositiveConsentWait", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.Engine.ConsentWaitTimeout = 0
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "consent_wait_timeout")
	})

	t.Run("NonPositiveLoginWait", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.Engine.LoginFieldWaitTimeout = -time.Second
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "login_field_wait_timeout")
	})

	t.Run("NonPositiveNetworkIdleQuiet", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.Engine.NetworkIdleQuiet = 0
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "network_idle_quiet")
	})

	t.Run("MissingCredStoreURL", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.CredStore.BaseURL = ""
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "credstore.base_url")
	})

	t.Run("ProviderMissingSelectors", func(t *testing.T) {
		cfg := NewDefaultConfig()
		broken := cfg.Providers["freemail"]
		broken.UsernameSelector = ""
		cfg.Providers["broken"] = broken
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), `provider "broken"`)
	})
}

func TestNewConfigFromViper(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	v.Set("engine.consent_wait_timeout", "30s")
	v.Set("server.listen", ":9999")

	cfg, err := NewConfigFromViper(v)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, cfg.Engine.ConsentWaitTimeout)
	assert.Equal(t, ":9999", cfg.Server.Listen)

	t.Run("InvalidConfigRejected", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)
		v.Set("credstore.base_url", "")
		_, err := NewConfigFromViper(v)
		assert.Error(t, err)
	})
}
