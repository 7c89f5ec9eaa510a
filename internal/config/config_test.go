package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
log_level: debug
http:
  host: 127.0.0.1
  port: 9100
brokers:
  - name: simnow
    source: ctp
    front_addr: tcp://180.168.146.187:10131
    user_id: "00001"
    password: secret
    broker_id: "9999"
    enabled: true
  - name: qq-equity
    source: qq
    front_addr: wss://qt.gtimg.cn
    user_id: anon
    broker_id: qq
    enabled: false
default_instruments:
  - au2212
  - rb2512
`

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "gateway.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadValidConfig(t *testing.T) {
	path := writeTemp(t, sampleYAML)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 9100, cfg.HTTP.Port)
	assert.Len(t, cfg.Brokers, 2)
	assert.Len(t, cfg.EnabledBrokers(), 1)
	assert.Equal(t, "simnow", cfg.EnabledBrokers()[0].Name)
	assert.Equal(t, []string{"au2212", "rb2512"}, cfg.DefaultInstruments)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidateRejectsNoEnabledBroker(t *testing.T) {
	cfg := &GatewayConfig{
		Brokers: []BrokerConfig{
			{Name: "a", Source: SourceCTP, FrontAddr: "x", UserID: "u", BrokerID: "b", Enabled: false},
		},
	}
	cfg.applyDefaults()
	err := cfg.Validate()
	assert.ErrorContains(t, err, "no broker is enabled")
}

func TestValidateRejectsBadSource(t *testing.T) {
	b := BrokerConfig{Name: "a", Source: "bogus", FrontAddr: "x", UserID: "u", BrokerID: "b"}
	err := b.Validate()
	assert.ErrorContains(t, err, "source must be one of")
}

func TestValidateRejectsDuplicateBrokerNames(t *testing.T) {
	cfg := &GatewayConfig{
		Brokers: []BrokerConfig{
			{Name: "dup", Source: SourceCTP, FrontAddr: "x", UserID: "u", BrokerID: "b", Enabled: true},
			{Name: "dup", Source: SourceQQ, FrontAddr: "y", UserID: "u2", BrokerID: "b2", Enabled: true},
		},
	}
	cfg.applyDefaults()
	err := cfg.Validate()
	assert.ErrorContains(t, err, "duplicate broker name")
}
