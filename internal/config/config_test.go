package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/suite"
)

type ConfigSuite struct {
	suite.Suite
	dir string
}

func TestConfigSuite(t *testing.T) {
	suite.Run(t, new(ConfigSuite))
}

func (s *ConfigSuite) SetupTest() {
	s.dir = s.T().TempDir()
	s.T().Chdir(s.dir)
}

func (s *ConfigSuite) write(name, content string) string {
	path := filepath.Join(s.dir, name)
	s.Require().NoError(os.WriteFile(path, []byte(content), 0o600))
	return path
}

func (s *ConfigSuite) TestDefaults() {
	cfg, err := Load("")
	s.Require().NoError(err)

	s.Assert().Equal("info", cfg.Logging.Level)
	s.Assert().Equal("console", cfg.Logging.Format)
	s.Assert().Equal(1, cfg.Bus.BroadcastConcurrency)
	s.Assert().False(cfg.Telemetry.Enabled)
	s.Assert().Empty(cfg.Telemetry.Endpoint)
	s.Assert().Equal("busctl", cfg.Telemetry.ServiceName)
}

func (s *ConfigSuite) TestFileOverridesDefaults() {
	path := s.write("custom.yaml", `
logging:
  level: debug
  format: json
bus:
  broadcast_concurrency: 8
telemetry:
  enabled: true
  endpoint: http://collector:4318
`)

	cfg, err := Load(path)
	s.Require().NoError(err)

	s.Assert().Equal("debug", cfg.Logging.Level)
	s.Assert().Equal("json", cfg.Logging.Format)
	s.Assert().Equal(8, cfg.Bus.BroadcastConcurrency)
	s.Assert().True(cfg.Telemetry.Enabled)
	s.Assert().Equal("http://collector:4318", cfg.Telemetry.Endpoint)
}

func (s *ConfigSuite) TestDiscoversFileInWorkingDirectory() {
	s.write("busctl.yaml", "logging:\n  level: warn\n")

	cfg, err := Load("")
	s.Require().NoError(err)
	s.Assert().Equal("warn", cfg.Logging.Level)
}

func (s *ConfigSuite) TestEnvironmentOverridesFile() {
	path := s.write("custom.yaml", "logging:\n  level: debug\n")
	s.T().Setenv("BUSCTL_LOGGING_LEVEL", "error")
	s.T().Setenv("BUSCTL_BUS_BROADCAST_CONCURRENCY", "4")

	cfg, err := Load(path)
	s.Require().NoError(err)

	s.Assert().Equal("error", cfg.Logging.Level)
	s.Assert().Equal(4, cfg.Bus.BroadcastConcurrency)
}

func (s *ConfigSuite) TestDotEnvFile() {
	s.write(".env", "BUSCTL_TELEMETRY_SERVICE_NAME=replayer\n")
	s.T().Cleanup(func() { _ = os.Unsetenv("BUSCTL_TELEMETRY_SERVICE_NAME") })

	cfg, err := Load("")
	s.Require().NoError(err)
	s.Assert().Equal("replayer", cfg.Telemetry.ServiceName)
}

func (s *ConfigSuite) TestInvalidValues() {
	tests := map[string]struct {
		env   string
		value string
		field string
	}{
		"unknown level":        {env: "BUSCTL_LOGGING_LEVEL", value: "loud", field: "Config.Logging.Level"},
		"unknown format":       {env: "BUSCTL_LOGGING_FORMAT", value: "xml", field: "Config.Logging.Format"},
		"negative concurrency": {env: "BUSCTL_BUS_BROADCAST_CONCURRENCY", value: "-1", field: "Config.Bus.BroadcastConcurrency"},
		"bad endpoint":         {env: "BUSCTL_TELEMETRY_ENDPOINT", value: "not a url", field: "Config.Telemetry.Endpoint"},
	}

	for name, tc := range tests {
		s.Run(name, func() {
			s.T().Setenv(tc.env, tc.value)

			cfg, err := Load("")

			s.Assert().Nil(cfg)
			s.Assert().ErrorContains(err, "invalid configuration")
			s.Assert().ErrorContains(err, tc.field)
		})
	}
}

func (s *ConfigSuite) TestMalformedFile() {
	path := s.write("broken.yaml", "logging: [level\n")

	_, err := Load(path)
	s.Assert().ErrorContains(err, "failed to read config file")
}

func (s *ConfigSuite) TestLogger() {
	var buf bytes.Buffer
	logger := LoggingConfig{Level: "warn", Format: "json"}.Logger(&buf)

	logger.Info().Msg("hidden")
	logger.Warn().Msg("shown")

	s.Assert().NotContains(buf.String(), "hidden")
	s.Assert().Contains(buf.String(), `"message":"shown"`)
	s.Assert().Equal(zerolog.WarnLevel, logger.GetLevel())
}
