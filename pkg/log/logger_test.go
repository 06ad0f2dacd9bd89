package log

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/suite"
)

// LoggerTestSuite tests the log package
type LoggerTestSuite struct {
	suite.Suite
	originalLogger zerolog.Logger
	testOutput     *bytes.Buffer
}

func (s *LoggerTestSuite) SetupTest() {
	s.originalLogger = Logger
	s.testOutput = &bytes.Buffer{}
	Logger = newLogger(s.testOutput, zerolog.DebugLevel)
}

func (s *LoggerTestSuite) TearDownTest() {
	Logger = s.originalLogger
}

func (s *LoggerTestSuite) TestGoroutineID() {
	id := goroutineID()
	s.NotEmpty(id)
	s.LessOrEqual(len(id), 20)

	if id != "unknown" {
		for _, char := range id {
			s.True(char >= '0' && char <= '9', "goroutine id should be numeric or 'unknown'")
		}
	}

	s.Equal(id, goroutineID())
}

func (s *LoggerTestSuite) TestLevels() {
	Debug().Msg("debug test")
	Info().Msg("info test")
	Warn().Msg("warn test")
	Error().Msg("error test")

	output := s.testOutput.String()
	s.Contains(output, "debug test")
	s.Contains(output, "info test")
	s.Contains(output, "warn test")
	s.Contains(output, "error test")
	s.Contains(output, "goid")
}

func (s *LoggerTestSuite) TestLogWithFields() {
	Info().Str("stored_name", "f_20240101000000_x.pdf").Int64("size", 42).Msg("stored")

	var entry map[string]interface{}
	s.Require().NoError(json.Unmarshal(s.testOutput.Bytes(), &entry))
	s.Equal("f_20240101000000_x.pdf", entry["stored_name"])
	s.Equal(float64(42), entry["size"])
	s.Equal("info", entry["level"])
	s.NotEmpty(entry["goid"])
}

func (s *LoggerTestSuite) TestConfigureJSON() {
	out := &bytes.Buffer{}
	s.Require().NoError(Configure("warn", FormatJSON, out))

	Info().Msg("hidden")
	Warn().Msg("visible")

	s.NotContains(out.String(), "hidden")
	s.Contains(out.String(), `"message":"visible"`)
}

func (s *LoggerTestSuite) TestConfigureConsole() {
	out := &bytes.Buffer{}
	s.Require().NoError(Configure("DEBUG", "", out))

	Debug().Msg("console line")
	s.Contains(out.String(), "console line")
	s.False(strings.HasPrefix(strings.TrimSpace(out.String()), "{"))
}

func (s *LoggerTestSuite) TestConfigureRejectsUnknownValues() {
	s.Error(Configure("loud", FormatJSON, nil))
	s.Error(Configure("info", "xml", nil))
}

func (s *LoggerTestSuite) TestSetDebugMode() {
	Logger = newLogger(s.testOutput, zerolog.InfoLevel)
	SetDebugMode()
	s.Equal(zerolog.DebugLevel, Logger.GetLevel())
}

func (s *LoggerTestSuite) TestConcurrentLogging() {
	numGoroutines := 10
	done := make(chan bool, numGoroutines)

	for i := 0; i < numGoroutines; i++ {
		go func(id int) {
			defer func() { done <- true }()
			Info().Int("worker", id).Msg("concurrent log message")
		}(i)
	}

	for i := 0; i < numGoroutines; i++ {
		<-done
	}

	lines := strings.Split(strings.TrimSpace(s.testOutput.String()), "\n")
	s.GreaterOrEqual(len(lines), 1)
	s.Contains(s.testOutput.String(), "concurrent log message")
}

func TestLoggerSuite(t *testing.T) {
	suite.Run(t, new(LoggerTestSuite))
}
