package beagle

import (
	"context"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/suite"
)

// DriverSuite shares one quiesced logger across every test so individual
// cases don't each pay for constructing and discarding their own.
type DriverSuite struct {
	suite.Suite
	driver *Driver
}

func (s *DriverSuite) SetupSuite() {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	logger.SetLevel(logrus.PanicLevel)
	s.driver = NewDriver(DefaultConfig(), logger)
}

func (s *DriverSuite) run(src string) *Result {
	result, err := s.driver.Run(context.Background(), "test", src)
	s.Require().NoError(err)
	return result
}

func (s *DriverSuite) TestSimplePropertySeals() {
	result := s.run(`val x: Int = 3`)
	s.Equal(StateSealed, result.State)
	s.Empty(result.Diagnostics)
	s.NotEmpty(result.MIR)

	blob := NewChunk()
	for _, b := range result.MIR {
		blob.WriteByte(b)
	}
	op, err := blob.ReadByte()
	s.Require().NoError(err)
	s.Equal(byte(MIRModule), op)
}

func (s *DriverSuite) TestTypeMismatchFails() {
	result := s.run(`val z: Int = "hi"`)
	s.Equal(StateFailed, result.State)
	s.Empty(result.MIR)
	s.Require().NotEmpty(result.Diagnostics)
	s.Equal(LevelError, result.Diagnostics[0].Level)
	s.Contains(result.Diagnostics[0].Message, "Int")
}

func (s *DriverSuite) TestUnterminatedStringFails() {
	result := s.run("val s = \"abc")
	s.Equal(StateFailed, result.State)
	s.Require().NotEmpty(result.Diagnostics)
	s.NotNil(result.Diagnostics[0].Snippet)
}

func (s *DriverSuite) TestDuplicatePropertyFails() {
	result := s.run("val x = 1\nval x = 2")
	s.Equal(StateFailed, result.State)
	s.Require().NotEmpty(result.Diagnostics)
}

func (s *DriverSuite) TestFunctionWithLocalsSeals() {
	result := s.run("fun add(a: Int, b: Int): Int { let s = a + b }")
	s.Equal(StateSealed, result.State)
	s.Empty(result.Diagnostics)
	s.NotEmpty(result.MIR)
}

func TestDriverSuite(t *testing.T) {
	suite.Run(t, new(DriverSuite))
}
