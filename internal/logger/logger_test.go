// Copyright 2024 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

type LoggerTest struct {
	suite.Suite
}

func TestLoggerSuite(t *testing.T) {
	suite.Run(t, new(LoggerTest))
}

func redirectToBuffer(buf *bytes.Buffer, format, severity string) {
	defaultLoggerFactory = newLoggerFactory()
	defaultLoggerFactory.sink = buf
	defaultLoggerFactory.format = format
	defaultLoggerFactory.levelVar.Set(levelForSeverity(severity))
	defaultLogger = slog.New(defaultLoggerFactory.createHandler())
}

func (s *LoggerTest) TestTextFormatRespectsLevel() {
	var buf bytes.Buffer
	redirectToBuffer(&buf, "text", SeverityWarn)

	Infof("should not appear")
	assert.Empty(s.T(), buf.String())

	Warnf("hello %s", "world")
	assert.Regexp(s.T(), regexp.MustCompile(`severity=WARNING message="hello world"`), buf.String())
}

func (s *LoggerTest) TestJSONFormat() {
	var buf bytes.Buffer
	redirectToBuffer(&buf, "json", SeverityTrace)

	Errorf("boom")

	var decoded map[string]interface{}
	assert.NoError(s.T(), json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(s.T(), "ERROR", decoded["severity"])
	assert.Equal(s.T(), "boom", decoded["message"])
}

func (s *LoggerTest) TestSeverityOffSuppressesEverything() {
	var buf bytes.Buffer
	redirectToBuffer(&buf, "text", SeverityOff)

	Tracef("t")
	Debugf("d")
	Infof("i")
	Warnf("w")
	Errorf("e")

	assert.Empty(s.T(), buf.String())
}

func (s *LoggerTest) TestSetLogFormatSwitches() {
	defaultLoggerFactory = newLoggerFactory()
	var buf bytes.Buffer
	defaultLoggerFactory.sink = &buf
	defaultLoggerFactory.levelVar.Set(LevelInfo)
	defaultLogger = slog.New(defaultLoggerFactory.createHandler())

	SetLogFormat("json")
	Infof("hi")
	assert.Contains(s.T(), buf.String(), `"severity":"INFO"`)
}
