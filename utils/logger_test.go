/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package utils

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, logrus.DebugLevel, ParseLogLevel("DEBUG"))
	assert.Equal(t, logrus.WarnLevel, ParseLogLevel(" warning "))
	assert.Equal(t, logrus.InfoLevel, ParseLogLevel(""))
	assert.Equal(t, logrus.InfoLevel, ParseLogLevel("verbose"))
}

func TestNewLoggerIsRegisteredOnce(t *testing.T) {
	a := NewLogger("REG_TEST")
	b := NewLogger("REG_TEST")
	assert.Same(t, a, b)

	assert.True(t, SetLoggerLevel("REG_TEST", "error"))
	assert.Equal(t, logrus.ErrorLevel, a.GetLevel())
	assert.False(t, SetLoggerLevel("MISSING", "error"))
}

func TestTextFormatterSortsFields(t *testing.T) {
	f := &TextFormatter{LoggerName: "DATABASE", NameWidth: 10}
	e := &logrus.Entry{
		Time:    time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
		Level:   logrus.InfoLevel,
		Message: "saved",
		Data:    logrus.Fields{"rows": 2, "id": "u1"},
	}
	b, err := f.Format(e)
	require.NoError(t, err)
	assert.Equal(t, "2025-01-02 03:04:05.000 INFO  [  DATABASE] saved id=u1 rows=2\n", string(b))
}

func TestFileLogWritesRotatingFile(t *testing.T) {
	dir := t.TempDir()
	ConfigureFileLog(FileLogOptions{Enabled: true, Dir: dir, MaxSizeMB: 1})
	defer ConfigureFileLog(FileLogOptions{})

	var console bytes.Buffer
	ConfigureConsoleOutput(&console)
	defer ConfigureConsoleOutput(nil)

	l := NewLogger("FILE_TEST")
	l.WithField("k", "v").Warn("to file")

	data, err := os.ReadFile(filepath.Join(dir, "unitofwork.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "to file k=v")
	assert.Contains(t, console.String(), "to file")
}

func TestEnvDefaults(t *testing.T) {
	t.Setenv("UOW_TEST_INT", "12")
	t.Setenv("UOW_TEST_BOOL", "nope")
	assert.Equal(t, 12, EnvDefaultInt("UOW_TEST_INT", 3))
	assert.Equal(t, 3, EnvDefaultInt("UOW_TEST_UNSET", 3))
	assert.True(t, EnvDefaultBool("UOW_TEST_BOOL", true))
	assert.Equal(t, "x", EnvDefaultString("UOW_TEST_UNSET", "x"))
}
