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
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Logger = logrus.Logger

const timestampFormat = "2006-01-02 15:04:05.000"

// FileLogOptions controls the rotating file sink shared by all named
// loggers.
type FileLogOptions struct {
	Enabled    bool
	Dir        string
	MaxSizeMB  int
	MaxAgeDays int
	MaxBackups int
	Compress   bool
}

var (
	loggerRegistryMu sync.RWMutex
	loggerRegistry   = map[string]*logrus.Logger{}

	baseLevel        = ParseLogLevel(EnvDefaultString("LOG_LEVEL", "info"))
	consoleLogFormat = EnvDefaultString("CONSOLE_LOG_FORMAT", "text")
	consoleOutput    io.Writer = os.Stdout

	fileLogMu   sync.Mutex
	fileLogOpts = FileLogOptions{
		Enabled:    EnvDefaultBool("FILE_LOG_ENABLED", false),
		Dir:        EnvDefaultString("FILE_LOG_DIR", "logs"),
		MaxSizeMB:  EnvDefaultInt("FILE_LOG_MAX_SIZE_MB", 100),
		MaxAgeDays: EnvDefaultInt("FILE_LOG_MAX_AGE_DAYS", 7),
		MaxBackups: EnvDefaultInt("FILE_LOG_MAX_BACKUPS", 10),
	}
	fileLogWriter *lumberjack.Logger
)

// ConfigureFileLog replaces the file sink options. Loggers created before
// the call keep writing to the previous file.
func ConfigureFileLog(opts FileLogOptions) {
	fileLogMu.Lock()
	defer fileLogMu.Unlock()
	if opts.Dir == "" {
		opts.Dir = "logs"
	}
	if fileLogWriter != nil {
		_ = fileLogWriter.Close()
		fileLogWriter = nil
	}
	fileLogOpts = opts
}

func ConfigureConsoleLogFormat(format string) {
	if strings.EqualFold(strings.TrimSpace(format), "json") {
		consoleLogFormat = "json"
	} else {
		consoleLogFormat = "text"
	}
}

// ConfigureConsoleOutput redirects console output of loggers created
// afterwards.
func ConfigureConsoleOutput(w io.Writer) {
	if w == nil {
		w = os.Stdout
	}
	consoleOutput = w
}

func fileWriter() io.Writer {
	fileLogMu.Lock()
	defer fileLogMu.Unlock()
	if !fileLogOpts.Enabled {
		return nil
	}
	if fileLogWriter == nil {
		if err := os.MkdirAll(fileLogOpts.Dir, 0o755); err != nil {
			return nil
		}
		fileLogWriter = &lumberjack.Logger{
			Filename:   filepath.Join(fileLogOpts.Dir, "unitofwork.log"),
			MaxSize:    fileLogOpts.MaxSizeMB,
			MaxAge:     fileLogOpts.MaxAgeDays,
			MaxBackups: fileLogOpts.MaxBackups,
			Compress:   fileLogOpts.Compress,
			LocalTime:  true,
		}
	}
	return fileLogWriter
}

// fileHook writes every entry to the rotating file in plain text.
type fileHook struct {
	writer    io.Writer
	formatter logrus.Formatter
}

func (h *fileHook) Levels() []logrus.Level { return logrus.AllLevels }

func (h *fileHook) Fire(e *logrus.Entry) error {
	b, err := h.formatter.Format(e)
	if err != nil {
		return err
	}
	_, err = h.writer.Write(b)
	return err
}

func ParseLogLevel(s string) logrus.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return logrus.TraceLevel
	case "debug":
		return logrus.DebugLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	case "panic":
		return logrus.PanicLevel
	default:
		return logrus.InfoLevel
	}
}

// NewLogger returns the logger registered under name, creating it on first
// use.
func NewLogger(name string) *logrus.Logger {
	loggerRegistryMu.Lock()
	defer loggerRegistryMu.Unlock()
	if l, ok := loggerRegistry[name]; ok {
		return l
	}

	l := logrus.New()
	l.SetLevel(baseLevel)
	l.SetOutput(consoleOutput)
	if consoleLogFormat == "json" {
		l.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: timestampFormat,
			FieldMap:        logrus.FieldMap{logrus.FieldKeyMsg: "message"},
		})
	} else {
		l.SetFormatter(&TextFormatter{LoggerName: name, Color: true, NameWidth: 10})
	}
	if w := fileWriter(); w != nil {
		l.AddHook(&fileHook{writer: w, formatter: &TextFormatter{LoggerName: name, NameWidth: 10}})
	}
	loggerRegistry[name] = l
	return l
}

func SetLoggerLevel(name string, lvl string) bool {
	loggerRegistryMu.RLock()
	l, ok := loggerRegistry[name]
	loggerRegistryMu.RUnlock()
	if !ok {
		return false
	}
	l.SetLevel(ParseLogLevel(lvl))
	return true
}

// ConfigureLogLevel sets the level of every registered logger and of
// loggers created later.
func ConfigureLogLevel(lvl string) {
	baseLevel = ParseLogLevel(lvl)
	loggerRegistryMu.RLock()
	for _, l := range loggerRegistry {
		l.SetLevel(baseLevel)
	}
	loggerRegistryMu.RUnlock()
}

// TextFormatter prints "time LEVEL [name] message key=value ...".
type TextFormatter struct {
	LoggerName string
	NameWidth  int
	Color      bool
}

func (f *TextFormatter) Format(e *logrus.Entry) ([]byte, error) {
	var b bytes.Buffer
	lvl := fmt.Sprintf("%-5s", strings.ToUpper(e.Level.String()))
	if f.Color {
		lvl = levelColor(e.Level).Sprint(lvl)
	}
	name := f.LoggerName
	if f.NameWidth > 0 && len(name) > f.NameWidth {
		name = name[:f.NameWidth]
	}
	if f.Color {
		name = color.CyanString("%*s", f.NameWidth, name)
	} else {
		name = fmt.Sprintf("%*s", f.NameWidth, name)
	}
	_, _ = fmt.Fprintf(&b, "%s %s [%s] %s", e.Time.Format(timestampFormat), lvl, name, e.Message)

	keys := make([]string, 0, len(e.Data))
	for k := range e.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		_, _ = fmt.Fprintf(&b, " %s=%v", k, e.Data[k])
	}
	b.WriteByte('\n')
	return b.Bytes(), nil
}

func levelColor(level logrus.Level) *color.Color {
	switch level {
	case logrus.ErrorLevel, logrus.FatalLevel, logrus.PanicLevel:
		return color.New(color.FgRed)
	case logrus.WarnLevel:
		return color.New(color.FgYellow)
	case logrus.InfoLevel:
		return color.New(color.FgGreen)
	case logrus.DebugLevel:
		return color.New(color.FgBlue)
	default:
		return color.New(color.FgMagenta)
	}
}
