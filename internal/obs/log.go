package obs

import (
	"encoding/json"
	"log"
	"os"
	"sync"
	"time"
)

var (
	loggerOnce sync.Once
	logger     *log.Logger
)

// Logger returns the shared structured logger used across the service.
func Logger() *log.Logger {
	loggerOnce.Do(func() {
		logger = log.New(os.Stdout, "", 0)
	})
	return logger
}

// LogJSON emits a structured JSON log line with common fields filled in.
func LogJSON(level, msg string, fields map[string]any) {
	entry := map[string]any{
		"ts":    time.Now().UTC().Format(time.RFC3339Nano),
		"level": level,
		"msg":   msg,
	}
	for k, v := range fields {
		entry[k] = v
	}
	data, err := json.Marshal(entry)
	if err != nil {
		Logger().Println(`{"level":"error","msg":"log marshal failed"}`)
		return
	}
	Logger().Println(string(data))
}

// Warn logs a warning with optional structured fields.
func Warn(msg string, fields map[string]any) { LogJSON("warn", msg, fields) }

// Error logs an error with optional structured fields.
func Error(msg string, fields map[string]any) { LogJSON("error", msg, fields) }

// Info logs an informational message with optional structured fields.
func Info(msg string, fields map[string]any) { LogJSON("info", msg, fields) }
