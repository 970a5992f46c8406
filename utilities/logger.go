package utilities

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	logMu    sync.Mutex
	infoLog  = log.New(os.Stdout, "INFO: ", log.Ldate|log.Ltime)
	warnLog  = log.New(os.Stdout, "WARNING: ", log.Ldate|log.Ltime)
	errorLog = log.New(os.Stderr, "ERROR: ", log.Ldate|log.Ltime)
	debugLog = log.New(io.Discard, "DEBUG: ", log.Ldate|log.Ltime)
)

// SetupLogging routes the leveled loggers to stdout/stderr plus a
// rotating file under logDir. Before it runs, logging degrades to
// plain stdout/stderr, which keeps tests quiet about files.
func SetupLogging(logDir string, debug bool) {
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		log.Fatalf("failed to create log directory: %v", err)
	}

	rotating := &lumberjack.Logger{
		Filename:   filepath.Join(logDir, "diagnostica.log"),
		MaxSize:    20, // megabytes
		MaxBackups: 5,
		MaxAge:     30, // days
		Compress:   true,
	}

	outWriter := io.MultiWriter(os.Stdout, rotating)
	errWriter := io.MultiWriter(os.Stderr, rotating)

	logMu.Lock()
	defer logMu.Unlock()
	infoLog = log.New(outWriter, "INFO: ", log.Ldate|log.Ltime)
	warnLog = log.New(outWriter, "WARNING: ", log.Ldate|log.Ltime)
	errorLog = log.New(errWriter, "ERROR: ", log.Ldate|log.Ltime)
	if debug {
		debugLog = log.New(outWriter, "DEBUG: ", log.Ldate|log.Ltime)
	}

	// Route Go's default logger through the same writer.
	log.SetOutput(outWriter)
}

func getCallerInfo() string {
	pc, _, _, ok := runtime.Caller(3)
	if !ok {
		return "unknown"
	}
	return runtime.FuncForPC(pc).Name()
}

func logf(l *log.Logger, format string, v ...interface{}) {
	logMu.Lock()
	defer logMu.Unlock()
	l.Printf("[%s] %s", getCallerInfo(), fmt.Sprintf(format, v...))
}

func Info(format string, v ...interface{})  { logf(infoLog, format, v...) }
func Warn(format string, v ...interface{})  { logf(warnLog, format, v...) }
func Error(format string, v ...interface{}) { logf(errorLog, format, v...) }
func Debug(format string, v ...interface{}) { logf(debugLog, format, v...) }
