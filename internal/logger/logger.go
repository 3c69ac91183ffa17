package logger

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
)

// Level represents the logging level
type Level int

const (
	// DEBUG level for detailed debugging information
	DEBUG Level = iota
	// INFO level for informational messages
	INFO
	// WARN level for warning messages
	WARN
	// ERROR level for error messages
	ERROR
)

// String returns the string representation of the level
func (l Level) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Logger handles logging to file with size-based rotation
type Logger struct {
	mu         sync.RWMutex
	level      Level
	file       *os.File
	infoLog    *log.Logger
	warnLog    *log.Logger
	errorLog   *log.Logger
	debugLog   *log.Logger
	logDir     string
	maxSize    int64
	maxBackups int
	written    int64
}

// Config holds logger configuration
type Config struct {
	LogDir     string
	Level      Level
	MaxSize    int64 // rotate when the active file exceeds this many bytes
	MaxBackups int   // numbered backups to keep after rotation
}

// DefaultConfig returns the default logger configuration
func DefaultConfig() Config {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}

	logDir := filepath.Join(homeDir, ".local", "state", "kikitori", "logs")

	return Config{
		LogDir:     logDir,
		Level:      INFO,
		MaxSize:    10 * 1024 * 1024,
		MaxBackups: 5,
	}
}

// New creates a new logger
func New(config Config) (*Logger, error) {
	if config.MaxSize <= 0 {
		config.MaxSize = 10 * 1024 * 1024
	}
	if config.MaxBackups <= 0 {
		config.MaxBackups = 5
	}

	l := &Logger{
		level:      config.Level,
		logDir:     config.LogDir,
		maxSize:    config.MaxSize,
		maxBackups: config.MaxBackups,
	}

	if err := l.openLog(); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	return l, nil
}

// logPath returns the path of the active log file
func (l *Logger) logPath() string {
	return filepath.Join(l.logDir, "kikitori.log")
}

// openLog opens (or reopens) the active log file and rebuilds the level writers
func (l *Logger) openLog() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		l.file.Close()
		l.file = nil
	}

	if err := os.MkdirAll(l.logDir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	filePath := l.logPath()
	file, err := os.OpenFile(filePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return fmt.Errorf("failed to stat log file: %w", err)
	}

	l.file = file
	l.written = info.Size()

	l.infoLog = log.New(file, "[INFO] ", log.LstdFlags)
	l.warnLog = log.New(file, "[WARN] ", log.LstdFlags)
	l.errorLog = log.New(file, "[ERROR] ", log.LstdFlags)
	l.debugLog = log.New(file, "[DEBUG] ", log.LstdFlags)

	return nil
}

// rotate shifts numbered backups and starts a fresh active file.
// kikitori.log -> kikitori.log.1 -> ... -> kikitori.log.N (oldest dropped)
func (l *Logger) rotate() error {
	l.mu.Lock()

	if l.file != nil {
		l.file.Close()
		l.file = nil
	}

	oldest := fmt.Sprintf("%s.%d", l.logPath(), l.maxBackups)
	if err := os.Remove(oldest); err != nil && !os.IsNotExist(err) {
		l.mu.Unlock()
		return fmt.Errorf("failed to remove oldest backup: %w", err)
	}

	for i := l.maxBackups - 1; i >= 1; i-- {
		src := fmt.Sprintf("%s.%d", l.logPath(), i)
		dst := fmt.Sprintf("%s.%d", l.logPath(), i+1)
		if err := os.Rename(src, dst); err != nil && !os.IsNotExist(err) {
			l.mu.Unlock()
			return fmt.Errorf("failed to shift backup %s: %w", src, err)
		}
	}

	if err := os.Rename(l.logPath(), l.logPath()+".1"); err != nil && !os.IsNotExist(err) {
		l.mu.Unlock()
		return fmt.Errorf("failed to archive log file: %w", err)
	}

	l.mu.Unlock()
	return l.openLog()
}

// checkRotation checks if size-based rotation is needed and performs it
func (l *Logger) checkRotation() {
	l.mu.RLock()
	needsRotation := l.written >= l.maxSize
	l.mu.RUnlock()

	if needsRotation {
		if err := l.rotate(); err != nil {
			// Can't log this error since logging is failing
			fmt.Fprintf(os.Stderr, "Failed to rotate log: %v\n", err)
		}
	}
}

// write emits one line through the given level writer and tracks bytes written
func (l *Logger) write(lg *log.Logger, format string, v ...interface{}) {
	if lg == nil {
		return
	}
	msg := fmt.Sprintf(format, v...)
	lg.Print(msg)

	l.mu.Lock()
	// prefix + timestamp + message + newline; close enough for rotation purposes
	l.written += int64(len(msg)) + 30
	l.mu.Unlock()
}

// Debug logs a debug message
func (l *Logger) Debug(format string, v ...interface{}) {
	l.mu.RLock()
	level := l.level
	l.mu.RUnlock()

	if level <= DEBUG {
		l.checkRotation()
		l.mu.RLock()
		debugLog := l.debugLog
		l.mu.RUnlock()
		l.write(debugLog, format, v...)
	}
}

// Info logs an informational message
func (l *Logger) Info(format string, v ...interface{}) {
	l.mu.RLock()
	level := l.level
	l.mu.RUnlock()

	if level <= INFO {
		l.checkRotation()
		l.mu.RLock()
		infoLog := l.infoLog
		l.mu.RUnlock()
		l.write(infoLog, format, v...)
	}
}

// Warn logs a warning message
func (l *Logger) Warn(format string, v ...interface{}) {
	l.mu.RLock()
	level := l.level
	l.mu.RUnlock()

	if level <= WARN {
		l.checkRotation()
		l.mu.RLock()
		warnLog := l.warnLog
		l.mu.RUnlock()
		l.write(warnLog, format, v...)
	}
}

// Error logs an error message
func (l *Logger) Error(format string, v ...interface{}) {
	l.mu.RLock()
	level := l.level
	l.mu.RUnlock()

	if level <= ERROR {
		l.checkRotation()
		l.mu.RLock()
		errorLog := l.errorLog
		l.mu.RUnlock()
		l.write(errorLog, format, v...)
	}
}

// Close closes the log file
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// SetLevel sets the logging level
func (l *Logger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.level = level
}

// GetLevel returns the current logging level
func (l *Logger) GetLevel() Level {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.level
}
