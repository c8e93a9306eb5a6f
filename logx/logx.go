package logx

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"sync/atomic"

	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	ColorReset  = "\033[0m"
	ColorRed    = "\033[31m"
	ColorGreen  = "\033[32m"
	ColorYellow = "\033[33m"
	ColorBlue   = "\033[34m"
)

const (
	defaultLogFile    = "./logs/votechain.log"
	defaultMaxSizeMB  = 100
	defaultMaxAgeDays = 7
)

// Options controls where log lines end up.
type Options struct {
	File       string
	MaxSizeMB  int
	MaxAgeDays int
	Stdout     bool
	Debug      bool
}

var (
	mu               sync.RWMutex
	lumberjackLogger *lumberjack.Logger
	logger           = log.New(os.Stderr, "", log.Ldate|log.Ltime|log.Lmicroseconds)
	debugEnabled     atomic.Bool
)

// Init routes the logger through a rotating file. Until Init is called lines go
// to stderr, so packages can log from tests without any setup.
func Init(opts Options) {
	if opts.File == "" {
		opts.File = defaultLogFile
	}
	if opts.MaxSizeMB <= 0 {
		opts.MaxSizeMB = defaultMaxSizeMB
	}
	if opts.MaxAgeDays <= 0 {
		opts.MaxAgeDays = defaultMaxAgeDays
	}

	lj := &lumberjack.Logger{
		Filename: opts.File,
		MaxSize:  opts.MaxSizeMB, // megabytes
		MaxAge:   opts.MaxAgeDays, // days
	}
	var out io.Writer = lj
	if opts.Stdout {
		out = io.MultiWriter(lj, os.Stderr)
	}

	mu.Lock()
	defer mu.Unlock()
	if lumberjackLogger != nil {
		_ = lumberjackLogger.Close()
	}
	lumberjackLogger = lj
	logger = log.New(out, "", log.Ldate|log.Ltime|log.Lmicroseconds)
	debugEnabled.Store(opts.Debug)
}

// Close flushes and closes the rotating file, falling back to stderr.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if lumberjackLogger == nil {
		return nil
	}
	err := lumberjackLogger.Close()
	lumberjackLogger = nil
	logger = log.New(os.Stderr, "", log.Ldate|log.Ltime|log.Lmicroseconds)
	return err
}

func output(color, level, category string, content ...interface{}) {
	message := fmt.Sprint(content...)
	coloredCategory := fmt.Sprintf("%s[%s][%s]%s", color, level, category, ColorReset)
	mu.RLock()
	defer mu.RUnlock()
	logger.Printf("%s: %s", coloredCategory, message)
}

func Info(category string, content ...interface{}) {
	output(ColorGreen, "INFO", category, content...)
}

func Error(category string, content ...interface{}) {
	output(ColorRed, "ERROR", category, content...)
}

func Warn(category string, content ...interface{}) {
	output(ColorYellow, "WARN", category, content...)
}

func Debug(category string, content ...interface{}) {
	if !debugEnabled.Load() {
		return
	}
	output(ColorBlue, "DEBUG", category, content...)
}

// Errorf logs an error message and returns a formatted error
func Errorf(format string, args ...interface{}) error {
	err := fmt.Errorf(format, args...)
	Error("ERROR", err.Error())
	return err
}
