package logging

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the leveled, named logger handed to every component and service.
type Logger interface {
	Debug(args ...interface{})
	Debugf(template string, args ...interface{})
	Debugw(msg string, keysAndValues ...interface{})

	Info(args ...interface{})
	Infof(template string, args ...interface{})
	Infow(msg string, keysAndValues ...interface{})

	Warn(args ...interface{})
	Warnf(template string, args ...interface{})
	Warnw(msg string, keysAndValues ...interface{})

	Error(args ...interface{})
	Errorf(template string, args ...interface{})
	Errorw(msg string, keysAndValues ...interface{})

	// Sublogger returns a logger named "<name>.<subname>" that shares this logger's appenders
	// and starts at its current level.
	Sublogger(subname string) Logger
	AddAppender(appender Appender)
	SetLevel(level Level)
	GetLevel() Level
	Sync() error
}

type impl struct {
	name  string
	level AtomicLevel
	inUTC bool

	appenders []Appender
}

func newImpl(name string, level Level, inUTC bool, appenders ...Appender) *impl {
	return &impl{name: name, level: NewAtomicLevelAt(level), inUTC: inUTC, appenders: appenders}
}

func (imp *impl) AddAppender(appender Appender) {
	imp.appenders = append(imp.appenders, appender)
}

func (imp *impl) SetLevel(level Level) {
	imp.level.Set(level)
}

func (imp *impl) GetLevel() Level {
	return imp.level.Get()
}

func (imp *impl) Sublogger(subname string) Logger {
	name := subname
	if imp.name != "" {
		name = imp.name + "." + subname
	}
	return newImpl(name, imp.level.Get(), imp.inUTC, imp.appenders...)
}

func (imp *impl) Sync() error {
	var err error
	for _, appender := range imp.appenders {
		err = multierr.Append(err, appender.Sync())
	}
	return err
}

func (imp *impl) enabled(level Level) bool {
	return level >= imp.level.Get()
}

// entry starts a log entry stamped with the caller of the public logging method. The call depth
// from getCaller to that caller is fixed, so every public method reaches entry through exactly
// one of print, printf or printw.
func (imp *impl) entry(level Level, msg string) zapcore.Entry {
	now := time.Now()
	if imp.inUTC {
		now = now.UTC()
	}
	return zapcore.Entry{
		Level:      level.AsZap(),
		Time:       now,
		LoggerName: imp.name,
		Message:    msg,
		Caller:     getCaller(),
	}
}

func (imp *impl) write(entry zapcore.Entry, fields []zapcore.Field) {
	for _, appender := range imp.appenders {
		if err := appender.Write(entry, fields); err != nil {
			fmt.Fprintln(os.Stderr, err)
		}
	}
}

func (imp *impl) print(level Level, args ...interface{}) {
	if imp.enabled(level) {
		imp.write(imp.entry(level, fmt.Sprint(args...)), nil)
	}
}

func (imp *impl) printf(level Level, template string, args ...interface{}) {
	if imp.enabled(level) {
		imp.write(imp.entry(level, fmt.Sprintf(template, args...)), nil)
	}
}

// printw turns `keysAndValues` into zap fields where the odd elements are the keys and their
// following even counterpart is the value.
func (imp *impl) printw(level Level, msg string, keysAndValues ...interface{}) {
	if !imp.enabled(level) {
		return
	}
	entry := imp.entry(level, msg)
	fields := make([]zapcore.Field, 0, (len(keysAndValues)+1)/2)
	for i := 0; i < len(keysAndValues); i += 2 {
		var key string
		if stringer, ok := keysAndValues[i].(fmt.Stringer); ok {
			key = stringer.String()
		} else {
			key = fmt.Sprintf("%v", keysAndValues[i])
		}
		if i+1 < len(keysAndValues) {
			fields = append(fields, zap.Any(key, keysAndValues[i+1]))
		} else {
			// Keep the dangling key visible rather than dropping it.
			fields = append(fields, zap.Any(key, errors.New("unpaired log key")))
		}
	}
	imp.write(entry, fields)
}

func (imp *impl) Debug(args ...interface{}) { imp.print(DEBUG, args...) }
func (imp *impl) Debugf(template string, args ...interface{}) { imp.printf(DEBUG, template, args...) }
func (imp *impl) Debugw(msg string, kv ...interface{}) { imp.printw(DEBUG, msg, kv...) }
func (imp *impl) Info(args ...interface{}) { imp.print(INFO, args...) }
func (imp *impl) Infof(template string, args ...interface{}) { imp.printf(INFO, template, args...) }
func (imp *impl) Infow(msg string, kv ...interface{}) { imp.printw(INFO, msg, kv...) }
func (imp *impl) Warn(args ...interface{}) { imp.print(WARN, args...) }
func (imp *impl) Warnf(template string, args ...interface{}) { imp.printf(WARN, template, args...) }
func (imp *impl) Warnw(msg string, kv ...interface{}) { imp.printw(WARN, msg, kv...) }
func (imp *impl) Error(args ...interface{}) { imp.print(ERROR, args...) }
func (imp *impl) Errorf(template string, args ...interface{}) { imp.printf(ERROR, template, args...) }
func (imp *impl) Errorw(msg string, kv ...interface{}) { imp.printw(ERROR, msg, kv...) }

// getCaller returns where a public logging method was called from, e.g.
// "services/odometry/odometry.go:88".
func getCaller() zapcore.EntryCaller {
	// getCaller, entry, print*, the public method, its caller.
	const skipToLogCaller = 4
	var entryCaller zapcore.EntryCaller
	var ok bool
	entryCaller.PC, entryCaller.File, entryCaller.Line, ok = runtime.Caller(skipToLogCaller)
	if !ok {
		return entryCaller
	}
	entryCaller.Defined = true
	if fn := runtime.FuncForPC(entryCaller.PC); fn != nil {
		entryCaller.Function = fn.Name()
	}
	return entryCaller
}
