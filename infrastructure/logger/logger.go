package logger

import (
	"os"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	once      sync.Once
	appLogger *zap.Logger
	level     = zap.NewAtomicLevelAt(zap.InfoLevel)
	output    atomic.Value // zapcore.Core
	sink      zapcore.WriteSyncer = zapcore.AddSync(os.Stdout)
)

// Get returns the process wide logger. Components derive their own tagged
// logger from it with Named.
func Get() *zap.Logger {
	once.Do(initLogger)
	return appLogger
}

// Named is a shortcut for Get().Named(name).
func Named(name string) *zap.Logger {
	return Get().Named(name)
}

// SetLevel changes the level of every logger derived from Get, including the
// ones created before the configuration was loaded. Unknown levels are ignored.
func SetLevel(lvl string) bool {
	parsed, err := zapcore.ParseLevel(lvl)
	if err != nil {
		return false
	}
	level.SetLevel(parsed)
	return true
}

// Configure applies the logging configuration to every logger, package level
// ones included. Pretty switches to the colored console encoder.
func Configure(lvl string, pretty bool) bool {
	Get()
	output.Store(newCore(pretty))
	return SetLevel(lvl)
}

func initLogger() {
	output.Store(newCore(false))
	appLogger = zap.New(&swappableCore{})
}

func newCore(pretty bool) zapcore.Core {
	var encoder zapcore.Encoder
	if pretty {
		developmentCfg := zap.NewDevelopmentEncoderConfig()
		developmentCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(developmentCfg)
	} else {
		productionCfg := zap.NewProductionEncoderConfig()
		productionCfg.TimeKey = "timestamp"
		productionCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		encoder = zapcore.NewJSONEncoder(productionCfg)
	}

	return zapcore.NewCore(encoder, sink, level)
}

// swappableCore writes through whichever core Configure stored last, so
// loggers built at package init follow the loaded configuration.
type swappableCore struct {
	fields []zapcore.Field
}

func (c *swappableCore) current() zapcore.Core {
	return output.Load().(zapcore.Core)
}

func (c *swappableCore) Enabled(lvl zapcore.Level) bool {
	return level.Enabled(lvl)
}

func (c *swappableCore) With(fields []zapcore.Field) zapcore.Core {
	merged := make([]zapcore.Field, 0, len(c.fields)+len(fields))
	merged = append(merged, c.fields...)
	merged = append(merged, fields...)
	return &swappableCore{fields: merged}
}

func (c *swappableCore) Check(entry zapcore.Entry, checked *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(entry.Level) {
		return checked.AddCore(entry, c)
	}
	return checked
}

func (c *swappableCore) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	core := c.current()
	if len(c.fields) > 0 {
		core = core.With(c.fields)
	}
	return core.Write(entry, fields)
}

func (c *swappableCore) Sync() error {
	return c.current().Sync()
}
