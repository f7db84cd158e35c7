package logging

import (
	"fmt"
	"os"

	"go.opentelemetry.io/contrib/bridges/otelzap"
	"go.opentelemetry.io/otel/log"
	"go.uber.org/zap/zapcore"
)

// instrumentationName identifies csphere log records in the OTEL pipeline.
const instrumentationName = "github.com/crosve/Csphere"

// newCore tees stdout and the OTEL bridge according to cfg.Output, then
// applies sampling.
func newCore(cfg *Config, otelProvider log.LoggerProvider) (zapcore.Core, error) {
	cores := make([]zapcore.Core, 0, 2)
	level := cfg.zapLevel()

	if cfg.Output.Stdout {
		encoder, err := NewRedactingEncoder(newEncoder(cfg.Format), cfg.Redaction)
		if err != nil {
			return nil, err
		}
		cores = append(cores, zapcore.NewCore(encoder, zapcore.Lock(os.Stdout), level))
	}

	if cfg.Output.OTEL && otelProvider != nil {
		bridge := otelzap.NewCore(instrumentationName, otelzap.WithLoggerProvider(otelProvider))
		cores = append(cores, &levelFilterCore{Core: bridge, minLevel: level, hasMin: true})
	}

	if len(cores) == 0 {
		return nil, fmt.Errorf("no log output available (stdout disabled and no OTEL provider)")
	}

	return newSampledCore(zapcore.NewTee(cores...), cfg.Sampling), nil
}
