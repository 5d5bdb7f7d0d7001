package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// instrument carries the logger and tracer every service embeds.
type instrument struct {
	logger *zap.Logger
	tracer trace.Tracer
}

func newInstrument(logger *zap.Logger) instrument {
	return instrument{logger: logger, tracer: otel.Tracer("github.com/viagen-dev/viagen-sdk-sub000/internal/service")}
}

func (i instrument) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	if i.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return i.tracer.Start(ctx, name)
}

// audit logs a security event. Callers must never pass secret values or
// session tokens in attrs.
func (i instrument) audit(event string, attrs ...any) {
	i.log().Info("audit", auditFields(event, attrs)...)
}

func auditFields(event string, attrs []any) []zap.Field {
	fields := make([]zap.Field, 0, len(attrs)/2+2)
	fields = append(fields, zap.String("event", event), zap.Time("timestamp", time.Now().UTC()))
	for i := 0; i+1 < len(attrs); i += 2 {
		key, ok := attrs[i].(string)
		if !ok {
			continue
		}
		fields = append(fields, zap.Any(key, attrs[i+1]))
	}
	return fields
}

func (i instrument) log() *zap.Logger {
	if i.logger != nil {
		return i.logger
	}
	return zap.L()
}

func randomHex(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b)
}
