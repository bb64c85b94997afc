// Package logger is the zerolog wrapper every sales desk process logs
// through. Fields travel in the context: a request id set by the HTTP
// middleware or a sale id set by the intake coordinator shows up on every
// entry written further down the call chain.
package logger

import (
	"context"
	"io"
	"os"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	pkgerrors "github.com/angelmondragon/salesdesk-backend/pkg/errors"
)

const FormatConsole = "console"

// Field names shared by every service so entries for one sale can be
// joined across the API, the cron worker and the outbox publisher.
const (
	FieldRequestID        = "request_id"
	FieldActorID          = "actor_id"
	FieldActorRole        = "actor_role"
	FieldSaleID           = "sale_id"
	FieldDealerID         = "dealer_id"
	FieldProductID        = "product_id"
	FieldBatchNumber      = "batch_number"
	FieldReconciliationID = "reconciliation_id"
	FieldErrorCode        = "error_code"
)

type Options struct {
	ServiceName string
	Level       zerolog.Level
	Format      string
	// WarnStack adds a stack trace to warnings as well as errors.
	WarnStack bool
	Output    io.Writer
}

type Logger struct {
	base      zerolog.Logger
	warnStack bool
}

func New(opts Options) *Logger {
	if opts.Level == zerolog.NoLevel {
		opts.Level = zerolog.InfoLevel
	}
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}
	if strings.EqualFold(opts.Format, FormatConsole) {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"}
	}
	zerolog.TimeFieldFormat = time.RFC3339Nano

	return &Logger{
		base: zerolog.New(out).Level(opts.Level).With().
			Timestamp().
			Str("service", opts.ServiceName).
			Logger(),
		warnStack: opts.WarnStack,
	}
}

// Nop discards everything.
func Nop() *Logger {
	return New(Options{ServiceName: "nop", Output: io.Discard, Level: zerolog.Disabled})
}

// ParseLevel falls back to info for empty or unknown names.
func ParseLevel(value string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(value)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

// from returns the logger carried by ctx, or the base logger.
func (l *Logger) from(ctx context.Context) *zerolog.Logger {
	if ctx != nil {
		if entry := zerolog.Ctx(ctx); entry.GetLevel() != zerolog.Disabled {
			return entry
		}
	}
	return &l.base
}

func (l *Logger) with(ctx context.Context, build func(zerolog.Context) zerolog.Context) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return build(l.from(ctx).With()).Logger().WithContext(ctx)
}

func (l *Logger) WithField(ctx context.Context, key string, value any) context.Context {
	return l.with(ctx, func(c zerolog.Context) zerolog.Context {
		return c.Interface(key, value)
	})
}

func (l *Logger) WithFields(ctx context.Context, fields map[string]any) context.Context {
	return l.with(ctx, func(c zerolog.Context) zerolog.Context {
		return c.Fields(fields)
	})
}

func (l *Logger) WithRequestID(ctx context.Context, requestID string) context.Context {
	return l.with(ctx, func(c zerolog.Context) zerolog.Context {
		return c.Str(FieldRequestID, requestID)
	})
}

// WithActor tags every subsequent entry with the acting user and role.
func (l *Logger) WithActor(ctx context.Context, userID, role string) context.Context {
	return l.with(ctx, func(c zerolog.Context) zerolog.Context {
		return c.Str(FieldActorID, userID).Str(FieldActorRole, role)
	})
}

func (l *Logger) WithSale(ctx context.Context, saleID uuid.UUID) context.Context {
	return l.with(ctx, func(c zerolog.Context) zerolog.Context {
		return c.Str(FieldSaleID, saleID.String())
	})
}

// WithStockKey tags entries with the stock entry they touch. An empty
// batch is left out.
func (l *Logger) WithStockKey(ctx context.Context, dealerID, productID uuid.UUID, batch string) context.Context {
	return l.with(ctx, func(c zerolog.Context) zerolog.Context {
		c = c.Str(FieldDealerID, dealerID.String()).Str(FieldProductID, productID.String())
		if batch != "" {
			c = c.Str(FieldBatchNumber, batch)
		}
		return c
	})
}

// WithReconciliation tags entries with a reconciliation entry and its sale.
func (l *Logger) WithReconciliation(ctx context.Context, entryID, saleID uuid.UUID) context.Context {
	return l.with(ctx, func(c zerolog.Context) zerolog.Context {
		return c.Str(FieldReconciliationID, entryID.String()).Str(FieldSaleID, saleID.String())
	})
}

func (l *Logger) Debug(ctx context.Context, msg string) {
	l.from(ctx).Debug().Msg(msg)
}

func (l *Logger) Info(ctx context.Context, msg string) {
	l.from(ctx).Info().Msg(msg)
}

func (l *Logger) Warn(ctx context.Context, msg string) {
	event := l.from(ctx).Warn()
	if l.warnStack {
		event = event.Str("stack", stackTrace())
	}
	event.Msg(msg)
}

// Error logs err with its error code when it carries one. Rejections a
// caller caused (validation, not found, conflict) skip the stack trace;
// faults keep it.
func (l *Logger) Error(ctx context.Context, msg string, err error) {
	event := l.from(ctx).Error()
	if err == nil {
		event.Str("stack", stackTrace()).Msg(msg)
		return
	}
	event = event.Err(err)
	if typed := pkgerrors.As(err); typed != nil {
		event = event.Str(FieldErrorCode, string(typed.Code()))
		if !isFault(typed.Code()) {
			event.Msg(msg)
			return
		}
	}
	event.Str("stack", stackTrace()).Msg(msg)
}

func isFault(code pkgerrors.Code) bool {
	return code == pkgerrors.CodeInternal || code == pkgerrors.CodeDependency
}

func stackTrace() string {
	return strings.TrimSpace(string(debug.Stack()))
}
