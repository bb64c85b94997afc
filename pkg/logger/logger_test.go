package logger

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	pkgerrors "github.com/angelmondragon/salesdesk-backend/pkg/errors"
)

func TestErrorCarriesContextFields(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "test", Level: ParseLevel("debug"), Output: buf})
	saleID := uuid.New()

	ctx := log.WithRequestID(context.Background(), "req-123")
	ctx = log.WithSale(ctx, saleID)
	log.Error(ctx, "boom", errors.New("boom"))

	for _, want := range []string{`"request_id":"req-123"`, `"sale_id":"` + saleID.String() + `"`, `"stack"`, `"error":"boom"`} {
		if !bytes.Contains(buf.Bytes(), []byte(want)) {
			t.Fatalf("expected %s in entry=%s", want, buf.String())
		}
	}
}

func TestStockKeyAndReconciliationFields(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "test", Output: buf})
	dealerID, productID := uuid.New(), uuid.New()
	entryID, saleID := uuid.New(), uuid.New()

	log.Info(log.WithStockKey(context.Background(), dealerID, productID, ""), "no batch")
	if bytes.Contains(buf.Bytes(), []byte(FieldBatchNumber)) {
		t.Fatalf("empty batch should be omitted; entry=%s", buf.String())
	}
	if !bytes.Contains(buf.Bytes(), []byte(`"dealer_id":"`+dealerID.String()+`"`)) {
		t.Fatalf("expected dealer id; entry=%s", buf.String())
	}

	buf.Reset()
	ctx := log.WithStockKey(context.Background(), dealerID, productID, "LOT-7")
	log.Info(log.WithReconciliation(ctx, entryID, saleID), "deferred")
	for _, want := range []string{`"batch_number":"LOT-7"`, `"reconciliation_id":"` + entryID.String() + `"`, `"sale_id":"` + saleID.String() + `"`} {
		if !bytes.Contains(buf.Bytes(), []byte(want)) {
			t.Fatalf("expected %s in entry=%s", want, buf.String())
		}
	}
}

func TestErrorCodeAndStackByKind(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "test", Output: buf})

	log.Error(context.Background(), "rejected", pkgerrors.New(pkgerrors.CodeInsufficient, "no stock"))
	if !bytes.Contains(buf.Bytes(), []byte(`"error_code":"INSUFFICIENT_STOCK"`)) {
		t.Fatalf("expected error code; entry=%s", buf.String())
	}
	if bytes.Contains(buf.Bytes(), []byte(`"stack"`)) {
		t.Fatalf("caller rejections should not carry a stack; entry=%s", buf.String())
	}

	buf.Reset()
	log.Error(context.Background(), "fault", pkgerrors.Wrap(pkgerrors.CodeDependency, errors.New("db down"), "create sale"))
	if !bytes.Contains(buf.Bytes(), []byte(`"error_code":"DEPENDENCY_ERROR"`)) || !bytes.Contains(buf.Bytes(), []byte(`"stack"`)) {
		t.Fatalf("expected code and stack for a dependency fault; entry=%s", buf.String())
	}
}

func TestWithActor(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "test", Output: buf})

	ctx := log.WithActor(context.Background(), "user-9", "dealer_admin")
	log.Info(ctx, "hello")

	if !bytes.Contains(buf.Bytes(), []byte(`"actor_id":"user-9"`)) || !bytes.Contains(buf.Bytes(), []byte(`"actor_role":"dealer_admin"`)) {
		t.Fatalf("expected actor fields; entry=%s", buf.String())
	}
}

func TestFieldsDoNotLeakIntoParentContext(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "test", Output: buf})

	parent := log.WithField(context.Background(), "flow", "consumer")
	_ = log.WithField(parent, "attempt", 2)
	log.Info(parent, "parent")

	if bytes.Contains(buf.Bytes(), []byte(`"attempt"`)) || !bytes.Contains(buf.Bytes(), []byte(`"flow":"consumer"`)) {
		t.Fatalf("unexpected entry=%s", buf.String())
	}
}

func TestWarnStackToggle(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "test", Output: buf})
	log.Warn(context.Background(), "quiet")
	if bytes.Contains(buf.Bytes(), []byte(`"stack"`)) {
		t.Fatalf("did not expect stack without WarnStack")
	}

	buf.Reset()
	log = New(Options{ServiceName: "test", Output: buf, WarnStack: true})
	log.Warn(context.Background(), "loud")
	if !bytes.Contains(buf.Bytes(), []byte(`"stack"`)) {
		t.Fatalf("expected stack when warn stack enabled")
	}
}

func TestParseLevelDefaults(t *testing.T) {
	if lvl := ParseLevel(""); lvl != zerolog.InfoLevel {
		t.Fatalf("expected default info level, got %v", lvl)
	}
	if lvl := ParseLevel("invalid"); lvl != zerolog.InfoLevel {
		t.Fatalf("invalid level should fallback to info, got %v", lvl)
	}
	if lvl := ParseLevel(" WARN "); lvl != zerolog.WarnLevel {
		t.Fatalf("expected warn level, got %v", lvl)
	}
}
