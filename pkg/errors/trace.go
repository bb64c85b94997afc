package errors

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// Trace flattens an error for a log entry.
type Trace struct {
	Code  Code
	Chain []string
	PG    *PGFault
}

// PGFault is what Postgres reported for a failed statement. Constraint
// names the unique index or check that fired, such as
// ux_stock_holds_sale_id when a sale is held twice.
type PGFault struct {
	SQLState   string
	Constraint string
	Table      string
	Detail     string
}

// TraceOf walks err's chain. Postgres errors are read from either driver.
func TraceOf(err error) Trace {
	var t Trace
	if err == nil {
		return t
	}
	if typed := As(err); typed != nil {
		t.Code = typed.Code()
	}
	for e := err; e != nil; e = errors.Unwrap(e) {
		t.Chain = append(t.Chain, fmt.Sprintf("%T: %v", e, e))
	}
	t.PG = pgFault(err)
	return t
}

func pgFault(err error) *PGFault {
	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) {
		return &PGFault{SQLState: pgxErr.Code, Constraint: pgxErr.ConstraintName, Table: pgxErr.TableName, Detail: pgxErr.Detail}
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return &PGFault{SQLState: string(pqErr.Code), Constraint: pqErr.Constraint, Table: pqErr.Table, Detail: pqErr.Detail}
	}
	return nil
}

// LogFields renders the trace as structured log fields. Postgres fields
// are present only when the chain holds a Postgres error.
func (t Trace) LogFields() map[string]any {
	fields := map[string]any{"error_chain": t.Chain}
	if t.Code != "" {
		fields["error_code"] = t.Code
	}
	if t.PG != nil {
		fields["pg_code"] = t.PG.SQLState
		fields["pg_constraint"] = t.PG.Constraint
		fields["pg_table"] = t.PG.Table
		if t.PG.Detail != "" {
			fields["pg_detail"] = t.PG.Detail
		}
	}
	return fields
}
