package store

import (
	"context"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// dialect carries the per-driver differences. Queries are written once with
// ? placeholders and passed through bind.
type dialect struct {
	name string
	bind func(string) string
	// setTenant is executed at the start of every tenant transaction. It is
	// empty for drivers without session settings.
	setTenant string
	// insertRecord is the conditional idempotency insert. Arguments: the
	// eight record columns followed by the four key columns and since.
	insertRecord string
	// lockRecord serializes inserts for one key until the transaction ends.
	// Its single argument is the key string. Empty when the driver already
	// serializes writers.
	lockRecord string
}

// sqlStore implements Store and Tx on top of a conn.
type sqlStore struct {
	c conn
	d dialect
}

func (s *sqlStore) q(query string) string {
	return s.d.bind(query)
}

func (s *sqlStore) wrap(err error, op string) error {
	return eris.Wrapf(err, "%s: %s", s.d.name, op)
}

// InTenant runs fn in one transaction. On Postgres the transaction also sets
// app.current_tenant for row-level security; queries still filter tenant_id
// explicitly.
func (s *sqlStore) InTenant(ctx context.Context, tenantID int64, fn func(ctx context.Context, tx Tx) error) (err error) {
	tc, err := s.c.begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tc.rollback(context.WithoutCancel(ctx))
			panic(p)
		}
		if err != nil {
			_ = tc.rollback(context.WithoutCancel(ctx))
		}
	}()

	if s.d.setTenant != "" {
		if _, err = tc.exec(ctx, s.d.setTenant, strconv.FormatInt(tenantID, 10)); err != nil {
			return s.wrap(err, "set tenant "+itoa(tenantID))
		}
	}
	if err = fn(ctx, &sqlStore{c: tc, d: s.d}); err != nil {
		return err
	}
	if err = tc.commit(ctx); err != nil {
		return s.wrap(err, "commit")
	}
	return nil
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func stringArgs[T ~string](vs []T) []any {
	out := make([]any, len(vs))
	for i, v := range vs {
		out[i] = string(v)
	}
	return out
}

func checkRowsAffected(n int64, entity string, id int64) error {
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %d", entity, id)
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func splitIDs(s string) ([]int64, error) {
	var out []int64
	for _, part := range splitList(s) {
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, eris.Wrapf(err, "parse id %q", part)
		}
		out = append(out, id)
	}
	return out, nil
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}
