package db

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
)

type fakeTx struct {
	pgx.Tx
	committed  bool
	rolledBack bool
}

func (f *fakeTx) Commit(context.Context) error {
	f.committed = true
	return nil
}

func (f *fakeTx) Rollback(context.Context) error {
	if !f.committed {
		f.rolledBack = true
	}
	return nil
}

type fakeBeginner struct {
	begun int
	tx    *fakeTx
}

func (f *fakeBeginner) Begin(context.Context) (pgx.Tx, error) {
	f.begun++
	f.tx = &fakeTx{}
	return f.tx, nil
}

func TestInTx_Commits(t *testing.T) {
	b := &fakeBeginner{}
	tr := NewTransactor(b)

	var inside pgx.Tx
	err := tr.InTx(context.Background(), func(ctx context.Context) error {
		inside = TxFromContext(ctx)
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inside == nil {
		t.Fatal("expected transaction on context")
	}
	if !b.tx.committed {
		t.Error("expected commit")
	}
	if b.tx.rolledBack {
		t.Error("did not expect rollback after commit")
	}
}

func TestInTx_RollsBackOnError(t *testing.T) {
	b := &fakeBeginner{}
	tr := NewTransactor(b)
	boom := errors.New("boom")

	err := tr.InTx(context.Background(), func(ctx context.Context) error { return boom })
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if b.tx.committed {
		t.Error("did not expect commit")
	}
	if !b.tx.rolledBack {
		t.Error("expected rollback")
	}
}

func TestInTx_NestedReusesOuter(t *testing.T) {
	b := &fakeBeginner{}
	tr := NewTransactor(b)

	err := tr.InTx(context.Background(), func(ctx context.Context) error {
		return tr.InTx(ctx, func(context.Context) error { return nil })
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.begun != 1 {
		t.Errorf("expected 1 transaction, got %d", b.begun)
	}
}

func TestConn_FallsBackWithoutTx(t *testing.T) {
	if TxFromContext(context.Background()) != nil {
		t.Fatal("expected no tx on empty context")
	}
	if got := Conn(context.Background(), nil); got != nil {
		t.Errorf("expected fallback, got %T", got)
	}
}
