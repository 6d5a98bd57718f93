package shutdown

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"
)

func TestRun(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	var order []string
	step := func(name string, err error) Step {
		return Step{Name: name, Stop: func(ctx context.Context) error {
			if _, ok := ctx.Deadline(); !ok {
				t.Errorf("step %s ran without a deadline", name)
			}
			order = append(order, name)
			return err
		}}
	}

	boom := errors.New("boom")
	err := Run(log, time.Second, step("http", nil), step("grpc", boom), step("tracing", nil))
	if !errors.Is(err, boom) {
		t.Fatalf("expected step error, got %v", err)
	}
	if len(order) != 3 || order[0] != "http" || order[2] != "tracing" {
		t.Fatalf("steps ran as %v", order)
	}
	if err := Run(log, time.Second); err != nil {
		t.Fatalf("no steps: %v", err)
	}
}
