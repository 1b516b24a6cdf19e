package action_test

import (
	"context"
	"errors"
	"testing"

	"github.com/xraph/flowline/action"
)

type stubHandler struct {
	typ  string
	spec action.Spec
	fn   func(ctx context.Context, in action.Input) (map[string]any, error)
}

func (s *stubHandler) Type() string { return s.typ }
func (s *stubHandler) Spec() action.Spec {
	return s.spec
}
func (s *stubHandler) Execute(ctx context.Context, in action.Input) (map[string]any, error) {
	return s.fn(ctx, in)
}

func TestRegistry_RejectsDuplicateType(t *testing.T) {
	r := action.NewRegistry()
	h := &stubHandler{typ: "CUSTOM", fn: func(context.Context, action.Input) (map[string]any, error) {
		return nil, nil
	}}

	if err := r.Register(h); err != nil {
		t.Fatalf("first Register: %v", err)
	}
	if err := r.Register(h); !errors.Is(err, action.ErrDuplicateAction) {
		t.Fatalf("second Register error = %v, want ErrDuplicateAction", err)
	}
}

func TestRegistry_UnknownTypeIsError(t *testing.T) {
	r := action.NewRegistry()
	_, err := r.Execute(context.Background(), "NOPE", action.Input{})
	if !errors.Is(err, action.ErrUnknownAction) {
		t.Fatalf("Execute error = %v, want ErrUnknownAction", err)
	}
}

func TestRegistry_ValidationFailureIsStructuredResult(t *testing.T) {
	r := action.NewRegistry()
	invoked := false
	r.MustRegister(&stubHandler{
		typ:  "CUSTOM",
		spec: action.Spec{Fields: []action.Field{{Name: "name", Type: action.FieldString, Required: true}}},
		fn: func(context.Context, action.Input) (map[string]any, error) {
			invoked = true
			return nil, nil
		},
	})

	res, err := r.Execute(context.Background(), "CUSTOM", action.Input{Params: map[string]any{}})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Success {
		t.Fatal("validation failure must not be a success")
	}
	if res.Error == nil || res.Error.Kind != action.KindValidation {
		t.Fatalf("result error = %+v, want VALIDATION kind", res.Error)
	}
	if invoked {
		t.Fatal("handler must not run when validation fails")
	}
}

func TestRegistry_HandlerErrorBecomesResult(t *testing.T) {
	r := action.NewRegistry()
	r.MustRegister(&stubHandler{
		typ: "CUSTOM",
		fn: func(context.Context, action.Input) (map[string]any, error) {
			return nil, action.Errorf(action.KindNetwork, "CONNECTION_FAILED", "connection refused")
		},
	})

	res, err := r.Execute(context.Background(), "CUSTOM", action.Input{Params: map[string]any{}})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Success {
		t.Fatal("handler error must produce a failed result")
	}
	if res.Error.Kind != action.KindNetwork {
		t.Errorf("error kind = %v, want NETWORK", res.Error.Kind)
	}
	if !res.Error.Retryable() {
		t.Error("network error should be retryable")
	}
}

func TestRetryableClassification(t *testing.T) {
	tests := []struct {
		kind action.ErrorKind
		want bool
	}{
		{action.KindNetwork, true},
		{action.KindTimeout, true},
		{action.KindRateLimit, true},
		{action.KindValidation, false},
		{action.KindConflict, false},
		{action.KindInternal, false},
	}
	for _, tt := range tests {
		err := action.Errorf(tt.kind, "X", "x")
		if got := action.Retryable(err); got != tt.want {
			t.Errorf("Retryable(%s) = %v, want %v", tt.kind, got, tt.want)
		}
	}

	if action.Retryable(errors.New("connection refused")) {
		t.Error("message text must not drive retryability")
	}
}

func TestAsError_ClassifiesDeadline(t *testing.T) {
	ae := action.AsError(context.DeadlineExceeded)
	if ae.Kind != action.KindTimeout {
		t.Errorf("kind = %v, want TIMEOUT", ae.Kind)
	}

	ae = action.AsError(errors.New("mystery"))
	if ae.Kind != action.KindInternal {
		t.Errorf("kind = %v, want INTERNAL", ae.Kind)
	}
}
