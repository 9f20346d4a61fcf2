package codec

import (
	"errors"
	"testing"

	"github.com/DKorablin/NamedPipesProxy/rpcerr"
)

func TestAsRoundTrip(t *testing.T) {
	data, err := EncodeTuple(42)
	if err != nil {
		t.Fatalf("EncodeTuple: %v", err)
	}
	var raw []int
	if err := AsTuple(data, []any{&raw}); err == nil {
		t.Fatalf("AsTuple should fail decoding a single int into a slice arg")
	}

	v, err := As[int]([]byte("42"))
	if err != nil {
		t.Fatalf("As[int]: %v", err)
	}
	if v != 42 {
		t.Errorf("As[int] = %d, want 42", v)
	}
}

func TestAsEmptyPayload(t *testing.T) {
	v, err := As[string](nil)
	if err != nil {
		t.Fatalf("As[string](nil): %v", err)
	}
	if v != "" {
		t.Errorf("As[string](nil) = %q, want empty", v)
	}
}

func TestAsMalformed(t *testing.T) {
	_, err := As[int]([]byte("not-a-number"))
	if !errors.Is(err, rpcerr.ErrPayloadMalformed) {
		t.Fatalf("As[int] malformed = %v, want ErrPayloadMalformed", err)
	}
}

func TestAsTupleRoundTrip(t *testing.T) {
	data, err := EncodeTuple(1, 2)
	if err != nil {
		t.Fatalf("EncodeTuple: %v", err)
	}
	var a, b int
	if err := AsTuple(data, []any{&a, &b}); err != nil {
		t.Fatalf("AsTuple: %v", err)
	}
	if a != 1 || b != 2 {
		t.Errorf("AsTuple decoded (%d, %d), want (1, 2)", a, b)
	}
}

func TestAsTupleArityMismatch(t *testing.T) {
	data, err := EncodeTuple(1)
	if err != nil {
		t.Fatalf("EncodeTuple: %v", err)
	}
	var a, b int
	err = AsTuple(data, []any{&a, &b})
	if !errors.Is(err, rpcerr.ErrArityMismatch) {
		t.Fatalf("AsTuple arity mismatch = %v, want ErrArityMismatch", err)
	}
}
