package errors

import "testing"

func TestWrap(t *testing.T) {
	err := Wrap(errWrapped, "send cancel")
	if err.Error() != "send cancel, err: wrapped error" {
		t.Fatalf("error mismatch: %+v", err)
	}
	if !Is(err, errWrapped) {
		t.Fatalf("wrapped sentinel not found: %+v", err)
	}
}

func TestWrapf(t *testing.T) {
	err := Wrapf(errWrapped, "place order %d attempt %d", 42, 2)
	if err.Error() != "place order 42 attempt 2, err: wrapped error" {
		t.Fatalf("error mismatch: %+v", err)
	}
	if Wrapf(nil, "ignored") != nil {
		t.Fatal("wrapf of nil must stay nil")
	}
}
