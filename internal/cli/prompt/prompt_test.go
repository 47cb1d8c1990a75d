package prompt

import (
	"errors"
	"fmt"
	"testing"

	"github.com/manifoldco/promptui"
)

func TestWrapError(t *testing.T) {
	if wrapError(nil) != nil {
		t.Error("nil should stay nil")
	}
	for _, err := range []error{promptui.ErrInterrupt, promptui.ErrEOF, promptui.ErrAbort, fmt.Errorf("wrapped: %w", promptui.ErrInterrupt)} {
		if got := wrapError(err); !errors.Is(got, ErrAborted) {
			t.Errorf("wrapError(%v) = %v, want ErrAborted", err, got)
		}
	}
	other := errors.New("boom")
	if got := wrapError(other); got != other {
		t.Errorf("wrapError passed through %v, want %v", got, other)
	}
}

func TestConfirmWithForce(t *testing.T) {
	ok, err := ConfirmWithForce("Delete?", true)
	if err != nil || !ok {
		t.Fatalf("ConfirmWithForce(force) = %v, %v", ok, err)
	}
}
