package errs

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestErrorString(t *testing.T) {
	err := New("ingest/promote", CodePrecondition,
		WithMessage("nothing to promote"),
		WithDataset("merchant"),
		WithCanonicalCode(CanonicalNothingToPromote))

	str := err.Error()
	for _, want := range []string{"scope=ingest/promote", "code=failed_precondition", "canonical=nothing_to_promote", "dataset=merchant", `message="nothing to promote"`} {
		if !strings.Contains(str, want) {
			t.Errorf("expected %q in %q", want, str)
		}
	}
}

func TestUnknownScopeAndCanonicalOmitted(t *testing.T) {
	str := New("", CodeInvalid).Error()
	if !strings.Contains(str, "scope=unknown") {
		t.Errorf("expected unknown scope, got %q", str)
	}
	if strings.Contains(str, "canonical=") {
		t.Errorf("expected canonical to be omitted, got %q", str)
	}
}

func TestWithCauseUnwraps(t *testing.T) {
	root := errors.New("disk full")
	err := New("snapshot/file", CodeStorage, WithCause(root))
	if !errors.Is(err, root) {
		t.Fatal("expected errors.Is to reach the cause")
	}
	if !strings.Contains(err.Error(), `cause="disk full"`) {
		t.Errorf("expected cause in %q", err.Error())
	}
}

func TestWithFieldSortedAndTrimmed(t *testing.T) {
	err := New("x", CodeConflict, WithField(" slot ", " staging "), WithField("", "ignored"), WithField("expected", "3"))
	if got := err.Error(); !strings.Contains(got, `meta=expected="3",slot="staging"`) {
		t.Errorf("unexpected metadata rendering %q", got)
	}
}

func TestIsHelpersSeeThroughWrapping(t *testing.T) {
	base := New("ingest/rollback", CodePrecondition, WithCanonicalCode(CanonicalNothingToRollBack))
	wrapped := fmt.Errorf("cli: %w", base)

	if !IsCode(wrapped, CodePrecondition) {
		t.Error("expected IsCode to match wrapped envelope")
	}
	if !IsCanonical(wrapped, CanonicalNothingToRollBack) {
		t.Error("expected IsCanonical to match wrapped envelope")
	}
	if IsCanonical(wrapped, CanonicalNothingToPromote) {
		t.Error("unexpected canonical match")
	}
	if IsCode(errors.New("plain"), CodePrecondition) {
		t.Error("plain errors carry no code")
	}
}

func TestEmptyCanonicalResetsToUnknown(t *testing.T) {
	err := New("x", CodeInvalid, WithCanonicalCode("  "))
	if err.Canonical != CanonicalUnknown {
		t.Errorf("expected unknown canonical, got %q", err.Canonical)
	}
}

func TestNilEnvelopeString(t *testing.T) {
	var e *E
	if e.Error() != "<nil>" {
		t.Errorf("unexpected nil rendering %q", e.Error())
	}
}
