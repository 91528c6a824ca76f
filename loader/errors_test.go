package loader

import "testing"

func TestExpectNoVerificationErrorsNilPassthrough(t *testing.T) {
	if got := expectNoVerificationErrors(nil); got != nil {
		t.Fatalf("expected nil passthrough, got %v", got)
	}
}

func TestExpectNoVerificationErrorsUpgradesVerificationClass(t *testing.T) {
	upgraded := []StatusCode{
		StatusVerificationError,
		StatusDeserializationError,
		StatusMissingDependency,
		StatusCyclicModuleDependency,
	}
	for _, code := range upgraded {
		err := newError(code, "boom")
		got := expectNoVerificationErrors(err)
		if got.Code != StatusInvariantViolation {
			t.Fatalf("expectNoVerificationErrors(%s) = %s, want StatusInvariantViolation", code, got.Code)
		}
		if got.Unwrap() != err {
			t.Fatalf("expected the original error to be wrapped for Unwrap, got %v", got.Unwrap())
		}
	}
}

func TestExpectNoVerificationErrorsLeavesOtherCodesAlone(t *testing.T) {
	untouched := []StatusCode{
		StatusConstraintNotSatisfied,
		StatusNumberOfTypeArgumentsMismatch,
		StatusMaxValueDepthReached,
		StatusInvariantViolation,
		StatusTypeResolutionFailure,
		StatusFunctionResolutionFailure,
	}
	for _, code := range untouched {
		err := newError(code, "boom")
		got := expectNoVerificationErrors(err)
		if got.Code != code {
			t.Fatalf("expectNoVerificationErrors(%s) changed the code to %s", code, got.Code)
		}
		if got != err {
			t.Fatalf("expected the same *VMError instance to be returned unchanged")
		}
	}
}

func TestVMErrorLocationFormatting(t *testing.T) {
	id := mid(0x02, "vault")
	withLoc := newErrorAt(StatusMissingDependency, id, "missing %s", id)
	if withLoc.Error() == "" {
		t.Fatalf("expected a non-empty error string")
	}
	noLoc := newError(StatusMissingDependency, "missing something")
	if !noLoc.Loc.Undefined {
		t.Fatalf("newError should produce an undefined location")
	}
	if withLoc.Loc.Undefined {
		t.Fatalf("newErrorAt should produce a defined location")
	}
}
