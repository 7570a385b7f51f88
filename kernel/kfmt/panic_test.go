package kfmt

import (
	"bytes"
	goerrors "errors"
	"testing"

	"storagecore/kernel/errors"
)

func TestPanic(t *testing.T) {
	defer func() {
		haltFn = haltCPU
		outputSink = nil
	}()

	var haltCalled bool
	SetHaltFn(func() {
		haltCalled = true
	})

	var buf bytes.Buffer
	SetOutputSink(&buf)

	t.Run("with *errors.Error", func(t *testing.T) {
		haltCalled = false
		buf.Reset()

		Panic(&errors.Error{Module: "test", Message: "panic test"})

		exp := "\n-----------------------------------\n[test] unrecoverable error: panic test\n*** kernel panic: system halted ***\n-----------------------------------\n"

		if got := buf.String(); got != exp {
			t.Fatalf("expected to get:\n%q\ngot:\n%q", exp, got)
		}

		if !haltCalled {
			t.Fatal("expected the halt function to be called by Panic")
		}
	})

	t.Run("with error", func(t *testing.T) {
		haltCalled = false
		buf.Reset()

		Panic(goerrors.New("go error"))

		exp := "\n-----------------------------------\n[rt] unrecoverable error: go error\n*** kernel panic: system halted ***\n-----------------------------------\n"

		if got := buf.String(); got != exp {
			t.Fatalf("expected to get:\n%q\ngot:\n%q", exp, got)
		}

		if !haltCalled {
			t.Fatal("expected the halt function to be called by Panic")
		}
	})

	t.Run("with string", func(t *testing.T) {
		haltCalled = false
		buf.Reset()

		Panic("string error")

		exp := "\n-----------------------------------\n[rt] unrecoverable error: string error\n*** kernel panic: system halted ***\n-----------------------------------\n"

		if got := buf.String(); got != exp {
			t.Fatalf("expected to get:\n%q\ngot:\n%q", exp, got)
		}

		if !haltCalled {
			t.Fatal("expected the halt function to be called by Panic")
		}
	})

	t.Run("without error", func(t *testing.T) {
		haltCalled = false
		buf.Reset()

		Panic(nil)

		exp := "\n-----------------------------------\n*** kernel panic: system halted ***\n-----------------------------------\n"

		if got := buf.String(); got != exp {
			t.Fatalf("expected to get:\n%q\ngot:\n%q", exp, got)
		}

		if !haltCalled {
			t.Fatal("expected the halt function to be called by Panic")
		}
	})
}
