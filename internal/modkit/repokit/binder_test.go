package repokit

import (
	"testing"

	"secondbrain/internal/platform/testkit"
)

func TestBindFuncBindCallsFunc(t *testing.T) {
	t.Parallel()

	var d Docs // nil is fine; BindFunc doesn't use it
	b := BindFunc[string](func(_ Docs) string {
		return "ok"
	})

	got := b.Bind(d)
	if got != "ok" {
		t.Fatalf("BindFunc.Bind = %q, want %q", got, "ok")
	}
}

func TestRequireDocsPanicsOnNil(t *testing.T) {
	t.Parallel()

	var d Docs
	testkit.MustPanic(t, func() {
		_ = RequireDocs(d)
	})
}

func TestMustBindPanicsOnNilDocs(t *testing.T) {
	t.Parallel()

	var d Docs
	b := BindFunc[int](func(_ Docs) int { return 42 })

	testkit.MustPanic(t, func() {
		_ = MustBind[int](b, d)
	})
}

func TestRequireDocsReturnsSame(t *testing.T) {
	t.Parallel()

	in := testkit.NewMemDocs()
	out := RequireDocs(in)

	if out != Docs(in) {
		t.Fatalf("RequireDocs did not return the same instance")
	}
}
