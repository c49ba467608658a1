package pipeline

import "testing"

func TestPlanSingleStage(t *testing.T) {
	p, err := Parse("sort < in > out")
	if err != nil {
		t.Fatal(err)
	}
	plan := Plan(p)
	if len(plan) != 1 {
		t.Fatalf("expected 1 binding, got %d", len(plan))
	}
	b := plan[0]
	if b.Stdin != (Source{Kind: FromFile, Path: "in"}) {
		t.Errorf("stdin: got %v", b.Stdin)
	}
	if b.Stdout != (Sink{Kind: ToFile, Path: "out"}) {
		t.Errorf("stdout: got %v", b.Stdout)
	}
	if b.Stderr.Kind != ToExternal {
		t.Errorf("stderr: got %v", b.Stderr)
	}
}

func TestPlanPipes(t *testing.T) {
	p, err := Parse("a | b | c")
	if err != nil {
		t.Fatal(err)
	}
	plan := Plan(p)
	want := []struct {
		stdin, stdout, stderr string
	}{
		{"external", "pipe[0].w", "inherited"},
		{"pipe[0].r", "pipe[1].w", "inherited"},
		{"pipe[1].r", "external", "external"},
	}
	for i, w := range want {
		b := plan[i]
		if b.Stdin.String() != w.stdin || b.Stdout.String() != w.stdout || b.Stderr.String() != w.stderr {
			t.Errorf("stage %d: got (%v, %v, %v), want (%s, %s, %s)",
				i, b.Stdin, b.Stdout, b.Stderr, w.stdin, w.stdout, w.stderr)
		}
		if len(b.Ignored) != 0 {
			t.Errorf("stage %d: unexpected ignored redirects %q", i, b.Ignored)
		}
	}
}

func TestPlanPipeOverridesRedirects(t *testing.T) {
	p, err := Parse("a < in > lost | b < lost2 >> out")
	if err != nil {
		t.Fatal(err)
	}
	plan := Plan(p)

	if plan[0].Stdin.Kind != FromFile || plan[0].Stdout.Kind != ToPipe {
		t.Errorf("stage 0: got (%v, %v)", plan[0].Stdin, plan[0].Stdout)
	}
	if len(plan[0].Ignored) != 1 || plan[0].Ignored[0] != "> lost" {
		t.Errorf("stage 0 ignored: %q", plan[0].Ignored)
	}

	if plan[1].Stdin.Kind != FromPipe {
		t.Errorf("stage 1 stdin: got %v", plan[1].Stdin)
	}
	if plan[1].Stdout.String() != "file(out, append)" {
		t.Errorf("stage 1 stdout: got %v", plan[1].Stdout)
	}
	if len(plan[1].Ignored) != 1 || plan[1].Ignored[0] != "< lost2" {
		t.Errorf("stage 1 ignored: %q", plan[1].Ignored)
	}
}
