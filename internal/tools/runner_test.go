package tools

import (
	"context"
	"os/exec"
	"strings"
	"testing"

	"github.com/danmuck/relayctl/internal/testutil/testlog"
)

func TestExecRunnerCapturesStdout(t *testing.T) {
	testlog.Start(t)
	if _, err := exec.LookPath("echo"); err != nil {
		t.Skip("echo not available")
	}
	res, err := ExecRunner{}.Run(context.Background(), "echo", "hi")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if strings.TrimSpace(string(res.Stdout)) != "hi" || res.ExitCode != 0 {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestExecRunnerNonZeroExit(t *testing.T) {
	testlog.Start(t)
	if _, err := exec.LookPath("false"); err != nil {
		t.Skip("false not available")
	}
	res, err := ExecRunner{}.Run(context.Background(), "false")
	if err == nil {
		t.Fatalf("expected error for non-zero exit")
	}
	if res.ExitCode == 0 {
		t.Fatalf("expected non-zero exit code")
	}
}

func TestExecRunnerMissingProgram(t *testing.T) {
	testlog.Start(t)
	res, err := ExecRunner{}.Run(context.Background(), "relayctl-definitely-missing-binary")
	if err == nil {
		t.Fatalf("expected launch failure")
	}
	if res.ExitCode != 127 {
		t.Fatalf("expected exit code 127, got %d", res.ExitCode)
	}
}
