package hooks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/cklxx/taskctl/pkg/errs"
)

// Request is the JSON document written to a hook subprocess's stdin. Every
// field is always present — absent values appear as "" or null rather than
// being omitted, so hooks can rely on a stable shape.
type Request struct {
	Op            string         `json:"op"`
	Stage         string         `json:"stage"`
	TaskID        string         `json:"task_id"`
	AgentID       string         `json:"agent_id"`
	WorkspaceRoot string         `json:"workspace_root"`
	Payload       map[string]any `json:"payload"`
}

// Response is the JSON document a hook subprocess writes to stdout.
type Response struct {
	Decision string `json:"decision"` // "approve" | "block"
	Reason   string `json:"reason,omitempty"`
}

// run executes one hook subprocess with the JSON stdin/stdout contract,
// killing it if it exceeds timeout. The child runs with the
// workspace root as its CWD and a stripped environment carrying only PATH,
// HOME, the workspace root, the agent id, and the operation name — no other
// variable from the engine's own process is inherited.
func run(ctx context.Context, d Descriptor, req Request, timeout time.Duration, workspaceRoot string) (Response, time.Duration, error) {
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req.WorkspaceRoot = workspaceRoot

	body, err := json.Marshal(req)
	if err != nil {
		return Response{}, 0, err
	}

	cmd := exec.CommandContext(cctx, d.Path)
	// On timeout or cancellation, ask nicely first; the 1s WaitDelay kills
	// the child if it ignores SIGTERM.
	cmd.Cancel = func() error { return cmd.Process.Signal(syscall.SIGTERM) }
	cmd.WaitDelay = time.Second
	cmd.Stdin = bytes.NewReader(body)
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Dir = workspaceRoot
	cmd.Env = []string{
		fmt.Sprintf("PATH=%s", os.Getenv("PATH")),
		fmt.Sprintf("HOME=%s", os.Getenv("HOME")),
		fmt.Sprintf("TM_WORKSPACE=%s", workspaceRoot),
		fmt.Sprintf("TM_AGENT_ID=%s", req.AgentID),
		fmt.Sprintf("TM_OPERATION=%s", req.Op),
	}

	start := time.Now()
	err = cmd.Run()
	elapsed := time.Since(start)

	if cctx.Err() == context.DeadlineExceeded {
		return Response{}, elapsed, &errs.HookTimeoutError{Hook: d.Name}
	}
	if err != nil {
		return Response{}, elapsed, &errs.HookError{Hook: d.Name, Err: err}
	}

	var resp Response
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		return Response{}, elapsed, &errs.HookError{Hook: d.Name, Err: err}
	}
	return resp, elapsed, nil
}
