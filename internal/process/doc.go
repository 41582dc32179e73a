// Package process provides supervised one-shot subprocess execution.
//
// A Process wraps os/exec for a single bounded run:
//   - Deadline and cancellation via context
//   - Graceful shutdown with SIGINT and configurable timeout
//   - Force kill with SIGKILL if graceful shutdown times out
//   - stdout/stderr routed to caller-supplied writers
//
// Cleanup is deterministic on every exit path: Run never returns while the
// subprocess handle is still live.
//
// Example:
//
//	p := process.New("capture", "ffmpeg -f v4l2 -i /dev/video0 out.mp4", logger)
//	p.SetStderr(errLog)
//	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
//	defer cancel()
//	code, err := p.Run(ctx)
package process
