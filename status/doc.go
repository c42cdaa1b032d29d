// Package status collects one-line progress messages per chain step.
//
// The package follows the handler/writer split of log/slog:
//
//   - Line writes status messages for one step (analogous to slog.Logger)
//   - Board receives and stores them (analogous to slog.Handler)
//
// A Board is handed to the orchestrator with orchestrator.WithStatusSink and is
// read by the server to show live progress:
//
//	board := status.NewBoard()
//	o, _ := orchestrator.New(chain, orchestrator.WithStatusSink(board))
//	go o.Run(ctx)
//	for _, s := range board.All() {
//	    fmt.Println(s.Step, s.Message)
//	}
//
// The orchestrator binds a Line to each step and wraps provisioning and teardown
// in CaptureError, so a failing step's last status is its error.
package status
