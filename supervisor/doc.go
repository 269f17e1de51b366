// Package supervisor keeps a Beddit sensor session alive and forwards its readings.
//
// A Supervisor runs a single loop: connect and open a session, read one
// reading, average each channel and hand the result to a Sink. Any session
// failure discards the session, optionally triggers a RadioResetHook for
// radio-level faults, waits the retry delay and connects again. The loop only
// ends when its context is cancelled, after a best-effort graceful stop of the
// live session.
//
// Example:
//
//	sup, err := supervisor.New(transport.RFCOMMDialer{}, "00:11:22:33:44:55", mySink,
//		supervisor.WithRadioResetHook(radio.NewCommandHook(cmds)),
//	)
//	if err != nil {
//		return err
//	}
//
//	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
//	defer stop()
//
//	return sup.Run(ctx)
package supervisor
