// Package engine is the entry point for issuing calls.
//
// An Engine owns the call registry, one adapter per protocol and the
// lifecycle runner that drives every call:
//
//	eng, err := engine.New(engine.WithConfig(cfg), engine.WithLogger(log))
//	if err != nil {
//	    return err
//	}
//	state, err := eng.SendRequest(req, transport.Options{SubprojectID: "default"})
//	if err != nil {
//	    return err
//	}
//	events, _ := state.Events().Subscribe(ctx)
//	for ev := range events {
//	    fmt.Println(ev.Text)
//	}
//
// SendRequest returns as soon as the call is registered. Everything else
// (preparation, connection, the exchange and the terminal "Response
// completed" event) happens in the background. A finished call is removed
// from the registry once all of its subscribers received the terminal
// event.
package engine
