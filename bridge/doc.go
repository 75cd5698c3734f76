// Package bridge runs the conversational state machine for one live
// phone call: it gates inbound caller audio, turns sustained speech into
// transcribe/reply/synthesize pipelines, paces synthesized audio back out
// in wire frames, and enforces the call policy (re-engagement prompts,
// exit phrases, time limits).
//
// # Architecture
//
// A Session is owned by a single goroutine running Session.Run. The
// transport feeds it decoded media through HandleMedia and signals stream
// end through HandleStop; both are safe from any goroutine and never
// block. Everything slow (profile lookup, the turn pipeline, speaking a
// line) runs on worker goroutines bounded by a shared semaphore, and
// reports back to the owning loop through a channel, so a stop or a time
// limit takes effect even while a provider call is in flight.
//
// # Usage Example
//
//	sess, err := bridge.NewSession(bridge.SessionConfig{
//	    StreamSID: streamSID,
//	    CallSID:   callSID,
//	    Caller:    caller,
//	    Writer:    conn,
//	}, bridge.Collaborators{
//	    STT:   sttService,
//	    TTS:   ttsService,
//	    Agent: agentService,
//	})
//	if err != nil {
//	    return err
//	}
//	go sess.Run(ctx)
//
//	for frame := range inbound {
//	    sess.HandleMedia(frame)
//	}
//	sess.HandleStop()
//	<-sess.Done()
package bridge
