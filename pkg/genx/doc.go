// Package genx streams model output into a token-budgeted conversation.
//
// # Endpoints
//
// An Endpoint accepts the ordered message sequence of a conversation and
// returns an EventStream:
//
//	type EventStream interface {
//	    Next() (Event, error)
//	    Close() error
//	}
//
// The stream yields text deltas followed by exactly one terminal event:
// completed (with usage), incomplete (output token ceiling reached) or error.
// After the terminal event Next returns io.EOF. OpenAIEndpoint and
// GeminiEndpoint adapt the provider SDKs; Mux routes by model name.
//
// # Generator
//
// A Generator wraps one Endpoint call per user turn:
//
//	gen := genx.NewGenerator(conv, ep)
//	g := gen.Generate(ctx, prompt)
//	for frag, err := range g.Fragments() {
//	    if err != nil {
//	        return err
//	    }
//	    fmt.Print(frag)
//	}
//
// Generate appends the user turn before any model output is produced.
// Fragments is single-pass. On success exactly one assistant message holding
// the concatenated fragments is committed to the conversation; on failure none
// is. Usage reported by the completion event is recorded in the conversation
// and is never rolled back, even when the caller abandons the generation.
package genx
