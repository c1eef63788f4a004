// Package pipeline turns the realtime event stream into a spoken response.
//
// One response is cut out of the session stream (TakeResponse), teed into an
// audio branch and a transcript branch (Tee), and each branch is reduced to
// its payload: decoded PCM for the audio sink, text deltas for the
// transcript. Every channel in the pipeline is unbuffered, so events reach
// each consumer in source order and the slowest consumer paces the socket.
package pipeline
