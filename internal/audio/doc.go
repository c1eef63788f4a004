// Package audio provides the sinks that receive raw PCM from a response.
//
// Every sink is an io.WriteCloser fed with signed 16-bit little-endian
// samples. Close flushes the sink and, for sinks backed by an external
// process, waits for that process to exit.
package audio
