// Package opus encodes response audio as Opus for compact recordings and
// Discord voice playback.
//
// Audio is stored in a minimal binary format: concatenated length-prefixed
// frames ([uint16 LE length][opus bytes]). No headers, no metadata.
//
// Encode transcodes s16le PCM to Opus via FFmpeg and produces length-prefixed
// frames. FrameReader reads them back and Inspect summarises a recording.
// StreamToVoice sends frames to a Discord voice connection.
package opus
