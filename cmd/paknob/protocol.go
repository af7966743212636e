package main

import (
	"encoding/binary"
	"fmt"
	"io"
)

// PulseAudio native protocol opcodes (the subset this client speaks).
const (
	opError         = 0
	opReply         = 2
	opAuth          = 8
	opSetClientName = 9

	opGetSinkInfo   = 21
	opGetSourceInfo = 23

	opSetSinkVolume   = 36
	opSetSourceVolume = 38
	opSetSinkMute     = 39
	opSetSourceMute   = 40
)

const (
	// protocolVersion is the newest protocol revision this client speaks.
	// The negotiated version is min(protocolVersion, server version).
	protocolVersion = 32

	// minServerVersion is the oldest server revision supported; below 13
	// the client-name handshake uses a different encoding.
	minServerVersion = 13

	// protocolVersionMask strips the SHM/memfd capability flags the server
	// may set in the high bits of the AUTH reply.
	protocolVersionMask = 0x0000FFFF

	// invalidIndex asks the server to look an object up by name instead.
	invalidIndex = 0xFFFFFFFF

	// frameChannelCommand marks a frame as a command rather than stream data.
	frameChannelCommand = 0xFFFFFFFF

	// maxFrameSize guards against nonsense descriptors from a confused peer.
	maxFrameSize = 1024 * 1024
)

// frameHeaderSize is the fixed packet descriptor: length, channel,
// offset-hi, offset-lo, flags. All big-endian uint32.
const frameHeaderSize = 20

// buildFrame prefixes a command payload with its packet descriptor.
func buildFrame(payload []byte) []byte {
	frame := make([]byte, frameHeaderSize+len(payload))
	binary.BigEndian.PutUint32(frame[0:], uint32(len(payload)))
	binary.BigEndian.PutUint32(frame[4:], frameChannelCommand)
	copy(frame[frameHeaderSize:], payload)
	return frame
}

// readFrame reads one frame from the server and returns its payload and the
// channel it was addressed to.
func readFrame(r io.Reader) (payload []byte, channel uint32, err error) {
	var header [frameHeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, 0, err
	}
	length := binary.BigEndian.Uint32(header[0:])
	channel = binary.BigEndian.Uint32(header[4:])
	if length > maxFrameSize {
		return nil, 0, fmt.Errorf("oversized frame: %d bytes", length)
	}
	payload = make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, 0, err
	}
	return payload, channel, nil
}
