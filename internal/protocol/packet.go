// Package protocol implements the binary framing spoken over the WebSocket.
// Each WebSocket message carries exactly one packet: a one-byte tag followed
// by a type-dependent payload. Multi-byte integers are big-endian.
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Packet tags.
const (
	PacketFrameRequest  byte = 0x01
	PacketFrameResponse byte = 0x02
	PacketInput         byte = 0x03
)

// Frame response types.
const (
	FrameEmpty   byte = 0x00
	FrameFull    byte = 0x01
	FramePartial byte = 0x02
)

// Login result codes. The login exchange reuses the frame-request tag: the
// first client message is `0x01 | u16 len | password`, the server answer is
// `0x01 | status`. Every later 0x01 message is a frame request.
const (
	AuthController byte = 0x00
	AuthViewer     byte = 0x01
	AuthDenied     byte = 0xFF
)

// ErrMalformedPacket is returned for any message that does not match the
// framing: unknown tag, wrong payload length, zero quality, bad JSON, or an
// input record with the wrong arity or field types.
var ErrMalformedPacket = errors.New("malformed packet")

// FrameRequest asks the server for the next frame at the given client
// viewport size and JPEG quality.
type FrameRequest struct {
	ViewportW uint16
	ViewportH uint16
	Quality   uint8
}

// EncodeFrameRequest encodes a frame request into a wire message.
func EncodeFrameRequest(r FrameRequest) []byte {
	msg := make([]byte, 6)
	msg[0] = PacketFrameRequest
	binary.BigEndian.PutUint16(msg[1:3], r.ViewportW)
	binary.BigEndian.PutUint16(msg[3:5], r.ViewportH)
	msg[5] = r.Quality
	return msg
}

// DecodeFrameRequest decodes a frame request message.
func DecodeFrameRequest(msg []byte) (FrameRequest, error) {
	if len(msg) != 6 || msg[0] != PacketFrameRequest {
		return FrameRequest{}, fmt.Errorf("%w: frame request length %d", ErrMalformedPacket, len(msg))
	}
	r := FrameRequest{
		ViewportW: binary.BigEndian.Uint16(msg[1:3]),
		ViewportH: binary.BigEndian.Uint16(msg[3:5]),
		Quality:   msg[5],
	}
	if r.Quality == 0 {
		return FrameRequest{}, fmt.Errorf("%w: frame request quality 0", ErrMalformedPacket)
	}
	return r, nil
}

// FrameResponse carries one emitted frame. CropX/CropY are meaningful only
// for FramePartial; JPEG is empty for FrameEmpty.
type FrameResponse struct {
	Type    byte
	RemoteW uint16
	RemoteH uint16
	CropX   uint16
	CropY   uint16
	JPEG    []byte
}

// EncodeFrameResponse encodes a frame response into a wire message.
// An empty frame encodes to exactly 6 bytes.
func EncodeFrameResponse(r FrameResponse) []byte {
	size := 6
	switch r.Type {
	case FrameFull:
		size += len(r.JPEG)
	case FramePartial:
		size += 4 + len(r.JPEG)
	}
	msg := make([]byte, 6, size)
	msg[0] = PacketFrameResponse
	msg[1] = r.Type
	binary.BigEndian.PutUint16(msg[2:4], r.RemoteW)
	binary.BigEndian.PutUint16(msg[4:6], r.RemoteH)
	if r.Type == FramePartial {
		var crop [4]byte
		binary.BigEndian.PutUint16(crop[0:2], r.CropX)
		binary.BigEndian.PutUint16(crop[2:4], r.CropY)
		msg = append(msg, crop[:]...)
	}
	if r.Type != FrameEmpty {
		msg = append(msg, r.JPEG...)
	}
	return msg
}

// DecodeFrameResponse decodes a frame response message.
func DecodeFrameResponse(msg []byte) (FrameResponse, error) {
	if len(msg) < 6 || msg[0] != PacketFrameResponse {
		return FrameResponse{}, fmt.Errorf("%w: frame response header", ErrMalformedPacket)
	}
	r := FrameResponse{
		Type:    msg[1],
		RemoteW: binary.BigEndian.Uint16(msg[2:4]),
		RemoteH: binary.BigEndian.Uint16(msg[4:6]),
	}
	switch r.Type {
	case FrameEmpty:
		if len(msg) != 6 {
			return FrameResponse{}, fmt.Errorf("%w: empty frame with trailing bytes", ErrMalformedPacket)
		}
	case FrameFull:
		r.JPEG = msg[6:]
	case FramePartial:
		if len(msg) < 10 {
			return FrameResponse{}, fmt.Errorf("%w: partial frame header", ErrMalformedPacket)
		}
		r.CropX = binary.BigEndian.Uint16(msg[6:8])
		r.CropY = binary.BigEndian.Uint16(msg[8:10])
		r.JPEG = msg[10:]
	default:
		return FrameResponse{}, fmt.Errorf("%w: frame type 0x%02x", ErrMalformedPacket, r.Type)
	}
	return r, nil
}

// EncodeLogin encodes the initial login message.
func EncodeLogin(password string) []byte {
	msg := make([]byte, 3, 3+len(password))
	msg[0] = PacketFrameRequest
	binary.BigEndian.PutUint16(msg[1:3], uint16(len(password)))
	return append(msg, password...)
}

// DecodeLogin decodes the initial login message.
func DecodeLogin(msg []byte) (string, error) {
	if len(msg) < 3 || msg[0] != PacketFrameRequest {
		return "", fmt.Errorf("%w: login header", ErrMalformedPacket)
	}
	n := int(binary.BigEndian.Uint16(msg[1:3]))
	if len(msg) != 3+n {
		return "", fmt.Errorf("%w: login length %d, declared %d", ErrMalformedPacket, len(msg)-3, n)
	}
	return string(msg[3:]), nil
}

// EncodeAuthResult encodes the fixed-shape login answer.
func EncodeAuthResult(status byte) []byte {
	return []byte{PacketFrameRequest, status}
}

// DecodeAuthResult decodes the login answer.
func DecodeAuthResult(msg []byte) (byte, error) {
	if len(msg) != 2 || msg[0] != PacketFrameRequest {
		return 0, fmt.Errorf("%w: auth result", ErrMalformedPacket)
	}
	switch msg[1] {
	case AuthController, AuthViewer, AuthDenied:
		return msg[1], nil
	}
	return 0, fmt.Errorf("%w: auth status 0x%02x", ErrMalformedPacket, msg[1])
}
