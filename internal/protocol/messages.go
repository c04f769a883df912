// Package protocol implements the message definitions and the
// phase-aware frame/packet layer of the wire protocol: the tagged union
// of messages from each connection phase, their field-level codecs, and
// the length-prefixed, id-prefixed frame that carries them.
package protocol

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/coregx/receptionist/internal/varint"
)

// Phase selects which (id -> message) table a frame is decoded or
// encoded against. It is set once per connection by Handshake.Intent
// and never changes thereafter except for the implicit Login ->
// Configuration move after LoginAcknowledged.
type Phase int

const (
	PhaseHandshaking Phase = iota
	PhaseStatus
	PhaseLogin
	PhaseConfiguration
)

func (p Phase) String() string {
	switch p {
	case PhaseHandshaking:
		return "Handshaking"
	case PhaseStatus:
		return "Status"
	case PhaseLogin:
		return "Login"
	case PhaseConfiguration:
		return "Configuration"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// HandshakeIntent is the Handshake message's declared purpose, which
// selects Status or Login as the next phase.
type HandshakeIntent int32

const (
	IntentStatus   HandshakeIntent = 1
	IntentLogin    HandshakeIntent = 2
	IntentTransfer HandshakeIntent = 3
)

// Message is the tagged union of every protocol message this
// receptionist knows how to decode or encode. It carries no behavior of
// its own; the frame layer's phase/id tables are what give a message
// its wire identity.
type Message interface {
	isMessage()
}

// Handshaking phase.

// Handshake is the single inbound Handshaking-phase message. It sets
// the connection's Phase and is only ever sent once per connection.
type Handshake struct {
	ProtocolVersion int32
	ServerAddress   string
	ServerPort      uint16
	Intent          HandshakeIntent
}

func (Handshake) isMessage() {}

func decodeHandshake(r msgReader) (Message, error) {
	protocolVersion, err := varint.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("handshake.protocolVersion: %w", err)
	}
	addr, err := varint.ReadString(r)
	if err != nil {
		return nil, fmt.Errorf("handshake.serverAddress: %w", err)
	}
	var portBuf [2]byte
	if _, err := readFull(r, portBuf[:]); err != nil {
		return nil, fmt.Errorf("handshake.serverPort: %w", err)
	}
	intentRaw, err := varint.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("handshake.intent: %w", err)
	}

	intent := HandshakeIntent(intentRaw)
	switch intent {
	case IntentStatus, IntentLogin, IntentTransfer:
	default:
		return nil, fmt.Errorf("%w: unknown handshake intent %d", ErrInvalidData, intentRaw)
	}

	return Handshake{
		ProtocolVersion: protocolVersion,
		ServerAddress:   addr,
		ServerPort:      binary.BigEndian.Uint16(portBuf[:]),
		Intent:          intent,
	}, nil
}

func encodeHandshake(m Handshake) ([]byte, error) {
	var buf bytes.Buffer
	if err := varint.WriteTo(&buf, m.ProtocolVersion); err != nil {
		return nil, err
	}
	if err := varint.WriteString(&buf, m.ServerAddress); err != nil {
		return nil, err
	}
	var portBuf [2]byte
	binary.BigEndian.PutUint16(portBuf[:], m.ServerPort)
	buf.Write(portBuf[:])
	if err := varint.WriteTo(&buf, int32(m.Intent)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Status phase.

// StatusRequest carries no fields; the client asks for the server list
// ping response.
type StatusRequest struct{}

func (StatusRequest) isMessage() {}

func decodeStatusRequest(r msgReader) (Message, error) {
	return StatusRequest{}, nil
}

// StatusResponse carries the JSON document rendered by the status
// builder (see internal/protocol/status.go).
type StatusResponse struct {
	JSON string
}

func (StatusResponse) isMessage() {}

func encodeStatusResponse(m StatusResponse) ([]byte, error) {
	var buf bytes.Buffer
	if err := varint.WriteString(&buf, m.JSON); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// PingRequest carries an opaque timestamp the client expects echoed.
type PingRequest struct {
	Timestamp uint64
}

func (PingRequest) isMessage() {}

func decodePingRequest(r msgReader) (Message, error) {
	var buf [8]byte
	if _, err := readFull(r, buf[:]); err != nil {
		return nil, fmt.Errorf("pingRequest.timestamp: %w", err)
	}
	return PingRequest{Timestamp: binary.BigEndian.Uint64(buf[:])}, nil
}

// PingResponse echoes PingRequest.Timestamp back to the client.
type PingResponse struct {
	Timestamp uint64
}

func (PingResponse) isMessage() {}

func encodePingResponse(m PingResponse) ([]byte, error) {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], m.Timestamp)
	return buf[:], nil
}

// Login phase.

// LoginStart carries the client's chosen username and (client-supplied,
// not trusted) UUID.
type LoginStart struct {
	Username string
	UUID     [16]byte
}

func (LoginStart) isMessage() {}

func decodeLoginStart(r msgReader) (Message, error) {
	username, err := varint.ReadString(r)
	if err != nil {
		return nil, fmt.Errorf("loginStart.username: %w", err)
	}
	var uuid [16]byte
	if _, err := readFull(r, uuid[:]); err != nil {
		return nil, fmt.Errorf("loginStart.uuid: %w", err)
	}
	return LoginStart{Username: username, UUID: uuid}, nil
}

// EncryptionRequest is the server's half of the key exchange: a DER-SPKI
// public key the client encrypts its chosen shared secret against, and a
// verify token the client must echo back encrypted under that same key.
type EncryptionRequest struct {
	ServerID           string
	PublicKeyDER       []byte
	VerifyToken        []byte
	ShouldAuthenticate bool
}

func (EncryptionRequest) isMessage() {}

func encodeEncryptionRequest(m EncryptionRequest) ([]byte, error) {
	var buf bytes.Buffer
	if err := varint.WriteString(&buf, m.ServerID); err != nil {
		return nil, err
	}
	if err := varint.WriteBytes(&buf, m.PublicKeyDER); err != nil {
		return nil, err
	}
	if err := varint.WriteBytes(&buf, m.VerifyToken); err != nil {
		return nil, err
	}
	if m.ShouldAuthenticate {
		buf.WriteByte(0x01)
	} else {
		buf.WriteByte(0x00)
	}
	return buf.Bytes(), nil
}

// EncryptionResponse carries the client's shared secret and echoed
// verify token, both RSA-encrypted under the public key from
// EncryptionRequest.
type EncryptionResponse struct {
	SharedSecretEnc []byte
	VerifyTokenEnc  []byte
}

func (EncryptionResponse) isMessage() {}

func decodeEncryptionResponse(r msgReader) (Message, error) {
	sharedSecret, err := varint.ReadBytes(r)
	if err != nil {
		return nil, fmt.Errorf("encryptionResponse.sharedSecret: %w", err)
	}
	verifyToken, err := varint.ReadBytes(r)
	if err != nil {
		return nil, fmt.Errorf("encryptionResponse.verifyToken: %w", err)
	}
	return EncryptionResponse{SharedSecretEnc: sharedSecret, VerifyTokenEnc: verifyToken}, nil
}

// LoginSuccess completes login, from the client's perspective, for the
// server-authoritative identity it will use from here on.
type LoginSuccess struct {
	UUID     [16]byte
	Username string
}

func (LoginSuccess) isMessage() {}

func encodeLoginSuccess(m LoginSuccess) ([]byte, error) {
	var buf bytes.Buffer
	buf.Write(m.UUID[:])
	if err := varint.WriteString(&buf, m.Username); err != nil {
		return nil, err
	}
	// Empty "properties" array.
	if err := varint.WriteTo(&buf, 0); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// LoginAcknowledged carries no fields; it moves the connection into
// Configuration phase and is the cue to flush a stashed Transfer, or to
// ask the transfer handler whether one is ready now.
type LoginAcknowledged struct{}

func (LoginAcknowledged) isMessage() {}

func decodeLoginAcknowledged(r msgReader) (Message, error) {
	return LoginAcknowledged{}, nil
}

// LoginDisconnect ends a Login-phase connection with a human-readable
// reason, before any encryption has been negotiated. This is a real
// field of the wire protocol's Login phase that the distilled spec
// omits; the receptionist uses it to reject connections (server full,
// invalid username) without pretending to proceed through encryption.
type LoginDisconnect struct {
	Reason string
}

func (LoginDisconnect) isMessage() {}

func encodeLoginDisconnect(m LoginDisconnect) ([]byte, error) {
	var buf bytes.Buffer
	// The reason is itself JSON text component, same shape as chat.
	reasonJSON := fmt.Sprintf("{\"text\":%q}", m.Reason)
	if err := varint.WriteString(&buf, reasonJSON); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Configuration phase (post-login).

// Transfer redirects the client to a different host/port. It is the
// only outbound message the receptionist ever sends in Configuration
// phase; nothing else about Configuration is implemented (out of
// scope, see spec Non-goals).
type Transfer struct {
	Hostname string
	Port     uint16
}

func (Transfer) isMessage() {}

func encodeTransfer(m Transfer) ([]byte, error) {
	var buf bytes.Buffer
	if err := varint.WriteString(&buf, m.Hostname); err != nil {
		return nil, err
	}
	// Transfer.port is a VarInt on the wire, carrying the u16 value
	// zero-extended (spec.md 4.3).
	if err := varint.WriteTo(&buf, int32(m.Port)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// msgReader is what message decoders need to read a frame body: bulk
// reads for fixed-width fields, byte-at-a-time for VarInt fields. Both
// *bytes.Reader (what the frame layer hands decoders) and *bufio.Reader
// satisfy it.
type msgReader interface {
	io.Reader
	varint.ByteReader
}

// readFull reads exactly len(buf) bytes from r into buf.
func readFull(r msgReader, buf []byte) (int, error) {
	return io.ReadFull(r, buf)
}
