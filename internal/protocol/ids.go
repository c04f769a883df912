package protocol

// Inbound packet ids, per phase (spec.md §4.4).
const (
	idHandshake = 0x00

	idStatusRequest = 0x00
	idPingRequest   = 0x01

	idLoginStart         = 0x00
	idEncryptionResponse = 0x01
	idLoginAcknowledged  = 0x03
)

// Outbound packet ids, per phase (spec.md §4.4).
const (
	idStatusResponse = 0x00
	idPingResponse   = 0x01

	idLoginDisconnect   = 0x00
	idEncryptionRequest = 0x01
	idLoginSuccess      = 0x02

	// idTransfer is the Configuration-phase clientbound Transfer packet
	// id for protocol version 773 (spec.md §6).
	idTransfer = 0x0a
)

type decodeFunc func(msgReader) (Message, error)

// inboundTable maps (phase, id) to the decoder for that packet, the
// two-step lookup spec.md §9 asks for instead of scattering per-message
// branches through the state machine.
var inboundTable = map[Phase]map[int32]decodeFunc{
	PhaseHandshaking: {
		idHandshake: decodeHandshake,
	},
	PhaseStatus: {
		idStatusRequest: decodeStatusRequest,
		idPingRequest:   decodePingRequest,
	},
	PhaseLogin: {
		idLoginStart:         decodeLoginStart,
		idEncryptionResponse: decodeEncryptionResponse,
		idLoginAcknowledged:  decodeLoginAcknowledged,
	},
}

// decodeInbound looks up and runs the decoder for (phase, id). It
// returns *UnsupportedError, never nil alongside a nil Message, when no
// decoder is registered.
func decodeInbound(phase Phase, id int32, body msgReader) (Message, error) {
	table, ok := inboundTable[phase]
	if !ok {
		return nil, &UnsupportedError{Phase: phase, ID: id}
	}
	decode, ok := table[id]
	if !ok {
		return nil, &UnsupportedError{Phase: phase, ID: id}
	}
	return decode(body)
}

// outboundID returns the (phase, id) pair a given outbound message
// encodes under. It is a compile-time-checked switch rather than a
// second map because, unlike inbound decoding, the caller always knows
// the concrete Go type it wants to send.
func outboundID(m Message) (Phase, int32, error) {
	switch m.(type) {
	case StatusResponse:
		return PhaseStatus, idStatusResponse, nil
	case PingResponse:
		return PhaseStatus, idPingResponse, nil
	case LoginDisconnect:
		return PhaseLogin, idLoginDisconnect, nil
	case EncryptionRequest:
		return PhaseLogin, idEncryptionRequest, nil
	case LoginSuccess:
		return PhaseLogin, idLoginSuccess, nil
	case Transfer:
		return PhaseConfiguration, idTransfer, nil
	default:
		return 0, 0, ErrInvalidData
	}
}

// encodeBody dispatches to the field-level encoder for m's concrete type.
func encodeBody(m Message) ([]byte, error) {
	switch v := m.(type) {
	case StatusResponse:
		return encodeStatusResponse(v)
	case PingResponse:
		return encodePingResponse(v)
	case LoginDisconnect:
		return encodeLoginDisconnect(v)
	case EncryptionRequest:
		return encodeEncryptionRequest(v)
	case LoginSuccess:
		return encodeLoginSuccess(v)
	case Transfer:
		return encodeTransfer(v)
	case Handshake:
		return encodeHandshake(v)
	default:
		return nil, ErrInvalidData
	}
}
