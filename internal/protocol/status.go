package protocol

import "encoding/json"

// StatusPayload is the decoded shape of StatusResponse.JSON, built with
// encoding/json rather than hand-assembled strings so the fields spec.md
// §4.3 requires (version, players, description, favicon,
// enforcesSecureChat) can never drift out of sync with the struct tags.
type StatusPayload struct {
	Version struct {
		Name     string `json:"name"`
		Protocol int32  `json:"protocol"`
	} `json:"version"`
	Players struct {
		Max    int `json:"max"`
		Online int `json:"online"`
	} `json:"players"`
	Description struct {
		Text string `json:"text"`
	} `json:"description"`
	Favicon            string `json:"favicon,omitempty"`
	EnforcesSecureChat bool   `json:"enforcesSecureChat"`
}

// BuildStatusResponse renders a StatusResponse from the receptionist's
// configured version string, protocol number, player counts, motd and
// (optionally empty) base64 favicon data URI. EnforcesSecureChat is
// always false: the receptionist never performs chat signing.
func BuildStatusResponse(versionName string, protocolVersion int32, maxPlayers, onlinePlayers int, motd, favicon string) (StatusResponse, error) {
	var p StatusPayload
	p.Version.Name = versionName
	p.Version.Protocol = protocolVersion
	p.Players.Max = maxPlayers
	p.Players.Online = onlinePlayers
	p.Description.Text = motd
	p.Favicon = favicon
	p.EnforcesSecureChat = false

	b, err := json.Marshal(p)
	if err != nil {
		return StatusResponse{}, err
	}
	return StatusResponse{JSON: string(b)}, nil
}
