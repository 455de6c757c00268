package printer

import "encoding/json"

// ConnectionStatus is whether the daemon currently has a link to the printer.
type ConnectionStatus int

const (
	NotConnected ConnectionStatus = iota
	Connected
)

// Wire values. Matching is exact.
const (
	connectedText    = "connected"
	notConnectedText = "not connected"
)

// ParseConnectionStatus translates the daemon's status string. Anything other
// than the two canonical values yields an *InvalidStateValueError.
func ParseConnectionStatus(text string) (ConnectionStatus, error) {
	switch text {
	case connectedText:
		return Connected, nil
	case notConnectedText:
		return NotConnected, nil
	}
	return NotConnected, &InvalidStateValueError{Value: text}
}

func (s ConnectionStatus) String() string {
	if s == Connected {
		return connectedText
	}
	return notConnectedText
}

func (s ConnectionStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *ConnectionStatus) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err != nil {
		return err
	}
	parsed, err := ParseConnectionStatus(text)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
