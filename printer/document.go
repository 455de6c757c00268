package printer

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Info is the identity and capability part of a printer's state. Every field
// is required in a state document and the whole group is replaced at once.
type Info struct {
	UniqueName        string           `json:"uniqueName"`
	DisplayName       string           `json:"displayName"`
	MachineName       string           `json:"machineName"`
	PrinterType       string           `json:"printerType"`
	NumberOfToolheads int              `json:"numberOfToolheads"`
	HasHeatedPlatform bool             `json:"hasHeatedPlatform"`
	CanPrint          bool             `json:"canPrint"`
	CanPrintToFile    bool             `json:"canPrintToFile"`
	ConnectionStatus  ConnectionStatus `json:"connectionStatus"`
}

// DefaultInfo is what a printer reports before its first update arrives. It
// describes a generic dual-extruder machine so the printer is usable at once.
func DefaultInfo(uniqueName string) Info {
	return Info{
		UniqueName:        uniqueName,
		DisplayName:       "Dummy Printer",
		MachineName:       "TheReplicator",
		PrinterType:       "Replicator",
		NumberOfToolheads: 2,
		HasHeatedPlatform: true,
		CanPrint:          true,
		CanPrintToFile:    true,
		ConnectionStatus:  NotConnected,
	}
}

// Document is a fully validated state document.
type Document struct {
	Info Info
	// Temperature is nil when the document carried no temperature key.
	Temperature *TemperatureUpdate
}

// ParseDocument validates raw JSON from the daemon. It fails with a
// *MalformedDocumentError when a required field is missing or mistyped, and
// with an *InvalidStateValueError for an unknown connection status.
func ParseDocument(data []byte) (Document, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil || fields == nil {
		return Document{}, &MalformedDocumentError{Reason: "is not a JSON object", Err: err}
	}
	return parseFields(fields)
}

func parseFields(fields map[string]json.RawMessage) (Document, error) {
	var (
		doc Document
		err error
	)
	info := &doc.Info

	if info.UniqueName, err = stringField(fields, "uniqueName"); err != nil {
		return Document{}, err
	}
	if info.DisplayName, err = stringField(fields, "displayName"); err != nil {
		return Document{}, err
	}
	if info.MachineName, err = stringField(fields, "machineName"); err != nil {
		return Document{}, err
	}
	if info.CanPrint, err = boolField(fields, "canPrint"); err != nil {
		return Document{}, err
	}
	if info.CanPrintToFile, err = boolField(fields, "canPrintToFile"); err != nil {
		return Document{}, err
	}
	status, err := stringField(fields, "connectionStatus")
	if err != nil {
		return Document{}, err
	}
	if info.ConnectionStatus, err = ParseConnectionStatus(status); err != nil {
		return Document{}, err
	}
	if info.PrinterType, err = stringField(fields, "printerType"); err != nil {
		return Document{}, err
	}
	if info.NumberOfToolheads, err = countField(fields, "numberOfToolheads"); err != nil {
		return Document{}, err
	}
	if info.HasHeatedPlatform, err = boolField(fields, "hasHeatedPlatform"); err != nil {
		return Document{}, err
	}

	if raw, ok := fields["temperature"]; ok && !isNull(raw) {
		if doc.Temperature, err = parseTemperature(raw); err != nil {
			return Document{}, err
		}
	}
	return doc, nil
}

func parseTemperature(raw json.RawMessage) (*TemperatureUpdate, error) {
	var sub map[string]json.RawMessage
	if err := json.Unmarshal(raw, &sub); err != nil {
		return nil, wrongType("temperature", "object")
	}
	u := &TemperatureUpdate{}
	var err error
	if u.Tools, err = zonesField(sub, "tools"); err != nil {
		return nil, err
	}
	if u.HeatedPlatforms, err = zonesField(sub, "heated_platforms"); err != nil {
		return nil, err
	}
	return u, nil
}

func zonesField(sub map[string]json.RawMessage, name string) (Zones, error) {
	raw, ok := sub[name]
	if !ok || isNull(raw) {
		return nil, nil
	}
	var zones Zones
	if err := json.Unmarshal(raw, &zones); err != nil {
		return nil, &MalformedDocumentError{
			Field:  "temperature." + name,
			Reason: "is not a map of readings",
			Err:    err,
		}
	}
	return zones, nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func lookup(fields map[string]json.RawMessage, name string) (json.RawMessage, error) {
	raw, ok := fields[name]
	if !ok {
		return nil, missingField(name)
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || isNull(raw) {
		return nil, missingField(name)
	}
	return raw, nil
}

func stringField(fields map[string]json.RawMessage, name string) (string, error) {
	raw, err := lookup(fields, name)
	if err != nil {
		return "", err
	}
	var s string
	if raw[0] != '"' || json.Unmarshal(raw, &s) != nil {
		return "", wrongType(name, "string")
	}
	return s, nil
}

func boolField(fields map[string]json.RawMessage, name string) (bool, error) {
	raw, err := lookup(fields, name)
	if err != nil {
		return false, err
	}
	switch string(raw) {
	case "true":
		return true, nil
	case "false":
		return false, nil
	}
	return false, wrongType(name, "boolean")
}

// countField decodes a non-negative integer.
func countField(fields map[string]json.RawMessage, name string) (int, error) {
	raw, err := lookup(fields, name)
	if err != nil {
		return 0, err
	}
	var n int64
	if c := raw[0]; c != '-' && (c < '0' || c > '9') {
		return 0, wrongType(name, "non-negative integer")
	}
	if err := json.Unmarshal(raw, &n); err != nil || n < 0 {
		return 0, wrongType(name, "non-negative integer")
	}
	if int64(int(n)) != n {
		return 0, &MalformedDocumentError{Field: name, Reason: fmt.Sprintf("is out of range (%d)", n)}
	}
	return int(n), nil
}
