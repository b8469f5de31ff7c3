package domain

import (
	"encoding/xml"
	"fmt"
)

// StaleOrNotRun marks an output element whose stream was not supplied.
const StaleOrNotRun = "stale_or_not_run"

// WireMessage is the representation sent to the response bridge.
type WireMessage struct {
	Role    Role           `json:"role"`
	Content []ContentBlock `json:"content"`
}

type contextEnvelope struct {
	XMLName xml.Name     `xml:"message"`
	Text    string       `xml:"text"`
	Code    *string      `xml:"code,omitempty"`
	Stdout  outputStream `xml:"stdout"`
	Stderr  outputStream `xml:"stderr"`
}

type outputStream struct {
	Status string `xml:"status,attr,omitempty"`
	Body   string `xml:",chardata"`
}

func newOutputStream(o OptionalText) outputStream {
	if v, ok := o.Get(); ok {
		return outputStream{Body: v}
	}
	return outputStream{Status: StaleOrNotRun}
}

// ToWire converts m for the bridge. User messages carrying any execution
// context become a single text block holding an XML envelope; everything else
// passes its content blocks through unchanged.
func (m Message) ToWire() (WireMessage, error) {
	if m.Role != RoleUser || !m.HasContext() {
		blocks := make([]ContentBlock, len(m.Content))
		copy(blocks, m.Content)
		return WireMessage{Role: m.Role, Content: blocks}, nil
	}
	envelope, err := m.ContextXML()
	if err != nil {
		return WireMessage{}, err
	}
	return WireMessage{Role: m.Role, Content: []ContentBlock{NewTextBlock(envelope)}}, nil
}

// ContextXML renders the message as an indented XML envelope. A present but
// empty stdout renders as <stdout></stdout>; an absent one carries
// status="stale_or_not_run".
func (m Message) ContextXML() (string, error) {
	env := contextEnvelope{
		Text:   m.JoinedText(),
		Code:   m.EditorCode.Ptr(),
		Stdout: newOutputStream(m.Stdout),
		Stderr: newOutputStream(m.Stderr),
	}
	out, err := xml.MarshalIndent(env, "", "  ")
	if err != nil {
		return "", fmt.Errorf("render message xml: %w", err)
	}
	return string(out), nil
}
