package hl7v2

import (
	"strings"
	"time"
)

// Fixed header tokens for every acknowledgment this gateway sends.
const (
	ACKSendingApp   = "IMAGING_GW"
	ACKSendingFac   = "FACILITY"
	ACKReceivingApp = "SENDER"
	ACKReceivingFac = "FACILITY"
	ACKVersion      = "2.3"
	ACKProcessingID = "P"

	// AckCodeAccept is the application-accept code. Negative acknowledgments
	// (AE/AR) are never produced.
	AckCodeAccept = "AA"

	// FallbackControlID is echoed when the inbound message carries no MSH-10.
	FallbackControlID = "12345"
)

// ResolveControlID returns MSH-10 of msg, or FallbackControlID when msg is nil
// or the field is empty.
func ResolveControlID(msg *Message) string {
	if msg == nil {
		return FallbackControlID
	}
	if id := strings.TrimSpace(msg.ControlID); id != "" {
		return id
	}
	return FallbackControlID
}

// NewACK builds the acknowledgment message for controlID.
//
//	MSH|^~\&|IMAGING_GW|FACILITY|SENDER|FACILITY|<ts>||ACK|<controlID>|P|2.3
//	MSA|AA|<controlID>
func NewACK(controlID string, now time.Time) *Message {
	now = now.UTC()
	timestamp := now.Format("20060102150405")

	ack := &Message{
		Type:         "ACK",
		ControlID:    controlID,
		Version:      ACKVersion,
		Timestamp:    now,
		SendingApp:   ACKSendingApp,
		SendingFac:   ACKSendingFac,
		ReceivingApp: ACKReceivingApp,
		ReceivingFac: ACKReceivingFac,
	}

	msh := Segment{
		Name: "MSH",
		Fields: []Field{
			simpleField("|"),              // MSH-1
			simpleField(`^~\&`),           // MSH-2
			simpleField(ack.SendingApp),   // MSH-3
			simpleField(ack.SendingFac),   // MSH-4
			simpleField(ack.ReceivingApp), // MSH-5
			simpleField(ack.ReceivingFac), // MSH-6
			simpleField(timestamp),        // MSH-7
			simpleField(""),               // MSH-8
			simpleField("ACK"),            // MSH-9
			simpleField(controlID),        // MSH-10
			simpleField(ACKProcessingID),  // MSH-11
			simpleField(ACKVersion),       // MSH-12
		},
	}

	msa := Segment{
		Name: "MSA",
		Fields: []Field{
			simpleField(AckCodeAccept), // MSA-1
			simpleField(controlID),     // MSA-2
		},
	}

	ack.Segments = []Segment{msh, msa}
	return ack
}

// BuildACK returns the wire form of NewACK: each segment terminated by \r.
func BuildACK(controlID string, now time.Time) []byte {
	return SerializeMessage(NewACK(controlID, now))
}

func simpleField(v string) Field {
	return Field{Value: v, Components: []string{v}}
}

// SerializeMessage converts a Message back into raw HL7v2 bytes, terminating
// every segment with \r.
func SerializeMessage(msg *Message) []byte {
	var b strings.Builder
	for _, seg := range msg.Segments {
		b.WriteString(serializeSegment(seg))
		b.WriteByte('\r')
	}
	return []byte(b.String())
}

// serializeSegment converts a Segment back into its HL7v2 string form.
func serializeSegment(seg Segment) string {
	if seg.Name == "MSH" {
		// Fields[0] is the separator itself; the wire form starts at MSH-2.
		if len(seg.Fields) < 2 {
			return "MSH|"
		}
		parts := make([]string, 0, len(seg.Fields)-1)
		for i := 1; i < len(seg.Fields); i++ {
			parts = append(parts, seg.Fields[i].Value)
		}
		return "MSH|" + strings.Join(parts, "|")
	}

	parts := make([]string, len(seg.Fields))
	for i, f := range seg.Fields {
		parts[i] = f.Value
	}
	return seg.Name + "|" + strings.Join(parts, "|")
}
