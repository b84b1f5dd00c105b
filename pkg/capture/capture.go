// Package capture reads the pcap files tests record and decodes the SIP
// signalling and RTP media they carry, so a failed call can be inspected
// without a protocol analyzer.
package capture

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ajxudir/asttest/pkg/verbose"
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/pion/rtp"
	"github.com/pion/sdp/v3"
)

// SIPMessage is one SIP request or response seen on the wire.
//
// Fields:
//   - Time: Capture timestamp
//   - Src, Dst: "ip:port" endpoints
//   - StartLine: Request or status line as sent
//   - IsResponse: True for responses
//   - Method: Request method; empty for responses
//   - StatusCode: Response code; zero for requests
//   - CallID: Call-ID header (compact "i" accepted)
//   - CSeq: CSeq sequence number
//   - CSeqMethod: Method named in the CSeq header
//   - SDP: Parsed body when Content-Type is application/sdp
type SIPMessage struct {
	Time       time.Time
	Src        string
	Dst        string
	StartLine  string
	IsResponse bool
	Method     string
	StatusCode int
	CallID     string
	CSeq       int64
	CSeqMethod string
	SDP        *sdp.SessionDescription
}

// RTPPacket is the header of one RTP packet.
type RTPPacket struct {
	Time           time.Time
	Src            string
	Dst            string
	SSRC           uint32
	PayloadType    uint8
	SequenceNumber uint16
	Timestamp      uint32
	Marker         bool
}

// Capture holds everything decoded from one pcap file, in capture order.
type Capture struct {
	SIP []SIPMessage
	RTP []RTPPacket

	// Packets is the number of packets read.
	Packets int

	// Ignored counts packets that were neither SIP nor RTP over UDP.
	Ignored int
}

// ReadFile decodes the pcap file at path.
func ReadFile(path string) (*Capture, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open capture: %w", err)
	}
	defer f.Close()
	c, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return c, nil
}

// Read decodes a pcap stream.
//
// It performs the following operations:
//   - Step 1: Read the pcap file header to learn the link type
//   - Step 2: Decode every packet down to its UDP payload
//   - Step 3: Classify the payload as SIP, RTP or neither
//
// Parameters:
//   - r: Reader positioned at the pcap file header
//
// Returns:
//   - *Capture: The decoded messages and packets
//   - error: When the header is invalid or a packet record cannot be read
func Read(r io.Reader) (*Capture, error) {
	pr, err := pcapgo.NewReader(r)
	if err != nil {
		return nil, err
	}

	c := &Capture{}
	opts := gopacket.DecodeOptions{Lazy: true, NoCopy: true}
	for {
		data, ci, err := pr.ReadPacketData()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return c, err
		}
		c.Packets++
		c.decode(gopacket.NewPacket(data, pr.LinkType(), opts), ci.Timestamp)
	}
	verbose.Debugf("Decoded %d packets: %d SIP, %d RTP, %d ignored", c.Packets, len(c.SIP), len(c.RTP), c.Ignored)
	return c, nil
}

func (c *Capture) decode(packet gopacket.Packet, ts time.Time) {
	network := packet.NetworkLayer()
	udpLayer := packet.Layer(layers.LayerTypeUDP)
	if network == nil || udpLayer == nil {
		c.Ignored++
		return
	}
	udp := udpLayer.(*layers.UDP)
	flow := network.NetworkFlow()
	src := endpoint(flow.Src().String(), int(udp.SrcPort))
	dst := endpoint(flow.Dst().String(), int(udp.DstPort))

	payload := udp.Payload
	switch {
	case isSIP(payload):
		msg, err := parseSIP(payload)
		if err != nil {
			verbose.Debugf("Undecodable SIP from %s: %v", src, err)
			c.Ignored++
			return
		}
		msg.Time, msg.Src, msg.Dst = ts, src, dst
		c.SIP = append(c.SIP, msg)
	case isRTP(payload):
		var p rtp.Packet
		if err := p.Unmarshal(payload); err != nil {
			c.Ignored++
			return
		}
		c.RTP = append(c.RTP, RTPPacket{
			Time:           ts,
			Src:            src,
			Dst:            dst,
			SSRC:           p.SSRC,
			PayloadType:    p.PayloadType,
			SequenceNumber: p.SequenceNumber,
			Timestamp:      p.Timestamp,
			Marker:         p.Marker,
		})
	default:
		c.Ignored++
	}
}

func endpoint(host string, port int) string {
	if strings.Contains(host, ":") {
		return "[" + host + "]:" + strconv.Itoa(port)
	}
	return host + ":" + strconv.Itoa(port)
}

// isSIP reports whether the first line is a SIP/2.0 request or status line.
func isSIP(payload []byte) bool {
	line := payload
	if i := bytes.IndexByte(payload, '\n'); i >= 0 {
		line = payload[:i]
	}
	line = bytes.TrimRight(line, "\r")
	return bytes.HasPrefix(line, []byte("SIP/2.0 ")) || bytes.HasSuffix(line, []byte(" SIP/2.0"))
}

// isRTP checks the version bits and rules out RTCP, whose packet types
// 200-204 land on RTP payload types 72-76 with the marker bit set.
func isRTP(payload []byte) bool {
	if len(payload) < 12 || payload[0]>>6 != 2 {
		return false
	}
	pt := payload[1] & 0x7f
	return pt < 72 || pt > 76
}

func parseSIP(payload []byte) (SIPMessage, error) {
	s := layers.NewSIP()
	if err := s.DecodeFromBytes(payload, gopacket.NilDecodeFeedback); err != nil {
		return SIPMessage{}, err
	}

	msg := SIPMessage{
		StartLine:  strings.TrimRight(strings.SplitN(string(payload), "\n", 2)[0], "\r"),
		IsResponse: s.IsResponse,
		CallID:     s.GetCallID(),
		CSeq:       s.GetCSeq(),
	}
	if s.IsResponse {
		msg.StatusCode = s.ResponseCode
	} else {
		msg.Method = s.Method.String()
	}
	if fields := strings.Fields(s.GetFirstHeader("CSeq")); len(fields) == 2 {
		msg.CSeqMethod = strings.ToUpper(fields[1])
	}

	ctype := strings.ToLower(s.GetFirstHeader("Content-Type"))
	if body := bytes.TrimSpace(s.Payload()); len(body) > 0 && strings.HasPrefix(ctype, "application/sdp") {
		desc := &sdp.SessionDescription{}
		if err := desc.Unmarshal(append(body, '\r', '\n')); err != nil {
			verbose.Debugf("Undecodable SDP in %q: %v", msg.StartLine, err)
		} else {
			msg.SDP = desc
		}
	}
	return msg, nil
}
