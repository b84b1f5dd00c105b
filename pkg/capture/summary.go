package capture

import (
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/ajxudir/asttest/pkg/output"
)

// Media is one m= line of an SDP offer or answer.
type Media struct {
	Type    string
	Address string
	Formats []string
}

// Call groups the SIP messages sharing a Call-ID.
type Call struct {
	CallID   string
	Messages []SIPMessage
	Media    []Media
}

// Stream aggregates the RTP packets of one SSRC.
//
// Fields:
//   - Lost: Packets missing between the first and the last sequence
//     number, with 16-bit wrap-around taken into account
type Stream struct {
	SSRC        uint32
	PayloadType uint8
	Src         string
	Dst         string
	Packets     int
	Lost        int
	First       time.Time
	Last        time.Time
}

// Summary is the per-call and per-stream view of a capture.
type Summary struct {
	Calls   []Call
	Streams []Stream
}

// Summary groups SIP messages by Call-ID and RTP packets by SSRC. Calls
// and streams appear in order of their first packet.
func (c *Capture) Summary() Summary {
	var s Summary

	calls := make(map[string]int)
	for _, msg := range c.SIP {
		idx, ok := calls[msg.CallID]
		if !ok {
			idx = len(s.Calls)
			calls[msg.CallID] = idx
			s.Calls = append(s.Calls, Call{CallID: msg.CallID})
		}
		call := &s.Calls[idx]
		call.Messages = append(call.Messages, msg)
		call.Media = append(call.Media, mediaOf(msg)...)
	}

	type state struct {
		idx      int
		cycles   int
		lastSeq  uint16
		firstExt int
		maxExt   int
	}
	streams := make(map[uint32]*state)
	for _, p := range c.RTP {
		st, ok := streams[p.SSRC]
		if !ok {
			st = &state{idx: len(s.Streams), lastSeq: p.SequenceNumber, firstExt: int(p.SequenceNumber), maxExt: int(p.SequenceNumber)}
			streams[p.SSRC] = st
			s.Streams = append(s.Streams, Stream{
				SSRC: p.SSRC, PayloadType: p.PayloadType, Src: p.Src, Dst: p.Dst, First: p.Time,
			})
		} else {
			if p.SequenceNumber < st.lastSeq && st.lastSeq-p.SequenceNumber > 0x8000 {
				st.cycles++
			}
			st.lastSeq = p.SequenceNumber
			if ext := st.cycles<<16 | int(p.SequenceNumber); ext > st.maxExt {
				st.maxExt = ext
			}
		}
		stream := &s.Streams[st.idx]
		stream.Packets++
		stream.Last = p.Time
	}
	for _, st := range streams {
		stream := &s.Streams[st.idx]
		if lost := st.maxExt - st.firstExt + 1 - stream.Packets; lost > 0 {
			stream.Lost = lost
		}
	}
	return s
}

func mediaOf(msg SIPMessage) []Media {
	if msg.SDP == nil {
		return nil
	}
	sessionAddr := ""
	if ci := msg.SDP.ConnectionInformation; ci != nil && ci.Address != nil {
		sessionAddr = ci.Address.Address
	}
	var media []Media
	for _, md := range msg.SDP.MediaDescriptions {
		addr := sessionAddr
		if ci := md.ConnectionInformation; ci != nil && ci.Address != nil {
			addr = ci.Address.Address
		}
		media = append(media, Media{
			Type:    md.MediaName.Media,
			Address: net.JoinHostPort(addr, strconv.Itoa(md.MediaName.Port.Value)),
			Formats: md.MediaName.Formats,
		})
	}
	return media
}

// Label is how a message appears in a call flow: the request method, or
// the status code followed by the CSeq method for responses.
func (m SIPMessage) Label() string {
	if m.IsResponse {
		return fmt.Sprintf("%d %s", m.StatusCode, m.CSeqMethod)
	}
	return m.Method
}

// Fprint writes the call flows followed by a table of RTP streams.
func (s Summary) Fprint(w io.Writer) {
	for _, call := range s.Calls {
		_, _ = fmt.Fprintf(w, "Call-ID: %s (%d messages)\n", call.CallID, len(call.Messages))
		start := call.Messages[0].Time
		for _, msg := range call.Messages {
			_, _ = fmt.Fprintf(w, "  %8s  %s -> %s  %s\n",
				"+"+msg.Time.Sub(start).Truncate(time.Millisecond).String(), msg.Src, msg.Dst, msg.Label())
		}
		for _, m := range call.Media {
			_, _ = fmt.Fprintf(w, "  media %s %s [%s]\n", m.Type, m.Address, strings.Join(m.Formats, " "))
		}
		_, _ = fmt.Fprintln(w)
	}

	if len(s.Streams) == 0 {
		_, _ = fmt.Fprintln(w, "No RTP streams")
		return
	}
	table := output.NewTable().AddColumn("SSRC").AddColumn("PT").AddColumn("SOURCE").
		AddColumn("DESTINATION").AddColumn("PACKETS").AddColumn("LOST").AddColumn("DURATION")
	rows := make([][]string, 0, len(s.Streams))
	for _, st := range s.Streams {
		row := []string{
			fmt.Sprintf("0x%08x", st.SSRC),
			strconv.Itoa(int(st.PayloadType)),
			st.Src,
			st.Dst,
			strconv.Itoa(st.Packets),
			strconv.Itoa(st.Lost),
			st.Last.Sub(st.First).Truncate(time.Millisecond).String(),
		}
		table.UpdateWidths(row...)
		rows = append(rows, row)
	}
	table.Fprint(w)
	for _, row := range rows {
		_, _ = fmt.Fprintln(w, table.FormatRow(row...))
	}
}
