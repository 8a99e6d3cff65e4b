package transport

import (
	"fmt"
	"strconv"

	"collabagent/ot"
	"collabagent/wire/codec"
	"collabagent/wire/fields"
)

// Submission is a local edit awaiting acknowledgement, in the wire's own
// vocabulary (Transport does not know about Agent's inflight bookkeeping,
// only about bytes it has or hasn't put on the wire yet).
type Submission struct {
	Seq       int
	ParentSeq int
	ParentID  int
	Op        ot.Op
}

// Message is either an External or an Accept, delivered to a Transport's
// message callback after negotiation completes.
type Message interface {
	isMessage()
}

// External is an edit authored by another peer and already sequenced by
// the server.
type External struct {
	Seq int
	Op  ot.Op
}

// Accept acknowledges that the local submission with this seq is now
// canonical.
type Accept struct {
	Seq int
}

func (External) isMessage() {}
func (Accept) isMessage()   {}

// ParseError marks a wire line that could not be parsed. It is always
// fatal for the connection that produced it (spec: "Codec/parse error...
// Fatal for the affected line; closes the connection").
type ParseError struct {
	Line string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("transport: malformed line %q: %v", e.Line, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// negotiationLine builds the client's opening line: "new:<name>" for a
// fresh session, or the reconnect line carrying the opaque secret. The
// secret's wire shape is server-defined (spec.md §6 leaves the format
// "reserved"); this agent picks "r:<encoded-secret>" so the two cases
// share the same leading-tag-plus-field shape as every other message on
// the wire, and escapes the secret with the same Codec used for text so
// arbitrary opaque bytes survive the colon-delimited framing.
func negotiationLine(displayName string, secret []byte) string {
	if secret == nil {
		return "new:" + codec.Encode([]byte(displayName)) + "\n"
	}
	return "r:" + codec.Encode(secret) + "\n"
}

// negotiationResponse is the server's reply to negotiation:
// "<author_id>:<reconnect_secret>:<seqno>:<encoded_text>".
type negotiationResponse struct {
	AuthorID int
	Secret   []byte
	Seqno    int
	Text     string
}

func parseNegotiationResponse(line string) (negotiationResponse, error) {
	f, err := fields.Split(line, ":", 4)
	if err != nil {
		return negotiationResponse{}, &ParseError{Line: line, Err: err}
	}

	authorID, err := strconv.Atoi(f[0])
	if err != nil {
		return negotiationResponse{}, &ParseError{Line: line, Err: fmt.Errorf("bad author id: %w", err)}
	}
	if authorID == 0 {
		return negotiationResponse{}, &ParseError{Line: line, Err: fmt.Errorf("server assigned reserved author id 0")}
	}

	secret, err := codec.Decode(f[1])
	if err != nil {
		return negotiationResponse{}, &ParseError{Line: line, Err: err}
	}

	seqno, err := strconv.Atoi(f[2])
	if err != nil {
		return negotiationResponse{}, &ParseError{Line: line, Err: fmt.Errorf("bad seqno: %w", err)}
	}

	text, err := codec.Decode(f[3])
	if err != nil {
		return negotiationResponse{}, &ParseError{Line: line, Err: err}
	}

	return negotiationResponse{AuthorID: authorID, Secret: secret, Seqno: seqno, Text: string(text)}, nil
}

// encodeSubmission renders a Submission as "s:seq:parent_seq:parent_id:type:idx:arg".
func encodeSubmission(s Submission) (string, error) {
	switch op := s.Op.(type) {
	case ot.Insert:
		return fmt.Sprintf("s:%d:%d:%d:i:%d:%s\n", s.Seq, s.ParentSeq, s.ParentID, op.Idx, codec.Encode([]byte(op.Text))), nil
	case ot.Delete:
		return fmt.Sprintf("s:%d:%d:%d:d:%d:%d\n", s.Seq, s.ParentSeq, s.ParentID, op.Idx, op.NChars), nil
	default:
		return "", fmt.Errorf("transport: unknown op type %T", s.Op)
	}
}

// readMsg parses one server-to-client line during a session: an external
// edit ("x:seq:i|d:idx:arg") or an accept ("a:seq").
func readMsg(line string) (Message, error) {
	if len(line) == 0 {
		return nil, &ParseError{Line: line, Err: fmt.Errorf("empty line")}
	}

	switch line[0] {
	case 'a':
		f, err := fields.Split(line, ":", 2)
		if err != nil {
			return nil, &ParseError{Line: line, Err: err}
		}
		seq, err := strconv.Atoi(f[1])
		if err != nil {
			return nil, &ParseError{Line: line, Err: fmt.Errorf("bad seq: %w", err)}
		}
		return Accept{Seq: seq}, nil

	case 'x':
		f, err := fields.Split(line, ":", 5)
		if err != nil {
			return nil, &ParseError{Line: line, Err: err}
		}
		seq, err := strconv.Atoi(f[1])
		if err != nil {
			return nil, &ParseError{Line: line, Err: fmt.Errorf("bad seq: %w", err)}
		}
		idx, err := strconv.Atoi(f[3])
		if err != nil {
			return nil, &ParseError{Line: line, Err: fmt.Errorf("bad idx: %w", err)}
		}

		switch f[2] {
		case "i":
			text, err := codec.Decode(f[4])
			if err != nil {
				return nil, &ParseError{Line: line, Err: err}
			}
			return External{Seq: seq, Op: ot.Insert{Idx: idx, Text: string(text)}}, nil
		case "d":
			n, err := strconv.Atoi(f[4])
			if err != nil {
				return nil, &ParseError{Line: line, Err: fmt.Errorf("bad nchars: %w", err)}
			}
			return External{Seq: seq, Op: ot.Delete{Idx: idx, NChars: n}}, nil
		default:
			return nil, &ParseError{Line: line, Err: fmt.Errorf("unknown op type %q", f[2])}
		}

	default:
		return nil, &ParseError{Line: line, Err: fmt.Errorf("unknown message tag %q", line[:1])}
	}
}
