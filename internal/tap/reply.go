package tap

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"mime"
	"strings"
)

// StatusReply is the JSON envelope the archive's CGI endpoints use:
// {"status": "ok"|"error", "msg": "...", "error": "..."}.
type StatusReply struct {
	Status string `json:"status"`
	Msg    string `json:"msg"`
	Error  string `json:"error,omitempty"`
}

// DecodeStatusReply parses a JSON status envelope.
func DecodeStatusReply(body []byte) (StatusReply, error) {
	var reply StatusReply
	if err := json.Unmarshal(body, &reply); err != nil {
		return StatusReply{}, fmt.Errorf("decode status reply: %w", err)
	}
	return reply, nil
}

// Failure reports the failure message carried by the reply. A non-empty
// error field always wins; otherwise any status other than "ok" is a
// failure described by msg.
func (r StatusReply) Failure() (string, bool) {
	if msg := strings.TrimSpace(r.Error); msg != "" {
		return msg, true
	}
	if strings.EqualFold(strings.TrimSpace(r.Status), "ok") {
		return "", false
	}
	msg := strings.TrimSpace(r.Msg)
	if msg == "" {
		msg = strings.TrimSpace(r.Status)
	}
	if msg == "" {
		msg = "no error message found"
	}
	return msg, true
}

// VOTableError extracts the message of a VOTABLE error envelope: an INFO
// element directly under RESOURCE whose value attribute is "ERROR" (any
// case). It reports false for anything else, including well-formed result
// tables.
func VOTableError(r io.Reader) (string, bool) {
	dec := xml.NewDecoder(r)
	dec.Strict = false

	var stack []string
	for {
		tok, err := dec.Token()
		if err != nil {
			return "", false
		}
		switch el := tok.(type) {
		case xml.StartElement:
			name := el.Name.Local
			if len(stack) == 0 && name != "VOTABLE" {
				return "", false
			}
			if name == "INFO" && len(stack) > 0 && stack[len(stack)-1] == "RESOURCE" && isErrorInfo(el) {
				var text struct {
					Body string `xml:",chardata"`
				}
				if err := dec.DecodeElement(&text, &el); err != nil {
					return "", false
				}
				return strings.TrimSpace(text.Body), true
			}
			stack = append(stack, name)
		case xml.EndElement:
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		}
	}
}

func isErrorInfo(el xml.StartElement) bool {
	for _, attr := range el.Attr {
		if attr.Name.Local == "value" && strings.EqualFold(strings.TrimSpace(attr.Value), "ERROR") {
			return true
		}
	}
	return false
}

// rejection classifies a reply that did not carry the expected outcome.
// JSON envelopes and VOTABLE error documents yield their message; anything
// else is reported as the raw body, never guessed at.
func rejection(op, contentType string, statusCode int, body []byte) *Error {
	trimmed := bytes.TrimSpace(body)
	switch {
	case isJSON(contentType, trimmed):
		reply, err := DecodeStatusReply(trimmed)
		if err != nil {
			return serverError(op, string(trimmed))
		}
		if msg, failed := reply.Failure(); failed {
			return serverError(op, msg)
		}
		return protocolError(op, fmt.Sprintf("unexpected HTTP %d with status %q", statusCode, reply.Status))
	case isXML(contentType, trimmed):
		if msg, ok := VOTableError(bytes.NewReader(trimmed)); ok {
			if msg == "" {
				msg = "no error message found"
			}
			return serverError(op, msg)
		}
	}
	if len(trimmed) == 0 {
		return serverError(op, fmt.Sprintf("HTTP %d with empty body", statusCode))
	}
	return serverError(op, string(trimmed))
}

func mediaType(contentType string) string {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(contentType))
	}
	return mt
}

func isJSON(contentType string, body []byte) bool {
	mt := mediaType(contentType)
	if mt == "application/json" || strings.HasSuffix(mt, "+json") {
		return true
	}
	return mt == "" && len(body) > 0 && body[0] == '{'
}

func isXML(contentType string, body []byte) bool {
	mt := mediaType(contentType)
	if mt == "text/xml" || mt == "application/xml" || strings.HasSuffix(mt, "+xml") {
		return true
	}
	return (mt == "" || mt == "text/plain") && len(body) > 0 && body[0] == '<'
}

var errBodyTooLarge = errors.New("response body exceeds limit")

// readLimited reads at most limit bytes from r.
func readLimited(r io.Reader, limit int64) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > limit {
		return nil, errBodyTooLarge
	}
	return body, nil
}
