package telephony

import (
	"bytes"
	"encoding/xml"
	"errors"
	"strings"
)

// TwiML is a minimal Twilio Markup Language response builder.
// It intentionally avoids any provider SDK dependency.
//
// Only the verbs the call flow needs: Say, Gather, Hangup, Connect/Stream.

type twimlResponse struct {
	XMLName xml.Name `xml:"Response"`
	Verbs   []any    `xml:",any"`
}

type twimlSay struct {
	XMLName xml.Name `xml:"Say"`
	Text    string   `xml:",chardata"`
}

type twimlGather struct {
	XMLName   xml.Name  `xml:"Gather"`
	Action    string    `xml:"action,attr"`
	Method    string    `xml:"method,attr"`
	NumDigits int       `xml:"numDigits,attr"`
	Timeout   int       `xml:"timeout,attr"`
	Say       *twimlSay `xml:"Say,omitempty"`
}

type twimlHangup struct {
	XMLName xml.Name `xml:"Hangup"`
}

type twimlConnect struct {
	XMLName xml.Name    `xml:"Connect"`
	Stream  twimlStream `xml:"Stream"`
}

type twimlStream struct {
	Name       string           `xml:"name,attr,omitempty"`
	URL        string           `xml:"url,attr"`
	Parameters []twimlParameter `xml:"Parameter"`
}

type twimlParameter struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

// Gather collects DTMF digits and POSTs them to Action.
type Gather struct {
	Action    string
	NumDigits int
	// Timeout is in seconds and enforced by the provider.
	Timeout int
	Prompt  string
}

// StreamParam is one <Parameter> passed to the remote media-stream endpoint.
// The receiver gets them back as custom parameters of the stream "start" message.
type StreamParam struct {
	Name  string
	Value string
}

// Stream is a bidirectional <Connect><Stream>.
type Stream struct {
	Name   string
	URL    string
	Params []StreamParam
}

// Response accumulates verbs in execution order.
type Response struct {
	verbs []any
	err   error
}

func NewResponse() *Response { return &Response{} }

func (r *Response) Say(text string) *Response {
	r.verbs = append(r.verbs, twimlSay{Text: text})
	return r
}

func (r *Response) Gather(g Gather) *Response {
	if strings.TrimSpace(g.Action) == "" {
		r.setErr(errors.New("telephony: gather action required"))
		return r
	}
	if g.NumDigits <= 0 {
		r.setErr(errors.New("telephony: gather numDigits must be > 0"))
		return r
	}
	v := twimlGather{
		Action:    g.Action,
		Method:    "POST",
		NumDigits: g.NumDigits,
		Timeout:   g.Timeout,
	}
	if g.Prompt != "" {
		v.Say = &twimlSay{Text: g.Prompt}
	}
	r.verbs = append(r.verbs, v)
	return r
}

func (r *Response) Hangup() *Response {
	r.verbs = append(r.verbs, twimlHangup{})
	return r
}

func (r *Response) Connect(s Stream) *Response {
	if !strings.HasPrefix(strings.ToLower(s.URL), "wss://") {
		r.setErr(errors.New("telephony: stream url must be wss://"))
		return r
	}
	v := twimlStream{Name: s.Name, URL: s.URL}
	for _, p := range s.Params {
		v.Parameters = append(v.Parameters, twimlParameter(p))
	}
	r.verbs = append(r.verbs, twimlConnect{Stream: v})
	return r
}

func (r *Response) setErr(err error) {
	if r.err == nil {
		r.err = err
	}
}

// Render encodes the response as a TwiML document.
func (r *Response) Render() (string, error) {
	if r.err != nil {
		return "", r.err
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(twimlResponse{Verbs: r.verbs}); err != nil {
		return "", err
	}
	if err := enc.Flush(); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// apologyTwiML is served when rendering itself fails.
const apologyTwiML = xml.Header + "<Response>\n  <Say>" + MsgError + "</Say>\n  <Hangup></Hangup>\n</Response>"
