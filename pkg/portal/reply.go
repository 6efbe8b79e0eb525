package portal

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
)

// Kind tags which shape a portal reply came back in.
type Kind int

const (
	// KindJSON is the standard {status, statusCode, data} envelope.
	KindJSON Kind = iota
	// KindService is a legacy "ServiceResponse [status=..., messages=[...], data=...]" text.
	KindService
	// KindRaw is text the classifier could not make sense of.
	KindRaw
)

func (k Kind) String() string {
	switch k {
	case KindJSON:
		return "json"
	case KindService:
		return "service"
	default:
		return "raw"
	}
}

// StatusOK is the status value the portal uses for success.
const StatusOK = "OK"

// Reply is a normalized portal reply.
type Reply struct {
	Kind       Kind
	Status     string
	StatusCode int
	// Message holds the messages list of a legacy text reply.
	Message string
	// Data is the envelope data for JSON replies, or the data token of a
	// legacy reply encoded as JSON when it is a literal (true, false, null, number).
	Data json.RawMessage
	// Raw is the body as received.
	Raw string
}

// OK reports status == "OK".
func (r *Reply) OK() bool {
	return r != nil && r.Status == StatusOK
}

// DataTrue reports whether data is the boolean true.
func (r *Reply) DataTrue() bool {
	if r == nil {
		return false
	}
	return bytes.Equal(bytes.TrimSpace(r.Data), []byte("true"))
}

// Decode unmarshals Data into v.
func (r *Reply) Decode(v any) error {
	if r == nil || len(r.Data) == 0 {
		return fmt.Errorf("reply has no data")
	}
	return json.Unmarshal(r.Data, v)
}

// StatusText describes the reply for error messages.
func (r *Reply) StatusText() string {
	if r == nil {
		return "no reply"
	}
	switch r.Kind {
	case KindRaw:
		return "unrecognized reply: " + truncate(r.Raw, 120)
	default:
		if r.Message != "" {
			return fmt.Sprintf("status=%s messages=[%s]", r.Status, r.Message)
		}
		if r.Status == "" {
			return "status missing"
		}
		return "status=" + r.Status
	}
}

type envelope struct {
	Status     string          `json:"status"`
	StatusCode int             `json:"statusCode"`
	Data       json.RawMessage `json:"data"`
	Error      json.RawMessage `json:"error"`
}

// decodeEnvelope reads a JSON body. hasError is set when the body carries an
// error field, which the page script also uses to report network failures.
func decodeEnvelope(body string) (reply *Reply, hasError bool, err error) {
	var env envelope
	if err := json.Unmarshal([]byte(body), &env); err != nil {
		return nil, false, err
	}
	reply = &Reply{
		Kind:       KindJSON,
		Status:     env.Status,
		StatusCode: env.StatusCode,
		Data:       env.Data,
		Raw:        body,
	}
	return reply, len(env.Error) > 0 && !bytes.Equal(env.Error, []byte("null")), nil
}

var serviceResponsePattern = regexp.MustCompile(`status=(\w+).*?messages?=\[([^\]]*)\].*?data=(\w+)`)

// ParseServiceResponse classifies a legacy text reply. Text that does not look
// like a ServiceResponse comes back as KindRaw with the body untouched.
func ParseServiceResponse(text string) *Reply {
	m := serviceResponsePattern.FindStringSubmatch(text)
	if m == nil {
		return &Reply{Kind: KindRaw, Raw: text}
	}
	reply := &Reply{
		Kind:    KindService,
		Status:  m[1],
		Message: m[2],
		Raw:     text,
	}
	if json.Valid([]byte(m[3])) {
		reply.Data = json.RawMessage(m[3])
	} else {
		reply.Data, _ = json.Marshal(m[3])
	}
	return reply
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
