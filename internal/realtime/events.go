package realtime

import "encoding/json"

// Server event types consumed by talkback.
const (
	EventError              = "error"
	EventSessionCreated     = "session.created"
	EventSessionUpdated     = "session.updated"
	EventResponseCreated    = "response.created"
	EventResponseDone       = "response.done"
	EventAudioDelta         = "response.audio.delta"
	EventAudioDone          = "response.audio.done"
	EventAudioTranscript    = "response.audio_transcript.delta"
	EventAudioTranscriptEnd = "response.audio_transcript.done"
	EventTextDelta          = "response.text.delta"
)

// Client event types sent by talkback.
const (
	EventSessionUpdate          = "session.update"
	EventConversationItemCreate = "conversation.item.create"
	EventResponseCreate         = "response.create"
	EventResponseCancel         = "response.cancel"
)

// ServerEvent is the subset of a server event that talkback understands.
// Raw holds the frame exactly as received.
type ServerEvent struct {
	Type       string        `json:"type"`
	EventID    string        `json:"event_id,omitempty"`
	ResponseID string        `json:"response_id,omitempty"`
	ItemID     string        `json:"item_id,omitempty"`
	Delta      string        `json:"delta,omitempty"`
	Response   *ResponseInfo `json:"response,omitempty"`
	Error      *ErrorDetail  `json:"error,omitempty"`

	Raw json.RawMessage `json:"-"`
}

// ResponseInfo is carried by response.created and response.done.
type ResponseInfo struct {
	ID       string            `json:"id"`
	Status   string            `json:"status,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// ErrorDetail is carried by server error events.
type ErrorDetail struct {
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
	Param   string `json:"param,omitempty"`
	EventID string `json:"event_id,omitempty"`
}

// ResponseKey returns the id of the response this event belongs to, or "".
func (e ServerEvent) ResponseKey() string {
	if e.Response != nil && e.Response.ID != "" {
		return e.Response.ID
	}
	return e.ResponseID
}

// TurnMetadataKey is the response metadata key that carries the tag of the
// request a response answers.
const TurnMetadataKey = "talkback_turn"

// TurnTag returns the request tag echoed in the response metadata, or "".
func (e ServerEvent) TurnTag() string {
	if e.Response == nil {
		return ""
	}
	return e.Response.Metadata[TurnMetadataKey]
}

// DecodeServerEvent parses a single JSON server event and keeps a copy of the
// raw frame.
func DecodeServerEvent(data []byte) (ServerEvent, error) {
	var ev ServerEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return ServerEvent{}, err
	}
	ev.Raw = append(json.RawMessage(nil), data...)
	return ev, nil
}

// ClientEvent is implemented by every event that can be passed to Send.
type ClientEvent interface {
	header() *EventHeader
}

// EventHeader is embedded in every client event.
type EventHeader struct {
	EventID string `json:"event_id,omitempty"`
	Type    string `json:"type"`
}

func (h *EventHeader) header() *EventHeader { return h }

type SessionUpdate struct {
	EventHeader
	Session SessionOptions `json:"session"`
}

type SessionOptions struct {
	Modalities        []string `json:"modalities,omitempty"`
	Instructions      string   `json:"instructions,omitempty"`
	Voice             string   `json:"voice,omitempty"`
	OutputAudioFormat string   `json:"output_audio_format,omitempty"`
}

func NewSessionUpdate(opts SessionOptions) *SessionUpdate {
	return &SessionUpdate{
		EventHeader: EventHeader{Type: EventSessionUpdate},
		Session:     opts,
	}
}

type ConversationItemCreate struct {
	EventHeader
	Item ConversationItem `json:"item"`
}

type ConversationItem struct {
	Type    string        `json:"type"`
	Role    string        `json:"role"`
	Content []ItemContent `json:"content"`
}

type ItemContent struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// NewUserMessage builds a conversation.item.create carrying one user text
// message.
func NewUserMessage(text string) *ConversationItemCreate {
	return &ConversationItemCreate{
		EventHeader: EventHeader{Type: EventConversationItemCreate},
		Item: ConversationItem{
			Type: "message",
			Role: "user",
			Content: []ItemContent{
				{Type: "input_text", Text: text},
			},
		},
	}
}

type ResponseCreate struct {
	EventHeader
	Response *ResponseOptions `json:"response,omitempty"`
}

type ResponseOptions struct {
	Modalities   []string          `json:"modalities,omitempty"`
	Instructions string            `json:"instructions,omitempty"`
	Voice        string            `json:"voice,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// Tag sets the metadata the server echoes on response.created so the reply
// can be matched to this request.
func (o *ResponseOptions) Tag(tag string) *ResponseOptions {
	if o.Metadata == nil {
		o.Metadata = make(map[string]string)
	}
	o.Metadata[TurnMetadataKey] = tag
	return o
}

// NewResponseCreate asks the server for a response. A nil opts uses the
// session defaults.
func NewResponseCreate(opts *ResponseOptions) *ResponseCreate {
	return &ResponseCreate{
		EventHeader: EventHeader{Type: EventResponseCreate},
		Response:    opts,
	}
}

type ResponseCancel struct {
	EventHeader
}

func NewResponseCancel() *ResponseCancel {
	return &ResponseCancel{EventHeader: EventHeader{Type: EventResponseCancel}}
}
