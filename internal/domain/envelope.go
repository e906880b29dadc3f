package domain

// HandlerStatus is the normalized outcome of a handler invocation.
type HandlerStatus string

const (
	HandlerInProgress HandlerStatus = "in_progress"
	HandlerResolved   HandlerStatus = "resolved"
	HandlerError      HandlerStatus = "error"
)

// RequestEnvelope is the uniform payload every domain handler receives:
// the raw utterance, the merged context view for that domain, and a
// bounded window of recent transcript turns.
type RequestEnvelope struct {
	Text          string         `json:"text"`
	Context       map[string]any `json:"context"`
	RecentHistory []Turn         `json:"recent_history"`
}

// ResponseEnvelope is the normalized handler response. Handlers that fail
// or panic are represented as a ResponseEnvelope with HandlerError status;
// they can never surface a raw error to the caller.
type ResponseEnvelope struct {
	ResponseText   string         `json:"response_text"`
	ContextUpdates map[string]any `json:"context_updates,omitempty"`
	SuggestedNext  Domain         `json:"suggested_next,omitempty"`
	Confidence     float64        `json:"confidence"`
	Status         HandlerStatus  `json:"status"`
}

// RouterResponse is the public result of processing one query.
type RouterResponse struct {
	Response   string        `json:"response"`
	Department Domain        `json:"department"`
	SessionID  string        `json:"session_id"`
	Status     SessionStatus `json:"status"`
}
