package action

import (
	"context"
	"log/slog"

	"github.com/xraph/flowline/id"
)

// Action types for events, logging, and variable manipulation.
const (
	TypePublishEvent = "PUBLISH_EVENT"
	TypeLogMessage   = "LOG_MESSAGE"
	TypeSetVariable  = "SET_VARIABLE"
)

// Publisher emits domain events on behalf of PUBLISH_EVENT steps.
type Publisher interface {
	Publish(ctx context.Context, eventType string, payload map[string]any) error
}

// PublishEvent is the PUBLISH_EVENT handler.
type PublishEvent struct {
	Publisher Publisher
}

func NewPublishEvent(p Publisher) *PublishEvent { return &PublishEvent{Publisher: p} }

func (h *PublishEvent) Type() string { return TypePublishEvent }

func (h *PublishEvent) Spec() Spec {
	return Spec{Fields: []Field{
		{Name: "eventType", Type: FieldString, Required: true},
		{Name: "payload", Type: FieldObject, Required: true},
	}}
}

func (h *PublishEvent) Execute(ctx context.Context, in Input) (map[string]any, error) {
	if err := h.Publisher.Publish(ctx, in.String("eventType"), in.Map("payload")); err != nil {
		return nil, err
	}
	return map[string]any{"eventId": id.NewEventID().String()}, nil
}

// LogMessage is the LOG_MESSAGE handler. It writes through the process
// logger at the requested level.
type LogMessage struct {
	Logger *slog.Logger
}

func NewLogMessage(logger *slog.Logger) *LogMessage {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogMessage{Logger: logger}
}

func (h *LogMessage) Type() string { return TypeLogMessage }

func (h *LogMessage) Spec() Spec {
	return Spec{Fields: []Field{
		{Name: "level", Type: FieldString, Enum: []string{"debug", "info", "warn", "error"}},
		{Name: "message", Type: FieldString, Required: true},
		{Name: "data", Type: FieldObject},
	}}
}

func (h *LogMessage) Execute(ctx context.Context, in Input) (map[string]any, error) {
	level := slog.LevelInfo
	switch in.String("level") {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	attrs := []any{}
	if data := in.Map("data"); data != nil {
		attrs = append(attrs, slog.Any("data", data))
	}
	h.Logger.Log(ctx, level, in.String("message"), attrs...)
	return map[string]any{}, nil
}

// SetVariable is the SET_VARIABLE handler. It writes into the execution's
// variable bag through the Input.Vars collaborator.
type SetVariable struct{}

func NewSetVariable() *SetVariable { return &SetVariable{} }

func (h *SetVariable) Type() string { return TypeSetVariable }

func (h *SetVariable) Spec() Spec {
	return Spec{Fields: []Field{
		{Name: "name", Type: FieldString, Required: true, Pattern: `^[A-Za-z_][A-Za-z0-9_]*$`},
	}}
}

func (h *SetVariable) Execute(_ context.Context, in Input) (map[string]any, error) {
	if in.Vars == nil {
		return nil, Errorf(KindInternal, "NO_VARIABLE_BAG", "execution context does not expose variables")
	}
	in.Vars.Set(in.String("name"), in.Params["value"])
	return map[string]any{}, nil
}

// Builtins wires every built-in handler into a registry. Collaborator
// fields left nil have their handlers skipped, so hosts only expose the
// action types they can actually serve.
type Builtins struct {
	HTTPClient *HTTPRequest
	Mailer     Mailer
	Messenger  Messenger
	Records    RecordStore
	Publisher  Publisher
	Logger     *slog.Logger
}

// Register wires the available built-in handlers into r.
func (b Builtins) Register(r *Registry) error {
	handlers := []Handler{NewSetVariable(), NewLogMessage(b.Logger)}
	if b.HTTPClient != nil {
		handlers = append(handlers, b.HTTPClient)
	} else {
		handlers = append(handlers, NewHTTPRequest(nil))
	}
	if b.Mailer != nil {
		handlers = append(handlers, NewSendEmail(b.Mailer))
	}
	if b.Messenger != nil {
		handlers = append(handlers, NewSendSlack(b.Messenger))
	}
	if b.Records != nil {
		handlers = append(handlers,
			NewCreateRecord(b.Records), NewUpdateRecord(b.Records),
			NewDeleteRecord(b.Records), NewQueryRecords(b.Records))
	}
	if b.Publisher != nil {
		handlers = append(handlers, NewPublishEvent(b.Publisher))
	}

	for _, h := range handlers {
		if err := r.Register(h); err != nil {
			return err
		}
	}
	return nil
}

var (
	_ Handler = (*HTTPRequest)(nil)
	_ Handler = (*SendEmail)(nil)
	_ Handler = (*SendSlack)(nil)
	_ Handler = (*CreateRecord)(nil)
	_ Handler = (*UpdateRecord)(nil)
	_ Handler = (*DeleteRecord)(nil)
	_ Handler = (*QueryRecords)(nil)
	_ Handler = (*PublishEvent)(nil)
	_ Handler = (*LogMessage)(nil)
	_ Handler = (*SetVariable)(nil)
)
