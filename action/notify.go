package action

import "context"

// Action types for outbound notifications.
const (
	TypeSendEmail = "SEND_EMAIL"
	TypeSendSlack = "SEND_SLACK"
)

// Mailer delivers email on behalf of SEND_EMAIL steps.
type Mailer interface {
	// Send delivers a message and returns a provider message id.
	Send(ctx context.Context, to, subject, body, template string, templateData map[string]any) (string, error)
}

// Messenger posts chat messages on behalf of SEND_SLACK steps.
type Messenger interface {
	// Post sends a message to a channel, optionally threading under
	// threadTS, and returns the message timestamp.
	Post(ctx context.Context, channel, message, threadTS string, blocks []any) (string, error)
}

// SendEmail is the SEND_EMAIL handler.
type SendEmail struct {
	Mailer Mailer
}

func NewSendEmail(m Mailer) *SendEmail { return &SendEmail{Mailer: m} }

func (h *SendEmail) Type() string { return TypeSendEmail }

func (h *SendEmail) Spec() Spec {
	return Spec{Fields: []Field{
		{Name: "to", Type: FieldString, Required: true, Pattern: `^[^@\s]+@[^@\s]+$`},
		{Name: "subject", Type: FieldString, Required: true},
		{Name: "body", Type: FieldString, Required: true},
		{Name: "template", Type: FieldString},
		{Name: "templateData", Type: FieldObject},
	}}
}

func (h *SendEmail) Execute(ctx context.Context, in Input) (map[string]any, error) {
	to := in.String("to")
	id, err := h.Mailer.Send(ctx, to, in.String("subject"), in.String("body"),
		in.String("template"), in.Map("templateData"))
	if err != nil {
		return nil, err
	}
	return map[string]any{"messageId": id, "sentTo": to}, nil
}

// SendSlack is the SEND_SLACK handler.
type SendSlack struct {
	Messenger Messenger
}

func NewSendSlack(m Messenger) *SendSlack { return &SendSlack{Messenger: m} }

func (h *SendSlack) Type() string { return TypeSendSlack }

func (h *SendSlack) Spec() Spec {
	return Spec{Fields: []Field{
		{Name: "channel", Type: FieldString, Required: true},
		{Name: "message", Type: FieldString, Required: true},
		{Name: "blocks", Type: FieldArray},
		{Name: "threadTs", Type: FieldString},
	}}
}

func (h *SendSlack) Execute(ctx context.Context, in Input) (map[string]any, error) {
	channel := in.String("channel")
	blocks, _ := in.Params["blocks"].([]any)
	ts, err := h.Messenger.Post(ctx, channel, in.String("message"), in.String("threadTs"), blocks)
	if err != nil {
		return nil, err
	}
	return map[string]any{"ts": ts, "channel": channel}, nil
}
