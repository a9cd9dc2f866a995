// Package wa is the WhatsApp Cloud API boundary: webhook payload shapes on
// the way in, the messages endpoint client on the way out.
package wa

// WebhookPayload is the envelope Meta posts to the webhook URL.
type WebhookPayload struct {
	Object string         `json:"object"`
	Entry  []WebhookEntry `json:"entry"`
}

type WebhookEntry struct {
	ID      string          `json:"id"`
	Changes []WebhookChange `json:"changes"`
}

type WebhookChange struct {
	Field string       `json:"field"`
	Value WebhookValue `json:"value"`
}

type WebhookValue struct {
	MessagingProduct string    `json:"messaging_product"`
	Metadata         Metadata  `json:"metadata"`
	Contacts         []Contact `json:"contacts,omitempty"`
	Messages         []Message `json:"messages,omitempty"`
	Statuses         []Status  `json:"statuses,omitempty"`
}

type Metadata struct {
	DisplayPhoneNumber string `json:"display_phone_number"`
	PhoneNumberID      string `json:"phone_number_id"`
}

type Contact struct {
	WaID    string  `json:"wa_id"`
	Profile Profile `json:"profile"`
}

type Profile struct {
	Name string `json:"name"`
}

// Message is one inbound customer message. Only text and interactive replies
// drive the ordering flow; other types get a fallback prompt.
type Message struct {
	ID          string       `json:"id"`
	From        string       `json:"from"`
	Timestamp   string       `json:"timestamp"`
	Type        string       `json:"type"`
	Text        *Text        `json:"text,omitempty"`
	Interactive *Interactive `json:"interactive,omitempty"`
}

type Text struct {
	Body string `json:"body"`
}

type Interactive struct {
	Type        string     `json:"type"`
	ButtonReply *ReplyItem `json:"button_reply,omitempty"`
	ListReply   *ReplyItem `json:"list_reply,omitempty"`
}

type ReplyItem struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// Status is a delivery receipt; the engine ignores these.
type Status struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	RecipientID string `json:"recipient_id"`
}

// ReplyID extracts the interactive reply id, or the text body for plain
// messages. Empty for unsupported message types.
func (m *Message) ReplyID() string {
	if m.Interactive != nil {
		if m.Interactive.ButtonReply != nil {
			return m.Interactive.ButtonReply.ID
		}
		if m.Interactive.ListReply != nil {
			return m.Interactive.ListReply.ID
		}
	}
	if m.Text != nil {
		return m.Text.Body
	}
	return ""
}

// Outbound payloads for POST /{phone_number_id}/messages.

type outboundMessage struct {
	MessagingProduct string               `json:"messaging_product"`
	RecipientType    string               `json:"recipient_type"`
	To               string               `json:"to"`
	Type             string               `json:"type"`
	Text             *outboundText        `json:"text,omitempty"`
	Interactive      *outboundInteractive `json:"interactive,omitempty"`
}

type outboundText struct {
	Body string `json:"body"`
}

type outboundInteractive struct {
	Type   string          `json:"type"`
	Header *outboundHeader `json:"header,omitempty"`
	Body   outboundBody    `json:"body"`
	Action outboundAction  `json:"action"`
}

type outboundHeader struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type outboundBody struct {
	Text string `json:"text"`
}

type outboundAction struct {
	Buttons  []outboundButton `json:"buttons,omitempty"`
	Button   string           `json:"button,omitempty"`
	Sections []Section        `json:"sections,omitempty"`
}

type outboundButton struct {
	Type  string      `json:"type"`
	Reply ButtonReply `json:"reply"`
}

// Button is an interactive reply button shown to the customer.
type Button struct {
	ID    string
	Title string
}

type ButtonReply struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// Section groups rows in an interactive list message.
type Section struct {
	Title string `json:"title"`
	Rows  []Row  `json:"rows"`
}

type Row struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}
