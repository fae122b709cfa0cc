// Package chat is the surface between a messaging transport and the ledger
// core: inbound events, outbound replies and the tokens carried by choice
// buttons.
package chat

// Command is a named command with whitespace-split arguments, e.g.
// "!spend 12.50 lunch" is Command{Name: "spend", Args: ["12.50", "lunch"]}.
type Command struct {
	UserID string
	Name   string
	Args   []string
}

// Callback is a tap on a choice option. Data is the option's encoded token.
type Callback struct {
	UserID string
	Data   string
}

// Text is a plain message that is not a command.
type Text struct {
	UserID string
	Body   string
}

// Option is one entry of a choice menu.
type Option struct {
	Label string
	Token Token
}

// Reply is what the core sends back. With Options set it is a choice reply
// and Body is the prompt.
type Reply struct {
	Body    string
	Options []Option
}

func TextReply(body string) Reply {
	return Reply{Body: body}
}

func ChoiceReply(prompt string, options []Option) Reply {
	return Reply{Body: prompt, Options: options}
}

func (r Reply) IsChoice() bool {
	return len(r.Options) > 0
}

// IsEmpty reports a reply that should not be sent at all.
func (r Reply) IsEmpty() bool {
	return r.Body == "" && len(r.Options) == 0
}
