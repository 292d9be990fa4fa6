package protocol

// Message is the unit exchanged between hub and agent.
// Content is interpreted only according to Kind.
type Message struct {
	Author  string
	Kind    Kind
	Content string
}

func NewAlias(author, alias string) Message {
	return Message{Author: author, Kind: KindAlias, Content: alias}
}

func NewCommand(author, command string) Message {
	return Message{Author: author, Kind: KindCommand, Content: command}
}

func NewCommandOutput(author, output string) Message {
	return Message{Author: author, Kind: KindCommandOutput, Content: output}
}

// NewCommandError carries no detail; failure reasons stay on the agent.
func NewCommandError(author string) Message {
	return Message{Author: author, Kind: KindCommandError}
}

func NewDisconnect(author string) Message {
	return Message{Author: author, Kind: KindDisconnect}
}

func NewMessage(author, content string) Message {
	return Message{Author: author, Kind: KindMessage, Content: content}
}
