package chatclient

// Notice is a user-facing message, such as a toast or a status line.
type Notice struct {
	Title       string
	Description string
	Destructive bool
}

type Notifier interface {
	Notify(n Notice)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Notice)

func (f NotifierFunc) Notify(n Notice) { f(n) }

type discard struct{}

func (discard) Notify(Notice) {}

func errorNotice(description string) Notice {
	return Notice{Title: "Error", Description: description, Destructive: true}
}
