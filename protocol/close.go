package protocol

import "fmt"

// CloseCode is a websocket close status in the private 4000-4099 range.
type CloseCode int

// Close codes used by the client when it drops a connection itself.
const (
	CloseInstruction CloseCode = 4000
	CloseTimeout     CloseCode = 4001
	CloseStaleBlock  CloseCode = 4002
	CloseFutureBlock CloseCode = 4003
)

var closeReasons = map[CloseCode]string{
	CloseInstruction: "close instruction",
	CloseTimeout:     "response time out",
	CloseStaleBlock:  "old block or slow node",
	CloseFutureBlock: "future block or clock skew",
}

// Reason returns the fixed reason text sent with the close frame.
func (c CloseCode) Reason() string {
	if r, ok := closeReasons[c]; ok {
		return r
	}
	return fmt.Sprintf("close %d", int(c))
}

// Private reports whether the code lies in the application-private range.
func (c CloseCode) Private() bool {
	return c >= 4000 && c <= 4099
}

func (c CloseCode) String() string {
	return fmt.Sprintf("%d (%s)", int(c), c.Reason())
}
