package sender

import (
	"github.com/hugolhafner/streambind/kafka"
)

// Result correlates one outgoing send with its broker outcome. Token is the
// caller-supplied correlation value; Ack is populated on success, Err on
// failure, never both.
type Result struct {
	Token any
	Ack   kafka.Ack
	Err   error
}

func (r Result) Succeeded() bool {
	return r.Err == nil
}
