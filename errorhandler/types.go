package errorhandler

import (
	"context"

	"github.com/hugolhafner/streambind/kafka"
)

type ActionType int

const (
	ActionTypeContinue ActionType = iota // Skip record, continue
	ActionTypeRetry                      // Retry this record
	ActionTypeFail                       // Stop processing
)

func (a ActionType) String() string {
	switch a {
	case ActionTypeContinue:
		return "Continue"
	case ActionTypeRetry:
		return "Retry"
	case ActionTypeFail:
		return "Fail"
	default:
		return "Unknown"
	}
}

var _ Action = ActionContinue{}
var _ Action = ActionRetry{}
var _ Action = ActionFail{}

type Action interface {
	Type() ActionType
}

type ActionContinue struct{}

func (a ActionContinue) Type() ActionType {
	return ActionTypeContinue
}

type ActionRetry struct{}

func (a ActionRetry) Type() ActionType {
	return ActionTypeRetry
}

type ActionFail struct{}

func (a ActionFail) Type() ActionType {
	return ActionTypeFail
}

// ErrorContext carries what a handler needs to decide a record's fate.
type ErrorContext struct {
	Record  kafka.ConsumerRecord
	Error   error
	Attempt int
}

// NewErrorContext copies the record so later mutations by the caller cannot
// change what the handler observes. Attempt starts at 1.
func NewErrorContext(record kafka.ConsumerRecord, err error) ErrorContext {
	return ErrorContext{Record: record.Copy(), Error: err, Attempt: 1}
}

func (ec ErrorContext) WithError(err error) ErrorContext {
	ec.Error = err
	return ec
}

func (ec ErrorContext) WithAttempt(attempt int) ErrorContext {
	ec.Attempt = attempt
	return ec
}

func (ec ErrorContext) IncrementAttempt() ErrorContext {
	ec.Attempt++
	return ec
}

type Handler interface {
	Handle(ctx context.Context, ec ErrorContext) Action
}

type HandlerFunc func(ctx context.Context, ec ErrorContext) Action

func (f HandlerFunc) Handle(ctx context.Context, ec ErrorContext) Action {
	return f(ctx, ec)
}
