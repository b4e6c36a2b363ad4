package outbox

import "context"

// Dispatcher hands a stored message to its downstream consumer. Returning an
// error leaves the message in the outbox for a later attempt, so dispatchers
// must tolerate redelivery.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg DispatchedMessage) error
}
