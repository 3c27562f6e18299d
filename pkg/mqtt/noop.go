package mqtt

import "context"

type noopPubSub struct{}

// NewNoopPubSub returns a publisher that drops everything. Used when the
// coordinator runs without a broker.
func NewNoopPubSub() PubSub {
	return noopPubSub{}
}

func (noopPubSub) Publish(ctx context.Context, topic string, msg any) error {
	return nil
}

func (noopPubSub) Subscribe(ctx context.Context, topic string, handler Handler) error {
	return nil
}

func (noopPubSub) Unsubscribe(ctx context.Context, topic string) error {
	return nil
}

func (noopPubSub) Disconnect(ctx context.Context) error {
	return nil
}
