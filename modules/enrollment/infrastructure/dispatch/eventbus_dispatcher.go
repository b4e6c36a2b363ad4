package dispatch

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/alumnet-hq/alumnet/modules/enrollment/domain/aggregates/request"
	"github.com/alumnet-hq/alumnet/pkg/eventbus"
	"github.com/alumnet-hq/alumnet/pkg/outbox"
)

// EventBusDispatcher decodes stored outbox payloads into their typed domain
// events and republishes them on the in-process event bus. Messages with an
// unknown topic or an unreadable payload are acknowledged and logged, not
// retried: redelivery cannot fix either.
type EventBusDispatcher struct {
	bus eventbus.EventBus
	log *logrus.Logger
}

func NewEventBusDispatcher(bus eventbus.EventBus, log *logrus.Logger) *EventBusDispatcher {
	return &EventBusDispatcher{bus: bus, log: log}
}

func (d *EventBusDispatcher) Dispatch(_ context.Context, msg outbox.DispatchedMessage) error {
	event, err := decode(msg)
	if err != nil {
		d.log.WithError(err).
			WithField("topic", msg.Meta.Topic).
			WithField("event_id", msg.Meta.EventID).
			Warn("dispatch: dropping undecodable outbox message")
		return nil
	}

	d.bus.Publish(event)
	return nil
}

func decode(msg outbox.DispatchedMessage) (interface{}, error) {
	switch msg.Meta.Topic {
	case request.TopicStatusChanged:
		var ev request.StatusChangedEvent
		if err := json.Unmarshal(msg.Payload, &ev); err != nil {
			return nil, err
		}
		return ev, nil
	case request.TopicCancellationOccurred:
		var ev request.CancellationOccurredEvent
		if err := json.Unmarshal(msg.Payload, &ev); err != nil {
			return nil, err
		}
		return ev, nil
	default:
		return nil, fmt.Errorf("unknown topic %q", msg.Meta.Topic)
	}
}
