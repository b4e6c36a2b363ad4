package outbox

import (
	"time"

	"github.com/sirupsen/logrus"
)

type RelayOptions struct {
	PollInterval time.Duration
	BatchSize    int
	MaxAttempts  int
	MaxBackoff   time.Duration
	MaxJitter    time.Duration
	Logger       *logrus.Logger
}

func (o *RelayOptions) setDefaults() {
	if o.PollInterval <= 0 {
		o.PollInterval = time.Second
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 50
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 10
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = 5 * time.Minute
	}
	if o.MaxJitter < 0 {
		o.MaxJitter = 0
	}
}
