package outbox

import (
	"fmt"

	"github.com/go-faster/errors"
)

var ErrInvalidConfig = errors.New("outbox: invalid configuration")

func invalidConfig(detail string) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, detail)
}
