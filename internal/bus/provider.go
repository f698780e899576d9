package bus

import (
	"fmt"
	"strings"

	"github.com/botcrew/botcrew/internal/common/config"
	"github.com/botcrew/botcrew/internal/common/logger"
)

// Provide builds the configured bus implementation. A configured NATS
// URL selects the NATS bus; otherwise frames fan out in process.
func Provide(cfg *config.Config, log *logger.Logger) (Bus, func(), error) {
	if strings.TrimSpace(cfg.NATS.URL) != "" {
		natsBus, err := NewNATSBus(cfg.NATS, log)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize NATS bus: %w", err)
		}
		return natsBus, natsBus.Close, nil
	}

	memBus := NewMemoryBus(log)
	return memBus, memBus.Close, nil
}
