package dokki

import (
	"log/slog"
	"time"

	"github.com/drpcorg/dokki/utils"
)

type Options struct {
	// Logger defaults to a stderr slog logger at Warn level.
	Logger utils.Logger
	// Now stamps committed changes; tests pin it.
	Now func() time.Time
	// MaxPending is the max number of buffered changes waiting for
	// their dependencies. The oldest is evicted on overflow.
	MaxPending int
	// PendingTimeout expires buffered changes; 0 means never.
	PendingTimeout time.Duration
	// HoseLimit is the byte limit of a hose queue.
	HoseLimit int
	// HoseBatch is the max feed batch (bytes) of a hose.
	HoseBatch int
}

func (o *Options) SetDefaults() {
	if o.Logger == nil {
		o.Logger = utils.NewDefaultLogger(slog.LevelWarn)
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.MaxPending <= 0 {
		o.MaxPending = 1 << 10
	}
	if o.HoseLimit == 0 {
		o.HoseLimit = 1 << 24
	}
	if o.HoseBatch == 0 {
		o.HoseBatch = 1 << 16
	}
}
