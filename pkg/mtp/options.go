package mtp

import (
	"log/slog"
	"time"

	"github.com/spf13/afero"

	"github.com/luck-mtp/mtp-go/pkg/log"
	"github.com/luck-mtp/mtp-go/pkg/transport"
)

// BusyPolicy decides what a call does while another one holds the session.
type BusyPolicy uint8

const (
	// BusyBlock waits for the session, honouring the caller's context.
	BusyBlock BusyPolicy = iota

	// BusyFailFast returns ErrBusy immediately.
	BusyFailFast
)

func (p BusyPolicy) String() string {
	if p == BusyFailFast {
		return "fail-fast"
	}
	return "block"
}

// Chunk size bounds. Sizes are also rounded down to a multiple of the
// device's max packet size.
const (
	DefaultChunkSize = transport.DefaultChunkSize
	MinChunkSize     = 4 << 10
	MaxChunkSize     = 16 << 20
)

// ClampChunkSize limits n to [MinChunkSize, MaxChunkSize]. Zero selects
// DefaultChunkSize.
func ClampChunkSize(n int) int {
	switch {
	case n == 0:
		return DefaultChunkSize
	case n < MinChunkSize:
		return MinChunkSize
	case n > MaxChunkSize:
		return MaxChunkSize
	}
	return n
}

type config struct {
	logger         *slog.Logger
	protocolLogger log.Logger
	busy           BusyPolicy
	chunkSize      int
	timeout        time.Duration
	fs             afero.Fs
	strictNames    bool
}

func defaultConfig() config {
	return config{
		busy:      BusyBlock,
		chunkSize: DefaultChunkSize,
		timeout:   transport.DefaultTimeout,
		fs:        afero.NewOsFs(),
	}
}

// Option configures a Manager and the sessions it opens.
type Option func(*config)

// WithLogger sets the operational logger. Logging is off by default.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) { c.logger = logger }
}

// WithProtocolLogger captures every container, transaction and state
// change of the session. A disabled logger (nil, log.NoopLogger) turns
// capture off entirely.
func WithProtocolLogger(logger log.Logger) Option {
	return func(c *config) {
		c.protocolLogger = nil
		if log.Enabled(logger) {
			c.protocolLogger = logger
		}
	}
}

// WithBusyPolicy selects blocking or fail-fast serialization.
func WithBusyPolicy(p BusyPolicy) Option {
	return func(c *config) { c.busy = p }
}

// WithChunkSize sets the bulk transfer size, see ClampChunkSize.
func WithChunkSize(n int) Option {
	return func(c *config) { c.chunkSize = ClampChunkSize(n) }
}

// WithTimeout sets the per-transfer USB timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithFs sets the host filesystem used by transfers.
func WithFs(fs afero.Fs) Option {
	return func(c *config) {
		if fs != nil {
			c.fs = fs
		}
	}
}

// WithStrictNames makes Resolve fail with ErrAmbiguousMatch when a folder
// holds more than one object with the requested name.
func WithStrictNames(strict bool) Option {
	return func(c *config) { c.strictNames = strict }
}

type transferConfig struct {
	progress ProgressFunc
	hook     ProgressHook
	channel  *ProgressChannel
}

// TransferOption configures a single transfer.
type TransferOption func(*transferConfig)

// WithProgress reports progress to fn.
func WithProgress(fn ProgressFunc) TransferOption {
	return func(c *transferConfig) { c.progress = fn }
}

// WithProgressHook reports progress to hook. A non-nil return cancels
// the transfer.
func WithProgressHook(hook ProgressHook) TransferOption {
	return func(c *transferConfig) { c.hook = hook }
}

// WithProgressChannel reports progress to ch, ending with a Done update.
func WithProgressChannel(ch *ProgressChannel) TransferOption {
	return func(c *transferConfig) { c.channel = ch }
}
