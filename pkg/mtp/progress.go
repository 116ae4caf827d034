package mtp

import "sync/atomic"

// ProgressFunc receives the bytes moved so far and the transfer size.
// Calls are monotonic. sent == total is reported only after the device
// accepted the whole transfer, so a failed transfer never reports it.
//
// Progress callbacks run on the transferring goroutine while the session
// is held. Calling back into the Session from one returns ErrBusy.
type ProgressFunc func(sent, total uint64)

// ProgressHook is a ProgressFunc that can cancel the transfer by
// returning an error.
type ProgressHook func(sent, total uint64) error

// Progress is one update delivered through a ProgressChannel.
type Progress struct {
	Sent  uint64
	Total uint64

	// Done marks the final update. Err is the transfer's error, nil on
	// success.
	Done bool
	Err  error
}

// ProgressChannel delivers progress of one transfer over a bounded
// channel. Updates arrive in order and the last one has Done set, after
// which the channel is closed. A slow reader slows the transfer down.
type ProgressChannel struct {
	ch   chan Progress
	done atomic.Bool
}

// NewProgressChannel creates a channel adapter with the given buffer.
func NewProgressChannel(buffer int) *ProgressChannel {
	return &ProgressChannel{ch: make(chan Progress, buffer)}
}

// C returns the receive side.
func (p *ProgressChannel) C() <-chan Progress {
	return p.ch
}

func (p *ProgressChannel) send(sent, total uint64) {
	if p.done.Load() {
		return
	}
	p.ch <- Progress{Sent: sent, Total: total}
}

func (p *ProgressChannel) finish(sent, total uint64, err error) {
	if p.done.Swap(true) {
		return
	}
	p.ch <- Progress{Sent: sent, Total: total, Done: true, Err: err}
	close(p.ch)
}

// progress tracks one transfer and fans updates out to the configured
// sinks. It flags the session while user code runs.
type progress struct {
	cfg    transferConfig
	total  uint64
	sent   uint64
	final  bool
	inside *atomic.Bool
}

func newProgress(cfg transferConfig, total uint64, inside *atomic.Bool) *progress {
	return &progress{cfg: cfg, total: total, inside: inside}
}

// chunk records n more bytes and reports them. The chunk that reaches
// the total is held back for complete, so sinks never see sent == total
// for a transfer the device then rejects.
func (p *progress) chunk(n int) error {
	p.sent += uint64(n)
	if p.total > 0 && p.sent >= p.total {
		return nil
	}
	return p.report()
}

func (p *progress) report() error {
	p.inside.Store(true)
	defer p.inside.Store(false)

	if p.cfg.progress != nil {
		p.cfg.progress(p.sent, p.total)
	}
	if p.cfg.channel != nil {
		p.cfg.channel.send(p.sent, p.total)
	}
	if p.cfg.hook != nil {
		if err := p.cfg.hook(p.sent, p.total); err != nil {
			return newError(KindCancelled, "", "", err)
		}
	}
	return nil
}

// complete delivers the final report once the device has confirmed the
// transfer. Empty files get their single report here too. The data is in
// place, so a hook cannot cancel any more.
func (p *progress) complete() {
	if !p.final {
		p.final = true
		_ = p.report()
	}
}

// finish delivers the terminal channel update.
func (p *progress) finish(err error) {
	if p.cfg.channel != nil {
		p.cfg.channel.finish(p.sent, p.total, err)
	}
}
