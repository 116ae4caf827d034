package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strconv"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/luck-mtp/mtp-go/internal/config"
	"github.com/luck-mtp/mtp-go/internal/simdevice"
	"github.com/luck-mtp/mtp-go/pkg/connection"
	"github.com/luck-mtp/mtp-go/pkg/log"
	"github.com/luck-mtp/mtp-go/pkg/mtp"
	"github.com/luck-mtp/mtp-go/pkg/persistence"
	"github.com/luck-mtp/mtp-go/pkg/transport"
	"github.com/luck-mtp/mtp-go/pkg/usb"
)

// flags are the persistent command-line flags. Set flags override the
// config file.
type flags struct {
	configPath  string
	vendorID    uint16
	productID   uint16
	simulate    string
	protocolLog string
	wait        time.Duration
	chunkSize   int
	busyPolicy  string
	strict      bool
	logLevel    string
	stateFile   string
	noState     bool
	quiet       bool
}

// app is the state shared by all commands of one mtpctl process.
type app struct {
	flags flags

	out    io.Writer
	errOut io.Writer

	// fs is the host filesystem for config, state and transfers.
	fs afero.Fs

	// newEnumerator is replaced in tests.
	newEnumerator func(cfg *config.Config, logger *slog.Logger) (transport.Enumerator, error)

	cfg      *config.Config
	logger   *slog.Logger
	protoLog *log.FileLogger
	enum     transport.Enumerator
	manager  *mtp.Manager
	session  *mtp.Session
	state    *persistence.StateStore
	cliState *persistence.CLIState

	// cwd is the shell's working directory on the device.
	cwd string
}

func newApp(out, errOut io.Writer) *app {
	return &app{
		out:           out,
		errOut:        errOut,
		fs:            afero.NewOsFs(),
		newEnumerator: defaultEnumerator,
		cwd:           "/",
	}
}

// defaultEnumerator picks USB or a simulated device.
func defaultEnumerator(cfg *config.Config, logger *slog.Logger) (transport.Enumerator, error) {
	switch cfg.Simulate {
	case "":
		return usb.NewEnumerator(usb.WithLogger(logger)), nil
	case "default":
		return simdevice.DefaultFixture().Build(), nil
	default:
		f, err := simdevice.LoadFixture(cfg.Simulate)
		if err != nil {
			return nil, err
		}
		return f.Build(), nil
	}
}

// setup loads the config, applies flags and creates the manager. It runs
// once per process before any subcommand.
func (a *app) setup(cmd *cobra.Command) error {
	if a.manager != nil {
		return nil
	}
	cfgPath := a.flags.configPath
	if cfgPath == "" {
		cfgPath = config.DefaultPath()
	}
	cfg, err := config.Load(a.fs, cfgPath)
	if err != nil {
		return err
	}
	a.applyFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg

	level, _ := cfg.Level()
	a.logger = slog.New(slog.NewTextHandler(a.errOut, &slog.HandlerOptions{Level: level}))

	opts := append(cfg.SessionOptions(), mtp.WithLogger(a.logger), mtp.WithFs(a.fs))
	if cfg.ProtocolLog != "" {
		fl, err := log.NewFileLogger(cfg.ProtocolLog)
		if err != nil {
			return fmt.Errorf("protocol log: %w", err)
		}
		a.protoLog = fl
		var pl log.Logger = fl
		if level <= slog.LevelDebug {
			pl = log.NewMultiLogger(fl, log.NewSlogAdapter(a.logger))
		}
		opts = append(opts, mtp.WithProtocolLogger(pl))
	}

	a.enum, err = a.newEnumerator(cfg, a.logger)
	if err != nil {
		return err
	}
	a.manager = mtp.NewManager(a.enum, opts...)

	if !a.flags.noState && cfg.StateFile != "" {
		a.state = persistence.NewStateStoreFs(a.fs, cfg.StateFile)
		st, err := a.state.Load()
		if err != nil {
			a.logger.Warn("ignoring state file", "error", err)
			st = &persistence.CLIState{}
		}
		a.cliState = st
	}
	return nil
}

func (a *app) applyFlags(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	if f.Changed("vendor") {
		cfg.Device.VendorID = a.flags.vendorID
	}
	if f.Changed("product") {
		cfg.Device.ProductID = a.flags.productID
	}
	if f.Changed("simulate") {
		cfg.Simulate = a.flags.simulate
	}
	if f.Changed("protocol-log") {
		cfg.ProtocolLog = a.flags.protocolLog
	}
	if f.Changed("wait") {
		cfg.Wait = a.flags.wait
	}
	if f.Changed("chunk-size") {
		cfg.ChunkSize = a.flags.chunkSize
	}
	if f.Changed("busy-policy") {
		cfg.BusyPolicy = a.flags.busyPolicy
	}
	if f.Changed("strict-names") {
		cfg.StrictNames = a.flags.strict
	}
	if f.Changed("log-level") {
		cfg.LogLevel = a.flags.logLevel
	}
	if f.Changed("state-file") {
		cfg.StateFile = a.flags.stateFile
	}
}

// connect opens the session on first use and restores the storage
// selected last time on this device.
func (a *app) connect(ctx context.Context) (*mtp.Session, error) {
	if a.session != nil && a.session.State() == mtp.SessionOpen {
		return a.session, nil
	}
	opts := a.cfg.ConnectOptions()

	var s *mtp.Session
	var err error
	if a.cfg.Wait > 0 {
		wctx, cancel := context.WithTimeout(ctx, a.cfg.Wait)
		defer cancel()
		s, err = connection.NewWaiter(a.logger).ConnectWithRetry(wctx, a.manager, opts)
	} else {
		s, err = a.manager.Connect(ctx, opts)
	}
	if err != nil {
		return nil, err
	}
	a.session = s

	if a.cliState != nil {
		rec := a.cliState.Touch(s.Descriptor(), time.Now())
		if rec.Storage != 0 {
			if err := s.SetStorage(ctx, rec.Storage); err != nil {
				a.logger.Info("remembered storage unavailable", "storage", rec.Storage, "error", err)
			}
		}
		if rec.Cwd != "" {
			a.cwd = rec.Cwd
		}
		a.saveState()
	}
	return s, nil
}

// remember updates the current device's record and saves the state.
func (a *app) remember(fn func(*persistence.DeviceRecord)) {
	if a.cliState == nil || a.session == nil {
		return
	}
	a.cliState.Update(a.session.Descriptor().ID(), fn)
	a.saveState()
}

func (a *app) saveState() {
	if err := a.state.Save(a.cliState); err != nil {
		a.logger.Warn("failed to save state", "path", a.state.Path(), "error", err)
	}
}

// close releases the device and the protocol log.
func (a *app) close() error {
	var errs []error
	if a.manager != nil {
		errs = append(errs, a.manager.Release())
	}
	if c, ok := a.enum.(io.Closer); ok {
		errs = append(errs, c.Close())
	}
	if a.protoLog != nil {
		errs = append(errs, a.protoLog.Close())
	}
	return errors.Join(errs...)
}

// abs resolves p against the shell's working directory.
func (a *app) abs(p string) string {
	if p == "" {
		return a.cwd
	}
	if !path.IsAbs(p) {
		p = path.Join(a.cwd, p)
	}
	return path.Clean(p)
}

// parseStorageID accepts decimal or 0x-prefixed hex.
func parseStorageID(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid storage id %q", s)
	}
	return uint32(v), nil
}
