package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"path"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/luck-mtp/mtp-go/pkg/mtp"
	"github.com/luck-mtp/mtp-go/pkg/persistence"
)

// operation is one device command, shared by the cobra tree and the
// shell.
type operation struct {
	name    string
	aliases []string
	args    string
	short   string
	minArgs int
	maxArgs int

	// offline operations do not open a session.
	offline bool

	// remote lists the argument positions that are device paths.
	remote []int

	run func(ctx context.Context, a *app, s *mtp.Session, args []string) error
}

var operations = []operation{
	{name: "devices", short: "List attached MTP devices", offline: true, run: runDevices},
	{name: "info", short: "Show the connected device", run: runInfo},
	{name: "storages", short: "List the device's storages", run: runStorages},
	{name: "storage", args: "<id>", short: "Select the storage paths refer to", minArgs: 1, maxArgs: 1, run: runSetStorage},
	{name: "ls", aliases: []string{"list"}, args: "[path]", short: "List a folder", maxArgs: 1, remote: []int{0}, run: runList},
	{name: "stat", args: "<path>", short: "Show one object", minArgs: 1, maxArgs: 1, remote: []int{0}, run: runStat},
	{name: "mkdir", args: "<parent> <name> | <path>", short: "Create a folder", minArgs: 1, maxArgs: 2, remote: []int{0}, run: runMkdir},
	{name: "rename", args: "<path> <name>", short: "Rename a file or folder", minArgs: 2, maxArgs: 2, remote: []int{0}, run: runRename},
	{name: "set-file-name", args: "<path> <name>", short: "Rename a file", minArgs: 2, maxArgs: 2, remote: []int{0}, run: runSetFileName},
	{name: "set-folder-name", args: "<path> <name>", short: "Rename a folder", minArgs: 2, maxArgs: 2, remote: []int{0}, run: runSetFolderName},
	{name: "put", aliases: []string{"upload"}, args: "<local> [remote]", short: "Upload a file", minArgs: 1, maxArgs: 2, remote: []int{1}, run: runUpload},
	{name: "get", aliases: []string{"download"}, args: "<remote> [local]", short: "Download a file", minArgs: 1, maxArgs: 2, remote: []int{0}, run: runDownload},
	{name: "cp", aliases: []string{"copy"}, args: "<src> <folder>", short: "Copy an object into a folder", minArgs: 2, maxArgs: 2, remote: []int{0, 1}, run: runCopy},
	{name: "mv", aliases: []string{"move"}, args: "<src> <folder>", short: "Move an object into a folder", minArgs: 2, maxArgs: 2, remote: []int{0, 1}, run: runMove},
	{name: "rm", aliases: []string{"del"}, args: "<path>", short: "Delete a file or folder", minArgs: 1, maxArgs: 1, remote: []int{0}, run: runDelete},
}

func findOperation(name string) (operation, bool) {
	for _, op := range operations {
		if op.name == name {
			return op, true
		}
		for _, alias := range op.aliases {
			if alias == name {
				return op, true
			}
		}
	}
	return operation{}, false
}

// exec runs op with args, opening the session first unless op is offline.
func (a *app) exec(ctx context.Context, op operation, args []string) error {
	if len(args) < op.minArgs || len(args) > op.maxArgs {
		return fmt.Errorf("usage: %s %s", op.name, op.args)
	}
	var s *mtp.Session
	if !op.offline {
		var err error
		if s, err = a.connect(ctx); err != nil {
			return err
		}
		if err := a.checkNames(ctx, s, op, args); err != nil {
			return err
		}
	}
	return op.run(ctx, a, s, args)
}

// checkNames resolves op's device path arguments strictly when
// --strict-names is set, so a duplicate name anywhere on the path fails
// with ErrAmbiguousMatch instead of picking the first match. Paths that do
// not exist yet are left to the operation.
func (a *app) checkNames(ctx context.Context, s *mtp.Session, op operation, args []string) error {
	if !a.cfg.StrictNames {
		return nil
	}
	for _, i := range op.remote {
		if i >= len(args) {
			continue
		}
		p := a.abs(args[i])
		if p == "/" {
			continue
		}
		if _, err := s.Resolve(ctx, p); err != nil && mtp.KindOf(err) == mtp.KindAmbiguousMatch {
			return err
		}
	}
	return nil
}

func (op operation) command(a *app) *cobra.Command {
	use := op.name
	if op.args != "" {
		use += " " + op.args
	}
	return &cobra.Command{
		Use:     use,
		Aliases: op.aliases,
		Short:   op.short,
		Args:    cobra.RangeArgs(op.minArgs, op.maxArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.exec(cmd.Context(), op, args)
		},
	}
}

func runDevices(_ context.Context, a *app, _ *mtp.Session, _ []string) error {
	descs, err := a.manager.DeviceInfo()
	if err != nil {
		return err
	}
	if len(descs) == 0 {
		fmt.Fprintln(a.out, "no MTP devices found")
		return nil
	}
	for _, d := range descs {
		fmt.Fprintln(a.out, d.String())
	}
	return nil
}

func runInfo(_ context.Context, a *app, s *mtp.Session, _ []string) error {
	info := s.Info()
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Device:\t%s\n", s.Descriptor())
	fmt.Fprintf(tw, "Manufacturer:\t%s\n", info.Manufacturer)
	fmt.Fprintf(tw, "Model:\t%s\n", info.Model)
	fmt.Fprintf(tw, "Version:\t%s\n", info.DeviceVersion)
	fmt.Fprintf(tw, "Serial:\t%s\n", info.SerialNumber)
	fmt.Fprintf(tw, "Extension:\t%s\n", info.VendorExtensionDesc)
	fmt.Fprintf(tw, "Session:\t%s\n", s.ID())
	fmt.Fprintf(tw, "Native copy:\t%t\n", s.NativeCopy())
	fmt.Fprintf(tw, "Native move:\t%t\n", s.NativeMove())
	fmt.Fprintf(tw, "Chunk size:\t%d\n", s.ChunkSize())
	return tw.Flush()
}

func runStorages(ctx context.Context, a *app, s *mtp.Session, _ []string) error {
	storages, err := s.Storages(ctx)
	if err != nil {
		return err
	}
	current := s.CurrentStorage().ID
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "\tID\tDESCRIPTION\tFREE\tCAPACITY\t")
	for _, si := range storages {
		mark := " "
		if si.ID == current {
			mark = "*"
		}
		ro := ""
		if si.ReadOnly {
			ro = "read-only"
		}
		fmt.Fprintf(tw, "%s\t0x%08X\t%s\t%s\t%s\t%s\n",
			mark, si.ID, si.Description, humanSize(si.Free), humanSize(si.Capacity), ro)
	}
	return tw.Flush()
}

func runSetStorage(ctx context.Context, a *app, s *mtp.Session, args []string) error {
	id, err := parseStorageID(args[0])
	if err != nil {
		return err
	}
	if err := s.SetStorage(ctx, id); err != nil {
		return err
	}
	cur := s.CurrentStorage()
	a.cwd = "/"
	a.remember(func(r *persistence.DeviceRecord) {
		r.Storage = cur.ID
		r.Cwd = "/"
	})
	fmt.Fprintf(a.out, "storage %s\n", cur)
	return nil
}

func runList(ctx context.Context, a *app, s *mtp.Session, args []string) error {
	p := a.cwd
	if len(args) > 0 {
		p = a.abs(args[0])
	}
	recs, err := s.List(ctx, p)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	for _, r := range recs {
		name := r.Name
		if r.IsFolder() {
			name += "/"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", r.ID, r.Type, humanSize(r.Size), formatTime(r.Modified), name)
	}
	return tw.Flush()
}

func runStat(ctx context.Context, a *app, s *mtp.Session, args []string) error {
	r, err := s.Stat(ctx, a.abs(args[0]))
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Name:\t%s\n", r.Name)
	fmt.Fprintf(tw, "ID:\t%d\n", r.ID)
	fmt.Fprintf(tw, "Parent:\t%d\n", r.ParentID)
	fmt.Fprintf(tw, "Storage:\t0x%08X\n", r.StorageID)
	fmt.Fprintf(tw, "Type:\t%s\n", r.Type)
	fmt.Fprintf(tw, "Format:\t%s\n", r.Format)
	fmt.Fprintf(tw, "Size:\t%d\n", r.Size)
	fmt.Fprintf(tw, "Modified:\t%s\n", formatTime(r.Modified))
	return tw.Flush()
}

func runMkdir(ctx context.Context, a *app, s *mtp.Session, args []string) error {
	var parent, name string
	if len(args) == 2 {
		parent, name = a.abs(args[0]), args[1]
	} else {
		full := a.abs(args[0])
		parent, name = path.Dir(full), path.Base(full)
	}
	id, err := s.CreateFolder(ctx, parent, name)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "created %s (id %d)\n", path.Join(parent, name), id)
	return nil
}

func runRename(ctx context.Context, a *app, s *mtp.Session, args []string) error {
	return s.Rename(ctx, a.abs(args[0]), args[1])
}

func runSetFileName(ctx context.Context, a *app, s *mtp.Session, args []string) error {
	return s.SetFileName(ctx, a.abs(args[0]), args[1])
}

func runSetFolderName(ctx context.Context, a *app, s *mtp.Session, args []string) error {
	return s.SetFolderName(ctx, a.abs(args[0]), args[1])
}

func runUpload(ctx context.Context, a *app, s *mtp.Session, args []string) error {
	remote := a.cwd
	if len(args) > 1 {
		remote = a.abs(args[1])
	}
	res, err := s.Upload(ctx, args[0], remote, a.progress(path.Base(args[0]))...)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "uploaded %s -> %s (id %d, %d bytes, blake2b %s)\n",
		args[0], remote, res.ObjectID, res.Bytes, shortDigest(res.Digest))
	if res.Warning != nil {
		fmt.Fprintf(a.errOut, "warning: %v\n", res.Warning)
	}
	return nil
}

func runDownload(ctx context.Context, a *app, s *mtp.Session, args []string) error {
	remote := a.abs(args[0])
	local := "."
	if len(args) > 1 {
		local = args[1]
	}
	res, err := s.Download(ctx, remote, local, a.progress(path.Base(remote))...)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "downloaded %s -> %s (%d bytes, blake2b %s)\n",
		remote, local, res.Bytes, shortDigest(res.Digest))
	return nil
}

func runCopy(ctx context.Context, a *app, s *mtp.Session, args []string) error {
	src, dst := a.abs(args[0]), a.abs(args[1])
	res, err := s.Copy(ctx, src, dst, a.progress(path.Base(src))...)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "copied %s -> %s (id %d)\n", src, dst, res.ObjectID)
	return nil
}

func runMove(ctx context.Context, a *app, s *mtp.Session, args []string) error {
	src, dst := a.abs(args[0]), a.abs(args[1])
	res, err := s.Move(ctx, src, dst, a.progress(path.Base(src))...)
	if err != nil {
		return err
	}
	how := "copy and delete"
	if res.Native {
		how = "native"
	}
	fmt.Fprintf(a.out, "moved %s -> %s (id %d, %s)\n", src, dst, res.ObjectID, how)
	if res.Warning != nil {
		fmt.Fprintf(a.errOut, "warning: %v\n", res.Warning)
	}
	return nil
}

func runDelete(ctx context.Context, a *app, s *mtp.Session, args []string) error {
	return s.Delete(ctx, a.abs(args[0]))
}

// progress returns the transfer options that draw a progress line, none
// when quiet.
func (a *app) progress(name string) []mtp.TransferOption {
	if a.flags.quiet {
		return nil
	}
	p := &progressLine{w: a.errOut, name: name}
	return []mtp.TransferOption{mtp.WithProgress(p.update)}
}

// progressLine redraws one terminal line per update and ends it when the
// transfer reaches its total.
type progressLine struct {
	w    io.Writer
	name string
	last time.Time
}

func (p *progressLine) update(sent, total uint64) {
	done := sent >= total
	if !done && time.Since(p.last) < 100*time.Millisecond {
		return
	}
	p.last = time.Now()
	pct := uint64(100)
	if total > 0 {
		pct = sent * 100 / total
	}
	fmt.Fprintf(p.w, "\r%s %s/%s %3d%%", p.name, humanSize(sent), humanSize(total), pct)
	if done {
		fmt.Fprintln(p.w)
	}
}

func humanSize(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%dB", n)
	}
	div, exp := uint64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f%ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("2006-01-02 15:04")
}

func shortDigest(d []byte) string {
	s := hex.EncodeToString(d)
	if len(s) > 16 {
		s = s[:16]
	}
	return s
}

// exitCode maps an error to the process exit status.
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, mtp.ErrNoDeviceFound):
		return 3
	case errors.Is(err, mtp.ErrDeviceBusy), errors.Is(err, mtp.ErrBusy):
		return 4
	case errors.Is(err, mtp.ErrNotFound):
		return 5
	case errors.Is(err, mtp.ErrCancelled):
		return 130
	}
	return 1
}
