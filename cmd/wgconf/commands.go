package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/wgconf/wgconf/internal/codec"
	"github.com/wgconf/wgconf/internal/diag"
	"github.com/wgconf/wgconf/internal/fsprobe"
	"github.com/wgconf/wgconf/internal/manage"
	"github.com/wgconf/wgconf/internal/model"
	"github.com/wgconf/wgconf/internal/qr"
	"github.com/wgconf/wgconf/internal/snapshot"
	"github.com/wgconf/wgconf/pkg/bytesize"
)

func newInitCmd() *cobra.Command {
	var opts manage.CoordinatorOptions
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a new coordinator configuration",
		Long: `Create a coordinator with a fresh key pair and no peers.

Refuses to run when a coordinator file already exists unless --force is
given; with --force every existing peer is discarded (the old files stay
in the backup directory).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession()
			if err != nil {
				return err
			}
			if fsprobe.Exists(s.repo.CoordinatorPath()) && !force {
				return fmt.Errorf("%s already exists, use --force to replace the configuration", s.repo.CoordinatorPath())
			}
			if err := os.MkdirAll(s.cfg.ConfigDir, 0700); err != nil {
				return fmt.Errorf("create %s: %w", s.cfg.ConfigDir, err)
			}

			c, err := s.manager.NewCoordinator(opts)
			if err != nil {
				return err
			}
			if err := s.save(c); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Created %s (%s)\n", s.repo.CoordinatorPath(), c.Address)
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.Name, "name", "", "coordinator name (default \""+manage.DefaultCoordinatorName+"\")")
	cmd.Flags().StringVar(&opts.Address, "address", "", "coordinator address with prefix (default "+manage.DefaultCoordinatorAddress+")")
	cmd.Flags().StringVar(&opts.ListenPort, "port", "", "listen port (default "+manage.DefaultListenPort+")")
	cmd.Flags().BoolVar(&force, "force", false, "replace an existing configuration")
	return cmd
}

func newShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show [id]",
		Short: "List the configuration or print one file",
		Long: `Without an ID, list the coordinator (ID 0) and every peer.
With an ID, print the file that would be written for it.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession()
			if err != nil {
				return err
			}
			c, err := s.load()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if len(args) == 0 {
				w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
				_, _ = fmt.Fprintln(w, "ID\tNAME\tPRIVATE KEY\tADDRESS")
				for _, r := range manage.Summary(c) {
					_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", r.ID, r.Name, r.PrivateKey, r.Address)
				}
				return w.Flush()
			}

			t, err := model.ParseTarget(args[0], len(c.Peers))
			if err != nil {
				return err
			}
			text, err := codec.RenderTarget(c, t)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprint(out, text)
			return nil
		},
	}
}

func newAddPeerCmd() *cobra.Command {
	var opts manage.PeerOptions

	cmd := &cobra.Command{
		Use:   "add-peer [Key=Value...]",
		Short: "Add a peer with a fresh key pair",
		Long: `Add a peer. It gets the next free address of the coordinator network
unless --address is given. Extra Key=Value arguments set further fields,
for example DNS=10.0.0.1 or client_PersistentKeepalive=25.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			params, err := parseParams(args)
			if err != nil {
				return err
			}
			s, err := newSession()
			if err != nil {
				return err
			}
			c, err := s.load()
			if err != nil {
				return err
			}

			if opts.Endpoint == "" {
				opts.Endpoint = s.cfg.Endpoint
			}
			if opts.Keepalive == "" {
				opts.Keepalive = s.cfg.PersistentKeepalive
			}
			opts.Params = params

			i, warnings, err := s.manager.AddPeer(c, opts)
			if err != nil {
				return err
			}
			s.warn(warnings)
			if err := s.save(c); err != nil {
				return err
			}
			p := c.Peers[i]
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Added peer %d %q (%s) as %s\n", model.DisplayID(i), p.Name, p.Address, p.Filename)
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.Name, "name", "", "peer name (default \"Client <n>\")")
	cmd.Flags().StringVar(&opts.Address, "address", "", "peer address (default: next free host)")
	cmd.Flags().StringVar(&opts.Endpoint, "endpoint", "", "coordinator host:port for this peer (default from config)")
	cmd.Flags().StringVar(&opts.Keepalive, "keepalive", "", "persistent keepalive in seconds (default from config)")
	return cmd
}

func newRemovePeerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove-peer <id>",
		Short: "Remove a peer",
		Long: `Remove the peer with the given ID. Its file is deleted on write (a copy
stays in the backup directory). IDs of later peers shift down by one.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession()
			if err != nil {
				return err
			}
			c, err := s.load()
			if err != nil {
				return err
			}
			t, err := model.ParseTarget(args[0], len(c.Peers))
			if err != nil {
				return err
			}
			if t.Coordinator {
				return errors.New("ID 0 is the coordinator, use init --force to discard the whole configuration")
			}
			name := c.Peers[t.Index].Name
			if err := s.manager.RemovePeer(c, t.Index); err != nil {
				return err
			}
			if err := s.save(c); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Removed peer %s %q\n", t, name)
			return nil
		},
	}
}

func newGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id> [key]",
		Short: "Print fields of the coordinator or a peer",
		Long: `Print one field, or every set field when no key is given. Besides the
WireGuard keys, "name", "filename" and the coordinator-side "client_<key>"
fields of a peer are available.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession()
			if err != nil {
				return err
			}
			c, err := s.load()
			if err != nil {
				return err
			}
			t, err := model.ParseTarget(args[0], len(c.Peers))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if len(args) == 2 {
				v, err := s.manager.GetField(c, t, args[1])
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintln(out, v)
				return nil
			}

			fields, err := manage.Fields(c, t)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			for _, f := range fields {
				_, _ = fmt.Fprintf(w, "%s\t%s\n", f[0], f[1])
			}
			return w.Flush()
		},
	}
}

func newSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <id> <Key=Value>...",
		Short: "Change fields of the coordinator or a peer",
		Long: `Change one or more fields. An empty value clears the field. Setting a
PrivateKey updates the public key the other side sees.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			params, err := parseParams(args[1:])
			if err != nil {
				return err
			}
			s, err := newSession()
			if err != nil {
				return err
			}
			c, err := s.load()
			if err != nil {
				return err
			}
			t, err := model.ParseTarget(args[0], len(c.Peers))
			if err != nil {
				return err
			}
			for _, kv := range params {
				if err := s.manager.SetField(c, t, kv[0], kv[1]); err != nil {
					return err
				}
			}
			return s.save(c)
		},
	}
}

func newRekeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rekey <id>",
		Short: "Generate a new key pair for the coordinator or a peer",
		Long: `Generate a new key pair. Rekeying the coordinator (ID 0) changes every
peer file, so all peers need their new file.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession()
			if err != nil {
				return err
			}
			c, err := s.load()
			if err != nil {
				return err
			}
			t, err := model.ParseTarget(args[0], len(c.Peers))
			if err != nil {
				return err
			}
			if err := s.manager.Rekey(c, t); err != nil {
				return err
			}
			return s.save(c)
		},
	}
}

func newResizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resize <hosts>",
		Short: "Renumber the network for a number of hosts",
		Long: `Move the configuration to the smallest private network with room for
<hosts> addresses. Peers get the first addresses in ID order, the
coordinator the last one.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hosts, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("hosts must be a number: %w", err)
			}
			s, err := newSession()
			if err != nil {
				return err
			}
			c, err := s.load()
			if err != nil {
				return err
			}
			network, err := s.manager.Resize(c, hosts)
			if err != nil {
				return err
			}
			if err := s.save(c); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Network is now %s, coordinator %s\n", network, c.Address)
			return nil
		},
	}
}

func newQRCmd() *cobra.Command {
	var pngPath string
	var size int

	cmd := &cobra.Command{
		Use:   "qr <id>",
		Short: "Show a peer file as a QR code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession()
			if err != nil {
				return err
			}
			c, err := s.load()
			if err != nil {
				return err
			}
			t, err := model.ParseTarget(args[0], len(c.Peers))
			if err != nil {
				return err
			}
			if t.Coordinator {
				return errors.New("QR codes are for peers, the coordinator file stays on the server")
			}
			text, err := codec.RenderPeer(c, t.Index)
			if err != nil {
				return err
			}
			if pngPath != "" {
				return qr.WriteFile(text, size, pngPath)
			}
			return qr.Terminal(cmd.OutOrStdout(), text, false)
		},
	}
	cmd.Flags().StringVar(&pngPath, "png", "", "write a PNG image to this path instead of the terminal")
	cmd.Flags().IntVar(&size, "size", qr.DefaultSize, "PNG size in pixels")
	return cmd
}

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Check the configuration for problems",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession()
			if err != nil {
				return err
			}
			c, err := s.load()
			if err != nil {
				return err
			}

			all := append(diag.List{}, s.diags.List...)
			all = append(all, s.manager.Check(c)...)
			s.flushMetrics()

			out := cmd.OutOrStdout()
			for _, d := range all {
				_, _ = fmt.Fprintln(out, d.String())
			}
			if all.HasErrors() {
				return fmt.Errorf("%d errors found", len(all.Filter(diag.Error)))
			}
			if avail, err := fsprobe.Available(s.cfg.ConfigDir); err != nil {
				log.Debug().Err(err).Msg("free space unknown")
			} else if floor, _ := bytesize.Parse(s.cfg.MinFreeSpace); avail < floor {
				_, _ = fmt.Fprintf(out, "warning: only %s free in %s\n", bytesize.Format(avail), s.cfg.ConfigDir)
			}
			_, _ = fmt.Fprintf(out, "%d peers, %d warnings\n", len(c.Peers), len(all.Filter(diag.Warning)))
			return nil
		},
	}
}

func newArchiveCmd() *cobra.Command {
	var outDir string

	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Save the configuration directory as a compressed archive",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession()
			if err != nil {
				return err
			}
			if err := fsprobe.CheckDir(s.cfg.ConfigDir, fsprobe.Read); err != nil {
				return err
			}
			dest := outDir
			if dest == "" {
				dest = s.cfg.ArchiveDir
			}
			if dest == "" {
				dest = filepath.Join(s.cfg.ConfigDir, ".archive")
			}
			path, err := snapshot.Create(s.cfg.ConfigDir, dest, time.Now())
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
	cmd.Flags().StringVarP(&outDir, "output", "o", "", "directory for the archive (default from config, else <dir>/.archive)")

	cmd.AddCommand(&cobra.Command{
		Use:   "list <archive>",
		Short: "List the files in an archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := snapshot.List(args[0])
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "NAME\tSIZE\tMODIFIED")
			for _, e := range entries {
				_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", e.Name, bytesize.Format(e.Size), e.ModTime.Format("2006-01-02 15:04:05"))
			}
			return w.Flush()
		},
	})
	return cmd
}

func newRestoreCmd() *cobra.Command {
	var to string

	cmd := &cobra.Command{
		Use:   "restore <archive>",
		Short: "Unpack an archive into an empty directory",
		Long: `Unpack an archive. Existing files are never overwritten, so restore into
a new directory and point --dir at it, or move the files yourself.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if to == "" {
				return errors.New("--to is required")
			}
			restored, err := snapshot.Extract(args[0], to)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Restored %d files into %s\n", len(restored), to)
			return nil
		},
	}
	cmd.Flags().StringVar(&to, "to", "", "target directory")
	return cmd
}
