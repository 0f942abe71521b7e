package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/LBVDSEC/telecat/internal/feed"
	"github.com/LBVDSEC/telecat/internal/hardware"
	"github.com/LBVDSEC/telecat/internal/hashcat"
	"github.com/LBVDSEC/telecat/internal/session"
	"github.com/LBVDSEC/telecat/pkg/debug"
)

// shutdownGrace is how long hashcat may take to honour a quit after a signal
const shutdownGrace = 30 * time.Second

type runFlags struct {
	listen        string
	statsEvery    time.Duration
	devices       string
	statusTimer   int
	binaryVersion int64
	noCracked     bool
}

func newRunCmd(a *app) *cobra.Command {
	f := &runFlags{}

	cmd := &cobra.Command{
		Use:   "run [flags] -- <hashcat args...>",
		Short: "Run a hashcat session in the foreground",
		Long: `Run a hashcat session in the foreground.

While it runs, type p (pause), r (resume), s (status), u (refresh) or q (quit)
followed by enter. Interrupting telecat asks hashcat to quit.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) < 1 {
				return errors.New("hashcat arguments are required; use -- to separate them from telecat flags")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.load(); err != nil {
				return err
			}
			if !cmd.Flags().Changed("listen") {
				f.listen = a.cfg.ListenAddr
			}
			return runSession(cmd, a, f, args)
		},
	}

	cmd.Flags().StringVar(&f.listen, "listen", "", "serve the websocket status feed on this address (e.g. 127.0.0.1:8089)")
	cmd.Flags().DurationVar(&f.statsEvery, "stats-every", 0, "print a status report at this interval")
	cmd.Flags().StringVar(&f.devices, "devices", "", "comma separated physical device numbers to use, as listed by `telecat devices`")
	cmd.Flags().IntVar(&f.statusTimer, "status-timer", 0, "seconds between hashcat status lines (overrides HASHCAT_STATUS_TIMER)")
	cmd.Flags().Int64Var(&f.binaryVersion, "binary-version", 0, "installed hashcat version to run")
	cmd.Flags().BoolVar(&f.noCracked, "no-cracked", false, "report only the number of recovered credentials")
	return cmd
}

func runSession(cmd *cobra.Command, a *app, f *runFlags, args []string) error {
	out := cmd.OutOrStdout()

	opts := a.cfg.ControllerOptions()
	if f.statusTimer > 0 {
		opts.StatusTimer = f.statusTimer
	}
	if f.noCracked {
		opts.IncludeCracked = false
	}
	if f.binaryVersion > 0 {
		path, err := hardware.NewBinaryLocator(a.cfg.DataDirectory).Version(f.binaryVersion)
		if err != nil {
			return err
		}
		opts.Binary = path
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := session.NewManager(opts)

	if f.devices != "" {
		indexes, err := parseDeviceIndexes(f.devices)
		if err != nil {
			return err
		}
		monitor := hardware.NewMonitor(hardware.NewDetector(opts.Binary))
		if _, err := monitor.Detect(ctx); err != nil {
			return err
		}
		if err := monitor.EnableOnly(indexes); err != nil {
			return err
		}
		m.SetDeviceSelector(monitor)
	}

	if f.listen != "" {
		srv, err := startFeed(f.listen, m)
		if err != nil {
			return err
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(sctx)
		}()
		fmt.Fprintf(out, "Status feed on ws://%s/ws\n", f.listen)
	}

	info, err := m.Launch(ctx, args)
	if err != nil {
		return err
	}
	printLaunch(out, info)

	if f.statsEvery > 0 {
		if err := m.StartStatusReporter(ctx, f.statsEvery, func(r session.Report) {
			fmt.Fprintf(out, "\n%s\n", r)
		}); err != nil {
			return err
		}
	}

	go readCommands(ctx, cmd.InOrStdin(), m, out)

	// a signal already asked hashcat to quit through ctx; kill it if it lingers
	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := m.Shutdown(sctx); err != nil {
			debug.Warning("%v", err)
		}
	}()

	completion, err := m.Wait(context.Background())
	if err != nil {
		return err
	}
	printResult(out, completion)

	switch completion.Result.Class {
	case hashcat.ClassError, hashcat.ClassWatchdog, hashcat.ClassUnknown:
		return fmt.Errorf("hashcat session %s failed (%s, exit code %d)",
			completion.ID, completion.Result.Class, completion.Result.ExitCode)
	}
	return nil
}

// startFeed serves the websocket feed and a JSON status endpoint
func startFeed(addr string, m *session.Manager) (*http.Server, error) {
	hub := feed.NewHub()
	hub.Start()
	hub.Attach(m)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", hub.ServeWS)
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		report, err := m.Status()
		if err != nil {
			w.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
			return
		}
		_ = json.NewEncoder(w).Encode(report)
	})

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	srv.RegisterOnShutdown(hub.Stop)

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		hub.Stop()
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			debug.Error("Status feed stopped: %v", err)
		}
	}()
	return srv, nil
}

// readCommands applies one-letter commands typed on the terminal
func readCommands(ctx context.Context, in io.Reader, controls feed.Controls, out io.Writer) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			fmt.Fprintln(out, handleCommand(ctx, line, controls))
		}
	}
}

// handleCommand runs one terminal command and returns the text to print
func handleCommand(ctx context.Context, line string, controls feed.Controls) string {
	var err error
	switch strings.ToLower(line) {
	case "p", "pause":
		if err = controls.Pause(ctx); err == nil {
			return "Paused"
		}
	case "r", "resume":
		if err = controls.Resume(ctx); err == nil {
			return "Resumed"
		}
	case "q", "quit":
		if err = controls.Quit(); err == nil {
			return "Quitting"
		}
	case "u", "refresh":
		if err = controls.RequestStatus(); err == nil {
			return "Status requested"
		}
	case "s", "status", "stats":
		report, statusErr := controls.Status()
		if statusErr == nil {
			return report.String()
		}
		err = statusErr
	default:
		return fmt.Sprintf("Unknown command %q (p, r, s, u, q)", line)
	}
	return "Error: " + err.Error()
}

// parseDeviceIndexes converts 1-based device numbers to monitor indexes
func parseDeviceIndexes(list string) ([]int, error) {
	var indexes []int
	for _, part := range strings.Split(list, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("invalid device number %q", part)
		}
		indexes = append(indexes, n-1)
	}
	if len(indexes) == 0 {
		return nil, errors.New("no device numbers given")
	}
	return indexes, nil
}
