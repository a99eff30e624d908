/*************************************************************************
 * Copyright 2024 divertengine authors. All rights reserved.
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Command divertengine runs the transparent filtering proxy core as a
// standalone process (SPEC_FULL.md §10.4), embedding a stand-in acceptor
// and an always-allow firewall policy so the engine is runnable end to
// end without a real embedder wired up.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/divertengine/divertengine/internal/capture"
	"github.com/divertengine/divertengine/internal/dvconfig"
	"github.com/divertengine/divertengine/internal/dvlog"
	"github.com/divertengine/divertengine/internal/engine"
)

// version is set at release time via -ldflags, mirroring the teacher's
// version.PrintVersion convention (PacketFleet/main.go, HttpIngester/main.go).
var version = "dev"

var (
	confLoc        string
	stderrOverride string
	verbose        bool
)

func main() {
	root := &cobra.Command{
		Use:   "divertengine",
		Short: "Transparent HTTP/HTTPS filtering proxy core",
	}
	root.PersistentFlags().StringVar(&confLoc, "config-file", "/opt/divertengine/etc/divertengine.conf", "location of the configuration file")
	root.PersistentFlags().StringVar(&stderrOverride, "stderr", "", "write the engine log to the named file under /dev/shm instead of stderr (not used when Log-File is set)")
	root.PersistentFlags().BoolVarP(&verbose, "v", "v", false, "display verbose status updates to stdout")

	root.AddCommand(runCmd(), checkFilterCmd(), versionCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "print the version and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println("divertengine", version)
			return nil
		},
	}
}

// checkFilterCmd validates a BPF expression without opening a live
// capture, mirroring the capture driver shim's check_filter contract
// (spec.md §4.1) so an embedder can validate a config-supplied
// BPF_Filter_Override before deploying it.
func checkFilterCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check-filter <expression>",
		Short: "validate a BPF filter expression",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := capture.CheckFilter(args[0]); err != nil {
				return err
			}
			fmt.Println("ok")
			return nil
		},
	}
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "run the engine in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEngine()
		},
	}
}

func runEngine() error {
	cfg, err := dvconfig.Load(confLoc)
	if err != nil {
		return fmt.Errorf("failed to get configuration: %w", err)
	}

	log := dvlog.New(stderrWriter(), dvlog.ParseLevel(cfg.Log_Level))
	if cfg.Log_File != "" {
		fout, err := os.OpenFile(cfg.Log_File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0640)
		if err != nil {
			return fmt.Errorf("failed to open log file %s: %w", cfg.Log_File, err)
		}
		defer fout.Close()
		log = dvlog.New(fout, dvlog.ParseLevel(cfg.Log_Level))
	}

	device, err := cfg.Device()
	if err != nil {
		return fmt.Errorf("failed to resolve capture device: %w", err)
	}

	ctl := engine.New(engine.Config{
		Device:           device,
		DefaultHTTPPort:  cfg.HTTP_Listen_Port,
		DefaultHTTPSPort: cfg.HTTPS_Listen_Port,
		FirewallRequired: cfg.Firewall_Enforce,
		FirewallCheck: func(binaryPath string) bool {
			// No embedder policy wired into the standalone binary: allow
			// everything rather than silently black-holing every flow.
			return true
		},
		CAOrganization: "divertengine",
		CAValidity:     10 * 365 * 24 * time.Hour,
		Log:            log,
	})

	if err := ctl.Start(); err != nil {
		return fmt.Errorf("failed to start engine: %w", err)
	}
	log.Infof("engine started: http=%d https=%d pem_len=%d", ctl.GetHTTPListenerPort(), ctl.GetHTTPSListenerPort(), len(ctl.GetRootCertificatePEM()))
	if verbose {
		fmt.Printf("engine started: http=%d https=%d\n", ctl.GetHTTPListenerPort(), ctl.GetHTTPSListenerPort())
	}

	<-waitForQuit()

	ctl.Stop()
	stats := ctl.Stats()
	log.Infof("engine stopped: processed=%d filtered=%d rewritten=%d dropped=%d socks_blocked=%d",
		stats.Processed, stats.Filtered, stats.Rewritten, stats.Dropped, stats.SocksBlocked)
	if verbose {
		fmt.Printf("engine stopped: processed=%d rewritten=%d dropped=%d\n", stats.Processed, stats.Rewritten, stats.Dropped)
	}
	return nil
}

func stderrWriter() *os.File {
	if stderrOverride == "" {
		return os.Stderr
	}
	fp := filepath.Join("/dev/shm/", stderrOverride)
	fout, err := os.OpenFile(fp, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0640)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to redirect stderr to %s: %v\n", fp, err)
		return os.Stderr
	}
	return fout
}
