package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"captionbot/agent/internal/config"
	"captionbot/agent/internal/launcher"
	"captionbot/agent/internal/runtime"
)

type launchOptions struct {
	meetingURL string
	notifiers  []string
	botID      string
	kind       string
	portMin    int
	portMax    int
	detach     bool
}

func newLaunchCommand(cfg *config.Launcher) *cobra.Command {
	var opts launchOptions
	cmd := &cobra.Command{
		Use:   "launch",
		Short: "Start one bot on the first free local port",
		RunE: func(cmd *cobra.Command, args []string) error {
			req, verrs := launcher.Validate(launcher.RawRequest{
				MeetingURL:   opts.meetingURL,
				NotifierURLs: opts.notifiers,
				BotID:        opts.botID,
			})
			if len(verrs) > 0 {
				return verrs
			}
			port, err := launcher.ScanFreePort(opts.portMin, opts.portMax, nil)
			if err != nil {
				return err
			}
			kind := opts.kind
			if kind == "" {
				kind = cfg.Runtime.Kind
			}
			return runLaunch(cmd, *cfg, kind, req, port, opts.detach)
		},
	}
	cmd.Flags().StringVar(&opts.meetingURL, "meeting-url", "", "Meeting link to join")
	cmd.Flags().StringSliceVar(&opts.notifiers, "notifier", nil, "Notification destination (repeatable)")
	cmd.Flags().StringVar(&opts.botID, "bot-id", "", "Bot id (UUID, generated when empty)")
	cmd.Flags().StringVar(&opts.kind, "runtime", "", "Runtime: docker or local (defaults to RUNTIME)")
	cmd.Flags().IntVar(&opts.portMin, "port-min", 4101, "Lowest port to try")
	cmd.Flags().IntVar(&opts.portMax, "port-max", 4199, "Highest port to try")
	cmd.Flags().BoolVar(&opts.detach, "detach", false, "Return once started instead of waiting for exit")
	return cmd
}

func runLaunch(cmd *cobra.Command, cfg config.Launcher, kind string, req launcher.Request, port int, detach bool) error {
	exited := make(chan int, 1)
	onExit := func(name string, code int, err error) { exited <- code }

	var rt runtime.Runtime
	switch kind {
	case "docker":
		d, err := runtime.NewDocker(runtime.DockerOptions{
			Host:    cfg.Runtime.DockerHost,
			Network: cfg.Runtime.Network,
			HostIP:  cfg.Runtime.HostIP,
		}, onExit)
		if err != nil {
			return err
		}
		defer d.Close()
		rt = d
	case "local":
		if detach {
			return errors.New("--detach needs the docker runtime")
		}
		rt = runtime.NewLocal(cfg.Runtime.BotCmd, onExit)
	default:
		return fmt.Errorf("unknown runtime %q", kind)
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	env := cfg.BotEnv()
	env["MEETING_URL"] = req.MeetingURL
	env["BOT_ID"] = req.BotID
	if len(req.NotifierURLs) > 0 {
		env["NOTIFIER_URLS"] = strings.Join(req.NotifierURLs, ",")
	}
	name := launcher.ContainerName("", req.BotID)
	id, err := rt.Start(ctx, runtime.Spec{Name: name, Image: cfg.Runtime.Image, Env: env, Port: port})
	if err != nil {
		return fmt.Errorf("start bot: %w", err)
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "botId: %s\nport: %d\ncontainerName: %s\nruntimeId: %s\n", req.BotID, port, name, id)
	if detach {
		return nil
	}

	select {
	case code := <-exited:
		fmt.Fprintf(out, "bot exited with code %d\n", code)
		if code != 0 {
			return fmt.Errorf("bot exited with code %d", code)
		}
		return nil
	case <-ctx.Done():
	}
	fmt.Fprintln(out, "stopping bot...")
	sctx, scancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer scancel()
	if err := rt.Stop(sctx, name); err != nil && !errors.Is(err, runtime.ErrNotRunning) {
		return err
	}
	select {
	case <-exited:
	case <-sctx.Done():
	}
	return nil
}
