package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"captionbot/agent/internal/config"
	"captionbot/agent/internal/health"
	"captionbot/agent/internal/runtime"
)

func newHealthCommand(cfg *config.Launcher) *cobra.Command {
	var launcherURL string
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check the runtime, WebDriver and optionally a running launcher",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			checks := []health.Check{health.WebDriverCheck(cfg.Bot.WebDriverURL)}
			switch cfg.Runtime.Kind {
			case "docker":
				d, err := runtime.NewDocker(runtime.DockerOptions{Host: cfg.Runtime.DockerHost}, nil)
				if err != nil {
					return err
				}
				defer d.Close()
				checks = append(checks, health.PingCheck("docker", d))
			case "local":
				checks = append(checks, health.PingCheck("bot binary", runtime.NewLocal(cfg.Runtime.BotCmd, nil)))
			}
			if launcherURL != "" {
				checks = append(checks, health.HTTPCheck("launcher", launcherURL+"/healthz"))
			}
			st := health.CheckAll(ctx, checks...)
			fmt.Fprint(cmd.OutOrStdout(), st.String())
			if !st.OK {
				return errors.New("health check failed")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&launcherURL, "launcher", "", "Launcher base URL to probe")
	return cmd
}
