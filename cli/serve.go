package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"infrakt.dev/api"
	"infrakt.dev/common"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := openCore()
		if err != nil {
			return err
		}

		srv := api.New(c)
		errCh := make(chan error, 1)
		go func() { errCh <- srv.Start() }()

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

		select {
		case err := <-errCh:
			return err
		case sig := <-quit:
			common.Logger.WithField("signal", sig.String()).Info("shutting down")
		}

		ctx, cancel := context.WithTimeout(context.Background(), c.Config.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(ctx)
	},
}
