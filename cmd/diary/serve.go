package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"diary/internal/auth"
	"diary/internal/dedupe"
	httpx "diary/internal/http"
	"diary/internal/http/handler"
	"diary/internal/media"
	"diary/internal/scheduler"

	"github.com/spf13/cobra"
)

func serveCmd() *cobra.Command {
	var noScheduler bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the merge scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			uploader, err := newUploader(a)
			if err != nil {
				return err
			}
			dd, closeDedupe, err := newDeduper(ctx, a.cfg.RedisURL)
			if err != nil {
				return err
			}
			defer closeDedupe()

			sched := scheduler.New(a.svc, a.cfg.MergeInterval, log.Default())
			if !noScheduler {
				sched.Start()
				defer sched.Stop()
			}

			r := httpx.NewRouter(a.cfg, httpx.Deps{
				DB:       a.db,
				JWT:      auth.NewJWT(a.cfg.JWTSecret),
				Svc:      a.svc,
				Merger:   sched,
				Uploader: uploader,
				Dedupe:   dd,
			})

			srv := &http.Server{
				Addr:              a.cfg.HTTPAddr,
				Handler:           r,
				ReadHeaderTimeout: 5 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				log.Printf("listening on %s\n", a.cfg.HTTPAddr)
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					errCh <- err
				}
			}()

			// graceful shutdown
			ch := make(chan os.Signal, 1)
			signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
			select {
			case <-ch:
			case err := <-errCh:
				return err
			}

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			return srv.Shutdown(shutdownCtx)
		},
	}

	cmd.Flags().BoolVar(&noScheduler, "no-scheduler", false, "serve the API without merging in the background")
	return cmd
}

func newUploader(a *app) (media.Uploader, error) {
	if a.cfg.UseCloudinary() {
		return media.NewCloudinary(a.cfg.CloudinaryName, a.cfg.CloudinaryAPIKey, a.cfg.CloudinaryAPISecret, "diary")
	}
	return &media.Repository{
		Files:    a.github,
		Dir:      a.cfg.ImageDir,
		Location: a.cfg.Timezone,
	}, nil
}

func newDeduper(ctx context.Context, redisURL string) (handler.Deduper, func(), error) {
	if redisURL == "" {
		return dedupe.NewMemory(dedupe.DefaultTTL), func() {}, nil
	}
	rd, err := dedupe.NewRedisFromURL(ctx, redisURL, dedupe.DefaultTTL)
	if err != nil {
		return nil, nil, err
	}
	return rd, func() { _ = rd.Close() }, nil
}
