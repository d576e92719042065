package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/fox-one/mimir"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

var configFile string

func init() {
	flag.StringVar(&configFile, "config", "", "config file")
	flag.String("db", "mimir.db", "database path")
	flag.Int("port", 8080, "http port")
	flag.String("gateway", "http://127.0.0.1:9000", "chain gateway url")
	flag.String("backend", "http://127.0.0.1:9001", "indexer backend url")
	flag.String("issuer", "mimir", "access token issuer")

	flag.Parse()

	viper.SetDefault("graph.depth", mimir.DefaultGraphDepth)
	viper.SetDefault("cache.ttl", time.Minute)
	viper.SetDefault("job.ttl", 5*time.Minute)
	viper.SetDefault("job.interval", 10*time.Second)
	viper.SetDefault("safety.timeout", 10*time.Second)
	viper.SetDefault("safety.retry", 1)

	flag.VisitAll(func(f *flag.Flag) {
		if f.Name != "config" {
			viper.SetDefault(f.Name, f.Value.String())
		}
	})

	viper.SetEnvPrefix("mimir")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, os.Kill)
	defer stop()

	if configFile != "" {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			slog.Error("read config failed", slog.Any("err", err))
			return
		}
	}

	flag.Visit(func(f *flag.Flag) {
		viper.Set(f.Name, f.Value.String())
	})

	db, err := badger.Open(badger.DefaultOptions(viper.GetString("db")))
	if err != nil {
		slog.Error("open db failed", slog.Any("err", err))
		return
	}

	defer db.Close()

	slog.Info("mimir launch", "ver", "0.01")

	svr := mimir.NewServer(
		db,
		mimir.NewGateway(viper.GetString("gateway")),
		mimir.NewBackend(viper.GetString("backend")),
		mimir.Config{
			GraphDepth:  viper.GetInt("graph.depth"),
			CacheTTL:    viper.GetDuration("cache.ttl"),
			JobTTL:      viper.GetDuration("job.ttl"),
			JobInterval: viper.GetDuration("job.interval"),
			Issuer:      viper.GetString("issuer"),
			Secret:      viper.GetString("secret"),
		},
		mimir.WithSafetyTimeout(viper.GetDuration("safety.timeout")),
		mimir.WithSafetyRetry(viper.GetInt("safety.retry")),
	)

	s := &http.Server{
		Addr:    fmt.Sprintf(":%d", viper.GetInt("port")),
		Handler: svr.Handler(),
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("http listen", slog.String("addr", s.Addr))
		if err := s.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}

		return nil
	})

	g.Go(func() error {
		<-ctx.Done()

		return s.Shutdown(context.Background())
	})

	g.Go(func() error {
		return runGC(ctx, db, time.Minute)
	})

	g.Go(func() error {
		return svr.Run(ctx)
	})

	_ = g.Wait()
}

func runGC(ctx context.Context, db *badger.DB, dur time.Duration) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(dur):
			_ = db.RunValueLogGC(0.7)
		}
	}
}
