package cmd

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/lycheetrade/krakenx/pkg/core"
	"github.com/lycheetrade/krakenx/pkg/exchange/kraken"
	"github.com/lycheetrade/krakenx/pkg/ratelimit"
	"github.com/lycheetrade/krakenx/pkg/types"
)

func init() {
	RunCmd.Flags().String("metrics-bind", "", "prometheus metrics listen address, e.g. :9090, empty to disable")
	RootCmd.AddCommand(RunCmd)
}

var RunCmd = &cobra.Command{
	Use:          "run",
	Short:        "connect the private order feed and reconcile order state",
	SilenceUsage: true,
	RunE:         run,
}

func run(cmd *cobra.Command, args []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	key := viper.GetString("kraken-api-key")
	secret := viper.GetString("kraken-api-secret")
	if len(key) == 0 || len(secret) == 0 {
		return errors.New("kraken-api-key and kraken-api-secret are required")
	}

	tier, err := ratelimit.ParseTier(viper.GetString("kraken-api-tier"))
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	limiter := ratelimit.NewLimiter(ratelimit.PolicyForTier(tier))
	limiter.Start(ctx)
	defer limiter.Close()

	registry := core.NewOrderRegistry()
	reconciler := core.NewReconciler(registry, limiter)

	ex := kraken.New(key, secret, limiter, registry)
	reconciler.SetResolver(ex)

	reconciler.OnOrderEvent(func(event types.OrderEvent) {
		log.Infof("order event: %s", event.String())
	})

	// seed the registry with the orders already resting on the book so their
	// stream updates are attributable from the start
	open, err := ex.QueryOpenOrders(ctx)
	if err != nil {
		return errors.Wrap(err, "initial open orders query failed")
	}
	for _, order := range open {
		if err := limiter.AdmitOrder(order.Symbol); err != nil {
			log.WithError(err).Warnf("open order %s exceeds the local order cap", order.LocalID)
		}
		registry.Track(order)
	}
	log.Infof("tracking %d resting orders", len(open))

	if bind := viper.GetString("metrics-bind"); len(bind) > 0 {
		go serveMetrics(bind)
	}

	stream := kraken.NewStream(ex.Client(), reconciler)
	stream.OnConnect(func() {
		log.Infof("private order feed connected")
	})
	if err := stream.Connect(ctx); err != nil {
		return errors.Wrap(err, "private order feed connect failed")
	}
	defer func() {
		if err := stream.Close(); err != nil {
			log.WithError(err).Error("stream close error")
		}
	}()

	sigC := make(chan os.Signal, 1)
	signal.Notify(sigC, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-ctx.Done():
	case sig := <-sigC:
		log.Infof("received signal %v, shutting down...", sig)
	}
	return nil
}

func serveMetrics(bind string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	log.Infof("serving prometheus metrics on %s", bind)
	if err := http.ListenAndServe(bind, mux); err != nil {
		log.WithError(err).Error("metrics server error")
	}
}
