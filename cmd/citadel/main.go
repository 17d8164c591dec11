package main

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	"golang.org/x/time/rate"

	"github.com/CatastropheArena/Catastrophe-Genesis/adapters/events"
	"github.com/CatastropheArena/Catastrophe-Genesis/adapters/profile"
	"github.com/CatastropheArena/Catastrophe-Genesis/adapters/store"
	"github.com/CatastropheArena/Catastrophe-Genesis/adapters/sui"
	"github.com/CatastropheArena/Catastrophe-Genesis/adapters/tokenizer"
	"github.com/CatastropheArena/Catastrophe-Genesis/config"
	"github.com/CatastropheArena/Catastrophe-Genesis/core"
	"github.com/CatastropheArena/Catastrophe-Genesis/crypto/ibe"
	"github.com/CatastropheArena/Catastrophe-Genesis/ports"
	"github.com/CatastropheArena/Catastrophe-Genesis/service"
	transport "github.com/CatastropheArena/Catastrophe-Genesis/transport/http"
)

func main() {
	app := &cli.App{
		Name:  "citadel",
		Usage: "policy-gated decryption key server",
		Commands: []*cli.Command{
			serveCommand(),
			genkeyCommand(),
			extractCommand(),
			verifyCommand(),
			encryptCommand(),
			decryptCommand(),
			parsePtbCommand(),
		},
	}
	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "run the key server",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "path to yaml config"},
		},
		Action: func(c *cli.Context) error {
			return serve(c.Context, c.String("config"))
		},
	}
}

func serve(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
	}

	masterRaw, err := hex.DecodeString(cfg.MasterKey)
	if err != nil {
		return fmt.Errorf("decoding master key: %w", err)
	}
	master, err := ibe.MasterKeyFromBytes(masterRaw)
	if err != nil {
		return err
	}

	serviceID, err := core.ParseAddress(cfg.KeyServerObjectID)
	if err != nil {
		return fmt.Errorf("parsing key server object id: %w", err)
	}
	packageID, err := core.ParseAddress(cfg.PackageID)
	if err != nil {
		return fmt.Errorf("parsing package id: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	chain, err := sui.Dial(ctx, cfg.NodeURL, cfg.GraphQLURL)
	if err != nil {
		return err
	}
	defer chain.Close()

	// Redis backs both the shared revocation store and the audit stream;
	// without it the server runs standalone.
	var (
		revocations ports.Store
		publisher   ports.EventPublisher
	)
	if cfg.RedisURL != "" {
		redisStore, err := store.NewRedisStore(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		defer redisStore.Close()

		streamPublisher, err := redisstream.NewPublisher(
			redisstream.PublisherConfig{Client: redisStore.GetClient()},
			events.NewLogger(cfg.Debug),
		)
		if err != nil {
			return fmt.Errorf("creating stream publisher: %w", err)
		}
		revocations = redisStore
		publisher = events.NewWatermillPublisher(streamPublisher)
	} else {
		log.Warn("no redis configured, running with in-memory revocation store")
		revocations = store.NewMemoryStore()
		publisher = events.NoopPublisher{}
	}

	var tok *tokenizer.JWTTokenizer
	if cfg.Seed != "" {
		log.Warn("SEED set, session tokens are deterministic")
		tok = tokenizer.NewJWTTokenizerFromSeed([]byte(cfg.Seed))
	} else {
		tok, err = tokenizer.NewJWTTokenizer()
		if err != nil {
			return err
		}
	}

	fresh := service.NewFreshness(chain, packageID)
	if err := fresh.Start(ctx); err != nil {
		return fmt.Errorf("initial chain snapshot failed: %w", err)
	}

	// Reference gas price is denominated in MIST; log it in whole coins.
	gasPriceSui := decimal.NewFromUint64(fresh.GasPrice()).Div(decimal.NewFromInt(1_000_000_000))
	log.WithFields(log.Fields{
		"service_id":              serviceID.String(),
		"package_id":              packageID.String(),
		"reference_gas_price_sui": gasPriceSui.String(),
	}).Info("chain snapshot initialized")

	svc, err := service.NewKeyService(master, chain, fresh, tok, revocations,
		publisher, profile.NewStaticResolver(""), serviceID)
	if err != nil {
		return err
	}

	router := transport.SetupRouter(svc, transport.RouterOptions{
		RateLimit: rate.Limit(cfg.RateLimitRPS),
		RateBurst: cfg.RateLimitBurst,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", srv.Addr).Info("server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	log.Info("shutting down")
	return srv.Shutdown(shutdownCtx)
}

func decodeBase64Arg(c *cli.Context, name string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(c.String(name))
	if err != nil {
		return nil, fmt.Errorf("decoding --%s: %w", name, err)
	}
	return raw, nil
}
