// sessionctl is a diagnostic CLI around the unified session layer: it runs
// the same startup path the host applications run (load → migrate → verify)
// against a configured durable store and the three brand backends.
//
// Commands:
//
//	sessionctl status          initialize and print the resolved session state
//	sessionctl migrate         alias for status (migration runs inside init)
//	sessionctl login [flags]   authenticate against one brand and persist
//	sessionctl logout          clear the unified record and all legacy mirrors
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"runtime/debug"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	flag "github.com/spf13/pflag"

	"github.com/omnibrand/go-session-kit/identity"
	"github.com/omnibrand/go-session-kit/internal/config"
	"github.com/omnibrand/go-session-kit/kvstore"
	"github.com/omnibrand/go-session-kit/kvstore/cryptfile"
	"github.com/omnibrand/go-session-kit/kvstore/memstore"
	"github.com/omnibrand/go-session-kit/kvstore/redisstore"
	"github.com/omnibrand/go-session-kit/session"
	"github.com/omnibrand/go-session-kit/sessionstore"
	"github.com/omnibrand/go-session-kit/tenant"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("sessionctl: %s\n", err)
	}
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered from panic: %v\n", r)
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	if cfg.Env != "DEV" {
		logger = logger.Level(zerolog.InfoLevel)
	}

	command := "status"
	args := os.Args[1:]
	if len(args) > 0 {
		command = args[0]
		args = args[1:]
	}

	if command == "status" {
		displayAppname(cfg.AppName)
	}

	kv, err := openStore(cfg)
	if err != nil {
		return err
	}

	store, err := sessionstore.New(kv, sessionstore.WithLogger(logger))
	if err != nil {
		return err
	}
	backends, err := buildBackends(cfg, logger)
	if err != nil {
		return err
	}
	sessionContext, err := session.New(store, backends, session.WithLogger(logger))
	if err != nil {
		return err
	}
	defer sessionContext.Close()

	ctx := context.Background()

	switch command {
	case "status", "migrate":
		if err := sessionContext.Initialize(ctx); err != nil {
			return err
		}
		printSnapshot(sessionContext.Snapshot())
		return nil

	case "login":
		return loginCommand(ctx, sessionContext, args)

	case "logout":
		if err := sessionContext.Initialize(ctx); err != nil {
			return err
		}
		sessionContext.Logout(ctx)
		fmt.Println("logged out")
		return nil

	default:
		return fmt.Errorf("unknown command %q (expected status, migrate, login or logout)", command)
	}
}

func loginCommand(ctx context.Context, sessionContext *session.Context, args []string) error {
	flags := flag.NewFlagSet("login", flag.ContinueOnError)
	tenantName := flags.String("tenant", string(tenant.RetailA), "brand to authenticate against (retail, health, jewel)")
	email := flags.String("email", "", "account email")
	phone := flags.String("phone", "", "account phone number")
	password := flags.String("password", "", "account password")
	otp := flags.String("otp", "", "one-time passcode")
	if err := flags.Parse(args); err != nil {
		return err
	}

	active := tenant.Tenant(*tenantName)
	if !tenant.Known(active) {
		return fmt.Errorf("unknown tenant %q", *tenantName)
	}

	result := sessionContext.LoginWithCredentials(ctx, active, identity.Credentials{
		Email:    *email,
		Phone:    *phone,
		Password: *password,
		OTP:      *otp,
	})
	if !result.Success {
		return fmt.Errorf("login failed: %s", result.Err)
	}
	printSnapshot(sessionContext.Snapshot())
	return nil
}

func openStore(cfg config.Config) (kvstore.Store, error) {
	switch cfg.Store {
	case "memory":
		return memstore.New(), nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		return redisstore.New(client)
	case "file":
		if cfg.StorePassphrase == "" {
			return nil, errors.New("SESSION_STORE_PASSPHRASE is required for the file store")
		}
		return cryptfile.Open(cfg.StorePath, cfg.StorePassphrase)
	default:
		return nil, fmt.Errorf("unknown SESSION_STORE %q (expected file, redis or memory)", cfg.Store)
	}
}

func buildBackends(cfg config.Config, logger zerolog.Logger) (identity.Backends, error) {
	baseURLs := map[tenant.Tenant]string{
		tenant.RetailA: cfg.RetailBaseURL,
		tenant.HealthB: cfg.HealthBaseURL,
		tenant.JewelC:  cfg.JewelBaseURL,
	}

	backends := identity.Backends{}
	for t, baseURL := range baseURLs {
		client, err := identity.NewClient(t, baseURL, identity.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		backends[t] = client
	}
	return backends, nil
}

func printSnapshot(snapshot session.Snapshot) {
	fmt.Printf("state:  %s\n", snapshot.State)
	if !snapshot.Authenticated {
		return
	}
	fmt.Printf("tenant: %s\n", snapshot.ActiveTenant)
	if name, ok := snapshot.User["name"].(string); ok {
		fmt.Printf("user:   %s\n", name)
	}
	if exp, ok := identity.ExpiryHint(snapshot.Token); ok {
		fmt.Printf("token:  expires %s\n", exp.Format(time.RFC3339))
	}
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
