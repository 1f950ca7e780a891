// Command ledgerd is the consensus node binary: it wires the Merkle store,
// the migrations registry, and the ABCI bridge behind either the
// out-of-process ABCI socket server (--abci) or the HTTP query/metrics
// server, per spec §6's "CLI surface (collaborators)". Flag parsing and
// environment-variable binding follow the teacher's overall CometBFT-node
// shape, generalized from its ad hoc os.Getenv config.go to cobra/viper
// (see pkg/config).
package main

import (
	"context"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	abciserver "github.com/cometbft/cometbft/abci/server"
	dbm "github.com/cometbft/cometbft-db"
	cmtcrypto "github.com/cometbft/cometbft/crypto/ed25519"
	cmtlog "github.com/cometbft/cometbft/libs/log"
	"gopkg.in/yaml.v3"

	"github.com/tokenledger/chain/pkg/abci"
	"github.com/tokenledger/chain/pkg/codeerr"
	"github.com/tokenledger/chain/pkg/config"
	"github.com/tokenledger/chain/pkg/envelope"
	"github.com/tokenledger/chain/pkg/merkle"
	"github.com/tokenledger/chain/pkg/migrations"
	"github.com/tokenledger/chain/pkg/query"
)

func main() {
	logger := cmtlog.NewTMLogger(cmtlog.NewSyncWriter(os.Stdout))
	root := config.NewRootCommand(func(cfg config.Config) error {
		return run(cfg, logger)
	})
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger cmtlog.Logger) error {
	if cfg.PEMPath != "" {
		signer, err := loadSigner(cfg.PEMPath)
		if err != nil {
			return fmt.Errorf("load --pem: %w", err)
		}
		pko, err := signer.PublicKeyObject()
		if err != nil {
			return fmt.Errorf("derive signing identity: %w", err)
		}
		logger.Info("loaded signing identity", "address", pko.Address().String())
	}

	reg, err := loadMigrations(cfg.MigrationsConfigPath)
	if err != nil {
		ce, ok := err.(*codeerr.Error)
		if ok {
			switch ce.Code {
			case codeerr.CodeMissingMigration:
				fmt.Fprintln(os.Stderr, "Migration configuration file is missing migration(s)")
			case codeerr.CodeUnsupportedMigrationType:
				fmt.Fprintln(os.Stderr, "Unsupported migration type")
			}
		}
		return err
	}

	if cfg.Clean && cfg.PersistentDir != "" {
		if err := os.RemoveAll(cfg.PersistentDir); err != nil {
			return fmt.Errorf("--clean: %w", err)
		}
	}

	db, err := openDB(cfg.PersistentDir)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	store, err := merkle.NewStore(db)
	if err != nil {
		return fmt.Errorf("new store: %w", err)
	}

	if cfg.StatePath != "" && store.RootHash() == nil {
		logger.Info("genesis state file is not read; InitChain seeds from the consensus engine's app_state", "path", cfg.StatePath)
	}

	app := abci.NewApp(store, reg, logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if cfg.ABCI {
		return runABCIServer(ctx, app, cfg.Addr, logger)
	}
	return runQueryServer(ctx, app, cfg.Addr, logger)
}

// loadMigrations reads the YAML config at path and builds a Registry. An
// empty path means every migration is disabled, which is a valid (if
// inert) configuration for local experimentation.
func loadMigrations(path string) (*migrations.Registry, error) {
	var fc migrations.FileConfig
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read migrations config: %w", err)
		}
		if err := yaml.Unmarshal(raw, &fc); err != nil {
			return nil, fmt.Errorf("parse migrations config: %w", err)
		}
	} else {
		for _, name := range []migrations.Name{
			migrations.AccountCountDataAttribute,
			migrations.Block9400,
			migrations.MemoMigration,
			migrations.DummyHotfix,
			migrations.TokenMigration,
		} {
			fc.Migrations = append(fc.Migrations, migrations.Config{Name: name, Disabled: true})
		}
	}
	return migrations.Load(fc)
}

func openDB(dir string) (dbm.DB, error) {
	if dir == "" {
		return dbm.NewMemDB(), nil
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	return dbm.NewGoLevelDB("ledgerd", dir)
}

// loadSigner parses a PEM-encoded PKCS#8 Ed25519 or ECDSA-P256 private key
// into the envelope.Signer the node uses for its own signing identity.
func loadSigner(path string) (envelope.Signer, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return envelope.Signer{}, err
	}
	block, _ := pem.Decode(raw)
	if block == nil {
		return envelope.Signer{}, fmt.Errorf("no PEM block found in %s", path)
	}
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return envelope.Signer{}, fmt.Errorf("parse PKCS8 key: %w", err)
	}
	switch k := key.(type) {
	case ed25519.PrivateKey:
		return envelope.Signer{Algorithm: envelope.AlgEd25519, Ed25519Key: cmtcrypto.PrivKey(k)}, nil
	case *ecdsa.PrivateKey:
		return envelope.Signer{Algorithm: envelope.AlgECDSAP256, ECDSAKey: k}, nil
	default:
		return envelope.Signer{}, fmt.Errorf("unsupported key type %T", key)
	}
}

func runABCIServer(ctx context.Context, app *abci.App, addr string, logger cmtlog.Logger) error {
	if addr == "" {
		addr = "tcp://127.0.0.1:26658"
	}
	srv := abciserver.NewSocketServer(addr, app)
	srv.SetLogger(logger.With("module", "abci-server"))
	if err := srv.Start(); err != nil {
		return fmt.Errorf("start ABCI socket server: %w", err)
	}
	logger.Info("Running accept thread", "addr", addr)
	<-ctx.Done()
	return srv.Stop()
}

func runQueryServer(ctx context.Context, app *abci.App, addr string, logger cmtlog.Logger) error {
	if addr == "" {
		addr = "127.0.0.1:8090"
	}
	h := query.NewHandlers(app)
	srv := &http.Server{Addr: addr, Handler: h.Mux()}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Running accept thread", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		return srv.Shutdown(context.Background())
	case err := <-errCh:
		return err
	}
}
