// Package config builds the cmd/ledgerd CLI surface: a cobra.Command with
// the flags spec.md's "CLI surface (collaborators)" section names, each
// bound through viper so it can equally be set by flag or environment
// variable (TOKENLEDGER_ prefix); no config file is read. This generalizes the
// teacher's bespoke os.Getenv-based pkg/config.Load into the cobra/viper
// pair already present (transitively) in the teacher's own dependency
// graph.
package config

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Config is the fully resolved set of flags cmd/ledgerd needs to start a
// node: the signing identity, the genesis/state files, the Merkle store's
// persistence directory, the ABCI socket address, and the migrations
// config file.
type Config struct {
	// PEMPath is the PEM-encoded Ed25519 or ECDSA private key of the
	// node's signing identity. ledgerd parses it and logs the derived
	// address; it signs nothing with it.
	PEMPath string
	// StatePath names the genesis app_state JSON file. ledgerd only logs
	// it; the file is not read, and InitChain seeds from the app_state
	// bytes the consensus engine sends.
	StatePath string
	// PersistentDir is the on-disk directory cometbft-db's backing store
	// lives in. Empty means an in-memory store (non-durable, for tests and
	// local experimentation).
	PersistentDir string
	// Clean wipes PersistentDir before opening the store.
	Clean bool
	// ABCI, when set, runs the out-of-process ABCI socket server on Addr
	// instead of the HTTP query/metrics server.
	ABCI bool
	// Addr is the listen address: the ABCI socket server's when ABCI is
	// set, otherwise the HTTP query/metrics server's.
	Addr string
	// MigrationsConfigPath is the YAML file pkg/migrations.FileConfig loads.
	MigrationsConfigPath string
}

// NewRootCommand builds the ledgerd root command. run is invoked once
// flags are parsed and bound into Config; main wires it to node startup so
// this package stays free of any import on pkg/abci or pkg/merkle.
func NewRootCommand(run func(cfg Config) error) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("TOKENLEDGER")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:   "ledgerd",
		Short: "tokenledger consensus node",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(Config{
				PEMPath:              v.GetString("pem"),
				StatePath:            v.GetString("state"),
				PersistentDir:        v.GetString("persistent"),
				Clean:                v.GetBool("clean"),
				ABCI:                 v.GetBool("abci"),
				Addr:                 v.GetString("addr"),
				MigrationsConfigPath: v.GetString("migrations-config"),
			})
		},
	}

	flags := cmd.Flags()
	flags.String("pem", "", "path to the node's signing key, PEM-encoded")
	flags.String("state", "", "path to the genesis app_state JSON file")
	flags.String("persistent", "", "directory backing the Merkle store's on-disk database (empty: in-memory)")
	flags.Bool("clean", false, "wipe --persistent before opening the store")
	flags.Bool("abci", false, "run the out-of-process ABCI socket server instead of the HTTP query server")
	flags.String("addr", "", "listen address (ABCI socket server's if --abci, else the HTTP query server's; defaults to tcp://127.0.0.1:26658 or 127.0.0.1:8090 respectively)")
	flags.String("migrations-config", "", "path to the migrations YAML config")

	_ = v.BindPFlags(flags)
	return cmd
}
