package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"unirouter/internal/config"
	"unirouter/internal/gateway"
	"unirouter/internal/logs"
	"unirouter/internal/observability"
	"unirouter/internal/pki"
	"unirouter/internal/policy"
	"unirouter/internal/router"
	"unirouter/internal/seclevel"
	"unirouter/internal/storage"
	"unirouter/internal/transport"
)

var (
	configFile string
	dataDir    string
	logLevel   string
	logToFile  bool
	logDir     string

	// route flags
	routeNetwork     string
	routeLevel       string
	routeSpaceID     string
	routeTLSVersion  string
	routeCipherSuite string
	routeCertSubject string

	version = "v0.1.0" // injected by -ldflags during build
)

func main() {
	rootCmd := &cobra.Command{
		Use:     "unirouter",
		Short:   "Unified privacy router - policy-checked routing across heterogeneous network transports",
		Version: version,
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().StringVarP(&dataDir, "data-dir", "d", "", "Data directory path (default: ~/.unirouter)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&logToFile, "log-to-file", false, "Enable logging to file")
	rootCmd.PersistentFlags().StringVar(&logDir, "log-dir", "", "Custom log directory path")

	routeCmd := &cobra.Command{
		Use:   "route <destination>",
		Short: "Route a destination and evaluate the security policy",
		Args:  cobra.ExactArgs(1),
		RunE:  runRoute,
	}
	routeCmd.Flags().StringVar(&routeNetwork, "network", "", "Explicit transport network (clearnet, tor, i2p, gnunet, dvpn, custom-*)")
	routeCmd.Flags().StringVar(&routeLevel, "level", "", "Security level (standard, elevated, maximum)")
	routeCmd.Flags().StringVar(&routeSpaceID, "space", "", "Opaque space identifier passed through to the response")
	routeCmd.Flags().StringVar(&routeTLSVersion, "tls-version", "", "Negotiated TLS version to evaluate, e.g. 1.3")
	routeCmd.Flags().StringVar(&routeCipherSuite, "cipher", "", "Negotiated cipher suite to evaluate")
	routeCmd.Flags().StringVar(&routeCertSubject, "cert-subject", "", "Subject of a stored certificate to evaluate")

	networksCmd := &cobra.Command{
		Use:   "networks",
		Short: "List registered networks and their connection state",
		RunE:  runNetworks,
	}

	certCmd := &cobra.Command{
		Use:   "gen-cert <subject>",
		Short: "Generate a self-signed certificate for private infrastructure",
		Args:  cobra.ExactArgs(1),
		RunE:  runGenCert,
	}

	rootCmd.AddCommand(routeCmd, networksCmd, certCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func setup() (*gateway.Gateway, *zap.Logger, error) {
	cfg, err := config.LoadFromFile(configFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
	}

	if cfg.Logging == nil {
		cfg.Logging = logs.DefaultLogConfig()
	}
	cfg.Logging.Level = logLevel
	cfg.Logging.EnableFile = logToFile
	if logDir != "" {
		cfg.Logging.LogDir = logDir
	}

	logger, err := logs.SetupLogger(cfg.Logging)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to set up logging: %w", err)
	}

	gw, err := buildGateway(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return gw, logger, nil
}

func buildGateway(cfg *config.Config, logger *zap.Logger) (*gateway.Gateway, error) {
	metrics := observability.NewMetricsManager(logger.Sugar())

	rt := router.New(cfg.DefaultNetwork, logger, metrics)
	for _, hc := range cfg.Handlers {
		h, err := transport.NewHandler(hc, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to build handler for %q: %w", hc.Network, err)
		}
		rt.RegisterHandler(h)
	}

	engine := policy.NewEngine(logger, metrics)
	trust := pki.NewTrustStore(logger, metrics)
	levels := seclevel.NewStore(logger)
	if cfg.SecurityLevel != "" {
		levels.SetLevel(cfg.SecurityLevel)
	}

	var store *storage.BoltStore
	if cfg.PersistState {
		var err error
		store, err = storage.NewBoltStore(cfg.DataDir, logger.Sugar())
		if err != nil {
			return nil, fmt.Errorf("failed to open state store: %w", err)
		}
	}

	gw := gateway.New(rt, engine, trust, levels, store, logger)
	if err := gw.LoadState(); err != nil {
		return nil, fmt.Errorf("failed to restore persisted state: %w", err)
	}
	return gw, nil
}

func runRoute(_ *cobra.Command, args []string) error {
	gw, logger, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	req := gateway.AdmissionRequest{
		Routing: router.RoutingRequest{
			Destination:      args[0],
			PreferredNetwork: transport.NetworkID(routeNetwork),
			SecurityLevel:    seclevel.Level(routeLevel),
			SpaceID:          routeSpaceID,
		},
		TLSVersion:         routeTLSVersion,
		CipherSuite:        routeCipherSuite,
		CertificateSubject: routeCertSubject,
	}

	result := gw.Admit(context.Background(), req)
	return printJSON(result)
}

func runNetworks(_ *cobra.Command, _ []string) error {
	gw, logger, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	type networkStatus struct {
		Network string `json:"network"`
		Enabled bool   `json:"enabled"`
		State   string `json:"state"`
	}
	var out []networkStatus
	for _, id := range gw.Router.RegisteredNetworks() {
		h, ok := gw.Router.GetHandler(id)
		if !ok {
			continue
		}
		out = append(out, networkStatus{
			Network: id.String(),
			Enabled: h.Enabled(),
			State:   h.State().String(),
		})
	}
	return printJSON(out)
}

func runGenCert(_ *cobra.Command, args []string) error {
	gw, logger, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	cert, err := gw.GenerateSelfSignedCertificate(args[0], 0)
	if err != nil {
		return err
	}
	return printJSON(cert)
}

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
