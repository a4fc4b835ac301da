package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/cuemby/ballast/pkg/api"
	"github.com/cuemby/ballast/pkg/balancer"
	"github.com/cuemby/ballast/pkg/events"
	"github.com/cuemby/ballast/pkg/log"
	"github.com/cuemby/ballast/pkg/storage"
	"github.com/cuemby/ballast/pkg/volume"
)

// AgentConfig is the YAML configuration of the ballast agent
type AgentConfig struct {
	NodeUUID string `yaml:"nodeUuid,omitempty"`
	DataDir  string `yaml:"dataDir"`
	APIAddr  string `yaml:"apiAddr"`

	Balancer balancer.Config      `yaml:"balancer"`
	Volumes  []volume.LocalConfig `yaml:"volumes"`
}

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Run the ballast agent on this node",
	Long: `Run the ballast agent: attach the configured volumes, open the plan
history store, and serve the admin API until interrupted.

Example configuration:

  dataDir: /var/lib/ballast
  apiAddr: 127.0.0.1:7070
  balancer:
    enabled: true
    maxDiskThroughputMBs: 10
    blockTolerancePercent: 10
    maxDiskErrors: 5
  volumes:
    - path: /data/disk1
    - path: /data/disk2`,
	RunE: runAgent,
}

func init() {
	agentCmd.Flags().StringP("config", "c", "", "Agent configuration file (required)")
	_ = agentCmd.MarkFlagRequired("config")
}

func runAgent(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")

	data, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %v", err)
	}

	var cfg AgentConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %v", err)
	}
	if cfg.DataDir == "" {
		cfg.DataDir = "/var/lib/ballast"
	}
	if cfg.APIAddr == "" {
		cfg.APIAddr = "127.0.0.1:7070"
	}
	if len(cfg.Volumes) == 0 {
		return fmt.Errorf("no volumes configured")
	}

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %v", err)
	}

	store, err := storage.NewBoltStore(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("failed to open store: %v", err)
	}
	defer store.Close()

	nodeUUID, err := resolveNodeUUID(store, cfg.NodeUUID)
	if err != nil {
		return err
	}

	set := volume.NewLocalSet()
	for _, vc := range cfg.Volumes {
		vol, err := volume.NewLocalVolume(vc)
		if err != nil {
			return fmt.Errorf("failed to attach volume %s: %v", vc.BasePath, err)
		}
		set.AddVolume(vol)
	}

	eventLog := events.NewLog(256)
	defer eventLog.Close()
	go logEvents(eventLog)

	cfg.Balancer.NodeUUID = nodeUUID
	worker := balancer.NewWorker(&cfg.Balancer, set, eventLog, store)

	logger := log.ForNode(nodeUUID)
	logger.Info().
		Str("api_addr", cfg.APIAddr).
		Int("volumes", len(cfg.Volumes)).
		Bool("enabled", cfg.Balancer.Enabled).
		Msg("ballast agent starting")

	server := api.NewServer(worker, store, eventLog)
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(cfg.APIAddr)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
		worker.Shutdown()
		return nil
	case err := <-errCh:
		return fmt.Errorf("admin API failed: %v", err)
	}
}

// resolveNodeUUID loads the persisted node identity, minting one on first
// start. A configured override wins and is persisted.
func resolveNodeUUID(store storage.Store, configured string) (string, error) {
	if configured != "" {
		if err := store.SaveNodeUUID(configured); err != nil {
			return "", fmt.Errorf("failed to persist node UUID: %v", err)
		}
		return configured, nil
	}

	existing, err := store.GetNodeUUID()
	if err != nil {
		return "", fmt.Errorf("failed to read node UUID: %v", err)
	}
	if existing != "" {
		return existing, nil
	}

	minted := uuid.NewString()
	if err := store.SaveNodeUUID(minted); err != nil {
		return "", fmt.Errorf("failed to persist node UUID: %v", err)
	}
	return minted, nil
}

// logEvents drains the event log into the agent log
func logEvents(eventLog *events.Log) {
	sub, cancel := eventLog.Subscribe(64, false)
	defer cancel()

	logger := log.WithComponent("events")
	for event := range sub {
		entry := logger.Info().
			Str("type", string(event.Type)).
			Str("plan_id", log.ShortPlanID(event.PlanID))
		if event.Pair != nil {
			entry = entry.Str("source", event.Pair.Source).Str("dest", event.Pair.Dest)
		}
		entry.Msg(event.Message)
	}
}
