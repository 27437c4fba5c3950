// main.go - Confidential paper registry daemon.
//
// Serves the registry's REST interface and wires the supporting pieces:
//   - Badger-backed durable record store
//   - Groth16 attestation keys (compiled and set up on first start)
//   - decryption oracle, either in-process ("local" mode) or over a Redis
//     request queue ("redis" mode, paired with the revealworker binary)
//   - health, metrics, and per-client rate limiting around the HTTP surface
//
// Usage:
//   registryd -config config.json
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/foehpvf432laurasmith/paper-repo/internal/attest"
	"github.com/foehpvf432laurasmith/paper-repo/internal/keyval"
	"github.com/foehpvf432laurasmith/paper-repo/internal/oracle"
	"github.com/foehpvf432laurasmith/paper-repo/internal/registry"
)

const version = "1.0.0"

func main() {
	configPath := flag.String("config", "config.json", "path to the daemon configuration file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "registryd: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	log, closeLog, err := NewLogger(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return err
	}
	defer closeLog()

	log.WithFields(logrus.Fields{
		"version": version,
		"mode":    cfg.OracleMode,
		"addr":    cfg.ListenAddr,
	}).Info("starting registry daemon")

	// Durable record store.
	store, err := keyval.NewBadgerStore(keyval.BadgerConfig{
		Path:   filepath.Join(cfg.DataDir, "registry"),
		Logger: log,
	})
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	// Attestation circuit and Groth16 keys.
	ccs, err := attest.Compile()
	if err != nil {
		return fmt.Errorf("compile attestation circuit: %w", err)
	}
	if err := os.MkdirAll(cfg.KeyDir, 0755); err != nil {
		return fmt.Errorf("create key dir: %w", err)
	}
	provingKey, verifyingKey, err := attest.SetupOrLoadKeys(ccs,
		filepath.Join(cfg.KeyDir, "attest_pk.bin"),
		filepath.Join(cfg.KeyDir, "attest_vk.bin"))
	if err != nil {
		return fmt.Errorf("attestation key setup: %w", err)
	}

	// Oracle key material: the attestation identity, the stream key for
	// record fields, and the Paillier key for counters.
	keys, err := loadOrCreateOracleKeys(cfg, log)
	if err != nil {
		return err
	}
	verifier := attest.NewVerifier(attest.DerivePublic(keys.OracleSk), verifyingKey)

	metrics := NewMetricsCollector()

	// The local oracle calls back into the registry, which is built after
	// the oracle client; the indirection through reg resolves the cycle.
	var reg *registry.Registry
	var client oracle.Client
	switch cfg.OracleMode {
	case "local":
		prover := attest.NewProver(keys.OracleSk, ccs, provingKey)
		local := oracle.NewLocal(keys, prover, func(requestID string, payload, proof []byte) error {
			return reg.Callback(requestID, payload, proof)
		})
		local.SetAutoDeliver(true)
		client = local
	case "redis":
		queue, err := oracle.NewRedisQueue(oracle.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}, cfg.QueueName)
		if err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		defer queue.Close()
		client = queue
	}

	reg, err = registry.New(registry.Config{
		Oracle:   client,
		Verifier: verifier,
		Counters: keys.Paillier.Public(),
		Store:    store,
		Logger:   log,
		Notifier: func(ev registry.Event) {
			switch ev.Type {
			case registry.EventRecordCreated:
				metrics.RecordSubmission()
			case registry.EventDecryptionRequested:
				metrics.RecordRevealRequest()
			case registry.EventRecordRevealed:
				metrics.RecordReveal()
			case registry.EventAggregateRevealed:
				metrics.RecordAggregateReveal()
			}
		},
	})
	if err != nil {
		return fmt.Errorf("init registry: %w", err)
	}
	log.WithFields(logrus.Fields{
		"records": reg.NumRecords(),
		"pending": reg.PendingRequests(),
	}).Info("ledger state restored")

	health := NewHealthChecker(version)
	health.RegisterComponent("store", func() error {
		_, err := store.Get("SEQ")
		if errors.Is(err, keyval.ErrNotFound) {
			return nil
		}
		return err
	})
	health.RegisterComponent("ledger", func() error { return nil })

	mux := http.NewServeMux()
	mux.Handle("/", registry.NewServer(reg, log).Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		resp := CreateHealthResponse(health.CheckHealth())
		w.Header().Set("Content-Type", "application/json")
		if resp.Status == "error" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(resp)
	})
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		metrics.SetGauge(MetricPendingRequests, float64(reg.PendingRequests()), nil)
		metrics.SetGauge(MetricKnownAuthors, float64(len(reg.Authors())), nil)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(metrics.GetMetricsSummary())
	})

	limiter := NewClientRateLimiter(cfg.RateLimitBurst, cfg.RateLimitRefill, time.Second)
	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: limiter.Middleware(mux),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("listening on %s", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case sig := <-sigCh:
		log.Infof("received %s, shutting down", sig)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warnf("http shutdown: %v", err)
	}

	if cfg.SnapshotPath != "" {
		if err := reg.SaveToFile(cfg.SnapshotPath); err != nil {
			log.Warnf("snapshot save: %v", err)
		} else {
			log.Infof("ledger snapshot written to %s", cfg.SnapshotPath)
		}
	}
	return nil
}

// loadOrCreateOracleKeys loads oracle key material, generating and saving a
// fresh set on first start.
func loadOrCreateOracleKeys(cfg *Config, log *logrus.Logger) (*oracle.Keys, error) {
	if keys, err := oracle.LoadKeys(cfg.OracleKeysPath); err == nil {
		log.Infof("loaded oracle keys from %s", cfg.OracleKeysPath)
		return keys, nil
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("load oracle keys: %w", err)
	}

	log.Info("generating oracle keys, this can take a while")
	oracleSk, _, err := attest.GenerateOracleKey()
	if err != nil {
		return nil, fmt.Errorf("generate oracle identity: %w", err)
	}
	keys, err := oracle.GenerateKeys(oracleSk, cfg.PaillierBits)
	if err != nil {
		return nil, fmt.Errorf("generate oracle keys: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(cfg.OracleKeysPath), 0755); err != nil {
		return nil, err
	}
	if err := keys.Save(cfg.OracleKeysPath); err != nil {
		return nil, fmt.Errorf("save oracle keys: %w", err)
	}
	log.Infof("oracle keys written to %s", cfg.OracleKeysPath)
	return keys, nil
}
