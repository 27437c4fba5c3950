// main.go - Decryption oracle worker.
//
// Pops decryption requests from the Redis queue that registryd fills in
// "redis" oracle mode, decrypts them with the oracle key material, attests
// the cleartext, and posts the result back to the registry's callback
// endpoint.
//
// Usage:
//   revealworker -redis localhost:6379 -registry http://localhost:8380 \
//     -keys keys/oracle.json -keydir keys -queue papers -workers 2
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/foehpvf432laurasmith/paper-repo/internal/attest"
	"github.com/foehpvf432laurasmith/paper-repo/internal/oracle"
	"github.com/foehpvf432laurasmith/paper-repo/internal/registry"
)

func main() {
	redisAddr := flag.String("redis", "localhost:6379", "redis address")
	redisPassword := flag.String("redis-password", "", "redis password")
	redisDB := flag.Int("redis-db", 0, "redis database")
	registryURL := flag.String("registry", "http://localhost:8380", "registry base URL")
	keysPath := flag.String("keys", "keys/oracle.json", "oracle key bundle path")
	keyDir := flag.String("keydir", "keys", "attestation key directory")
	queueName := flag.String("queue", "papers", "request queue name")
	workers := flag.Int("workers", 2, "number of concurrent workers")
	logLevel := flag.String("log-level", "info", "log level")
	flag.Parse()

	log := logrus.New()
	if level, err := logrus.ParseLevel(*logLevel); err == nil {
		log.SetLevel(level)
	}

	if err := run(log, *redisAddr, *redisPassword, *redisDB, *registryURL, *keysPath, *keyDir, *queueName, *workers); err != nil {
		log.Fatalf("revealworker: %v", err)
	}
}

func run(log *logrus.Logger, redisAddr, redisPassword string, redisDB int, registryURL, keysPath, keyDir, queueName string, workers int) error {
	keys, err := oracle.LoadKeys(keysPath)
	if err != nil {
		return fmt.Errorf("load oracle keys: %w", err)
	}

	ccs, err := attest.Compile()
	if err != nil {
		return fmt.Errorf("compile attestation circuit: %w", err)
	}
	provingKey, err := attest.LoadProvingKey(filepath.Join(keyDir, "attest_pk.bin"))
	if err != nil {
		return fmt.Errorf("load proving key: %w", err)
	}
	prover := attest.NewProver(keys.OracleSk, ccs, provingKey)

	queue, err := oracle.NewRedisQueue(oracle.RedisConfig{
		Addr:     redisAddr,
		Password: redisPassword,
		DB:       redisDB,
	}, queueName)
	if err != nil {
		return fmt.Errorf("connect to redis: %w", err)
	}
	defer queue.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Infof("received %s, draining workers", sig)
		cancel()
	}()

	log.WithFields(logrus.Fields{
		"queue":   queueName,
		"workers": workers,
	}).Info("worker pool starting")

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			workLoop(ctx, log.WithField("worker", id), queue, keys, prover, registryURL)
		}(i)
	}
	wg.Wait()
	return nil
}

// workLoop pops and serves requests until the context is canceled.
func workLoop(ctx context.Context, log *logrus.Entry, queue *oracle.RedisQueue, keys *oracle.Keys, prover *attest.Prover, registryURL string) {
	for {
		req, err := queue.NextRequest(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			log.Warnf("queue pop failed: %v", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		log.WithFields(logrus.Fields{
			"requestId": req.RequestID,
			"kind":      req.Kind,
		}).Info("serving decryption request")

		payload, err := oracle.DecryptJob(keys, req.Kind, req.Ciphertexts)
		if err != nil {
			log.Errorf("decrypt %s: %v", req.RequestID, err)
			continue
		}
		proof, err := prover.Attest(req.RequestID, payload)
		if err != nil {
			log.Errorf("attest %s: %v", req.RequestID, err)
			continue
		}
		if err := registry.SendCallbackTo(registryURL, req.RequestID, payload, proof); err != nil {
			log.Errorf("callback %s: %v", req.RequestID, err)
			continue
		}
		log.Infof("request %s completed", req.RequestID)
	}
}
