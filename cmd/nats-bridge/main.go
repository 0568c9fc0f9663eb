// Command nats-bridge forwards the coordinator's mirrored session, agent,
// and audit events from its local NATS broker onto a remote broker for an
// external dashboard — standing in for the case where the dashboard lives
// outside the coordinator's own network and cannot reach the embedded
// server directly (spec.md §4.19 / SPEC_FULL.md §4.19).
package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/nats-io/nats.go"
)

// mirroredSubjects are every subject the coordinator's Mirror publishes to.
var mirroredSubjects = []string{
	"coordinator.session.*",
	"coordinator.agent.*",
	"coordinator.audit",
}

func main() {
	localURL := flag.String("local", "nats://localhost:4222", "coordinator's local NATS URL")
	remoteURL := flag.String("remote", "nats://localhost:4223", "external dashboard's NATS URL")
	flag.Parse()

	log.Println("===============================================")
	log.Println("  NATS Bridge - coordinator -> dashboard")
	log.Println("===============================================")
	log.Printf("Local NATS:  %s", *localURL)
	log.Printf("Remote NATS: %s", *remoteURL)

	localConn, err := nats.Connect(*localURL, nats.Name("bridge-local"))
	if err != nil {
		log.Fatalf("failed to connect to local NATS: %v", err)
	}
	defer localConn.Close()
	log.Println("[BRIDGE] Connected to local NATS")

	remoteConn, err := nats.Connect(*remoteURL, nats.Name("bridge-remote"))
	if err != nil {
		log.Fatalf("failed to connect to remote NATS: %v", err)
	}
	defer remoteConn.Close()
	log.Println("[BRIDGE] Connected to remote NATS")

	subCount := 0
	for _, subject := range mirroredSubjects {
		subj := subject
		_, err := localConn.Subscribe(subj, func(msg *nats.Msg) {
			log.Printf("[BRIDGE] %s (%d bytes)", msg.Subject, len(msg.Data))
			if err := remoteConn.Publish(msg.Subject, msg.Data); err != nil {
				log.Printf("[BRIDGE] failed to forward %s: %v", msg.Subject, err)
			}
		})
		if err != nil {
			log.Printf("[BRIDGE] Warning: failed to subscribe to %s: %v", subj, err)
			continue
		}
		subCount++
	}

	log.Printf("[BRIDGE] Active subscriptions: %d", subCount)
	log.Println("===============================================")
	log.Println("  Bridge running. Press Ctrl+C to stop.")
	log.Println("===============================================")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("[BRIDGE] Shutting down...")
}
