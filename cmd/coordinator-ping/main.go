// Command coordinator-ping publishes a one-off status event onto the
// coordinator's audit subject, for ops scripts that want to announce
// something (a deploy, a manual maintenance window) on the same NATS
// broker internal/nats.Mirror mirrors session/agent events onto,
// without going through the EventSink itself.
package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/CLIAIMONITOR/internal/nats"
)

func main() {
	natsURL := flag.String("url", "nats://127.0.0.1:4222", "NATS server URL")
	status := flag.String("status", "idle", "Status to report (idle, busy, error)")
	message := flag.String("message", "", "Human-readable status detail")
	flag.Parse()

	client, err := nats.NewClient(*natsURL)
	if err != nil {
		log.Fatalf("Failed to connect to NATS: %v", err)
	}
	defer client.Close()

	msg := nats.AuditEventMessage{
		Type:   "operator_status",
		Source: "coordinator-ping",
		Payload: map[string]interface{}{
			"status":  *status,
			"message": *message,
		},
	}

	if err := client.PublishJSON(nats.SubjectAudit, msg); err != nil {
		log.Fatalf("Failed to publish: %v", err)
	}

	client.Flush()
	fmt.Printf("Published status %q to %s\n", *status, nats.SubjectAudit)
}
