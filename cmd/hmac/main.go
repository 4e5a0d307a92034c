// Command hmac signs a webhook payload the way the dispatcher does, for
// debugging endpoint signature verification.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/Postroom/postroom/pkg/crypto"
)

func main() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: go run cmd/hmac/main.go <payload> <secret>")
		os.Exit(1)
	}

	payload := os.Args[1]
	secret := os.Args[2]

	timestamp := time.Now().UTC().UnixMilli()
	signature := crypto.SignWebhookPayload(timestamp, []byte(payload), secret)

	fmt.Println()
	fmt.Printf("Payload:   %s\n", payload)
	fmt.Printf("Timestamp: %d\n", timestamp)
	fmt.Printf("Signature: %s\n", signature)
	fmt.Println()
	fmt.Printf("X-Postroom-Timestamp: %d\n", timestamp)
	fmt.Printf("X-Postroom-Signature: %s\n", signature)
}
