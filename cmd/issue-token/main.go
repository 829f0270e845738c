// Command issue-token mints an API access token for a control panel or
// script when JWT_SECRET is configured.
//
// Usage:
//
//	go run ./cmd/issue-token -device "Kitchen tablet"
//	go run ./cmd/issue-token -sub panel-2 -device "Hall panel" -expiry 720h
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/strefethen/yamaha-remote-go/internal/auth"
	"github.com/strefethen/yamaha-remote-go/internal/config"
)

func main() {
	sub := flag.String("sub", "", "token subject (default: random UUID)")
	device := flag.String("device", "", "device name stored in the token (required)")
	expiry := flag.Duration("expiry", 0, "token lifetime (default: JWT_ACCESS_TOKEN_EXPIRY)")
	flag.Parse()

	if *device == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if !cfg.AuthEnabled() {
		log.Fatal("JWT_SECRET is not set; the API does not require tokens")
	}
	if *expiry > 0 {
		cfg.JWTAccessTokenExpirySec = int(expiry.Round(time.Second).Seconds())
	}
	if *sub == "" {
		*sub = uuid.NewString()
	}

	token, err := auth.IssueToken(cfg, auth.TokenPayload{Sub: *sub, DeviceName: *device})
	if err != nil {
		log.Fatalf("issue token: %v", err)
	}
	fmt.Println(token)
}
