package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"taptrack/internal/auth"
	"taptrack/internal/config"
)

// admintoken mints an administrative JWT for manual taps and the live
// monitor, for operators and smoke tests. Real sessions come from the
// platform's auth service.
func main() {
	subject := flag.String("subject", "admin", "token subject")
	ttl := flag.Duration("ttl", 8*time.Hour, "token lifetime")
	flag.Parse()

	cfg := config.Load()
	token, exp, err := auth.Issue(*subject, "admin", cfg.JWTIssuer, cfg.JWTSigningKey, *ttl)
	if err != nil {
		log.Fatalf("issue failed: %v", err)
	}
	fmt.Printf("%s\n# expires %s\n", token, exp.Format(time.RFC3339))
}
