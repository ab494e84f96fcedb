package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"booking-service/config"
	"booking-service/internal/auth"

	"github.com/google/uuid"
)

func main() {
	cfg := config.Load()

	agent := flag.String("agent", "", "agent id (uuid), generated when empty")
	email := flag.String("email", "", "agent email")
	role := flag.String("role", auth.RoleAgent, "agent or admin")
	ttl := flag.Duration("ttl", cfg.Auth.AccessTokenTTL, "token lifetime")
	flag.Parse()

	agentID := uuid.New()
	if *agent != "" {
		parsed, err := uuid.Parse(*agent)
		if err != nil {
			log.Fatalf("Invalid agent id %q: %v", *agent, err)
		}
		agentID = parsed
	}
	if *role != auth.RoleAgent && *role != auth.RoleAdmin {
		log.Fatalf("Unknown role %q", *role)
	}

	token, err := auth.NewService(cfg.Auth.JWTSecret, *ttl, cfg.Auth.Issuer).GenerateAccessToken(agentID, *email, *role)
	if err != nil {
		log.Fatalf("Failed to generate token: %v", err)
	}

	fmt.Printf("AGENT_ID=%s\n", agentID)
	fmt.Printf("EXPIRES_AT=%s\n", time.Now().Add(*ttl).UTC().Format(time.RFC3339))
	fmt.Printf("TOKEN=%s\n", token)
}
