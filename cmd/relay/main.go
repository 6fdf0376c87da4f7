package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws-samples/sample-strands-agent-with-agentcore-sub001/internal/agent"
	"github.com/aws-samples/sample-strands-agent-with-agentcore-sub001/internal/auth"
	"github.com/aws-samples/sample-strands-agent-with-agentcore-sub001/internal/buffer"
	"github.com/aws-samples/sample-strands-agent-with-agentcore-sub001/internal/config"
	"github.com/aws-samples/sample-strands-agent-with-agentcore-sub001/internal/policy"
	"github.com/aws-samples/sample-strands-agent-with-agentcore-sub001/internal/relay"
	"github.com/aws-samples/sample-strands-agent-with-agentcore-sub001/internal/store"
	transport "github.com/aws-samples/sample-strands-agent-with-agentcore-sub001/internal/transport/http"
)

func main() {
	// Load configuration
	cfg := config.Load()

	log.Printf("Starting relay...")
	log.Printf("HTTP Port: %d", cfg.HTTPPort)
	log.Printf("Agent endpoint: %s", cfg.AgentEndpoint)
	log.Printf("Database: %s", cfg.DatabaseURL)
	log.Printf("Buffer retention: %s", cfg.RetentionTTL)

	// Initialize session metadata store
	db, err := store.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to initialize store: %v", err)
	}
	defer db.Close()

	// Initialize execution buffer and its retention sweeper
	buf := buffer.New(cfg.RetentionTTL)
	sweepCtx, stopSweeper := context.WithCancel(context.Background())
	defer stopSweeper()
	go buf.StartSweeper(sweepCtx, cfg.SweepInterval)

	// Initialize upstream agent client
	agentClient := agent.NewClient(cfg.AgentEndpoint)

	// Initialize policy engine
	ctx := context.Background()
	policyEngine, err := policy.NewEngine(ctx, policy.DefaultPolicy)
	if err != nil {
		log.Fatalf("Failed to initialize policy engine: %v", err)
	}

	// Initialize token resolver
	resolver := auth.NewStaticResolver(cfg.APIKeys)

	// Initialize relay service
	svc := relay.New(buf, agentClient, db, cfg.HeartbeatInterval, cfg.AgentTimeout)

	// Create Echo server
	server := transport.NewServer(svc, db, resolver, policyEngine, cfg)

	// Start server
	go func() {
		addr := fmt.Sprintf(":%d", cfg.HTTPPort)
		if err := server.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	log.Printf("Relay started on port %d", cfg.HTTPPort)

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down relay...")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Failed to shutdown server gracefully: %v", err)
	}

	log.Println("Relay stopped")
}
