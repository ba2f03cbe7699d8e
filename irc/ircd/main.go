package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/presbrey/qircd/envtree"
	"github.com/presbrey/qircd/irc"
	"github.com/presbrey/qircd/irc/config"
)

func init() {
	envtree.AutoLoad()
}

func main() {
	configPath := flag.String("config", "qircd.toml", "Configuration file or URL")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *debug {
		cfg.Debug = true
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("%v", err)
	}

	log.Printf("Starting %s (node %s) on %s", cfg.Server.Name, cfg.Cluster.NodeID, cfg.GetListenAddress())

	server := irc.NewServer(cfg)
	if err := server.Start(); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
	log.Println("IRC server started successfully!")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	for sig := range sigChan {
		if sig == syscall.SIGHUP {
			log.Println("SIGHUP received, rehashing configuration...")
			if err := cfg.Reload(""); err != nil {
				log.Printf("Rehash failed: %v", err)
			}
			continue
		}
		log.Println("Shutdown signal received, stopping server...")
		break
	}

	if err := server.Stop(); err != nil {
		log.Printf("Error stopping server: %v", err)
	}

	log.Println("Server stopped. Goodbye!")
}
