package main

import (
	"flag"
	"log"
	"time"

	"video-insights/internal/stubserver"
)

func main() {
	addr := flag.String("addr", "localhost:8000", "listen address")
	stepDelay := flag.Duration("step", 2*time.Second, "delay between scripted pipeline stages")
	heartbeat := flag.Duration("heartbeat", 5*time.Second, "progress stream heartbeat interval")
	flag.Parse()

	server := stubserver.New(*stepDelay, *heartbeat, nil)

	log.Printf("stub executor listening on %s", *addr)
	if err := server.Router().Run(*addr); err != nil {
		log.Fatalf("stub executor: %v", err)
	}
}
