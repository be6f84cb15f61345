package main

import (
	"os"
	"strconv"
	"time"
)

type envConfig struct {
	port                string
	serverTransportID   string
	heartbeatInterval   time.Duration
	heartbeatsUntilDead int
	disconnectGrace     time.Duration
}

func loadEnv() envConfig {
	return envConfig{
		port:                getenvDefault("PORT", "9090"),
		serverTransportID:   getenvDefault("SERVER_TRANSPORT_ID", "riverserver"),
		heartbeatInterval:   millisEnv("HEARTBEAT_MS", 500),
		heartbeatsUntilDead: intEnv("HEARTBEATS_UNTIL_DEAD", 2),
		disconnectGrace:     millisEnv("SESSION_DISCONNECT_GRACE_MS", 3000),
	}
}

func getenvDefault(name, def string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return def
}

func intEnv(name string, def int) int {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func millisEnv(name string, defMillis int) time.Duration {
	return time.Duration(intEnv(name, defMillis)) * time.Millisecond
}
