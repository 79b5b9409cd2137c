// Copyright 2025 Potter Labs
// SPDX-License-Identifier: BUSL-1.1

// Package main is the entry point for the AI Logic Orchestrator service.
//
// The Orchestrator is the intelligence layer for AI video generation that:
// - Scores every provider on style, content, duration, quality, and cost
// - Health-checks providers before dispatching, with fallback substitution
// - Transforms requests into provider-specific job configurations
// - Dispatches prepared jobs to the downstream execution API
// - Staggers batch submissions to avoid overloading external providers
//
// Usage:
//
//	./ailogic
//
// Environment Variables:
//
//	PORT - HTTP server port (default: 8001)
//	NODE_API_URL - execution API base URL (default: http://localhost:3000)
//	API_KEY - execution API key
//	PROVIDER_CONFIG_FILE - optional capability overlay file (optional)
package main

import (
	"log"

	"github.com/joho/godotenv"

	"potterlabs/ailogic/orchestrator"
)

func main() {
	// Load .env when present; real deployments set the environment directly.
	if err := godotenv.Load(); err == nil {
		log.Println("Loaded configuration from .env")
	}

	orchestrator.Run()
}
