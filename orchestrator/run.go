// Copyright 2025 Potter Labs
// SPDX-License-Identifier: BUSL-1.1

package orchestrator

import (
	"log"
	"net/http"
	"os"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"potterlabs/ailogic/orchestrator/video"
	"potterlabs/ailogic/shared/logger"
)

// AI Logic Orchestrator - Intelligent Video Generation Routing Engine
// This service selects the best provider for each request and dispatches
// prepared job configurations to the execution API.

// Configuration
var (
	providerRegistry *video.Registry
	videoRouter      *video.Router
	healthChecker    *video.HealthChecker
	jobTransformer   *video.Transformer
	nodeClient       *NodeAPIClient
	metricsCollector *MetricsCollector
	requestLogger    *logger.Logger
)

// Prometheus metrics
var (
	promRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ailogic_orchestrator_requests_total",
			Help: "Total number of requests processed by the orchestrator",
		},
		[]string{"endpoint", "status"},
	)
	promRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ailogic_orchestrator_request_duration_milliseconds",
			Help:    "Request duration in milliseconds",
			Buckets: []float64{10, 50, 100, 200, 500, 1000, 2000, 5000, 10000},
		},
		[]string{"endpoint"},
	)
	promRoutingDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ailogic_orchestrator_routing_decisions_total",
			Help: "Total number of routing decisions per provider",
		},
		[]string{"provider"},
	)
	promFallbacksUsed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ailogic_orchestrator_fallbacks_total",
			Help: "Total number of fallback provider substitutions",
		},
	)
	promDispatches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ailogic_orchestrator_dispatches_total",
			Help: "Total number of job dispatches to the execution API",
		},
		[]string{"provider", "status"},
	)
)

func init() {
	// Register Prometheus metrics
	prometheus.MustRegister(promRequestsTotal)
	prometheus.MustRegister(promRequestDuration)
	prometheus.MustRegister(promRoutingDecisions)
	prometheus.MustRegister(promFallbacksUsed)
	prometheus.MustRegister(promDispatches)
}

// Run is the exported entry point for the orchestration service.
//
// It initializes all components (provider registry, router, health checker,
// transformer, execution API client), sets up HTTP routes, and starts the
// server. The function blocks until the server is shut down.
//
// Environment variables used:
//   - PORT: HTTP server port (default: 8001)
//   - NODE_API_URL: execution API base URL (default: http://localhost:3000)
//   - API_KEY: execution API key (default: testkey)
//   - PROVIDER_CONFIG_FILE: optional capability overlay file (JSON or YAML)
func Run() {
	log.Println("Starting AI Logic Orchestrator...")

	// Initialize components
	initializeComponents()

	// Setup router
	r := mux.NewRouter()

	// CORS middleware
	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"}, // Configure for production
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	// Health check
	r.HandleFunc("/health", healthHandler).Methods("GET")

	// Metrics endpoints
	r.HandleFunc("/metrics", metricsHandler).Methods("GET")           // JSON metrics
	r.Handle("/prometheus", promhttp.Handler()).Methods("GET")        // Prometheus native format

	// Orchestration endpoints
	r.HandleFunc("/orchestrate/video", orchestrateVideoHandler).Methods("POST")
	r.HandleFunc("/batch/orchestrate", batchOrchestrateHandler).Methods("POST")

	// Routing analysis
	r.HandleFunc("/analyze/request", analyzeRequestHandler).Methods("POST")

	// Provider management
	r.HandleFunc("/providers/status", providerStatusHandler).Methods("GET")
	r.HandleFunc("/providers/capabilities", providerCapabilitiesHandler).Methods("GET")

	// Start server
	port := getEnv("PORT", "8001")
	handler := c.Handler(r)
	log.Printf("AI Logic Orchestrator listening on port %s", port)
	log.Fatal(http.ListenAndServe(":"+port, handler))
}

func initializeComponents() {
	// Initialize provider registry (built-in capabilities, optional overlay)
	configFile := os.Getenv("PROVIDER_CONFIG_FILE")
	if configFile != "" {
		providerRegistry = video.NewRegistryFromFile(configFile)
		log.Printf("Provider Registry initialized (overlay: %s)", configFile)
	} else {
		providerRegistry = video.NewRegistry()
		log.Println("Provider Registry initialized (built-in capabilities)")
	}

	// Initialize routing engine
	videoRouter = video.NewRouter(providerRegistry)
	log.Println("Routing Engine initialized with multi-factor scoring")

	// Initialize health checker
	healthChecker = video.NewHealthChecker(providerRegistry)
	log.Println("Health Checker initialized")

	// Initialize request transformer
	jobTransformer = video.NewTransformer()
	log.Println("Request Transformer initialized")

	// Initialize execution API client
	nodeAPIURL := getEnv("NODE_API_URL", "http://localhost:3000")
	apiKey := getEnv("API_KEY", "testkey")
	nodeClient = NewNodeAPIClient(nodeAPIURL, apiKey)
	log.Printf("Execution API client initialized (endpoint: %s)", nodeAPIURL)

	// Initialize metrics collector
	metricsCollector = NewMetricsCollector()
	log.Println("Metrics Collector initialized")

	// Initialize structured request logger
	requestLogger = logger.New("orchestrator")
	log.Println("Request Logger initialized")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
