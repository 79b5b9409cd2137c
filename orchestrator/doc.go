// Copyright 2025 Potter Labs
// SPDX-License-Identifier: BUSL-1.1

/*
Package orchestrator provides the ailogic orchestration service, the
intelligent routing layer that sits between clients and the video
generation execution API.

# Overview

The orchestrator receives video generation requests and handles:

  - Multi-factor provider selection across runway, pika, gemini_veo and
    the slideshow generator
  - Provider health checking with automatic fallback substitution
  - Request-to-job transformation with provider-specific optimizations
  - Batch orchestration with per-provider scheduling
  - Metrics collection and Prometheus exposition

# Architecture

Requests flow through a pipeline:

	Request → Router → Health Check → Transformer → Node API Dispatch

The orchestrator never calls provider SDKs itself; every job is handed
to the downstream Node execution API, which owns provider credentials
and job execution.

# Routing

The router scores every registered provider on five weighted factors
(style, content type, duration, quality, cost) and picks the highest
total. The scoring runner-up is recorded as the fallback and substituted
at most once when the primary fails its health check. A request's
preferred_provider bypasses scoring entirely.

	decision, err := videoRouter.Route(req)

The /analyze/request endpoint exposes the full score breakdown without
dispatching anything, for debugging routing behavior.

# Endpoints

	POST /orchestrate/video        route, transform and dispatch one request
	POST /batch/orchestrate        orchestrate a batch with provider grouping
	POST /analyze/request          dry-run routing analysis
	GET  /providers/status         live provider health
	GET  /providers/capabilities   registry capability snapshot
	GET  /health                   service health
	GET  /metrics                  JSON metrics snapshot
	GET  /prometheus               Prometheus exposition

# Configuration

The service is configured through environment variables: PORT,
NODE_API_URL, API_KEY and PROVIDER_CONFIG_FILE. The provider registry
ships with built-in capability defaults; a JSON or YAML file named by
PROVIDER_CONFIG_FILE overlays them without code changes.

The routing engine itself lives in the video subpackage; this package
wires it to HTTP, metrics and the execution API client.
*/
package orchestrator
