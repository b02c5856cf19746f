// Tagsight - RFID Tag Read Ingestion and Live Analytics
// Copyright 2026 Tagsight Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tagsight/tagsight

// Package api exposes the read history, derived views and live feed over
// HTTP: a chi REST surface, the /ws upgrade into the fan-out hub and the
// Prometheus scrape endpoint.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RouterConfig carries the HTTP tunables the router needs.
type RouterConfig struct {
	CORSOrigins     []string
	RateLimitReqs   int
	RateLimitWindow time.Duration

	// Trend window sizes used when the query string does not override.
	DailyDays   int
	HourlyHours int
	WeeklyWeeks int
}

func (c *RouterConfig) applyDefaults() {
	if len(c.CORSOrigins) == 0 {
		c.CORSOrigins = []string{"*"}
	}
	if c.RateLimitReqs == 0 {
		c.RateLimitReqs = 100
	}
	if c.RateLimitWindow == 0 {
		c.RateLimitWindow = time.Minute
	}
	if c.DailyDays == 0 {
		c.DailyDays = 30
	}
	if c.HourlyHours == 0 {
		c.HourlyHours = 24
	}
	if c.WeeklyWeeks == 0 {
		c.WeeklyWeeks = 12
	}
}

// Router wires handlers and middleware into the HTTP surface.
type Router struct {
	cfg     RouterConfig
	handler *Handler
}

// NewRouter builds the router around the given handler.
func NewRouter(cfg RouterConfig, handler *Handler) *Router {
	cfg.applyDefaults()
	handler.cfg = cfg
	return &Router{cfg: cfg, handler: handler}
}

// Setup returns the fully configured chi handler.
func (router *Router) Setup() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: router.cfg.CORSOrigins,
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(httprate.LimitByIP(router.cfg.RateLimitReqs, router.cfg.RateLimitWindow))
		r.Use(prometheusMetrics)

		r.Get("/health", router.handler.Health)
		r.Get("/health/live", router.handler.HealthLive)
		r.Get("/health/ready", router.handler.HealthReady)
		r.Get("/status", router.handler.Status)
		r.Get("/reads/recent", router.handler.RecentReads)
		r.Get("/tags/unique", router.handler.UniqueTags)
		r.Get("/trends/daily", router.handler.DailyTrend)
		r.Get("/trends/hourly", router.handler.HourlyTrend)
		r.Get("/trends/weekly", router.handler.WeeklyTrend)
	})

	r.Get("/ws", router.handler.WebSocket)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	return r
}
