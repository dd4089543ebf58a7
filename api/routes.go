// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package api

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers the model debug routes with the router.
//
// Description:
//
//	Registers all /v1/* endpoints with the given Gin router group. The
//	router group should already have any required middleware applied.
//
// Inputs:
//
//	rg - Gin router group (typically the engine root)
//	handlers - The handlers instance
//
// Endpoints:
//
//	GET  /v1/health - Liveness check and model identity
//	GET  /v1/model - Structural export of the materialized graph
//	GET  /v1/model/stats - Node and edge counters
//	POST /v1/realize - Run one trace over named nodes
//	POST /v1/sample - Draw n independent values of one node
//	GET  /v1/partition - Empirical static/dynamic edge report
//
// Example:
//
//	handlers := api.NewHandlers(engine).WithStore(traces)
//	api.RegisterRoutes(&router.RouterGroup, handlers)
func RegisterRoutes(rg *gin.RouterGroup, handlers *Handlers) {
	v1 := rg.Group("/v1")
	{
		// Health check
		v1.GET("/health", handlers.HandleHealth)

		// Model structure
		model := v1.Group("/model")
		{
			model.GET("", handlers.HandleModel)
			model.GET("/stats", handlers.HandleModelStats)
		}

		// Trace execution
		v1.POST("/realize", handlers.HandleRealize)
		v1.POST("/sample", handlers.HandleSample)

		// Edge classification
		v1.GET("/partition", handlers.HandlePartition)
	}
}
