package main

import (
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"

	"github.com/hmoscout/hmoscout/internal/analyzer"
	"github.com/hmoscout/hmoscout/internal/clock"
	"github.com/hmoscout/hmoscout/internal/compliance"
	"github.com/hmoscout/hmoscout/internal/config"
	"github.com/hmoscout/hmoscout/internal/enrichment"
	"github.com/hmoscout/hmoscout/internal/ingestion"
	"github.com/hmoscout/hmoscout/internal/intelligence"
	"github.com/hmoscout/hmoscout/internal/migration"
	"github.com/hmoscout/hmoscout/internal/observability"
	"github.com/hmoscout/hmoscout/internal/property"
	"github.com/hmoscout/hmoscout/internal/ratelimit"
	"github.com/hmoscout/hmoscout/internal/scheduler"
	"github.com/hmoscout/hmoscout/internal/server"
	"github.com/hmoscout/hmoscout/pkg/db"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		ratelimit.Module,
		property.Module,
		analyzer.Module,
		intelligence.Module,
		enrichment.Module,
		compliance.Module,
		ingestion.Module,
		scheduler.Module,
		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
