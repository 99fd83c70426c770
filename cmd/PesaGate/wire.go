//go:build wireinject
// +build wireinject

// The build tag makes sure the stub is not built in the final build.

package main

import (
	"PesaGate/internal/adapter"
	"PesaGate/internal/biz"
	"PesaGate/internal/conf"
	"PesaGate/internal/data"
	"PesaGate/internal/metrics"
	"PesaGate/internal/server"
	"PesaGate/internal/service"

	"github.com/go-kratos/kratos/v2"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/wire"
)

// wireApp init kratos application.
func wireApp(*conf.Bootstrap, *conf.Data, log.Logger) (*kratos.App, func(), error) {
	panic(wire.Build(
		data.ProviderSet,
		biz.ProviderSet,
		service.ProviderSet,
		server.ProviderSet,
		adapter.NewRegistryFromConfig,
		metrics.New,
		newApp,
	))
}
