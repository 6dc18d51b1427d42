//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"
)

func InitializeApplication() (*Application, error) {
	wire.Build(AppSet)
	return nil, nil
}
