package mysql

import (
	"log/slog"

	"github.com/leapstack-labs/leapquery/pkg/connector"
)

func init() {
	connector.Register(connector.KindDatabase, func(l *slog.Logger) connector.Connector { return New(l) }, "mysql")
}
