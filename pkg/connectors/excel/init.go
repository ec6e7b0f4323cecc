package excel

import (
	"log/slog"

	"github.com/leapstack-labs/leapquery/pkg/connector"
)

func init() {
	connector.Register(connector.KindFile, func(l *slog.Logger) connector.Connector { return New(l) }, "excel", "xlsx")
}
