package metrics

import (
	"net/http"
	"sync"

	ocprom "contrib.go.opencensus.io/exporter/prometheus"
	promclient "github.com/prometheus/client_golang/prometheus"
	"go.opencensus.io/stats/view"
	"golang.org/x/xerrors"
)

var (
	exporterOnce sync.Once
	exporter     *ocprom.Exporter
	exporterErr  error
)

// Exporter registers the default views and returns a handler serving them,
// together with everything else on the default prometheus registry.
func Exporter(namespace string) (http.Handler, error) {
	exporterOnce.Do(func() {
		registry, ok := promclient.DefaultRegisterer.(*promclient.Registry)
		if !ok {
			exporterErr = xerrors.Errorf("failed to export default prometheus registry as a registry")
			return
		}

		exporter, exporterErr = ocprom.NewExporter(ocprom.Options{
			Registry:  registry,
			Namespace: namespace,
		})
		if exporterErr != nil {
			return
		}

		if err := view.Register(DefaultViews...); err != nil {
			exporterErr = xerrors.Errorf("registering views: %w", err)
		}
	})
	return exporter, exporterErr
}
