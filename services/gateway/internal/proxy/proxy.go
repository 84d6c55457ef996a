package proxy

import (
	"log/slog"
	"net"
	"net/http"
	stdhttputil "net/http/httputil"
	"net/url"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/Adeebahmed333/Cloud-Enterprise-ERP-System-Microservices-Architecture/pkg/httputil"
	pkgmiddleware "github.com/Adeebahmed333/Cloud-Enterprise-ERP-System-Microservices-Architecture/pkg/middleware"
)

// TransportConfig tunes the shared upstream transport.
type TransportConfig struct {
	DialTimeout     time.Duration
	ResponseTimeout time.Duration
	IdleTimeout     time.Duration
	MaxIdleConns    int
}

// ServiceProxy manages reverse proxies to backend services.
type ServiceProxy struct {
	routes  map[string]*stdhttputil.ReverseProxy
	proxies *pkgmiddleware.CIDRSet
	logger  *slog.Logger
}

// NewServiceProxy creates a reverse proxy for each named upstream. Invalid
// URLs are logged and skipped; requests for them answer 502.
// Requests keep the client address resolved through proxies in X-Forwarded-For.
func NewServiceProxy(upstreams map[string]string, tc TransportConfig, proxies *pkgmiddleware.CIDRSet, logger *slog.Logger) *ServiceProxy {
	sp := &ServiceProxy{
		routes:  make(map[string]*stdhttputil.ReverseProxy, len(upstreams)),
		proxies: proxies,
		logger:  logger,
	}

	transport := otelhttp.NewTransport(&http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: tc.DialTimeout, KeepAlive: 30 * time.Second}).DialContext,
		MaxIdleConns:          tc.MaxIdleConns,
		MaxIdleConnsPerHost:   tc.MaxIdleConns,
		IdleConnTimeout:       tc.IdleTimeout,
		ResponseHeaderTimeout: tc.ResponseTimeout,
		TLSHandshakeTimeout:   10 * time.Second,
	})

	for name, rawURL := range upstreams {
		target, err := url.Parse(rawURL)
		if err != nil || target.Scheme == "" || target.Host == "" {
			logger.Error("invalid service URL",
				slog.String("service", name),
				slog.String("url", rawURL),
			)
			continue
		}

		sp.routes[name] = &stdhttputil.ReverseProxy{
			Rewrite: func(pr *stdhttputil.ProxyRequest) {
				pr.SetURL(target)
				pr.SetXForwarded()
				pr.Out.Header.Set("X-Forwarded-For", pkgmiddleware.ClientIP(pr.In, sp.proxies))
			},
			Transport:    transport,
			ErrorHandler: sp.errorHandler(name),
		}

		logger.Info("registered service proxy",
			slog.String("service", name),
			slog.String("target", rawURL),
		)
	}

	return sp
}

// Handler returns an http.Handler that proxies requests to the named backend service.
func (sp *ServiceProxy) Handler(serviceName string) http.Handler {
	proxy, ok := sp.routes[serviceName]
	if !ok {
		sp.logger.Error("no proxy registered for service", slog.String("service", serviceName))
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			httputil.WriteFailure(w, r, http.StatusBadGateway, "SERVICE_UNAVAILABLE", "service not configured")
		})
	}
	return proxy
}

func (sp *ServiceProxy) errorHandler(serviceName string) func(http.ResponseWriter, *http.Request, error) {
	return func(w http.ResponseWriter, r *http.Request, err error) {
		sp.logger.Error("proxy error",
			slog.String("service", serviceName),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		httputil.WriteFailure(w, r, http.StatusBadGateway, "BAD_GATEWAY", "upstream service unavailable")
	}
}
