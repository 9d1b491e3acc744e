package middleware

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// CORSConfig defines the config for CORS middleware
type CORSConfig struct {
	// AllowedOrigins is a list of origins a cross-domain request can be executed from.
	// An entry may use a leading "*." host label to match any subdomain, e.g.
	// "https://*.example.com". Empty means any origin.
	AllowedOrigins []string

	// AllowCredentials indicates whether the request can include user credentials.
	// It is only sent back for an origin that matched the list.
	AllowCredentials bool

	// AllowedMethods is a list of methods the client is allowed to use
	AllowedMethods []string

	// AllowedHeaders is a list of non-simple headers the client is allowed to use
	AllowedHeaders []string

	// ExposedHeaders indicates which response headers browser scripts may read
	ExposedHeaders []string

	// MaxAge indicates how long (in seconds) the results of a preflight request can be cached
	MaxAge int
}

// DefaultCORSConfig returns a default CORS config for the dashboard, which
// runs on a local dev server unless configured otherwise.
func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		AllowedOrigins:   []string{"http://localhost:3000"},
		AllowCredentials: true,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Requested-With"},
		ExposedHeaders:   []string{"Content-Length"},
		MaxAge:           3600,
	}
}

// DashboardCORSConfig is the default config with origins taken from
// CORS_ALLOWED_ORIGINS when any are set.
func DashboardCORSConfig(origins []string) CORSConfig {
	cfg := DefaultCORSConfig()
	if len(origins) > 0 {
		cfg.AllowedOrigins = origins
	}
	return cfg
}

// WidgetCORSConfig is used for the embeddable widget endpoints, which are
// called from arbitrary customer sites without credentials.
func WidgetCORSConfig() CORSConfig {
	cfg := DefaultCORSConfig()
	cfg.AllowedOrigins = nil
	cfg.AllowCredentials = false
	cfg.AllowedMethods = []string{"GET", "POST", "OPTIONS"}
	cfg.AllowedHeaders = []string{"Origin", "Content-Type", "Accept"}
	return cfg
}

// originMatcher answers whether an Origin header is on the allow list.
type originMatcher struct {
	exact    map[string]struct{}
	suffixes []wildcardOrigin
}

type wildcardOrigin struct {
	scheme string // "https://"
	suffix string // ".example.com"
}

func newOriginMatcher(origins []string) originMatcher {
	m := originMatcher{exact: make(map[string]struct{}, len(origins))}
	for _, o := range origins {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if i := strings.Index(o, "://*."); i >= 0 {
			m.suffixes = append(m.suffixes, wildcardOrigin{scheme: o[:i+3], suffix: o[i+4:]})
			continue
		}
		m.exact[o] = struct{}{}
	}
	return m
}

func (m originMatcher) allows(origin string) bool {
	if origin == "" {
		return false
	}
	if _, ok := m.exact[origin]; ok {
		return true
	}
	for _, w := range m.suffixes {
		host := strings.TrimPrefix(origin, w.scheme)
		if host != origin && strings.HasSuffix(host, w.suffix) && len(host) > len(w.suffix) {
			return true
		}
	}
	return false
}

// CORS creates a new CORS middleware handler. A preflight (OPTIONS carrying
// Access-Control-Request-Method) is answered here with 204; every other
// request continues down the chain.
func CORS(config ...CORSConfig) fiber.Handler {
	cfg := DefaultCORSConfig()
	if len(config) > 0 {
		cfg = config[0]
	}

	anyOrigin := len(cfg.AllowedOrigins) == 0
	matcher := newOriginMatcher(cfg.AllowedOrigins)
	allowedMethods := strings.Join(cfg.AllowedMethods, ",")
	allowedHeaders := strings.Join(cfg.AllowedHeaders, ",")
	exposedHeaders := strings.Join(cfg.ExposedHeaders, ",")
	maxAge := strconv.Itoa(cfg.MaxAge)

	return func(c *fiber.Ctx) error {
		origin := c.Get(fiber.HeaderOrigin)

		allowed := false
		switch {
		case anyOrigin:
			c.Set(fiber.HeaderAccessControlAllowOrigin, "*")
			allowed = true
		case matcher.allows(origin):
			c.Set(fiber.HeaderAccessControlAllowOrigin, origin)
			allowed = true
		}
		if !anyOrigin {
			c.Vary(fiber.HeaderOrigin)
		}

		if allowed {
			if cfg.AllowCredentials && !anyOrigin {
				c.Set(fiber.HeaderAccessControlAllowCredentials, "true")
			}
			if exposedHeaders != "" {
				c.Set(fiber.HeaderAccessControlExposeHeaders, exposedHeaders)
			}
		}

		if c.Method() == fiber.MethodOptions && c.Get(fiber.HeaderAccessControlRequestMethod) != "" {
			if allowed {
				c.Set(fiber.HeaderAccessControlAllowMethods, allowedMethods)
				c.Set(fiber.HeaderAccessControlAllowHeaders, allowedHeaders)
				c.Set(fiber.HeaderAccessControlMaxAge, maxAge)
			}
			return c.SendStatus(fiber.StatusNoContent)
		}

		return c.Next()
	}
}
