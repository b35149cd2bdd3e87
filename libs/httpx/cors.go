package httpx

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// CORSPolicy defines the CORS headers to emit for matching origins.
type CORSPolicy struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	AllowCredentials bool
	MaxAge           time.Duration
}

// NewCORSPolicy returns the policy used by the booking API for the given origins.
func NewCORSPolicy(origins []string, extraHeaders ...string) CORSPolicy {
	return CORSPolicy{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: append([]string{"Content-Type", RequestIDHeader}, extraHeaders...),
		MaxAge:         10 * time.Minute,
	}
}

type corsRules struct {
	wildcard    bool
	origins     map[string]struct{}
	methods     map[string]struct{}
	methodList  string
	headerList  string
	maxAge      string
	credentials bool
}

func compileCORS(cfg CORSPolicy) corsRules {
	rules := corsRules{
		origins:     make(map[string]struct{}),
		methods:     make(map[string]struct{}),
		credentials: cfg.AllowCredentials,
	}
	for _, o := range normalizeList(cfg.AllowedOrigins) {
		if o == "*" {
			rules.wildcard = true
			continue
		}
		rules.origins[strings.ToLower(o)] = struct{}{}
	}
	methods := normalizeList(cfg.AllowedMethods)
	for i, m := range methods {
		methods[i] = strings.ToUpper(m)
		rules.methods[methods[i]] = struct{}{}
	}
	rules.methodList = strings.Join(methods, ", ")
	rules.headerList = strings.Join(normalizeList(cfg.AllowedHeaders), ", ")
	if secs := int(cfg.MaxAge.Seconds()); secs > 0 {
		rules.maxAge = strconv.Itoa(secs)
	}
	return rules
}

// allowOrigin returns the value for Access-Control-Allow-Origin, or false when
// the origin is not permitted. Credentialed wildcards echo the origin.
func (c corsRules) allowOrigin(origin string) (string, bool) {
	if _, ok := c.origins[strings.ToLower(origin)]; ok {
		return origin, true
	}
	if !c.wildcard {
		return "", false
	}
	if c.credentials {
		return origin, true
	}
	return "*", true
}

// WithCORS adds CORS handling. If AllowedOrigins is empty, it is a no-op.
// Preflights asking for a method outside the policy are answered with 403.
func WithCORS(cfg CORSPolicy) Middleware {
	if len(normalizeList(cfg.AllowedOrigins)) == 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	rules := compileCORS(cfg)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}
			headers := w.Header()
			headers.Add("Vary", "Origin")

			allow, ok := rules.allowOrigin(origin)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}
			headers.Set("Access-Control-Allow-Origin", allow)
			if rules.credentials {
				headers.Set("Access-Control-Allow-Credentials", "true")
			}

			requested := r.Header.Get("Access-Control-Request-Method")
			if r.Method != http.MethodOptions || requested == "" {
				next.ServeHTTP(w, r)
				return
			}

			headers.Add("Vary", "Access-Control-Request-Method")
			headers.Add("Vary", "Access-Control-Request-Headers")
			if _, ok := rules.methods[strings.ToUpper(requested)]; !ok {
				w.WriteHeader(http.StatusForbidden)
				return
			}
			if rules.methodList != "" {
				headers.Set("Access-Control-Allow-Methods", rules.methodList)
			}
			if rules.headerList != "" {
				headers.Set("Access-Control-Allow-Headers", rules.headerList)
			}
			if rules.maxAge != "" {
				headers.Set("Access-Control-Max-Age", rules.maxAge)
			}
			w.WriteHeader(http.StatusNoContent)
		})
	}
}

func normalizeList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}
	return out
}
