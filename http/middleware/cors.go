package middlewares

import (
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/tnqbao/gau-site-director/config"
)

func allowedOrigins(cfg *config.EnvConfig) []string {
	var origins []string
	for _, o := range strings.Split(cfg.CORS.AllowDomains, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

func CORSMiddleware(cfg *config.EnvConfig) gin.HandlerFunc {
	origins := allowedOrigins(cfg)
	global := cfg.CORS.GlobalDomain

	return cors.New(cors.Config{
		AllowOriginFunc: func(origin string) bool {
			for _, o := range origins {
				if o == origin {
					return true
				}
			}
			// any subdomain of the global domain
			return global != "" && strings.HasSuffix(origin, "."+global)
		},
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	})
}

// AllowedOrigins is also used by the websocket origin check.
func AllowedOrigins(cfg *config.EnvConfig) []string {
	return allowedOrigins(cfg)
}
