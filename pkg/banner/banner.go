// Package banner prints the startup summary shown on stdout.
package banner

import (
	"fmt"

	"loom/pkg/config"
)

const banner = `
██╗      ██████╗  ██████╗ ███╗   ███╗
██║     ██╔═══██╗██╔═══██╗████╗ ████║
██║     ██║   ██║██║   ██║██╔████╔██║
██║     ██║   ██║██║   ██║██║╚██╔╝██║
███████╗╚██████╔╝╚██████╔╝██║ ╚═╝ ██║
╚══════╝ ╚═════╝  ╚═════╝ ╚═╝     ╚═╝
`

// Print renders the banner for an effective config.
func Print(eff config.EffectiveConfigResult, version string) {
	addr := eff.Addr
	if addr == "" && eff.Config != nil {
		addr = eff.Config.Addr()
	}
	src := eff.Source
	if src == "" {
		src = "flags"
	}

	fmt.Print(banner)
	fmt.Println("== Config =====================================================")
	fmt.Printf("Listen:   %s\n", addr)
	fmt.Printf("DB Path:  %s\n", eff.DBPath)
	if version != "" {
		fmt.Printf("Version:  %s\n", version)
	}
	fmt.Printf("Config:   %s\n", src)

	if eff.Config != nil {
		p := eff.Config.Provider
		if p.Type != "" {
			fmt.Printf("Provider: %s (model=%s)\n", p.Type, p.Model)
		} else {
			fmt.Println("Provider: unconfigured")
		}
		if eff.Config.Retention.Enabled {
			if eff.Config.Retention.Cron != "" {
				fmt.Printf("Retention: enabled (cron=%s)\n", eff.Config.Retention.Cron)
			} else {
				fmt.Printf("Retention: enabled (period=%s)\n", eff.Config.Retention.Period.Duration())
			}
		} else {
			fmt.Println("Retention: disabled")
		}
		if eff.Config.Server.TLS.CertFile != "" && eff.Config.Server.TLS.KeyFile != "" {
			fmt.Println("TLS:      configured")
		} else {
			fmt.Println("TLS:      unconfigured")
		}
	}

	fmt.Println("\n== Endpoints ==================================================")
	fmt.Println("POST /v1/conversations                      - Create a conversation")
	fmt.Println("GET  /v1/conversations                      - List conversations")
	fmt.Println("GET  /v1/conversations/{id}                 - Fetch a conversation with its reply tree")
	fmt.Println("POST /v1/conversations/{id}/messages        - Post a message (optional parent_id)")
	fmt.Println("POST /v1/conversations/{id}/turns           - Submit a turn; reply streams as SSE")
	fmt.Println("GET  /metrics                               - Prometheus metrics")
	fmt.Println("GET  /docs/                                 - API docs")

	fmt.Println("\n== Examples ===================================================")
	fmt.Printf("curl -X POST 'http://%s/v1/conversations' -d '{\"title\":\"hello\"}'\n", addr)
	fmt.Printf("curl -N -X POST 'http://%s/v1/conversations/<id>/turns' -d '{\"content\":\"hi\"}'\n", addr)

	fmt.Println("\n== Logs: =================================================")
}
